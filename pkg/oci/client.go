// Package oci is a minimal OCI Distribution API client: enough of the
// protocol to enumerate repositories and to push and pull single-file
// artifacts against any conformant registry. Blobs are content-addressed by
// sha256 digest and verified on the way in and out.
package oci

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/maestro-flow/maestro/pkg/logger"
	"github.com/maestro-flow/maestro/pkg/observability"
)

// Doer is the subset of http.Client the registry client needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client speaks the OCI Distribution HTTP API against one registry. It holds
// no per-request state beyond the pooled HTTP client and is safe for
// concurrent use. Nothing is retried at this layer.
type Client struct {
	baseURL    string
	httpClient Doer
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default pooled http.Client. The CLI passes a
// retrying client here; the engine path keeps the plain default.
func WithHTTPClient(d Doer) Option {
	return func(c *Client) {
		if d != nil {
			c.httpClient = d
		}
	}
}

// NewClient builds a client for the registry at registryURL, e.g.
// "http://localhost:5000".
func NewClient(registryURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(registryURL, "/"),
		httpClient: &http.Client{},
		log:        logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListRepositories returns the registry catalog, GET /v2/_catalog.
func (c *Client) ListRepositories(ctx context.Context) ([]string, error) {
	url := c.baseURL + "/v2/_catalog"
	resp, err := c.do(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	observability.GetGlobalMetrics().RecordRegistryRequest(ctx, "catalog", resp.StatusCode)

	if err := c.checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}

	var catalog struct {
		Repositories []string `json:"repositories"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&catalog); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	return catalog.Repositories, nil
}

// ListTags returns the tags for one repository, GET /v2/<name>/tags/list.
func (c *Client) ListTags(ctx context.Context, repo string) ([]string, error) {
	url := fmt.Sprintf("%s/v2/%s/tags/list", c.baseURL, repo)
	resp, err := c.do(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	observability.GetGlobalMetrics().RecordRegistryRequest(ctx, "tags", resp.StatusCode)

	if err := c.checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}

	var tags struct {
		Name string   `json:"name"`
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	return tags.Tags, nil
}

// BlobExists checks for a blob, HEAD /v2/<repo>/blobs/<digest>.
func (c *Client) BlobExists(ctx context.Context, repo string, dgst digest.Digest) (bool, error) {
	url := fmt.Sprintf("%s/v2/%s/blobs/%s", c.baseURL, repo, dgst)
	resp, err := c.do(ctx, http.MethodHead, url, nil, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	observability.GetGlobalMetrics().RecordRegistryRequest(ctx, "blob_head", resp.StatusCode)

	return resp.StatusCode == http.StatusOK, nil
}

// UploadBlob pushes content as a blob using the monolithic single-POST
// upload and returns its digest. Upload is idempotent under digest: when the
// registry already holds the blob the POST is skipped.
func (c *Client) UploadBlob(ctx context.Context, repo string, content []byte) (digest.Digest, error) {
	dgst := digest.FromBytes(content)

	if exists, err := c.BlobExists(ctx, repo, dgst); err == nil && exists {
		c.log.Debug("blob already present", "repo", repo, "digest", dgst)
		return dgst, nil
	}

	url := fmt.Sprintf("%s/v2/%s/blobs/uploads/?digest=%s", c.baseURL, repo, dgst)
	headers := map[string]string{"Content-Type": "application/octet-stream"}
	resp, err := c.do(ctx, http.MethodPost, url, bytes.NewReader(content), headers)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	observability.GetGlobalMetrics().RecordRegistryRequest(ctx, "blob_upload", resp.StatusCode)

	// A digest-verifying registry rejects a corrupt upload with 400.
	if resp.StatusCode == http.StatusBadRequest {
		return "", &IntegrityError{Expected: dgst, Computed: ""}
	}
	if err := c.checkStatus(resp, http.StatusCreated); err != nil {
		return "", err
	}

	c.log.Debug("blob uploaded", "repo", repo, "digest", dgst, "size", len(content))
	return dgst, nil
}

// GetBlob fetches a blob and verifies its content against the requested
// digest before returning it.
func (c *Client) GetBlob(ctx context.Context, repo string, dgst digest.Digest) ([]byte, error) {
	url := fmt.Sprintf("%s/v2/%s/blobs/%s", c.baseURL, repo, dgst)
	resp, err := c.do(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	observability.GetGlobalMetrics().RecordRegistryRequest(ctx, "blob_get", resp.StatusCode)

	if err := c.checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}

	if computed := digest.FromBytes(content); computed != dgst {
		return nil, &IntegrityError{Expected: dgst, Computed: computed}
	}
	return content, nil
}

// UploadManifest pushes manifest bytes under a tag, PUT
// /v2/<repo>/manifests/<tag>, and returns the manifest digest: the
// registry's Docker-Content-Digest header when present, else recomputed
// locally.
func (c *Client) UploadManifest(ctx context.Context, repo, tag string, manifestBytes []byte, mediaType string) (digest.Digest, error) {
	url := fmt.Sprintf("%s/v2/%s/manifests/%s", c.baseURL, repo, tag)
	headers := map[string]string{"Content-Type": mediaType}
	resp, err := c.do(ctx, http.MethodPut, url, bytes.NewReader(manifestBytes), headers)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	observability.GetGlobalMetrics().RecordRegistryRequest(ctx, "manifest_put", resp.StatusCode)

	if err := c.checkStatus(resp, http.StatusCreated); err != nil {
		return "", err
	}

	if header := resp.Header.Get("Docker-Content-Digest"); header != "" {
		if dgst, err := digest.Parse(header); err == nil {
			return dgst, nil
		}
	}
	return digest.FromBytes(manifestBytes), nil
}

// GetManifest fetches a manifest by tag or digest and returns its parsed
// form, raw bytes, and digest.
func (c *Client) GetManifest(ctx context.Context, repo, reference string) (*ocispec.Manifest, []byte, digest.Digest, error) {
	url := fmt.Sprintf("%s/v2/%s/manifests/%s", c.baseURL, repo, reference)
	headers := map[string]string{"Accept": ocispec.MediaTypeImageManifest}
	resp, err := c.do(ctx, http.MethodGet, url, nil, headers)
	if err != nil {
		return nil, nil, "", err
	}
	defer resp.Body.Close()
	observability.GetGlobalMetrics().RecordRegistryRequest(ctx, "manifest_get", resp.StatusCode)

	if err := c.checkStatus(resp, http.StatusOK); err != nil {
		return nil, nil, "", err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest ocispec.Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, nil, "", fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &manifest, raw, digest.FromBytes(raw), nil
}

// do issues one request, mapping transport failures to *NetworkError.
func (c *Client) do(ctx context.Context, method, url string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	return resp, nil
}

// checkStatus maps an unexpected status to the error taxonomy: 404 to
// ErrNotFound, anything else to *RegistryError.
func (c *Client) checkStatus(resp *http.Response, want int) error {
	if resp.StatusCode == want {
		return nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", resp.Request.URL.Path, ErrNotFound)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &RegistryError{Status: resp.StatusCode, Body: string(body)}
}
