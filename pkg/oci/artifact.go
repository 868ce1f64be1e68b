package oci

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Media types for the artifact payloads maestro stores.
const (
	MediaTypeWorkflow  = "application/yaml"
	MediaTypeAgentCard = "application/json"
)

// File is one artifact payload: a named blob plus its media type.
type File struct {
	Name      string
	MediaType string
	Data      []byte
}

// PushArtifact stores a single-file artifact under repo:tag. The file is
// uploaded as a blob and referenced by a manifest whose config and sole
// layer reuse the same descriptor, with the filename carried in the title
// annotation. artifactType, when non-empty, is set for OCI 1.1 consumers.
// Pushing identical content twice is a no-op at the registry level.
func (c *Client) PushArtifact(ctx context.Context, repo, tag string, file File, artifactType string) (digest.Digest, error) {
	dgst, err := c.UploadBlob(ctx, repo, file.Data)
	if err != nil {
		return "", fmt.Errorf("failed to upload blob for %s:%s: %w", repo, tag, err)
	}

	descriptor := ocispec.Descriptor{
		MediaType: file.MediaType,
		Digest:    dgst,
		Size:      int64(len(file.Data)),
		Annotations: map[string]string{
			ocispec.AnnotationTitle: file.Name,
		},
	}

	manifest := ocispec.Manifest{
		Versioned:    specs.Versioned{SchemaVersion: 2},
		MediaType:    ocispec.MediaTypeImageManifest,
		ArtifactType: artifactType,
		Config:       descriptor,
		Layers:       []ocispec.Descriptor{descriptor},
	}

	// encoding/json emits struct fields in declaration order and map keys
	// sorted, so the manifest bytes are reproducible across processes.
	manifestBytes, err := json.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("failed to serialize manifest: %w", err)
	}

	manifestDigest, err := c.UploadManifest(ctx, repo, tag, manifestBytes, ocispec.MediaTypeImageManifest)
	if err != nil {
		return "", fmt.Errorf("failed to upload manifest for %s:%s: %w", repo, tag, err)
	}

	c.log.Info("artifact pushed",
		"repo", repo,
		"tag", tag,
		"file", file.Name,
		"digest", manifestDigest)
	return manifestDigest, nil
}

// PullArtifact fetches the manifest at repo:reference and downloads every
// layer, verifying each blob against its descriptor digest. Filenames come
// from the title annotation when present, else are synthesized from the
// digest hex. Payloads are held in memory; single-file artifacts are small.
func (c *Client) PullArtifact(ctx context.Context, repo, reference string) ([]File, error) {
	manifest, _, _, err := c.GetManifest(ctx, repo, reference)
	if err != nil {
		return nil, err
	}

	files := make([]File, 0, len(manifest.Layers))
	for _, layer := range manifest.Layers {
		data, err := c.GetBlob(ctx, repo, layer.Digest)
		if err != nil {
			return nil, fmt.Errorf("failed to pull layer %s from %s: %w", layer.Digest, repo, err)
		}

		name := layer.Annotations[ocispec.AnnotationTitle]
		if name == "" {
			name = layer.Digest.Encoded()
		}
		files = append(files, File{
			Name:      name,
			MediaType: layer.MediaType,
			Data:      data,
		})
	}
	return files, nil
}
