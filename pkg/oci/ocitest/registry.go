// Package ocitest provides an in-memory OCI Distribution registry for
// tests: just enough of the protocol for the client, discovery, and engine
// test suites to push and pull artifacts without a real registry.
package ocitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"

	"github.com/opencontainers/go-digest"
)

type manifestEntry struct {
	data      []byte
	mediaType string
}

// Registry is an in-memory registry behind an httptest server. It verifies
// blob digests on upload, like a conformant registry.
type Registry struct {
	mu        sync.RWMutex
	blobs     map[string]map[digest.Digest][]byte
	manifests map[string]map[string]manifestEntry
	server    *httptest.Server

	// CorruptBlob, when set, substitutes the returned bytes for that blob
	// digest so integrity failures can be provoked.
	CorruptBlob digest.Digest
}

// New starts a fake registry. Callers own the Close.
func New() *Registry {
	r := &Registry{
		blobs:     make(map[string]map[digest.Digest][]byte),
		manifests: make(map[string]map[string]manifestEntry),
	}
	r.server = httptest.NewServer(r)
	return r
}

// URL returns the registry base URL.
func (r *Registry) URL() string {
	return r.server.URL
}

func (r *Registry) Close() {
	r.server.Close()
}

// Repositories returns the sorted catalog.
func (r *Registry) Repositories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	for repo := range r.blobs {
		seen[repo] = true
	}
	for repo := range r.manifests {
		seen[repo] = true
	}
	repos := make([]string, 0, len(seen))
	for repo := range seen {
		repos = append(repos, repo)
	}
	sort.Strings(repos)
	return repos
}

func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	path := strings.TrimPrefix(req.URL.Path, "/v2/")

	switch {
	case req.URL.Path == "/v2/_catalog":
		r.handleCatalog(w)
	case strings.HasSuffix(path, "/tags/list"):
		r.handleTags(w, req, strings.TrimSuffix(path, "/tags/list"))
	case strings.Contains(path, "/blobs/uploads/"):
		repo := path[:strings.Index(path, "/blobs/uploads/")]
		r.handleUpload(w, req, repo)
	case strings.Contains(path, "/blobs/"):
		idx := strings.Index(path, "/blobs/")
		r.handleBlob(w, req, path[:idx], path[idx+len("/blobs/"):])
	case strings.Contains(path, "/manifests/"):
		idx := strings.Index(path, "/manifests/")
		r.handleManifest(w, req, path[:idx], path[idx+len("/manifests/"):])
	default:
		http.NotFound(w, req)
	}
}

func (r *Registry) handleCatalog(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string][]string{"repositories": r.Repositories()})
}

func (r *Registry) handleTags(w http.ResponseWriter, req *http.Request, repo string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tagged, ok := r.manifests[repo]
	if !ok {
		http.NotFound(w, req)
		return
	}
	tags := make([]string, 0, len(tagged))
	for tag := range tagged {
		if !strings.HasPrefix(tag, "sha256:") {
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"name": repo, "tags": tags})
}

func (r *Registry) handleUpload(w http.ResponseWriter, req *http.Request, repo string) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	content, err := io.ReadAll(req.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	claimed := digest.Digest(req.URL.Query().Get("digest"))
	if computed := digest.FromBytes(content); claimed != computed {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	r.mu.Lock()
	if r.blobs[repo] == nil {
		r.blobs[repo] = make(map[digest.Digest][]byte)
	}
	r.blobs[repo][claimed] = content
	r.mu.Unlock()

	w.Header().Set("Docker-Content-Digest", claimed.String())
	w.WriteHeader(http.StatusCreated)
}

func (r *Registry) handleBlob(w http.ResponseWriter, req *http.Request, repo, rawDigest string) {
	r.mu.RLock()
	content, ok := r.blobs[repo][digest.Digest(rawDigest)]
	corrupt := r.CorruptBlob
	r.mu.RUnlock()

	if !ok {
		http.NotFound(w, req)
		return
	}

	switch req.Method {
	case http.MethodHead:
		w.Header().Set("Content-Length", fmt.Sprint(len(content)))
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		if corrupt != "" && corrupt.String() == rawDigest {
			content = append([]byte("corrupted:"), content...)
		}
		_, _ = w.Write(content)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (r *Registry) handleManifest(w http.ResponseWriter, req *http.Request, repo, reference string) {
	switch req.Method {
	case http.MethodPut:
		data, err := io.ReadAll(req.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		dgst := digest.FromBytes(data)
		entry := manifestEntry{data: data, mediaType: req.Header.Get("Content-Type")}

		r.mu.Lock()
		if r.manifests[repo] == nil {
			r.manifests[repo] = make(map[string]manifestEntry)
		}
		r.manifests[repo][reference] = entry
		r.manifests[repo][dgst.String()] = entry
		r.mu.Unlock()

		w.Header().Set("Docker-Content-Digest", dgst.String())
		w.WriteHeader(http.StatusCreated)

	case http.MethodGet, http.MethodHead:
		r.mu.RLock()
		entry, ok := r.manifests[repo][reference]
		r.mu.RUnlock()
		if !ok {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Type", entry.mediaType)
		w.Header().Set("Docker-Content-Digest", digest.FromBytes(entry.data).String())
		if req.Method == http.MethodGet {
			_, _ = w.Write(entry.data)
		}

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
