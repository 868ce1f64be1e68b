package oci_test

import (
	"context"
	"testing"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-flow/maestro/pkg/oci"
	"github.com/maestro-flow/maestro/pkg/oci/ocitest"
)

func newClient(t *testing.T) (*oci.Client, *ocitest.Registry) {
	t.Helper()
	registry := ocitest.New()
	t.Cleanup(registry.Close)
	return oci.NewClient(registry.URL()), registry
}

func TestBlobRoundTrip(t *testing.T) {
	client, _ := newClient(t)
	ctx := context.Background()
	content := []byte("metadata:\n  id: wf\n")

	dgst, err := client.UploadBlob(ctx, "workflows/wf", content)
	require.NoError(t, err)
	assert.Equal(t, digest.FromBytes(content), dgst)

	exists, err := client.BlobExists(ctx, "workflows/wf", dgst)
	require.NoError(t, err)
	assert.True(t, exists)

	pulled, err := client.GetBlob(ctx, "workflows/wf", dgst)
	require.NoError(t, err)
	assert.Equal(t, content, pulled)
	assert.Equal(t, digest.FromBytes(content), digest.FromBytes(pulled))
}

func TestUploadBlob_Idempotent(t *testing.T) {
	client, registry := newClient(t)
	ctx := context.Background()
	content := []byte("same bytes")

	first, err := client.UploadBlob(ctx, "workflows/wf", content)
	require.NoError(t, err)
	second, err := client.UploadBlob(ctx, "workflows/wf", content)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"workflows/wf"}, registry.Repositories())
}

func TestGetBlob_IntegrityFailure(t *testing.T) {
	client, registry := newClient(t)
	ctx := context.Background()

	dgst, err := client.UploadBlob(ctx, "workflows/wf", []byte("trust me"))
	require.NoError(t, err)

	registry.CorruptBlob = dgst
	_, err = client.GetBlob(ctx, "workflows/wf", dgst)
	require.Error(t, err)
	var integrityErr *oci.IntegrityError
	require.ErrorAs(t, err, &integrityErr)
	assert.Equal(t, dgst, integrityErr.Expected)
}

func TestGetBlob_NotFound(t *testing.T) {
	client, _ := newClient(t)

	_, err := client.GetBlob(context.Background(), "workflows/wf", digest.FromString("absent"))
	assert.ErrorIs(t, err, oci.ErrNotFound)
}

func TestListRepositories_NetworkError(t *testing.T) {
	client := oci.NewClient("http://127.0.0.1:1")

	_, err := client.ListRepositories(context.Background())
	require.Error(t, err)
	var netErr *oci.NetworkError
	assert.ErrorAs(t, err, &netErr)
}

func TestPushPullArtifact(t *testing.T) {
	client, _ := newClient(t)
	ctx := context.Background()

	file := oci.File{
		Name:      "pipeline.yaml",
		MediaType: oci.MediaTypeWorkflow,
		Data:      []byte("metadata:\n  id: pipeline\n"),
	}

	manifestDigest, err := client.PushArtifact(ctx, "workflows/pipeline", "v1", file, oci.MediaTypeWorkflow)
	require.NoError(t, err)
	require.NotEmpty(t, manifestDigest)

	files, err := client.PullArtifact(ctx, "workflows/pipeline", "v1")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "pipeline.yaml", files[0].Name)
	assert.Equal(t, oci.MediaTypeWorkflow, files[0].MediaType)
	assert.Equal(t, file.Data, files[0].Data)
}

func TestPushArtifact_DeterministicManifest(t *testing.T) {
	client, _ := newClient(t)
	ctx := context.Background()
	file := oci.File{Name: "card.json", MediaType: oci.MediaTypeAgentCard, Data: []byte(`{"name":"a"}`)}

	first, err := client.PushArtifact(ctx, "agents/a", "v1", file, "")
	require.NoError(t, err)
	second, err := client.PushArtifact(ctx, "agents/a", "v1", file, "")
	require.NoError(t, err)
	assert.Equal(t, first, second, "same content must produce the same manifest digest")
}

func TestPullArtifact_TitleAnnotationAndFallback(t *testing.T) {
	client, _ := newClient(t)
	ctx := context.Background()

	// Pushed through PushArtifact the title annotation names the file.
	_, err := client.PushArtifact(ctx, "agents/a", "v1", oci.File{
		Name: "card.json", MediaType: oci.MediaTypeAgentCard, Data: []byte(`{}`),
	}, "")
	require.NoError(t, err)

	manifest, _, _, err := client.GetManifest(ctx, "agents/a", "v1")
	require.NoError(t, err)
	require.Len(t, manifest.Layers, 1)
	assert.Equal(t, "card.json", manifest.Layers[0].Annotations[ocispec.AnnotationTitle])
	assert.Equal(t, int64(2), manifest.Layers[0].Size)
}

func TestCatalogListing(t *testing.T) {
	client, _ := newClient(t)
	ctx := context.Background()

	for _, repo := range []string{"workflows/one", "workflows/two", "workflows/three"} {
		_, err := client.PushArtifact(ctx, repo, "v1", oci.File{
			Name: "wf.yaml", MediaType: oci.MediaTypeWorkflow, Data: []byte("metadata: {id: " + repo + "}"),
		}, "")
		require.NoError(t, err)
	}

	repos, err := client.ListRepositories(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"workflows/one", "workflows/two", "workflows/three"}, repos)

	tags, err := client.ListTags(ctx, "workflows/one")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, tags)
}
