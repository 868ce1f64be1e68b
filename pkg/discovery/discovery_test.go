package discovery_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-flow/maestro/pkg/a2a"
	"github.com/maestro-flow/maestro/pkg/discovery"
	"github.com/maestro-flow/maestro/pkg/oci"
	"github.com/maestro-flow/maestro/pkg/oci/ocitest"
	"github.com/maestro-flow/maestro/pkg/workflow"
)

const validWorkflowYAML = `
metadata:
  id: pipeline
  name: Pipeline
  version: 1.0.0
steps:
  - id: s1
    skill: analyze
`

func pushCard(t *testing.T, client *oci.Client, card a2a.AgentCard) {
	t.Helper()
	data, err := json.Marshal(card)
	require.NoError(t, err)
	_, err = client.PushArtifact(context.Background(), discovery.AgentRepoPrefix+card.Name, "v1", oci.File{
		Name:      "card.json",
		MediaType: oci.MediaTypeAgentCard,
		Data:      data,
	}, oci.MediaTypeAgentCard)
	require.NoError(t, err)
}

func pushWorkflow(t *testing.T, client *oci.Client, id, yamlDoc string) {
	t.Helper()
	_, err := client.PushArtifact(context.Background(), discovery.WorkflowRepoPrefix+id, "v1", oci.File{
		Name:      id + ".yaml",
		MediaType: oci.MediaTypeWorkflow,
		Data:      []byte(yamlDoc),
	}, oci.MediaTypeWorkflow)
	require.NoError(t, err)
}

func newDiscovery(t *testing.T) (*discovery.Discovery, *oci.Client) {
	t.Helper()
	registry := ocitest.New()
	t.Cleanup(registry.Close)
	client := oci.NewClient(registry.URL())
	return discovery.New(client), client
}

func TestFindAgentForSkill(t *testing.T) {
	disc, client := newDiscovery(t)
	ctx := context.Background()

	pushCard(t, client, a2a.AgentCard{
		Name: "vision", URL: "http://vision:8080", Version: "1.0.0",
		Skills: []a2a.AgentSkill{{ID: "analyze-image"}, {ID: "classify"}},
	})
	pushCard(t, client, a2a.AgentCard{
		Name: "writer", URL: "http://writer:8080", Version: "1.0.0",
		Skills: []a2a.AgentSkill{{ID: "summarize"}},
	})

	url, err := disc.FindAgentForSkill(ctx, "summarize")
	require.NoError(t, err)
	assert.Equal(t, "http://writer:8080", url)

	url, err = disc.FindAgentForSkill(ctx, "classify")
	require.NoError(t, err)
	assert.Equal(t, "http://vision:8080", url)

	_, err = disc.FindAgentForSkill(ctx, "no-such-skill")
	assert.ErrorIs(t, err, discovery.ErrNotFound)
}

func TestFindAgentForSkill_SkipsUnparsableCards(t *testing.T) {
	disc, client := newDiscovery(t)
	ctx := context.Background()

	_, err := client.PushArtifact(ctx, discovery.AgentRepoPrefix+"broken", "v1", oci.File{
		Name: "card.json", MediaType: oci.MediaTypeAgentCard, Data: []byte("not json"),
	}, oci.MediaTypeAgentCard)
	require.NoError(t, err)
	pushCard(t, client, a2a.AgentCard{
		Name: "ok", URL: "http://ok:8080", Version: "1.0.0",
		Skills: []a2a.AgentSkill{{ID: "work"}},
	})

	url, err := disc.FindAgentForSkill(ctx, "work")
	require.NoError(t, err)
	assert.Equal(t, "http://ok:8080", url)
}

func TestFindWorkflow(t *testing.T) {
	disc, client := newDiscovery(t)
	ctx := context.Background()

	pushWorkflow(t, client, "pipeline", validWorkflowYAML)

	def, err := disc.FindWorkflow(ctx, "pipeline", "")
	require.NoError(t, err)
	assert.Equal(t, "pipeline", def.Metadata.ID)
	require.Len(t, def.Steps, 1)
	assert.Equal(t, "analyze", def.Steps[0].Skill)

	_, err = disc.FindWorkflow(ctx, "missing", "v1")
	assert.ErrorIs(t, err, discovery.ErrNotFound)
}

func TestFindWorkflow_InvalidDocument(t *testing.T) {
	disc, client := newDiscovery(t)

	pushWorkflow(t, client, "bad", "metadata: {id: bad, name: bad, version: 1.0.0}\nsteps: []\n")

	_, err := disc.FindWorkflow(context.Background(), "bad", "v1")
	require.Error(t, err)
	var verr *workflow.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestListAgentsAndWorkflowIDs(t *testing.T) {
	disc, client := newDiscovery(t)
	ctx := context.Background()

	pushCard(t, client, a2a.AgentCard{Name: "vision", URL: "http://vision:8080", Version: "1.0.0"})
	pushCard(t, client, a2a.AgentCard{Name: "writer", URL: "http://writer:8080", Version: "1.0.0"})
	pushWorkflow(t, client, "pipeline", validWorkflowYAML)

	cards, err := disc.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, cards, 2)

	ids, err := disc.ListWorkflowIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"pipeline"}, ids)
}

// countingRegistry counts catalog scans to pin cache idempotence.
type countingRegistry struct {
	inner discovery.Registry
	scans atomic.Int64
}

func (c *countingRegistry) ListRepositories(ctx context.Context) ([]string, error) {
	c.scans.Add(1)
	return c.inner.ListRepositories(ctx)
}

func (c *countingRegistry) PullArtifact(ctx context.Context, repo, reference string) ([]oci.File, error) {
	return c.inner.PullArtifact(ctx, repo, reference)
}

func TestCache_AtMostOneScan(t *testing.T) {
	registry := ocitest.New()
	t.Cleanup(registry.Close)
	client := oci.NewClient(registry.URL())
	pushCard(t, client, a2a.AgentCard{
		Name: "vision", URL: "http://vision:8080", Version: "1.0.0",
		Skills: []a2a.AgentSkill{{ID: "analyze"}},
	})

	counting := &countingRegistry{inner: client}
	disc := discovery.New(counting)
	ctx := context.Background()

	first, err := disc.FindAgentForSkill(ctx, "analyze")
	require.NoError(t, err)
	second, err := disc.FindAgentForSkill(ctx, "analyze")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), counting.scans.Load(), "cached lookup must not rescan")

	disc.ClearCache()
	_, err = disc.FindAgentForSkill(ctx, "analyze")
	require.NoError(t, err)
	assert.Equal(t, int64(2), counting.scans.Load())
}

func TestFindWorkflow_Cached(t *testing.T) {
	registry := ocitest.New()
	t.Cleanup(registry.Close)
	client := oci.NewClient(registry.URL())
	pushWorkflow(t, client, "pipeline", validWorkflowYAML)

	disc := discovery.New(client)
	ctx := context.Background()

	first, err := disc.FindWorkflow(ctx, "pipeline", "v1")
	require.NoError(t, err)
	second, err := disc.FindWorkflow(ctx, "pipeline", "v1")
	require.NoError(t, err)
	assert.Same(t, first, second, "cache hit returns the loaded definition")
}
