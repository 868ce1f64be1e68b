// Package discovery maps capability identifiers to usable handles: a skill
// id to the URL of an agent that serves it, and a workflow id to a loaded
// definition. Both lookups scan the artifact registry catalog and memoize
// their answers in process-local caches.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/maestro-flow/maestro/pkg/a2a"
	"github.com/maestro-flow/maestro/pkg/cache"
	"github.com/maestro-flow/maestro/pkg/logger"
	"github.com/maestro-flow/maestro/pkg/observability"
	"github.com/maestro-flow/maestro/pkg/oci"
	"github.com/maestro-flow/maestro/pkg/workflow"
)

// Repository name prefixes within the registry.
const (
	AgentRepoPrefix    = "agents/"
	WorkflowRepoPrefix = "workflows/"
)

// DefaultTag is the artifact tag pulled when the caller names none.
const DefaultTag = "v1"

// ErrNotFound is returned when no registered agent serves a skill or no
// artifact backs a workflow id.
var ErrNotFound = errors.New("not found")

// Registry is the artifact transport discovery depends on; *oci.Client
// satisfies it.
type Registry interface {
	ListRepositories(ctx context.Context) ([]string, error)
	PullArtifact(ctx context.Context, repo, reference string) ([]oci.File, error)
}

// Discovery resolves skills and workflows against one registry. Caches are
// unbounded with no TTL; invalidation is manual via ClearCache. Safe for
// concurrent use by many engine tasks.
type Discovery struct {
	registry   Registry
	defaultTag string
	agents     *cache.Cache[string]
	workflows  *cache.Cache[*workflow.Definition]
	log        *slog.Logger
}

// Option configures a Discovery.
type Option func(*Discovery)

// WithDefaultTag overrides the tag pulled for agent cards and workflows.
func WithDefaultTag(tag string) Option {
	return func(d *Discovery) {
		if tag != "" {
			d.defaultTag = tag
		}
	}
}

func New(registry Registry, opts ...Option) *Discovery {
	d := &Discovery{
		registry:   registry,
		defaultTag: DefaultTag,
		agents:     cache.New[string](),
		workflows:  cache.New[*workflow.Definition](),
		log:        logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FindAgentForSkill returns the endpoint URL of an agent declaring skillID.
// A cache hit answers without touching the registry; otherwise the catalog
// is scanned under agents/ and the first card declaring the skill wins.
// When several agents declare the same skill the winner follows catalog
// order, which is not a contract.
func (d *Discovery) FindAgentForSkill(ctx context.Context, skillID string) (string, error) {
	if url, ok := d.agents.Get(skillID); ok {
		observability.GetGlobalMetrics().RecordCacheLookup(ctx, "agents", true)
		return url, nil
	}
	observability.GetGlobalMetrics().RecordCacheLookup(ctx, "agents", false)

	repos, err := d.registry.ListRepositories(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list repositories: %w", err)
	}

	for _, repo := range repos {
		if !strings.HasPrefix(repo, AgentRepoPrefix) {
			continue
		}
		card, err := d.pullCard(ctx, repo)
		if err != nil {
			d.log.Debug("skipping agent repo", "repo", repo, "error", err)
			continue
		}
		if card.HasSkill(skillID) {
			d.agents.Set(skillID, card.URL)
			d.log.Debug("skill resolved", "skill", skillID, "agent", card.Name, "url", card.URL)
			return card.URL, nil
		}
	}
	return "", fmt.Errorf("no agent provides skill %q: %w", skillID, ErrNotFound)
}

// FindWorkflow returns the validated definition stored under
// workflows/<id>:<version>. An empty version means the default tag. A failed
// pull maps to ErrNotFound; an invalid document propagates its
// *workflow.ValidationError.
func (d *Discovery) FindWorkflow(ctx context.Context, workflowID, version string) (*workflow.Definition, error) {
	if version == "" {
		version = d.defaultTag
	}
	key := workflowID + ":" + version

	if def, ok := d.workflows.Get(key); ok {
		observability.GetGlobalMetrics().RecordCacheLookup(ctx, "workflows", true)
		return def, nil
	}
	observability.GetGlobalMetrics().RecordCacheLookup(ctx, "workflows", false)

	files, err := d.registry.PullArtifact(ctx, WorkflowRepoPrefix+workflowID, version)
	if err != nil {
		d.log.Debug("workflow pull failed", "workflow", workflowID, "version", version, "error", err)
		return nil, fmt.Errorf("workflow %q version %q: %w", workflowID, version, ErrNotFound)
	}

	var doc []byte
	for _, f := range files {
		switch strings.ToLower(path.Ext(f.Name)) {
		case ".yaml", ".yml":
			doc = f.Data
		}
		if doc != nil {
			break
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("workflow %q version %q has no YAML payload: %w", workflowID, version, ErrNotFound)
	}

	def, err := workflow.Load(doc)
	if err != nil {
		return nil, err
	}

	d.workflows.Set(key, def)
	return def, nil
}

// ListAgents returns every parsable agent card under agents/.
func (d *Discovery) ListAgents(ctx context.Context) ([]*a2a.AgentCard, error) {
	repos, err := d.registry.ListRepositories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}

	var cards []*a2a.AgentCard
	for _, repo := range repos {
		if !strings.HasPrefix(repo, AgentRepoPrefix) {
			continue
		}
		card, err := d.pullCard(ctx, repo)
		if err != nil {
			d.log.Debug("skipping agent repo", "repo", repo, "error", err)
			continue
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// ListWorkflowIDs returns the workflow ids present in the catalog, prefix
// stripped.
func (d *Discovery) ListWorkflowIDs(ctx context.Context) ([]string, error) {
	repos, err := d.registry.ListRepositories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}

	var ids []string
	for _, repo := range repos {
		if strings.HasPrefix(repo, WorkflowRepoPrefix) {
			ids = append(ids, strings.TrimPrefix(repo, WorkflowRepoPrefix))
		}
	}
	return ids, nil
}

// ClearCache drops both caches; the next lookup rescans the registry.
func (d *Discovery) ClearCache() {
	d.agents.Clear()
	d.workflows.Clear()
}

func (d *Discovery) pullCard(ctx context.Context, repo string) (*a2a.AgentCard, error) {
	files, err := d.registry.PullArtifact(ctx, repo, d.defaultTag)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("artifact %s has no payload", repo)
	}

	var card a2a.AgentCard
	if err := json.Unmarshal(files[0].Data, &card); err != nil {
		return nil, fmt.Errorf("failed to parse agent card: %w", err)
	}
	return &card, nil
}
