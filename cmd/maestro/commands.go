package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	maestro "github.com/maestro-flow/maestro"
	"github.com/maestro-flow/maestro/pkg/a2a"
	"github.com/maestro-flow/maestro/pkg/config"
	"github.com/maestro-flow/maestro/pkg/discovery"
	"github.com/maestro-flow/maestro/pkg/engine"
	"github.com/maestro-flow/maestro/pkg/logger"
	"github.com/maestro-flow/maestro/pkg/observability"
	"github.com/maestro-flow/maestro/pkg/oci"
	"github.com/maestro-flow/maestro/pkg/workflow"
)

// RunCmd executes a workflow pulled from the registry.
type RunCmd struct {
	WorkflowID string            `arg:"" help:"Workflow id in the registry."`
	Version    string            `help:"Workflow version tag (default: registry default tag)."`
	Input      map[string]string `short:"i" help:"Workflow input as key=value pairs." placeholder:"KEY=VALUE"`
	InputFile  string            `help:"JSON file with the workflow input." type:"existingfile"`
	Out        string            `short:"o" help:"Write the run result JSON to this file." type:"path"`
}

func (c *RunCmd) Run(app *appContext) error {
	input := map[string]any{}
	if c.InputFile != "" {
		data, err := os.ReadFile(c.InputFile)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
		if err := json.Unmarshal(data, &input); err != nil {
			return fmt.Errorf("failed to parse input file: %w", err)
		}
	}
	for k, v := range c.Input {
		input[k] = v
	}

	// The run path uses a plain pooled HTTP client: workflow execution
	// never retries.
	client := oci.NewClient(app.cfg.Registry.URL)
	disc := discovery.New(client, discovery.WithDefaultTag(app.cfg.Registry.DefaultTag))
	eng := engine.New(disc)

	result, runErr := eng.Run(app.ctx, c.WorkflowID, input, c.Version)
	if result != nil {
		rendered, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to render result: %w", err)
		}
		fmt.Println(string(rendered))

		if c.Out != "" {
			if err := os.WriteFile(c.Out, append(rendered, '\n'), 0644); err != nil {
				return fmt.Errorf("failed to write result file: %w", err)
			}
		}
	}
	return runErr
}

// ValidateCmd loads and validates a workflow document.
type ValidateCmd struct {
	File string `arg:"" help:"Workflow YAML file." type:"existingfile"`
}

func (c *ValidateCmd) Run(app *appContext) error {
	def, err := workflow.LoadFile(c.File)
	if err != nil {
		return err
	}
	fmt.Printf("%s is valid: %s (%s), %d top-level steps\n",
		c.File, def.Metadata.ID, def.Metadata.Version, len(def.Steps))
	return nil
}

// PushCmd pushes artifacts to the registry.
type PushCmd struct {
	Workflow PushWorkflowCmd `cmd:"" help:"Push a workflow document."`
	Card     PushCardCmd     `cmd:"" help:"Push an agent card."`
}

// PushWorkflowCmd validates a workflow file and stores it under
// workflows/<metadata.id>.
type PushWorkflowCmd struct {
	File string `arg:"" help:"Workflow YAML file." type:"existingfile"`
	Tag  string `help:"Artifact tag." default:"v1"`
}

func (c *PushWorkflowCmd) Run(app *appContext) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("failed to read workflow file: %w", err)
	}
	def, err := workflow.Load(data)
	if err != nil {
		return err
	}

	repo := discovery.WorkflowRepoPrefix + def.Metadata.ID
	dgst, err := app.registryClient().PushArtifact(app.ctx, repo, c.Tag, oci.File{
		Name:      filepath.Base(c.File),
		MediaType: oci.MediaTypeWorkflow,
		Data:      data,
	}, oci.MediaTypeWorkflow)
	if err != nil {
		return err
	}
	fmt.Printf("pushed %s:%s (%s)\n", repo, c.Tag, dgst)
	return nil
}

// PushCardCmd stores an agent card under agents/<name>.
type PushCardCmd struct {
	File string `arg:"" help:"Agent card JSON file." type:"existingfile"`
	Tag  string `help:"Artifact tag." default:"v1"`
}

func (c *PushCardCmd) Run(app *appContext) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("failed to read card file: %w", err)
	}
	var card a2a.AgentCard
	if err := json.Unmarshal(data, &card); err != nil {
		return fmt.Errorf("failed to parse agent card: %w", err)
	}
	if card.Name == "" || card.URL == "" {
		return fmt.Errorf("agent card must declare name and url")
	}

	repo := discovery.AgentRepoPrefix + card.Name
	dgst, err := app.registryClient().PushArtifact(app.ctx, repo, c.Tag, oci.File{
		Name:      filepath.Base(c.File),
		MediaType: oci.MediaTypeAgentCard,
		Data:      data,
	}, oci.MediaTypeAgentCard)
	if err != nil {
		return err
	}
	fmt.Printf("pushed %s:%s (%s)\n", repo, c.Tag, dgst)
	return nil
}

// PullCmd downloads an artifact's files to disk.
type PullCmd struct {
	Repo string `arg:"" help:"Repository, e.g. workflows/image-pipeline."`
	Tag  string `help:"Artifact tag." default:"v1"`
	Dir  string `help:"Destination directory." default:"." type:"path"`
}

func (c *PullCmd) Run(app *appContext) error {
	files, err := app.registryClient().PullArtifact(app.ctx, c.Repo, c.Tag)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", c.Dir, err)
	}

	for _, f := range files {
		dest := filepath.Join(c.Dir, filepath.Base(f.Name))
		if err := os.WriteFile(dest, f.Data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", dest, err)
		}
		fmt.Printf("pulled %s (%d bytes)\n", dest, len(f.Data))
	}
	return nil
}

// ListCmd shows registry contents.
type ListCmd struct {
	Repos     ListReposCmd     `cmd:"" help:"List all repositories."`
	Agents    ListAgentsCmd    `cmd:"" help:"List published agent cards."`
	Workflows ListWorkflowsCmd `cmd:"" help:"List published workflow ids."`
}

type ListReposCmd struct {
	Tags bool `help:"Also list each repository's tags."`
}

func (c *ListReposCmd) Run(app *appContext) error {
	client := app.registryClient()
	repos, err := client.ListRepositories(app.ctx)
	if err != nil {
		return err
	}
	for _, repo := range repos {
		if !c.Tags {
			fmt.Println(repo)
			continue
		}
		tags, err := client.ListTags(app.ctx, repo)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%v\n", repo, tags)
	}
	return nil
}

type ListAgentsCmd struct{}

func (c *ListAgentsCmd) Run(app *appContext) error {
	disc := discovery.New(app.registryClient(), discovery.WithDefaultTag(app.cfg.Registry.DefaultTag))
	cards, err := disc.ListAgents(app.ctx)
	if err != nil {
		return err
	}
	for _, card := range cards {
		skills := make([]string, 0, len(card.Skills))
		for _, s := range card.Skills {
			skills = append(skills, s.ID)
		}
		fmt.Printf("%s\t%s\t%s\t%v\n", card.Name, card.Version, card.URL, skills)
	}
	return nil
}

type ListWorkflowsCmd struct{}

func (c *ListWorkflowsCmd) Run(app *appContext) error {
	disc := discovery.New(app.registryClient(), discovery.WithDefaultTag(app.cfg.Registry.DefaultTag))
	ids, err := disc.ListWorkflowIDs(app.ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

// ServeCmd hosts the stub A2A agents declared in the config. Useful for
// local workflow development against predictable agents.
type ServeCmd struct {
	Watch   bool `help:"Reload hosted agents when the config file changes."`
	Publish bool `help:"Push each hosted agent's card to the registry on startup."`
}

func (c *ServeCmd) Run(app *appContext, cli *CLI) error {
	metrics, err := observability.InitMetrics(app.ctx, app.cfg.Metrics)
	if err != nil {
		return err
	}
	observability.SetGlobalMetrics(metrics)

	tp, err := observability.InitGlobalTracer(app.ctx, app.cfg.Tracing)
	if err != nil {
		return err
	}
	if shutdown, ok := tp.(interface{ Shutdown(context.Context) error }); ok {
		defer func() { _ = shutdown.Shutdown(context.Background()) }()
	}

	server := a2a.NewServer(&a2a.ServerConfig{
		Host:    app.cfg.Serve.Host,
		Port:    app.cfg.Serve.Port,
		BaseURL: app.cfg.Serve.BaseURL,
	})
	if err := registerStubAgents(server, app.cfg.Serve.Agents); err != nil {
		return err
	}
	if app.cfg.Metrics.Enabled {
		server.Router().Handle("/metrics", promhttp.Handler())
	}

	if c.Publish {
		if err := c.publishCards(app, server); err != nil {
			return err
		}
	}

	if c.Watch && cli.Config != "" {
		watcher := config.NewWatcher(cli.Config, func(fresh *config.Config) {
			server.RemoveAllAgents()
			if err := registerStubAgents(server, fresh.Serve.Agents); err != nil {
				logger.GetLogger().Error("failed to apply reloaded agents", "error", err)
			}
		})
		go func() {
			if err := watcher.Watch(app.ctx); err != nil && app.ctx.Err() == nil {
				logger.GetLogger().Error("config watch stopped", "error", err)
			}
		}()
	}

	go func() {
		<-app.ctx.Done()
		_ = server.Shutdown(context.Background())
	}()
	return server.Start()
}

func (c *ServeCmd) publishCards(app *appContext, server *a2a.Server) error {
	client := app.registryClient()
	for _, stub := range app.cfg.Serve.Agents {
		card := server.HostedCard(stub.Name)
		if card == nil {
			continue
		}
		data, err := json.Marshal(card)
		if err != nil {
			return fmt.Errorf("failed to render card for %s: %w", stub.Name, err)
		}
		repo := discovery.AgentRepoPrefix + card.Name
		if _, err := client.PushArtifact(app.ctx, repo, app.cfg.Registry.DefaultTag, oci.File{
			Name:      "card.json",
			MediaType: oci.MediaTypeAgentCard,
			Data:      data,
		}, oci.MediaTypeAgentCard); err != nil {
			return fmt.Errorf("failed to publish card for %s: %w", stub.Name, err)
		}
		logger.GetLogger().Info("agent card published", "agent", card.Name, "repo", repo)
	}
	return nil
}

func registerStubAgents(server *a2a.Server, stubs []config.StubAgentConfig) error {
	for _, stub := range stubs {
		agent := a2a.NewAgent(stub.Name, stub.Version).WithDescription(stub.Description)
		for _, skill := range stub.Skills {
			if err := agent.AddSkill(skill.ID, skill.Description, nil, nil, stubHandler(skill)); err != nil {
				return err
			}
		}
		if err := server.RegisterAgent(agent); err != nil {
			return err
		}
	}
	return nil
}

func stubHandler(skill config.StubSkillConfig) a2a.HandlerFunc {
	if skill.Behavior == config.BehaviorStatic {
		return func(ctx context.Context, params map[string]any) (any, error) {
			return skill.Value, nil
		}
	}
	return func(ctx context.Context, params map[string]any) (any, error) {
		return map[string]any{"echo": params}, nil
	}
}

// VersionCmd prints build information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(maestro.GetVersion().String())
	return nil
}
