// Command maestro is the CLI for the maestro workflow orchestrator.
//
// Usage:
//
//	maestro run image-pipeline --input image_url=http://example.com/cat.png
//	maestro push workflow examples/workflows/image-pipeline.yaml
//	maestro list agents
//	maestro serve --config maestro.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/maestro-flow/maestro/pkg/config"
	"github.com/maestro-flow/maestro/pkg/httpclient"
	"github.com/maestro-flow/maestro/pkg/logger"
	"github.com/maestro-flow/maestro/pkg/oci"
)

// CLI defines the command-line interface.
type CLI struct {
	Run      RunCmd      `cmd:"" help:"Execute a workflow from the registry."`
	Validate ValidateCmd `cmd:"" help:"Validate a workflow document."`
	Push     PushCmd     `cmd:"" help:"Push a workflow or agent card to the registry."`
	Pull     PullCmd     `cmd:"" help:"Pull an artifact's files from the registry."`
	List     ListCmd     `cmd:"" help:"List repositories, agents, or workflows."`
	Serve    ServeCmd    `cmd:"" help:"Host stub A2A agents defined in the config."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to maestro.yaml." type:"path"`
	Registry  string `help:"Registry URL (overrides config)." placeholder:"URL"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." placeholder:"LEVEL"`
	LogFormat string `help:"Log format (text, json)." placeholder:"FORMAT"`
}

// appContext carries the resolved configuration and process context to
// command Run methods via kong's binding.
type appContext struct {
	ctx context.Context
	cfg *config.Config
}

// registryClient builds the OCI client for operator commands: registry
// traffic from the CLI goes through the retrying HTTP client.
func (a *appContext) registryClient() *oci.Client {
	return oci.NewClient(a.cfg.Registry.URL, oci.WithHTTPClient(httpclient.New()))
}

func (c *CLI) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if c.Config != "" {
		loaded, err := config.Load(c.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	// Flags win over config file and environment.
	if c.Registry != "" {
		cfg.Registry.URL = c.Registry
	}
	if c.LogLevel != "" {
		cfg.Logging.Level = c.LogLevel
	}
	if c.LogFormat != "" {
		cfg.Logging.Format = c.LogFormat
	}
	return cfg, nil
}

func main() {
	// A .env beside the invocation is a convenience, not a requirement.
	_ = godotenv.Load()

	cli := &CLI{}
	kctx := kong.Parse(cli,
		kong.Name("maestro"),
		kong.Description("Declarative multi-agent workflow orchestrator over OCI registries."),
		kong.UsageOnError(),
	)

	cfg, err := cli.loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "maestro: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.ParseLevel(cfg.Logging.Level), os.Stderr, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kctx.FatalIfErrorf(kctx.Run(&appContext{ctx: ctx, cfg: cfg}, cli))
}
