package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/pflag"

	"github.com/sha1n/relic-search/internal/config"
	mcputil "github.com/sha1n/relic-search/internal/mcp"
)

// ServerName is the MCP implementation name.
const ServerName = "relic-search"

// RunParams contains dependencies for the run function
type RunParams struct {
	LoadSettings      func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings     func(*config.Settings) error
	StartHTTPServer   func(*mcp.Server, *config.Settings) error
	CreateServer      func(ctx context.Context, settings *config.Settings, version string, dirs []string) (*mcp.Server, func(), error)
	CustomIOTransport mcp.Transport // Optional: for testing with custom IO
}

// DefaultRunParams returns production dependencies
func DefaultRunParams() RunParams {
	return RunParams{
		LoadSettings:    config.LoadSettingsWithFlags,
		ValidSettings:   config.ValidateSettings,
		StartHTTPServer: StartHTTPServer,
		CreateServer:    CreateMCPServer,
	}
}

// SetupLogging installs a text handler on w as the default logger. Logs
// always go to stderr in production so they never mix with stdio transport
// frames or command output.
func SetupLogging(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// LoadSettings loads and validates settings using the production loaders
func LoadSettings(flags *pflag.FlagSet) (*config.Settings, error) {
	return loadSettings(DefaultRunParams(), flags)
}

func loadSettings(params RunParams, flags *pflag.FlagSet) (*config.Settings, error) {
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if err := params.ValidSettings(settings); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return settings, nil
}

// RunWithDeps serves the MCP tools. dirs are indexed in the background
// after the server is created.
func RunWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string, dirs []string) error {
	settings, err := loadSettings(params, flags)
	if err != nil {
		return err
	}

	slog.Info("Starting relic-search MCP server", "version", version)
	config.Log(settings)

	mcpServer, cleanup, err := params.CreateServer(ctx, settings, version, dirs)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	if settings.Transport == config.TransportStdio {
		// Use custom transport if provided (for testing), otherwise use stdio
		transport := params.CustomIOTransport
		if transport == nil {
			transport = &mcp.StdioTransport{}
		}
		return mcpServer.Run(ctx, transport)
	}

	slog.Info("Starting HTTP server", "transport", settings.Transport, "host", settings.Host, "port", settings.Port)
	return params.StartHTTPServer(mcpServer, settings)
}

// CreateMCPServer wires the search components and registers the tools.
// Directories are indexed in the background; the tools report them as in
// progress until their runs finish.
func CreateMCPServer(ctx context.Context, settings *config.Settings, version string, dirs []string) (*mcp.Server, func(), error) {
	components, err := NewComponents(settings, slog.Default())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open search index: %w", err)
	}

	indexCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, dir := range dirs {
			if _, err := components.Pipeline.IndexDirectory(indexCtx, dir); err != nil {
				slog.Error("Background indexing failed", "dir", dir, "error", err)
			}
		}
	}()

	server := mcputil.CreateServer(mcputil.ServerConfig{
		Name:       ServerName,
		Version:    version,
		Index:      components.Engine,
		MaxResults: settings.Search.MaxResults,
	})

	cleanup := func() {
		cancel()
		<-done
		if err := components.Close(); err != nil {
			slog.Error("Failed to close search index", "error", err)
		}
	}
	return server, cleanup, nil
}
