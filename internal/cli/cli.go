// Package cli implements the prerender command-line interface.
//
// prerender renders server-side entries of a compiled build into HTML by
// emitting each entry's server assets and running them in pooled worker
// processes. The CLI is built using cobra and logs with charmbracelet/log.
//
// # Commands
//
//   - render: render one entry to HTML
//   - emit: write an entry's internal assets without rendering
//   - partition: show which assets an entry owns and which it only references
//   - serve: render entries over HTTP
//   - issues: inspect render failures recorded in the issue store
//   - cache: manage the render result cache
//
// # Configuration
//
// Settings come from prerender.toml or prerender.yaml in the working
// directory (or --config), then flags override them.
package cli

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/prerender/pkg/buildinfo"
	"github.com/matzehuels/prerender/pkg/observability"
)

const (
	// appName is the application name used for directories and display.
	appName = "prerender"
)

// statusOut receives human-oriented status lines.
var statusOut io.Writer = os.Stderr

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// Global flags.
	configPath   string
	manifestPath string
	outDir       string
	concurrency  int
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level. At debug level pipeline events
// are traced through the logger as well.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
	if level <= log.DebugLevel {
		hooks := &logHooks{logger: c.Logger}
		observability.SetPipelineHooks(hooks)
		observability.SetPoolHooks(hooks)
	}
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Prerender renders server entries of a compiled build to HTML",
		Long:         `Prerender emits the server-side assets of each entry in a build manifest and renders them to HTML in pooled worker processes.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
		},
	}
	root.SetVersionTemplate(buildinfo.Template())

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "config file (default: prerender.toml or prerender.yaml in the working directory)")
	flags.StringVarP(&c.manifestPath, "manifest", "m", "", "build manifest (overrides config)")
	flags.StringVar(&c.outDir, "out", "", "output directory (overrides config)")
	flags.IntVarP(&c.concurrency, "concurrency", "j", 0, "worker processes per entry (overrides config)")

	root.AddCommand(c.renderCommand())
	root.AddCommand(c.emitCommand())
	root.AddCommand(c.partitionCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.issuesCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// cacheDir returns the cache directory using XDG standard (~/.cache/prerender/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
