package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/prerender/pkg/errors"
	"github.com/matzehuels/prerender/pkg/pipeline"
)

// renderOpts holds the command-line flags for the render command.
type renderOpts struct {
	data      string // JSON props file, "-" for stdin
	path      string // request path recorded with issues
	output    string // HTML file for a single entry (stdout otherwise)
	outputDir string // one <entry>.html per entry
	all       bool   // render every manifest entry
	noCache   bool
	strict    bool // fail when any entry degraded to the error page
	parallel  int
}

func (c *CLI) renderCommand() *cobra.Command {
	opts := renderOpts{parallel: 4}

	cmd := &cobra.Command{
		Use:   "render [entry...]",
		Short: "Render entries to HTML",
		Long: `Render entries to HTML.

Each entry's internal assets are emitted under <out>/<entry>, then its
bootstrap runs in a worker process. A render that fails inside the worker
produces an error page (and an issue) instead of failing the command,
unless --strict is set.`,
		Example: `  prerender render home --data props.json
  echo '{"title":"About"}' | prerender render about --data - -o about.html
  prerender render --all --output-dir dist/html`,
		ValidArgsFunction: c.completeEntries,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.all && len(args) == 0 {
				return fmt.Errorf("specify an entry or --all")
			}
			if opts.output != "" && (opts.all || len(args) > 1) {
				return fmt.Errorf("--output takes a single entry; use --output-dir")
			}
			if opts.outputDir == "" && opts.output == "" && (opts.all || len(args) > 1) {
				return fmt.Errorf("rendering several entries requires --output-dir")
			}
			return c.runRender(cmd.Context(), args, &opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.data, "data", "d", "", "JSON props file (- for stdin)")
	cmd.Flags().StringVar(&opts.path, "path", "", "request path reported with issues (default /<entry>)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output HTML file (default stdout)")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "write <entry>.html files into this directory")
	cmd.Flags().BoolVar(&opts.all, "all", false, "render every entry in the manifest")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "bypass the render result cache")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "exit non-zero when a render fails")
	cmd.Flags().IntVar(&opts.parallel, "parallel", opts.parallel, "entries rendered at once")

	return cmd
}

func (c *CLI) runRender(ctx context.Context, entries []string, opts *renderOpts, stdin io.Reader, stdout io.Writer) error {
	data, err := readProps(opts.data, stdin)
	if err != nil {
		return err
	}

	a, err := c.openApp(ctx, appOptions{noCache: opts.noCache})
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.all {
		entries = a.manifest.EntryNames()
	}
	prog := newProgress(a.logger)

	var (
		mu     sync.Mutex
		failed []string
	)
	g, gctx := errgroup.WithContext(ctx)
	if opts.parallel > 0 {
		g.SetLimit(opts.parallel)
	}
	for _, entry := range entries {
		g.Go(func() error {
			req := a.request(entry)
			req.NoCache = opts.noCache
			if opts.path != "" {
				req.Path = opts.path
			}
			if data != nil {
				req.Data = data
			}
			res, err := a.runner.Render(gctx, req)
			if err != nil {
				return fmt.Errorf("%s: %w", entry, err)
			}
			if !res.OK() {
				mu.Lock()
				failed = append(failed, entry)
				mu.Unlock()
			}
			return writeResult(entry, res, opts, stdout)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(entries) > 1 || opts.outputDir != "" {
		prog.done(fmt.Sprintf("Rendered %d entries", len(entries)))
	}
	for _, entry := range failed {
		a.logger.Warn("render failed, wrote the error page", "entry", entry)
	}
	if opts.strict && len(failed) > 0 {
		return errors.New(errors.ErrCodeInternal, "%d of %d renders failed", len(failed), len(entries))
	}
	return nil
}

func writeResult(entry string, res *pipeline.Result, opts *renderOpts, stdout io.Writer) error {
	var path string
	switch {
	case opts.outputDir != "":
		path = filepath.Join(opts.outputDir, filepath.FromSlash(entry)+".html")
	case opts.output != "":
		path = opts.output
	default:
		_, err := io.WriteString(stdout, res.HTML)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(res.HTML), 0o644); err != nil {
		return err
	}
	printFile(path)
	return nil
}

// readProps loads render props from a file or stdin. An empty source yields
// nil, which renders with null props.
func readProps(src string, stdin io.Reader) (json.RawMessage, error) {
	if src == "" {
		return nil, nil
	}
	var raw []byte
	var err error
	if src == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(src)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read props")
	}
	if len(raw) == 0 {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, errors.New(errors.ErrCodeInvalidInput, "props in %s are not valid JSON", src)
	}
	return raw, nil
}
