package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/prerender/pkg/asset"
	"github.com/matzehuels/prerender/pkg/partition"
)

const (
	formatText = "text"
	formatDOT  = "dot"
	formatSVG  = "svg"
)

func (c *CLI) partitionCommand() *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "partition <entry>",
		Short: "Show the assets an entry owns and the ones it references externally",
		Args:  cobra.ExactArgs(1),
		ValidArgsFunction: c.completeEntries,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case formatText, formatDOT, formatSVG:
			default:
				return fmt.Errorf("invalid format: %s (must be 'text', 'dot' or 'svg')", format)
			}
			return c.runPartition(cmd.Context(), args[0], format, output, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "output format: text, dot, svg")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func (c *CLI) runPartition(ctx context.Context, entry, format, output string, stdout io.Writer) error {
	a, err := c.openApp(ctx, appOptions{noCache: true})
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.runner.Partition(ctx, a.request(entry))
	if err != nil {
		return err
	}
	src := a.chunker.Graph()

	var data []byte
	switch format {
	case formatText:
		printPartition(stdout, res, src)
		return nil
	case formatDOT:
		data = []byte(partition.ToDOT(res, src))
	case formatSVG:
		if data, err = partition.RenderSVG(ctx, partition.ToDOT(res, src)); err != nil {
			return err
		}
	}
	if output == "" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return err
	}
	printFile(output)
	return nil
}

func printPartition(w io.Writer, res *partition.Result, src asset.Source) {
	fmt.Fprintln(w, StyleTitle.Render("Internal")+" "+StyleDim.Render(res.Root.String()))
	for _, id := range res.Internal {
		fmt.Fprintln(w, "  "+StyleDim.Render(id.Short())+" "+StyleValue.Render(assetPath(src, id)))
	}
	fmt.Fprintln(w, StyleTitle.Render("External"))
	if len(res.External) == 0 {
		fmt.Fprintln(w, "  "+StyleDim.Render("none"))
	}
	for _, id := range res.External {
		fmt.Fprintln(w, "  "+StyleDim.Render(id.Short())+" "+StyleValue.Render(assetPath(src, id)))
	}
	fmt.Fprintln(w, StyleDim.Render(fmt.Sprintf("%d internal · %d external · %d edges", len(res.Internal), len(res.External), len(res.Edges))))
}

func assetPath(src asset.Source, id asset.ID) string {
	a, ok := src.Asset(id)
	if !ok {
		return string(id)
	}
	return "/" + a.Path.Path
}
