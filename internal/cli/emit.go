package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func (c *CLI) emitCommand() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "emit [entry...]",
		Short: "Write the internal assets of entries without rendering",
		Long: `Write the internal assets of entries without rendering.

The assets an entry reaches inside <out>/<entry> are written there; assets
it only references from outside (installed packages) are left alone.`,
		ValidArgsFunction: c.completeEntries,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("specify an entry or --all")
			}
			return c.runEmit(cmd.Context(), args, all)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "emit every entry in the manifest")
	return cmd
}

func (c *CLI) runEmit(ctx context.Context, entries []string, all bool) error {
	a, err := c.openApp(ctx, appOptions{noCache: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if all {
		entries = a.manifest.EntryNames()
	}
	total := 0
	for _, entry := range entries {
		spinner := newSpinner(ctx, "Emitting "+entry+"...")
		spinner.Start()
		sum, err := a.runner.Emit(ctx, a.request(entry))
		if err != nil {
			spinner.StopWithError(entry)
			return err
		}
		spinner.StopWithSuccess(fmt.Sprintf("%s: %d assets", entry, sum.Written))
		printDetail("%s (%s)", a.request(entry).OutputRoot.String(), sum.Duration.Round(time.Millisecond))
		total += sum.Written
	}
	if len(entries) > 1 {
		printInfo("Emitted %s assets for %s entries", StyleNumber.Render(fmt.Sprint(total)), StyleNumber.Render(fmt.Sprint(len(entries))))
	}
	return nil
}
