package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agenthands/lineage/internal/app"
	"github.com/agenthands/lineage/internal/core/model"
	"github.com/agenthands/lineage/internal/core/resolve"
	"github.com/agenthands/lineage/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run [url]...",
	Short: "Process pending documents, or the given urls",
	Long: `run fetches, extracts, merges and reconciles every non-terminal document in
the catalog. Documents waiting on a conflict decision are picked up again.

With --interactive, conflicts between a new document and the stored person are
asked on the terminal. With --dry-run nothing is written to the catalog or the
graph; the summary shows what would have happened.`,
	RunE: runPipeline,
}

func appOptions(cmd *cobra.Command) app.Options {
	var opts app.Options
	opts.MemoryGraph, _ = cmd.Flags().GetBool("memory-graph")
	return opts
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interactive, _ := cmd.Flags().GetBool("interactive")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	force, _ := cmd.Flags().GetBool("force")

	opts := appOptions(cmd)
	if interactive {
		opts.Mode = resolve.Interactive
		opts.Decider = NewPromptDecider(os.Stdin, os.Stdout)
	}

	a, err := openApp(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())
	defer a.Log.Sync()

	summary, err := a.Pipeline.Run(ctx, pipeline.RunOptions{URLs: args, Force: force, DryRun: dryRun})
	if err != nil {
		return err
	}
	if err := summary.Write(os.Stdout); err != nil {
		return err
	}

	counts := summary.Counts()
	if n := counts[model.StatusConflictPending]; n > 0 {
		fmt.Fprintf(os.Stderr, "%d document(s) wait on a conflict decision; rerun with --interactive\n", n)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("interrupted")
	}
	return nil
}

func init() {
	runCmd.Flags().Bool("interactive", false, "ask on the terminal when facts conflict")
	runCmd.Flags().Bool("dry-run", false, "do not write to the catalog or graph")
	runCmd.Flags().Bool("force", false, "also reprocess documents in a terminal status")

	rootCmd.PersistentFlags().Bool("memory-graph", false, "use an in-process graph instead of neo4j")
	rootCmd.AddCommand(runCmd)
}
