package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tempohq/tempo-sync-go/internal/engine"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass, transmitting queued operations",
		Long: `Run a single sync pass: queued operations are transmitted to the backend
in the order they were enqueued. Acknowledged operations leave the queue;
failed ones stay for the next pass until their attempt budget runs out.`,
		Args: cobra.NoArgs,
		RunE: runSync,
	}
}

func runSync(cmd *cobra.Command, _ []string) error {
	c, err := openCore(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	report, err := c.Sync(cmd.Context())
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	if report == nil {
		statusf(flagQuiet, "Nothing to sync.\n")
		return nil
	}

	if flagJSON {
		return printJSON(report)
	}

	printReport(report)

	return nil
}

func printReport(r *engine.Report) {
	statusf(flagQuiet, "Synced %d of %d operation(s) in %s\n",
		r.Succeeded, r.Attempted, r.Duration.Round(timeRounding))

	if r.Deferred > 0 {
		statusf(flagQuiet, "  %d deferred to the next pass\n", r.Deferred)
	}

	if r.TerminalFailures > 0 {
		fmt.Fprintf(os.Stderr, "  %d operation(s) dropped after exhausting retries\n", r.TerminalFailures)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}
