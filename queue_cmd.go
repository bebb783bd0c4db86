package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or clear the pending operation queue",
	}

	cmd.AddCommand(newQueueListCmd())
	cmd.AddCommand(newQueueClearCmd())

	return cmd
}

func newQueueListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending operations in replay order",
		Args:  cobra.NoArgs,
		RunE:  runQueueList,
	}
}

func runQueueList(cmd *cobra.Command, _ []string) error {
	c, err := openCore(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	ops := c.Queue()

	if flagJSON {
		return printJSON(ops)
	}

	if len(ops) == 0 {
		statusf(flagQuiet, "Queue is empty.\n")
		return nil
	}

	headers := []string{"ID", "KIND", "RESOURCE", "ATTEMPTS", "ENQUEUED"}
	rows := make([][]string, 0, len(ops))

	for _, op := range ops {
		rows = append(rows, []string{
			op.ID,
			string(op.Kind),
			op.Resource,
			fmt.Sprintf("%d", op.Attempts),
			formatTime(op.EnqueuedAt),
		})
	}

	printTable(os.Stdout, headers, rows)

	return nil
}

func newQueueClearCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard all pending operations",
		Long: `Discard every pending operation. The mutations are lost permanently;
they will never reach the backend. Requires --force.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runQueueClear(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "confirm discarding pending operations")

	return cmd
}

func runQueueClear(cmd *cobra.Command, force bool) error {
	c, err := openCore(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	n := c.QueueLen()
	if n == 0 {
		statusf(flagQuiet, "Queue is already empty.\n")
		return nil
	}

	if !force {
		return fmt.Errorf("refusing to discard %d pending operation(s) without --force", n)
	}

	if err := c.ClearQueue(cmd.Context()); err != nil {
		return fmt.Errorf("clearing queue: %w", err)
	}

	statusf(flagQuiet, "Discarded %d operation(s).\n", n)

	return nil
}
