package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tempohq/tempo-sync-go/internal/queue"
)

// maxPayloadBytes bounds payloads read from stdin.
const maxPayloadBytes = 1 << 20

func newEnqueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <create|update|delete> <resource> [payload]",
		Short: "Append a mutation to the durable queue",
		Long: `Append a mutation to the durable operation queue. The mutation is accepted
even while offline and transmitted on the next sync pass.

The payload is a JSON document given as an argument, or read from stdin
when the argument is "-" or omitted for create/update. Delete operations
take no payload.

Examples:
  tempo-sync enqueue create tasks '{"title":"buy milk"}'
  tempo-sync enqueue update tasks/t42 '{"done":true}'
  tempo-sync enqueue delete tasks/t42`,
		Args: cobra.RangeArgs(2, 3),
		RunE: runEnqueue,
	}
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	kind, err := parseKind(args[0])
	if err != nil {
		return err
	}

	resource := args[1]
	if resource == "" {
		return fmt.Errorf("resource must not be empty")
	}

	payload, err := readPayload(kind, args)
	if err != nil {
		return err
	}

	c, err := openCore(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	id, err := c.Enqueue(cmd.Context(), kind, resource, payload)
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}

	if flagJSON {
		return printJSON(map[string]string{"id": id})
	}

	statusf(flagQuiet, "Enqueued %s %s as %s (%d pending)\n", kind, resource, id, c.QueueLen())

	return nil
}

func parseKind(s string) (queue.Kind, error) {
	switch queue.Kind(s) {
	case queue.KindCreate, queue.KindUpdate, queue.KindDelete:
		return queue.Kind(s), nil
	default:
		return "", fmt.Errorf("unknown operation kind %q (want create, update, or delete)", s)
	}
}

// readPayload resolves the mutation payload from the argument or stdin and
// checks it is valid JSON before it enters the queue — a malformed payload
// would otherwise fail on every transmission attempt.
func readPayload(kind queue.Kind, args []string) (json.RawMessage, error) {
	if kind == queue.KindDelete {
		if len(args) > 2 {
			return nil, fmt.Errorf("delete operations take no payload")
		}

		return nil, nil
	}

	var raw []byte

	if len(args) > 2 && args[2] != "-" {
		raw = []byte(args[2])
	} else {
		data, err := io.ReadAll(io.LimitReader(os.Stdin, maxPayloadBytes))
		if err != nil {
			return nil, fmt.Errorf("reading payload from stdin: %w", err)
		}

		raw = data
	}

	if !json.Valid(raw) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}

	return raw, nil
}
