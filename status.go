package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tempohq/tempo-sync-go/internal/credfile"
)

// Credential state constants for status reporting.
const (
	credentialStateMissing = "missing"
	credentialStateExpired = "expired"
	credentialStateValid   = "valid"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show credential, queue, and endpoint status",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
}

// statusInfo is the machine-readable shape of the status command output.
type statusInfo struct {
	DataDir         string `json:"data_dir"`
	APIBaseURL      string `json:"api_base_url"`
	RealtimeURL     string `json:"realtime_url,omitempty"`
	CredentialState string `json:"credential_state"`
	PendingOps      int    `json:"pending_operations"`
	OldestPending   string `json:"oldest_pending,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	c, err := openCore(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	info := statusInfo{
		DataDir:         resolvedCfg.DataDir,
		APIBaseURL:      resolvedCfg.API.BaseURL,
		CredentialState: credentialState(resolvedCfg.CredentialPath()),
		PendingOps:      c.QueueLen(),
	}

	if resolvedCfg.Realtime.Websocket {
		info.RealtimeURL = resolvedCfg.Realtime.URL
	}

	if ops := c.Queue(); len(ops) > 0 {
		info.OldestPending = ops[0].EnqueuedAt.Format(time.RFC3339)
	}

	if flagJSON {
		return printJSON(info)
	}

	printStatusText(&info)

	return nil
}

// credentialState reports whether a usable credential is on disk.
func credentialState(path string) string {
	tok, err := credfile.Load(path)
	if err != nil {
		if errors.Is(err, credfile.ErrNoCredential) {
			return credentialStateMissing
		}

		return credentialStateExpired
	}

	if !tok.Expiry.IsZero() && tok.Expiry.Before(time.Now()) {
		return credentialStateExpired
	}

	return credentialStateValid
}

func printStatusText(info *statusInfo) {
	fmt.Printf("Data dir:    %s\n", info.DataDir)
	fmt.Printf("API:         %s\n", info.APIBaseURL)

	if info.RealtimeURL != "" {
		fmt.Printf("Realtime:    %s\n", info.RealtimeURL)
	} else {
		fmt.Printf("Realtime:    long-poll fallback only\n")
	}

	fmt.Printf("Credential:  %s\n", info.CredentialState)
	fmt.Printf("Pending ops: %d\n", info.PendingOps)

	if info.OldestPending != "" {
		fmt.Printf("Oldest:      %s\n", info.OldestPending)
	}
}
