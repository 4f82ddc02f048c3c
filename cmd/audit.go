// File: cmd/audit.go
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/graphedit/internal/records"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Maintain the audit ledger",
	}

	var nodeID, edgeID, from, to, summary string
	squash := &cobra.Command{
		Use:   "squash",
		Short: "Compact matching ledger entries under one summary entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scope := records.SquashScope{TargetNodeID: nodeID, TargetEdgeID: edgeID}
			var err error
			if scope.From, err = parseFlagTime("from", from); err != nil {
				return err
			}
			if scope.To, err = parseFlagTime("to", to); err != nil {
				return err
			}
			return withApp(cmd.Context(), false, func(a *app) error {
				entry, err := a.ledger.Squash(cmd.Context(), cliPrincipal, scope, summary)
				if err != nil {
					return err
				}
				cmd.Printf("squashed %d entries into %s\n", entry.SquashedCount, entry.ID)
				return nil
			})
		},
	}
	squash.Flags().StringVar(&nodeID, "node", "", "target node id")
	squash.Flags().StringVar(&edgeID, "edge", "", "target edge id")
	squash.Flags().StringVar(&from, "from", "", "earliest entry (RFC 3339)")
	squash.Flags().StringVar(&to, "to", "", "latest entry (RFC 3339)")
	squash.Flags().StringVar(&summary, "summary", "", "summary stored on the squash entry")
	_ = squash.MarkFlagRequired("summary")

	cmd.AddCommand(squash)
	return cmd
}

func parseFlagTime(name, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("--%s must be an RFC 3339 timestamp: %w", name, err)
	}
	return &t, nil
}
