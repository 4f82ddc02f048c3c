// File: cmd/bulk.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/graphedit/api/schemas"
	"github.com/xkilldash9x/graphedit/internal/apperr"
	"github.com/xkilldash9x/graphedit/internal/bulk"
)

func newBulkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Merge batches of nodes or edges from a JSON or YAML file",
	}

	var nodesFile string
	nodes := &cobra.Command{
		Use:   "nodes",
		Short: "Merge nodes by key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var batch bulk.NodeBatch
			if err := loadBatch(nodesFile, schemas.DocBulkNodes, &batch); err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(a *app) error {
				n, err := a.loader.LoadNodes(cmd.Context(), cliPrincipal, batch)
				if err != nil {
					return err
				}
				cmd.Printf("merged %d nodes\n", n)
				return nil
			})
		},
	}
	nodes.Flags().StringVarP(&nodesFile, "file", "f", "", "batch file (.json, .yaml)")
	_ = nodes.MarkFlagRequired("file")

	var edgesFile string
	edges := &cobra.Command{
		Use:   "edges",
		Short: "Merge edges between key-matched endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var batch bulk.EdgeBatch
			if err := loadBatch(edgesFile, schemas.DocBulkEdges, &batch); err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(a *app) error {
				n, err := a.loader.LoadEdges(cmd.Context(), cliPrincipal, batch)
				if err != nil {
					return err
				}
				cmd.Printf("merged %d edges\n", n)
				return nil
			})
		},
	}
	edges.Flags().StringVarP(&edgesFile, "file", "f", "", "batch file (.json, .yaml)")
	_ = edges.MarkFlagRequired("file")

	cmd.AddCommand(nodes, edges)
	return cmd
}

func loadBatch(path, doc string, dst any) error {
	body, err := readDocument(path)
	if err != nil {
		return err
	}
	if err := schemas.ValidateDocument(doc, body); err != nil {
		msg, detail := apperr.Public(err)
		if detail != "" {
			msg += ": " + detail
		}
		return apperr.Validation("bulk", "%s: %s", path, msg)
	}
	return json.Unmarshal(body, dst)
}
