// File: cmd/views.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/graphedit/api/schemas"
)

func newViewsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "views",
		Short: "Export or import saved views",
	}

	var out string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write every saved view to a file (or stdout)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), false, func(a *app) error {
				list, err := a.views.List(cmd.Context())
				if err != nil {
					return err
				}
				if list == nil {
					list = []schemas.SavedView{}
				}
				if err := writeDocument(out, list); err != nil {
					return fmt.Errorf("failed to write views: %w", err)
				}
				if out != "" {
					cmd.Printf("exported %d views to %s\n", len(list), out)
				}
				return nil
			})
		},
	}
	export.Flags().StringVarP(&out, "out", "o", "", "output file (.json, .yaml); stdout when empty")

	var in string
	imp := &cobra.Command{
		Use:   "import",
		Short: "Create saved views from a file, skipping existing slugs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readDocument(in)
			if err != nil {
				return err
			}
			var list []schemas.SavedView
			if err := json.Unmarshal(body, &list); err != nil {
				return fmt.Errorf("failed to decode views from %s: %w", in, err)
			}
			return withApp(cmd.Context(), false, func(a *app) error {
				created, skipped, err := a.views.Import(cmd.Context(), cliPrincipal, list)
				cmd.Printf("imported %d views, skipped %d existing\n", created, skipped)
				return err
			})
		},
	}
	imp.Flags().StringVarP(&in, "file", "f", "", "views file (.json, .yaml)")
	_ = imp.MarkFlagRequired("file")

	cmd.AddCommand(export, imp)
	return cmd
}
