package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/gridline-labs/gridboard/internal/registry"
	"github.com/gridline-labs/gridboard/internal/widgets"
)

// NewWidgetsCommand creates the widgets command: list the registered widget
// definitions, built-ins plus any manifests in a directory.
func NewWidgetsCommand() *cobra.Command {
	var widgetsDir string

	cmd := &cobra.Command{
		Use:   "widgets",
		Short: "List registered widget definitions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := registry.New()
			if err := widgets.RegisterBuiltins(reg); err != nil {
				return err
			}
			if widgetsDir != "" {
				if _, err := reg.LoadManifestDir(widgetsDir, nil); err != nil {
					return err
				}
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Type", "Name", "Version", "Dimensions", "Measures"})
			for _, d := range reg.List() {
				dims, measures := "any", "any"
				if r := d.Requirements; r != nil {
					dims = formatRange(r.MinDimensions, r.MaxDimensions)
					measures = formatRange(r.MinMeasures, r.MaxMeasures)
				}
				t.AppendRow(table.Row{d.Type, d.Name, d.Version, dims, measures})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&widgetsDir, "widgets-dir", "", "Also load manifests from this directory")
	return cmd
}

// formatRange renders a cardinality bound, a zero max meaning unbounded.
func formatRange(min, max int) string {
	if max == 0 {
		return fmt.Sprintf("%d+", min)
	}
	return fmt.Sprintf("%d-%d", min, max)
}
