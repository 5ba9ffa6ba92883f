package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/gridline-labs/gridboard/internal/dataset"
)

// NewInspectCommand creates the inspect command: parse a CSV file and print
// the classified field profile.
func NewInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.csv>",
		Short: "Classify the fields of a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			src, err := dataset.ParseCSV(filepath.Base(args[0]), f)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Field", "Type", "Role", "Cardinality", "Samples"})
			for _, field := range src.Fields {
				samples := strings.Join(field.SampleValues, ", ")
				if len(samples) > 48 {
					samples = samples[:45] + "..."
				}
				t.AppendRow(table.Row{
					field.Name,
					field.Type,
					field.Role,
					fmt.Sprintf("%d (%.0f%%)", field.Cardinality, field.CardinalityRatio*100),
					samples,
				})
			}
			t.Render()

			fmt.Fprintf(cmd.OutOrStdout(), "%d rows, %d fields\n", src.RowCount, len(src.Fields))
			return nil
		},
	}
}
