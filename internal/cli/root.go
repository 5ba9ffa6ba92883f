// Package cli provides the command-line interface for gridboard.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gridline-labs/gridboard/internal/cli/commands"
	"github.com/gridline-labs/gridboard/internal/config"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

var cfgFile string

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gridboard",
		Short: "Gridboard - Dashboard Widget Backend",
		Long: `Gridboard is a dashboard-builder backend. It manages widget entities,
their data bindings against CSV datasets, and server-side widget rendering,
with pluggable persistence and a YAML widget definition registry.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./gridboard.yaml)")
	rootCmd.PersistentFlags().String("listen-addr", "", "HTTP listen address")
	rootCmd.PersistentFlags().String("storage-backend", "", "Storage backend (memory|file|sqlite)")
	rootCmd.PersistentFlags().String("data-dir", "", "Directory for file-backed storage")
	rootCmd.PersistentFlags().String("database", "", "Path to sqlite database")
	rootCmd.PersistentFlags().String("widgets-dir", "", "Directory of widget definition manifests")
	rootCmd.PersistentFlags().Bool("watch-widgets", false, "Hot-reload widget manifests on change")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	_ = rootCmd.RegisterFlagCompletionFunc("storage-backend", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{config.BackendMemory, config.BackendFile, config.BackendSQLite}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewServeCommand(loadConfig))
	rootCmd.AddCommand(commands.NewInspectCommand())
	rootCmd.AddCommand(commands.NewWidgetsCommand())
	rootCmd.AddCommand(commands.NewVersionCommand(Version, BuildDate, GitCommit))
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(cfgFile, cmd.Root().PersistentFlags())
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for gridboard.

To load completions:

Bash:
  $ source <(gridboard completion bash)

Zsh:
  $ gridboard completion zsh > "${fpath[1]}/_gridboard"

Fish:
  $ gridboard completion fish | source

PowerShell:
  PS> gridboard completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return nil
		},
	}
	return cmd
}
