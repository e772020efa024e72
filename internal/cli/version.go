package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gzhole/textgate/internal/aggregator"
	"github.com/gzhole/textgate/internal/escalation"
	"github.com/gzhole/textgate/internal/pattern"
	"github.com/gzhole/textgate/internal/semantic"
)

var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print textgate and signal source versions",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "textgate %s\n", Version)
		fmt.Fprintf(out, "  Commit: %s\n", GitCommit)
		fmt.Fprintf(out, "  Built:  %s\n", BuildDate)
		fmt.Fprintln(out, "  Sources:")
		for _, name := range pattern.BuiltinNames() {
			t, _ := pattern.Builtin(name)
			fmt.Fprintf(out, "    %-18s %s\n", name, t.Version)
		}
		fmt.Fprintf(out, "    %-18s %s\n", escalation.Name, escalation.Version)
		fmt.Fprintf(out, "    %-18s %s\n", semantic.Name, semantic.Version)
		fmt.Fprintf(out, "    %-18s %s\n", aggregator.Name, aggregator.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
