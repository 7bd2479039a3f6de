package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"gallery-pipeline/internal/startup"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Display version information",
	Aliases: []string{"v"},
	Args:    cobra.NoArgs,
	Run:     runVersion,
}

func runVersion(cmd *cobra.Command, _ []string) {
	info := startup.GetBuildInfo()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "gallery-pipeline %s\n", info.Version)
	fmt.Fprintf(out, "  Commit:     %s\n", info.Commit)
	fmt.Fprintf(out, "  Build Time: %s\n", info.BuildTime)
	fmt.Fprintf(out, "  Go:         %s %s/%s\n", info.GoVersion, info.OS, info.Arch)
}
