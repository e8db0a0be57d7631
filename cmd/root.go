package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/refmap/cmd/perf"
	"github.com/ValentinKolb/refmap/cmd/serve"
	"github.com/ValentinKolb/refmap/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "refmap",
		Short: "reference-aware cache map",
		Long: fmt.Sprintf(`refmap (v%s)

A concurrent cache map whose values are held under a weak or soft
reclamation policy, with a retention buffer that keeps recently
touched values alive.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of refmap",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("refmap v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	util.SetupCacheFlags(RootCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
