package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dMem/cmd/mem"
	"github.com/ValentinKolb/dMem/cmd/perf"
	"github.com/ValentinKolb/dMem/cmd/serve"
	"github.com/ValentinKolb/dMem/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dmem",
		Short: "remote memory object store",
		Long: fmt.Sprintf(`dMem (v%s)

Memory servers that hand out remote memory regions, and a client side
object store with a prefetching cache on top of them.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dMem",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dMem v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(mem.MemCommands)
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (http, tcp, unix - perf also accepts loopback)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
