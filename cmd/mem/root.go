package mem

import (
	"github.com/ValentinKolb/dMem/cmd/util"
	"github.com/ValentinKolb/dMem/lib/remote"
	"github.com/spf13/cobra"
)

var (
	memory *remote.Pool

	// MemCommands represents the raw remote memory command group
	MemCommands = &cobra.Command{
		Use:                "mem",
		Short:              "Allocate, read, write and free remote memory regions",
		Long:               "Low level access to memory servers. Regions outlive the command, use the handle printed by alloc (NODE/0xADDR#KEY) in later commands. NODE is the index of the endpoint in --transport-endpoints.",
		PersistentPreRunE:  setupMemClient,
		PersistentPostRunE: closeMemClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags to the mem command
	util.SetupRPCClientFlags(MemCommands)

	// Add subcommands
	MemCommands.AddCommand(allocCmd)
	MemCommands.AddCommand(writeCmd)
	MemCommands.AddCommand(readCmd)
	MemCommands.AddCommand(freeCmd)
	MemCommands.AddCommand(statsCmd)
}

// setupMemClient connects to all configured memory servers
func setupMemClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := util.InitLoggers(); err != nil {
		return err
	}

	var err error
	memory, err = util.NewMemoryPool()
	return err
}

func closeMemClient(_ *cobra.Command, _ []string) error {
	if memory == nil {
		return nil
	}
	return memory.Close()
}
