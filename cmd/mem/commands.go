package mem

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/ValentinKolb/dMem/cmd/util"
	"github.com/ValentinKolb/dMem/lib/remote"
	"github.com/ValentinKolb/dMem/rpc/common"
	"github.com/spf13/cobra"
)

var (
	allocCmd = &cobra.Command{
		Use:   "alloc [size]",
		Short: "Allocates a region (size like 4096, 64K or 1M)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := common.ParseBytes(args[0])
			if err != nil {
				return err
			}
			h, err := memory.Allocate(size)
			if err != nil {
				return err
			}
			fmt.Println(h)
			return nil
		},
	}
	writeCmd = &cobra.Command{
		Use:   "write [handle] [offset] [value]",
		Short: "Writes a string into a region",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, offset, err := parseTarget(args[0], args[1])
			if err != nil {
				return err
			}
			if err := memory.WriteSync(h, offset, []byte(args[2])); err != nil {
				return err
			}
			fmt.Printf("wrote %d bytes\n", len(args[2]))
			return nil
		},
	}
	readCmd = &cobra.Command{
		Use:   "read [handle] [offset] [length]",
		Short: "Reads bytes from a region",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, offset, err := parseTarget(args[0], args[1])
			if err != nil {
				return err
			}
			length, err := strconv.ParseUint(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("length must be a number: %w", err)
			}
			data, err := memory.ReadSync(h, offset, length)
			if err != nil {
				return err
			}
			fmt.Printf("handle=%s, offset=%d, value=%q\n", h, offset, data)
			return nil
		},
	}
	freeCmd = &cobra.Command{
		Use:   "free [handle]",
		Short: "Frees a region",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := remote.ParseHandle(args[0])
			if err != nil {
				return err
			}
			if err := memory.Free(h); err != nil {
				return err
			}
			fmt.Println("freed successfully")
			return nil
		},
	}
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Prints the pool and request statistics of every endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats := make(map[string]json.RawMessage)
			for _, endpoint := range memory.Endpoints() {
				m, err := util.NewMemory(endpoint)
				if err != nil {
					return err
				}
				meta, err := m.Stats()
				_ = m.Close()
				if err != nil {
					return fmt.Errorf("stats of %s: %w", endpoint, err)
				}
				stats[endpoint] = meta
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
)

func parseTarget(handle, offset string) (remote.Handle, uint64, error) {
	h, err := remote.ParseHandle(handle)
	if err != nil {
		return remote.Handle{}, 0, err
	}
	off, err := strconv.ParseUint(offset, 10, 64)
	if err != nil {
		return remote.Handle{}, 0, fmt.Errorf("offset must be a number: %w", err)
	}
	return h, off, nil
}
