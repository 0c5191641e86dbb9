package main

import (
	"fmt"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/mpukernel/memcore/mempool"
	"github.com/spf13/cobra"
)

var (
	splitPool    string
	splitSpaceID uint32
)

func init() {
	cmd := newSplitCmd()
	cmd.Flags().StringVar(&splitPool, "pool", "", "Pool name (default: the pool containing the range)")
	cmd.Flags().Uint32Var(&splitSpaceID, "space", 1, "ID of the address space to create")
	rootCmd.AddCommand(cmd)
}

func newSplitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "split <base> <size>",
		Short: "Split a memory range into fpages",
		Long: `The split command creates an empty address space and covers the given
range with power-of-two fpages, after rounding it the way the owning pool's
class requires.

Example:
  mpumemctl split 0x10002000 96 --least 32 --largest 64
  mpumemctl split 0x40040000 0x40000 --pool APBDEV`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSplit(args)
		},
	}
}

func runSplit(args []string) error {
	base, err := parseAddress(args[0])
	if err != nil {
		return err
	}

	size, err := parseAddress(args[1])
	if err != nil {
		return err
	}

	manager, err := newManager()
	if err != nil {
		return err
	}

	pool := mempool.Unknown
	if splitPool != "" {
		var ok bool
		pool, ok = manager.Pools().ByName(splitPool)
		if !ok {
			return fmt.Errorf("unknown memory pool %q", splitPool)
		}
	}

	space, err := manager.CreateAddressSpace(splitSpaceID)
	if err != nil {
		return err
	}

	printVerbose("Splitting [%#08x, +%#x) into address space %d\n", base, size, splitSpaceID)
	err = manager.SplitIntoRegions(pool, space, base, size)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(func(writer *jwriter.Writer) {
			obj := writer.Object()
			manager.Store().WriteSpaceJSON(space, obj)
			obj.End()
		})
	}

	printChain(manager, space)
	return nil
}
