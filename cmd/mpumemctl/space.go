package main

import (
	"github.com/mpukernel/memcore/fpage"
	"github.com/mpukernel/memcore/memory"
	"github.com/mpukernel/memcore/mempool"
	"github.com/mpukernel/memcore/memutils"
	"github.com/mpukernel/memcore/memutils/ktable"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newSpaceCmd())
}

func newSpaceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "space",
		Short: "Bootstrap the root address space and show its fpages",
		Long: `The space command creates the root address space, which maps every
user-readable memory pool, and prints its fpage chain in address order
followed by table statistics.

Example:
  mpumemctl space
  mpumemctl space --least 1024 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSpace()
		},
	}
}

func runSpace() error {
	manager, err := newManager()
	if err != nil {
		return err
	}

	root, err := manager.CreateAddressSpace(memory.RootSpaceID)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(manager.PrintDetailedMap)
	}

	printChain(manager, root)

	var stats memutils.Statistics
	manager.AddStatistics(&stats)
	var regions memutils.RegionStatistics
	regions.Clear()
	manager.AddRegionStatistics(&regions)

	printInfo("\n%d fpages (%d always mapped), %d bytes mapped\n", regions.FpageCount, regions.AlwaysCount, regions.MappedBytes)
	printVerbose("Smallest fpage: %d bytes, largest fpage: %d bytes\n", regions.RegionSizeMin, regions.RegionSizeMax)
	printVerbose("Table slots in use: %d of %d (%d of %d bytes)\n",
		stats.AllocationCount, stats.SlotCount, stats.AllocationBytes, stats.SlotBytes)
	return nil
}

// printChain prints the fpages of one address space in address order
func printChain(manager *memory.Manager, space ktable.Handle) {
	store := manager.Store()
	printInfo("%6s [%10s:%10s] %10s %8s %4s %s\n", "FPAGE", "BASE", "END", "SIZE", "POOL", "PERM", "FLAGS")
	store.Walk(space, func(handle ktable.Handle, fp *fpage.Fpage) bool {
		printInfo("%6d [%#08x:%#08x] %10d %8s %4s %s\n",
			handle, fp.Base, fp.End(), fp.Size(), poolName(manager, fp.Pool), fp.Perm, fp.Flags)
		return true
	})
}

func poolName(manager *memory.Manager, id mempool.ID) string {
	if pool := manager.Pools().Get(id); pool != nil {
		return pool.Name
	}
	return "?"
}
