package main

import (
	"github.com/mpukernel/memcore/memory"
	"github.com/mpukernel/memcore/mpu"
	"github.com/spf13/cobra"
)

var (
	assignTouch []string
)

func init() {
	cmd := newAssignCmd()
	cmd.Flags().StringSliceVar(&assignTouch, "touch", nil, "Addresses that fault before the MPU is programmed")
	rootCmd.AddCommand(cmd)
}

func newAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign",
		Short: "Simulate MPU slot assignment for the root address space",
		Long: `The assign command bootstraps the root address space, programs the MPU
once, then replays a memory fault for every --touch address and prints the
regions the MPU ends up with.

Example:
  mpumemctl assign
  mpumemctl assign --touch 0x50000100 --touch 0x40000010`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssign()
		},
	}
}

func runAssign() error {
	manager, err := newManager()
	if err != nil {
		return err
	}

	root, err := manager.CreateAddressSpace(memory.RootSpaceID)
	if err != nil {
		return err
	}

	var recorder mpu.Recorder
	table, err := manager.SetupMPU(root, &recorder)
	if err != nil {
		return err
	}
	printVerbose("Initial slots: %s\n", table)

	for _, touch := range assignTouch {
		addr, err := parseAddress(touch)
		if err != nil {
			return err
		}

		table, err = manager.HandleFault(root, addr, &recorder)
		if err != nil {
			return err
		}
		printVerbose("Fault at %#08x: %s\n", addr, table)
	}

	if jsonOut {
		return printJSON(recorder.WriteJSON)
	}

	printInfo("Slots: %s\n", table)
	for _, region := range recorder.Regions {
		printInfo("%s\n", region)
	}
	return nil
}
