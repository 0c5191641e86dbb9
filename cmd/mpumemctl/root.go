package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/mpukernel/memcore/memory"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
)

var (
	// Global flags
	verbose     bool
	jsonOut     bool
	leastSize   uint32
	largestSize uint32
)

var rootCmd = &cobra.Command{
	Use:   "mpumemctl",
	Short: "Inspect MPU memory layouts of the kernel memory manager",
	Long: `mpumemctl builds the kernel's memory pool table on the host and runs the
memory manager against it: it dumps pools, bootstraps the root address space,
splits ranges into fpages and simulates MPU slot assignment.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every manager operation to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().Uint32Var(&leastSize, "least", 0, "Least fpage size in bytes (default 256)")
	rootCmd.PersistentFlags().Uint32Var(&largestSize, "largest", 0, "Largest fpage size in bytes (default 16M)")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newManager creates a manager from the global flags
func newManager() (*memory.Manager, error) {
	var handler slog.Handler = slog.NewTextHandler(io.Discard, nil)
	if verbose {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	}

	return memory.New(slog.New(handler), memory.CreateOptions{
		LeastFpageSize:   leastSize,
		LargestFpageSize: largestSize,
	})
}

// printInfo prints an info message
func printInfo(format string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, format, args...)
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON runs fn against a fresh json writer and prints the document
func printJSON(fn func(writer *jwriter.Writer)) error {
	writer := jwriter.NewWriter()
	fn(&writer)
	if err := writer.Error(); err != nil {
		return err
	}

	_, err := fmt.Fprintln(os.Stdout, string(writer.Bytes()))
	return err
}

// parseAddress accepts decimal, 0x hex and 0 octal notation
func parseAddress(s string) (uint32, error) {
	value, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return uint32(value), nil
}
