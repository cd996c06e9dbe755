package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool

	// Simulation options
	numNodes  int
	threshold int
	rounds    int
	message   string
	pipeline  int

	rootCmd = &cobra.Command{
		Use:   "tecdsa-cli",
		Short: "CLI tool for the threshold ECDSA consensus component",
		Long: `Drives the threshold ECDSA orchestration layer against an in-memory
subnet: simulated replicas exchange dealings, supports and signature
shares through their artifact pools until requested signatures are
aggregated and delivered.`,
	}

	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Run an in-memory subnet until a signature is produced",
		RunE:  runSimulate,
	}

	payloadCmd = &cobra.Command{
		Use:   "payload",
		Short: "Dump the canonical block payload of a simulated subnet",
		RunE:  runPayload,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	for _, cmd := range []*cobra.Command{simulateCmd, payloadCmd} {
		cmd.Flags().IntVarP(&numNodes, "nodes", "n", 4, "number of replicas")
		cmd.Flags().IntVarP(&threshold, "threshold", "t", 3, "dealing and signing threshold")
		cmd.Flags().IntVarP(&rounds, "rounds", "r", 10, "maximum consensus rounds")
		cmd.Flags().IntVar(&pipeline, "quadruples", 2, "target number of pre-signature 4-tuples")
	}
	simulateCmd.Flags().StringVarP(&message, "message", "m", "hello threshold ecdsa", "message to sign")

	rootCmd.AddCommand(simulateCmd, payloadCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
