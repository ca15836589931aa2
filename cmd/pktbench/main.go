package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	return root.Execute()
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "pktbench",
		Short:         "Measure netmap pkt-gen throughput between two interfaces",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(
		newRunCommand(stdout, stderr),
		newRunsCommand(stdout),
		newPlotCommand(stdout, stderr),
	)
	return root
}

func newRunCommand(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "run --tx-interface IFACE --rx-interface IFACE [flags]",
		Short: "Run a benchmark: one transmitter, a sequence of measurement passes",
		// Flags are parsed by the config loader so that file settings and
		// flags share one precedence order.
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBenchmark(cmd.Context(), args, stdout, stderr)
		},
	}
}

func newRunsCommand(stdout io.Writer) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs from the run index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRuns(dir, stdout)
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "o", ".", "Output directory holding runs.jsonl")
	return cmd
}

func newPlotCommand(stdout, stderr io.Writer) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "plot CSV",
		Short: "Render the HTML plot of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return plotCSV(args[0], outPath, stdout)
		},
	}
	cmd.Flags().StringVar(&outPath, "output", "", "HTML path (default: pkt_gen_plots.html next to the CSV)")
	return cmd
}
