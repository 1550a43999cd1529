package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// main wires high-level dependencies behind a small command tree. Wizard
// behaviour lives in internal/wizard; this package only assembles it.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "idverify",
		Short:         "Identity verification wizard server",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.AddCommand(newServeCmd(), newRoutesCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the verification wizard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func newRoutesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print the registered HTTP routes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printRoutes(cmd.Context(), cmd.OutOrStdout())
		},
	}
}
