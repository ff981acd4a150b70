package main

import (
	"fmt"

	"github.com/spf13/cobra"

	e2e "github.com/mateothegreat/go-signin-e2e"
	"github.com/mateothegreat/go-signin-e2e/browser/browsertest"
	"github.com/mateothegreat/go-signin-e2e/signin"
)

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list the scenarios in the order run executes them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if d2, _ := cmd.Flags().GetBool("d2"); d2 {
				// The suite is only built to render its order; it is never run.
				suite := e2e.NewSuite(browsertest.NewEngine(nil), cmd.OutOrStdout())
				if err := signin.Register(suite, signin.DefaultConfig()); err != nil {
					return err
				}
				return suite.ToD2(cmd.OutOrStdout())
			}
			for _, name := range signin.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
	cmd.Flags().Bool("d2", false, "print the order as a D2 diagram")
	return cmd
}
