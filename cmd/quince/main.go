// Command quince is a small CLI client/server for exercising the quic
// package end to end.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "quince",
		Short: "A minimal QUIC client/server for manual testing",
	}
	root.AddCommand(newClientCommand())
	root.AddCommand(newServerCommand())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
