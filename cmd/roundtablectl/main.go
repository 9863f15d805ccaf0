package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ent0n29/roundtable/internal/config"
)

func main() {
	_ = config.LoadDotEnv()

	root := &cobra.Command{
		Use:   "roundtablectl",
		Short: "Operator tools for roundtable group-discussion assessments",
		Long:  "Create and inspect shareable discussion links, or run a full discussion with three AI participants in the terminal.",
	}
	root.PersistentFlags().Bool("no-color", false, "Disable coloured output")

	root.AddCommand(newLinkCmd())
	root.AddCommand(newDiscussCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
