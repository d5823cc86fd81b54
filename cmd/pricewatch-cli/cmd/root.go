package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var storePath string

var rootCmd = &cobra.Command{
	Use:   "pricewatch-cli",
	Short: "Inspect and edit the tracked product store.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&storePath,
		"store",
		"tracked_products.json",
		"path to the tracked product store file",
	)
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
