package cmd

import (
	"fmt"
	"os"
	"pricewatch/lib/itemstore"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(removeCmd)
}

var removeCmd = &cobra.Command{
	Use:   "remove <subscriber> <url>",
	Short: "Stops tracking a product for the subscriber.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		store := itemstore.Open(storePath)
		err := store.Remove(args[0], args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		fmt.Println("removed")
	},
}
