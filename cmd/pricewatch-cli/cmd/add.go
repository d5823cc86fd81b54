package cmd

import (
	"context"
	"fmt"
	"os"
	"pricewatch/lib/itemstore"
	"pricewatch/lib/scrapers/trendyol"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(addCmd)
}

var addCmd = &cobra.Command{
	Use:   "add <subscriber> <url>",
	Short: "Scrapes a product page and starts tracking it for the subscriber.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		subscriber := args[0]
		rawUrl := args[1]

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Second*30)
		defer cancel()

		scraper := trendyol.NewClient(trendyol.ClientOptions{})

		canonical, err := scraper.Normalize(ctx, rawUrl)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		page, err := scraper.Fetch(ctx, canonical)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}

		result := trendyol.NewExtractor(0, 0).Extract(ctx, page)
		if result.Kind == trendyol.KindFailure {
			fmt.Fprintln(os.Stderr, result.Reason)
			os.Exit(1)
		}

		store := itemstore.Open(storePath)
		err = store.Add(subscriber, canonical, result.Name, result.Price)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}

		if result.Kind == trendyol.KindSoldOut {
			fmt.Printf("tracking %q (currently sold out)\n", result.Name)
			return
		}
		fmt.Printf("tracking %q at %.2f TL\n", result.Name, result.Price)
	},
}
