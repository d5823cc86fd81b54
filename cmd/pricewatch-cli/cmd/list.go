package cmd

import (
	"fmt"
	"io"
	"os"
	"pricewatch/lib/itemstore"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Prints every tracked product grouped by subscriber.",
	Run: func(cmd *cobra.Command, args []string) {
		store := itemstore.Open(storePath)
		renderList(os.Stdout, store.Snapshot())
	},
}

func renderList(w io.Writer, snapshot map[string]map[string]itemstore.Item) {
	subscribers := make([]string, 0, len(snapshot))
	for subscriber := range snapshot {
		subscribers = append(subscribers, subscriber)
	}
	sort.Strings(subscribers)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Subscriber", "Product", "Current", "Initial", "Trend", "Url"})

	for _, subscriber := range subscribers {
		items := snapshot[subscriber]

		urls := make([]string, 0, len(items))
		for url := range items {
			urls = append(urls, url)
		}
		sort.Strings(urls)

		for _, url := range urls {
			item := items[url]

			current := fmt.Sprintf("%.2f TL", item.CurrentPrice)
			trend := trendOf(item)
			if item.CurrentPrice == 0 {
				current = "sold out"
				trend = ""
			}

			t.AppendRow(table.Row{
				subscriber,
				item.ProductName,
				current,
				fmt.Sprintf("%.2f TL", item.InitialPrice),
				trend,
				url,
			})
		}
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}

func trendOf(item itemstore.Item) string {
	diff := item.CurrentPrice - item.InitialPrice
	switch {
	case diff > 0:
		return fmt.Sprintf("+%.2f TL", diff)
	case diff < 0:
		return fmt.Sprintf("%.2f TL", diff)
	}
	return "no change"
}
