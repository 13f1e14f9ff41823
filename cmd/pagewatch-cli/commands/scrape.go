package commands

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"pagewatch/lib/configutil"
	"pagewatch/lib/htmlutil"
	"pagewatch/lib/serviceutil"
)

var scrapeRaw *bool

func init() {
	scrapeRaw = scrapeCmd.Flags().Bool("raw", false, "Also print the fetched content, pretty-printed for markup.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--raw]",
	Short: "Runs every configured scraper once and prints the resolved fields.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := configutil.ReadConfig[Config]("pagewatch.json5")
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		instances, err := NewInstances(cfg)
		if err != nil {
			serviceutil.Fatal("failed to build scrapers", err)
		}

		ctx := cmd.Context()
		for _, instance := range instances {
			err := instance.Coordinator.Refresh(ctx)
			if err != nil {
				serviceutil.Fatal(
					fmt.Sprintf("scraper %q failed to refresh", instance.Name),
					err,
				)
			}

			values, err := instance.Fields.Values(ctx, instance.Coordinator.Variables())
			if err != nil {
				serviceutil.Fatal(
					fmt.Sprintf("scraper %q failed to resolve fields", instance.Name),
					err,
				)
			}

			t := table.NewWriter()
			t.SetStyle(table.StyleRounded)
			t.SetOutputMirror(os.Stdout)
			t.SetTitle(instance.Name)
			t.AppendHeader(table.Row{"field", "value", "status"})
			for _, name := range instance.Fields.Names() {
				result := values[name]
				status := "ok"
				if !result.Available {
					status = "unavailable"
				}
				t.AppendRow(table.Row{name, htmlutil.CleanText(result.Value), status})
			}
			t.Render()

			if *scrapeRaw {
				fmt.Println(instance.Scraper.Snapshot().Pretty())
			}
		}
	},
}
