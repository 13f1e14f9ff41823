package commands

import (
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"pagewatch/lib/configutil"
	"pagewatch/lib/htmlutil"
	"pagewatch/lib/serviceutil"
	"pagewatch/lib/telemetry"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Runs every configured scraper on its interval until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := configutil.ReadConfig[Config]("pagewatch.json5")
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		instances, err := NewInstances(cfg)
		if err != nil {
			serviceutil.Fatal("failed to build scrapers", err)
		}

		ctx := serviceutil.SignalContext()
		telemetry.InstrumentPerfStats(ctx)

		var wg sync.WaitGroup
		for _, instance := range instances {
			instance := instance
			instance.Coordinator.OnUpdate(func(err error) {
				if err != nil {
					return
				}
				values, err := instance.Fields.Values(ctx, instance.Coordinator.Variables())
				if err != nil {
					slog.ErrorContext(ctx, "failed to resolve fields", "scraper", instance.Name, "err", err)
					return
				}
				for _, name := range instance.Fields.Names() {
					result := values[name]
					if !result.Available {
						slog.WarnContext(ctx, "field unavailable", "scraper", instance.Name, "field", name)
						continue
					}
					slog.InfoContext(
						ctx, "field updated",
						"scraper", instance.Name,
						"field", name,
						"value", htmlutil.CleanText(result.Value),
					)
				}
			})

			wg.Add(1)
			go func() {
				defer wg.Done()
				instance.Coordinator.Run(ctx)
			}()
		}

		slog.Info("watching", "scrapers", len(instances))
		wg.Wait()
	},
}
