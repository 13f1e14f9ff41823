package main

import (
	"context"

	"pagewatch/cmd/pagewatch-cli/commands"
	"pagewatch/lib/telemetry"
)

func main() {
	telemetry.SetupFromEnv(context.Background(), "pagewatch-cli")
	telemetry.InitSlog(true)
	commands.ExecuteContext(context.Background())
}
