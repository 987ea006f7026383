package main

import (
	"fmt"
	"os"

	"github.com/modulrcloud/chain-tracker/globals"
	"github.com/modulrcloud/chain-tracker/utils"

	"gopkg.in/urfave/cli.v1"
)

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Value: defaultConfigPath,
		Usage: "path to the JSON configuration file",
	}
	portFlag = cli.IntFlag{
		Name:  "port",
		Usage: "HTTP API port (overrides PORT)",
	}
	wsPortFlag = cli.IntFlag{
		Name:  "ws-port",
		Usage: "websocket feed port",
	}
	sourceFlag = cli.StringFlag{
		Name:  "source",
		Usage: "data source: hypersync or jsonrpc",
	}
	hypersyncUrlFlag = cli.StringFlag{
		Name:  "hypersync-url",
		Usage: "Hypersync endpoint (overrides HYPERSYNC_URL)",
	}
	rpcUrlFlag = cli.StringFlag{
		Name:  "rpc-url",
		Usage: "JSON-RPC endpoint, required with --source jsonrpc",
	}
	logLevelFlag = cli.StringFlag{
		Name:  "log-level",
		Usage: "debug, info, warn or error",
	}
	refreshIntervalFlag = cli.Int64Flag{
		Name:  "refresh-interval-ms",
		Usage: "background refresh period in ms, 0 keeps refreshes request driven",
	}
)

func main() {

	app := cli.NewApp()
	app.Name = "chain-tracker"
	app.Usage = "REST API and live metrics over a blockchain indexing service"
	app.Version = globals.TRACKER_VERSION
	app.Flags = []cli.Flag{
		configFlag,
		portFlag,
		wsPortFlag,
		sourceFlag,
		hypersyncUrlFlag,
		rpcUrlFlag,
		logLevelFlag,
		refreshIntervalFlag,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		utils.LogWithTime(err.Error(), utils.RED_COLOR)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {

	cfg, err := loadConfiguration(ctx.String(configFlag.Name), ctx.IsSet(configFlag.Name))
	if err != nil {
		return err
	}

	if ctx.IsSet(portFlag.Name) {
		cfg.Port = ctx.Int(portFlag.Name)
	}
	if ctx.IsSet(wsPortFlag.Name) {
		cfg.WebSocketPort = ctx.Int(wsPortFlag.Name)
	}
	if ctx.IsSet(sourceFlag.Name) {
		cfg.SourceKind = ctx.String(sourceFlag.Name)
	}
	if ctx.IsSet(hypersyncUrlFlag.Name) {
		cfg.HypersyncUrl = ctx.String(hypersyncUrlFlag.Name)
	}
	if ctx.IsSet(rpcUrlFlag.Name) {
		cfg.JsonRpcUrl = ctx.String(rpcUrlFlag.Name)
	}
	if ctx.IsSet(logLevelFlag.Name) {
		cfg.LogLevel = ctx.String(logLevelFlag.Name)
	}
	if ctx.IsSet(refreshIntervalFlag.Name) {
		cfg.RefreshIntervalMs = ctx.Int64(refreshIntervalFlag.Name)
	}

	applyDefaults(&cfg)

	globals.CONFIGURATION = cfg

	if err := RunTracker(); err != nil {
		return fmt.Errorf("tracker stopped: %w", err)
	}

	return nil
}
