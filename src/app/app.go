package app

import (
	"context"

	"papershort/src/connectors"
	"papershort/src/engine"
	"papershort/src/notifier"
	"papershort/src/repository"
	"papershort/src/server"
)

// App wires the market-data clients, notifier, repositories and engine into
// a runnable unit. Both the service entrypoint and the CLI build through
// here so the wiring stays in one place.
type App struct {
	Engine *engine.Engine
	Marks  *connectors.MarkStream
	Deps   server.Deps
	Config engine.Config
}

// Build reads configuration from the environment and assembles the engine.
// The database must already be initialized.
func Build() *App {
	engineCfg := engine.GetConfig()
	connCfg := connectors.GetConfig()

	marks := connectors.NewMarkStream(connCfg)
	market := connectors.NewBinanceFuturesClient(connCfg).WithMarkStream(marks)

	alerts := repository.NewAlertRepository()
	notify := notifier.NewTelegramNotifier(notifier.GetConfig(), alerts)

	repos := engine.Repositories{
		Signals:   repository.NewSignalRepository(),
		Positions: repository.NewPositionRepository(),
		Trades:    repository.NewTradeRepository(),
		State:     repository.NewRuntimeStateRepository(),
		Summary:   repository.NewSummaryRepository(),
	}

	eng := engine.New(engineCfg, market, notify, repos)

	return &App{
		Engine: eng,
		Marks:  marks,
		Deps: server.Deps{
			Engine:    eng,
			Equity:    engineCfg.InitialEquityUsd,
			Signals:   repos.Signals,
			Trades:    repos.Trades,
			Alerts:    alerts,
			Positions: repos.Positions,
			Summary:   repos.Summary,
		},
		Config: engineCfg,
	}
}

// StartMarkStream runs the websocket mark-price cache in the background.
func (a *App) StartMarkStream(ctx context.Context) {
	go a.Marks.Run(ctx)
}
