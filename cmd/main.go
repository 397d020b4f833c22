package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"papershort/cmd/archiver"
	"papershort/src/app"
	"papershort/src/database"
	"papershort/src/engine"
	"papershort/src/executors"
)

var Version string

func main() {
	_ = godotenv.Load()

	cliApp := cli.NewApp()
	cliApp.Name = "Papershort CMD"
	cliApp.Usage = "The papershort command line interface"

	cliApp.Commands = []cli.Command{
		scanCMD,
		loopCMD,
		archiveCMD,
	}

	if err := cliApp.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	scanCMD = cli.Command{
		Name:        "scan",
		Usage:       "run one scan cycle",
		Action:      scanAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run a single manual scan cycle and exit`,
	}
	loopCMD = cli.Command{
		Name:        "loop",
		Usage:       "run the scan loop",
		Action:      loopAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the periodic scan loop without the admin server`,
	}
	archiveCMD = cli.Command{
		Name:        "archive",
		Usage:       "archive hourly candles",
		Action:      archiveAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Backfill hourly candles into the local archive`,
	}
)

func scanAction(_ *cli.Context) error {
	logrus.Info("Starting scan CMD")

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	a := app.Build()
	result := a.Engine.RunCycle(context.Background(), engine.TriggerManual)
	if !result.Executed {
		return fmt.Errorf("scan did not execute: %s", result.Reason)
	}

	return nil
}

func loopAction(_ *cli.Context) error {
	logrus.Info("Starting loop CMD")

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	a := app.Build()
	a.StartMarkStream(ctx)

	if err := executors.StartLoop(ctx, a.Engine); err != nil {
		logrus.WithError(err).Error("Failed to run scan loop")
		return err
	}

	return nil
}

func archiveAction(_ *cli.Context) error {
	logrus.Info("Starting archive CMD")

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	arch := &archiver.Archiver{
		Log: logrus.WithField("cmd", "archive"),
		DB:  database.MainDB,
	}

	if err := arch.Start(); err != nil {
		logrus.WithError(err).Error("Starting archive CMD")
		return err
	}

	return nil
}
