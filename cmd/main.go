package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"aitrader/src/app"
	"aitrader/src/config"
	"aitrader/src/database"
	"aitrader/src/repository"
)

var (
	Version string
	AppName = os.Getenv("APP_NAME")
)

func setupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.DebugLevel
	}

	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

func handlePanic() {
	if r := recover(); r != nil {
		logrus.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("application %s panic", AppName))
	}
	time.Sleep(time.Second)
}

func main() {
	setupLogger()
	cliApp := cli.NewApp()
	cliApp.Name = "aitrader"
	cliApp.Usage = "strategy-trigger core command line interface"
	cliApp.Version = Version

	cliApp.Commands = []cli.Command{
		runCMD,
		seedEquityCMD,
	}

	if err := cliApp.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var runCMD = cli.Command{
	Name:        "run",
	Usage:       "run the strategy-trigger core",
	Action:      runAction,
	ArgsUsage:   "",
	Flags:       []cli.Flag{},
	Description: `Starts the exchange poller, agent channel, trigger coordinator, reconciler, balance writer and HTTP surface.`,
}

var seedEquityCMD = cli.Command{
	Name:      "seed-equity",
	Usage:     "seed the initial equity baseline used for drawdown reporting",
	Action:    seedEquityAction,
	ArgsUsage: "<value>",
	Flags:     []cli.Flag{},
}

func runAction(_ *cli.Context) error {
	defer handlePanic()

	logrus.Info("starting strategy-trigger core")

	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return app.Run(ctx, cfg)
}

func seedEquityAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.NewExitError("seed-equity requires exactly one numeric argument", 1)
	}

	var value float64
	if _, err := fmt.Sscanf(c.Args().Get(0), "%f", &value); err != nil {
		return cli.NewExitError(fmt.Sprintf("invalid equity value: %v", err), 1)
	}

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("failed to connect to database")
	}

	repo := repository.NewInitialEquityRepository()
	if err := repo.Set(context.Background(), value); err != nil {
		return cli.NewExitError(fmt.Sprintf("failed to seed initial equity: %v", err), 1)
	}

	logrus.WithField("value", value).Info("initial equity baseline set")
	return nil
}
