package main

import (
	"SigHunter/internal"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "sighunter",
		Usage: "Scan files against signature rules kept current from a remote release",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config (missing file - defaults)",
				EnvVars: []string{"SIGHUNTER_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "logfile",
				Usage: "Write logs into file instead of stderr",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: trace, debug, info, warn, error",
			},
			&cli.IntFlag{
				Name:  "threads",
				Usage: "Max concurrent scan workers (default scales with CPU)",
			},
			&cli.IntFlag{
				Name:  "min-matches",
				Usage: "Minimum matched rules to flag a file (0 - at least one)",
			},
			&cli.IntFlag{
				Name:  "max-matches",
				Usage: "Maximum matched rules to flag a file (0 - unbounded)",
			},
			&cli.StringFlag{
				Name:  "engine",
				Usage: "Rule engine: yara or pattern",
			},
			&cli.BoolFlag{
				Name:  "offline",
				Usage: "Never contact the remote; use cached rules only",
			},
			&cli.IntFlag{
				Name:  "depth",
				Usage: "Max directory depth (0 - unlimited)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "scan",
				Usage:     "Scan a file or directory",
				ArgsUsage: "<path>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-progress",
						Usage: "Do not render a progress bar",
					},
				},
				Action: scanAction,
			},
			{
				Name:   "update",
				Usage:  "Check the remote and rebuild the local ruleset if it is outdated",
				Action: updateAction,
			},
			{
				Name:   "watch",
				Usage:  "Keep the local ruleset current on the configured schedule",
				Action: watchAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

// setup loads config, applies flag overrides and builds the rule store.
func setup(c *cli.Context) (*internal.Config, *internal.RuleStore, error) {
	cfg, err := internal.LoadConfig(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if c.IsSet("logfile") {
		cfg.LogFile = c.String("logfile")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("threads") {
		cfg.MaxThreads = c.Int("threads")
	}
	if c.IsSet("min-matches") {
		cfg.MinMatches = c.Int("min-matches")
	}
	if c.IsSet("max-matches") {
		cfg.MaxMatches = c.Int("max-matches")
	}
	if c.IsSet("engine") {
		cfg.Engine = c.String("engine")
	}
	if c.IsSet("offline") {
		cfg.Offline = c.Bool("offline")
	}
	if c.IsSet("depth") {
		cfg.MaxDepth = c.Int("depth")
	}
	if err := internal.InitLogger(cfg.LogFile, cfg.LogLevel); err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	cfg.Prepare()

	eng, err := newEngine(cfg)
	if err != nil {
		return nil, nil, err
	}
	store := internal.NewRuleStore(cfg, eng, internal.NewUpdater(cfg, eng))
	return cfg, store, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func scanAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("scan expects exactly one path", 1)
	}
	cfg, store, err := setup(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	logrus.Info("sighunter started")

	ctx, stop := signalContext()
	defer stop()

	var observer internal.ProgressObserver
	if !c.Bool("no-progress") {
		bar := progressbar.NewOptions64(-1,
			progressbar.OptionSetDescription("scanning"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
		sized := false
		observer = internal.ProgressFunc(func(s internal.Snapshot) {
			if !sized {
				bar.ChangeMax64(s.TotalSize)
				sized = true
			}
			_ = bar.Set64(s.ScannedSize)
		})
	}

	scanner := internal.NewScanner(*cfg, store, observer)
	report, err := scanner.Run(ctx, c.Args().First())
	if err != nil {
		logrus.WithError(err).Error("Scan failed")
		return cli.Exit(err.Error(), 1)
	}

	printReport(report)
	return nil
}

func printReport(r *internal.Report) {
	fmt.Println()
	for _, f := range r.Flags {
		fmt.Printf("[flagged] %s (%d rules)\n", f.Path, f.RuleCount)
		for _, rule := range f.Rules {
			fmt.Printf("    %s\n", rule)
		}
		if link := f.VirusTotalURL(); link != "" {
			fmt.Printf("    %s\n", link)
		}
	}
	for _, s := range r.Skips {
		fmt.Printf("[skipped] %s: %s\n", s.Path, s.Reason)
	}
	fmt.Printf(
		"\n======= Scan finished in %s =======\nTotal files: %d (%s)\nFlagged: %d\nSkipped: %d\nLog: %s\n",
		r.Stats.Elapsed.Round(time.Millisecond), r.TotalFiles, humanize.Bytes(uint64(r.TotalSize)),
		len(r.Flags), len(r.Skips), r.LogPath,
	)
}

func updateAction(c *cli.Context) error {
	_, store, err := setup(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	ctx, stop := signalContext()
	defer stop()

	rules, err := store.Refresh(ctx)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Printf("Rules version %s (%s)\n", rules.Version.Format(time.RFC3339), humanize.Time(rules.Version))
	return nil
}

func watchAction(c *cli.Context) error {
	cfg, store, err := setup(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	ctx, stop := signalContext()
	defer stop()

	if _, err := store.EnsureCurrent(ctx); err != nil {
		logrus.WithError(err).Warn("Initial rule check failed")
	}
	sched, err := internal.NewRefreshScheduler(store, cfg.UpdateSchedule)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	sched.Start()
	if next := sched.NextRunAt(); next != nil {
		logrus.Infof("Next rule refresh %s", humanize.Time(*next))
	}

	<-ctx.Done()
	logrus.Info("Stopping scheduler")
	sched.Stop()
	return nil
}
