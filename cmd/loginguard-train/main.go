package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"loginguard/internal/artifact"
	"loginguard/internal/config"
	"loginguard/internal/detector"
	"loginguard/internal/logging"
	"loginguard/internal/storage"
	"loginguard/internal/training"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	var (
		configPath    = flag.String("config", "", "config file (yaml or json)")
		users         = flag.Int("users", 0, "synthetic users")
		days          = flag.Int("days", 0, "synthetic days of history")
		anomalies     = flag.Float64("anomalies", -1, "share of injected anomalies in the synthetic corpus")
		contamination = flag.Float64("contamination", 0, "expected outlier share used to place the decision boundary")
		trees         = flag.Int("trees", 0, "number of isolation trees")
		seed          = flag.Int64("seed", 0, "random seed for the corpus and the forest")
		source        = flag.String("source", "", "corpus source: synthetic, jsonl or storage")
		corpus        = flag.String("corpus", "", "JSON Lines corpus path")
		name          = flag.String("name", "", "model artifact name")
		dir           = flag.String("dir", "", "model artifact directory")
	)
	flag.Parse()

	cfg, err := config.Load(config.ResolvePath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	overrides(cfg, flagsSet(), *users, *days, *anomalies, *contamination, *trees, *seed, *source, *corpus, *name, *dir)
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, syncLogs := logging.NewLogger(cfg.LogLevel)
	defer func() { _ = syncLogs() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var corpusStore training.CorpusStore
	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	if store != nil {
		defer store.Close()
		if err := store.Init(ctx); err != nil {
			logger.Error("storage schema init failed", "driver", cfg.Storage.Driver, "err", err)
			os.Exit(1)
		}
		corpusStore = store
	}

	p := training.NewPipeline(training.OptionsFromConfig(cfg), artifact.NewStore(cfg.Model.Dir, logger), corpusStore, logger)
	res, err := p.Run(ctx)
	if err != nil {
		logger.Error("training failed", "err", err)
		os.Exit(1)
	}
	logger.Info("training complete",
		"model_id", res.Model.Meta.ModelID,
		"events", res.Events,
		"anomalies", res.Anomalies,
		"precision", detector.Format(res.Metrics.Precision),
		"recall", detector.Format(res.Metrics.Recall),
		"f1", detector.Format(res.Metrics.F1),
		"tn", res.Metrics.Confusion[0][0],
		"fp", res.Metrics.Confusion[0][1],
		"fn", res.Metrics.Confusion[1][0],
		"tp", res.Metrics.Confusion[1][1],
		"forest", res.Paths.Forest,
	)
}

func flagsSet() map[string]bool {
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// overrides applies only the flags given on the command line.
func overrides(cfg *config.Config, set map[string]bool, users, days int, anomalies, contamination float64, trees int, seed int64, source, corpus, name, dir string) {
	t := &cfg.Training
	if set["users"] {
		t.NumUsers = users
	}
	if set["days"] {
		t.Days = days
	}
	if set["anomalies"] {
		t.AnomalyPercentage = anomalies
	}
	if set["contamination"] {
		t.Contamination = contamination
	}
	if set["trees"] {
		t.TreeCount = trees
	}
	if set["seed"] {
		t.RandomSeed = seed
	}
	if set["source"] {
		t.Source = source
	}
	if set["corpus"] {
		t.CorpusPath = corpus
	}
	if set["name"] {
		cfg.Model.Name = name
	}
	if set["dir"] {
		cfg.Model.Dir = dir
	}
}
