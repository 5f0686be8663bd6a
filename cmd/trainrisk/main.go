// Command trainrisk builds the risk model artifact from a CICIDS2017 style flow export.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"netrisk/internal/dataset"
	"netrisk/internal/features"
	"netrisk/internal/forest"
	"netrisk/internal/logging"
	"netrisk/internal/models"
)

type options struct {
	in        string
	processed string
	out       string
	testFrac  float64
	params    forest.Params
}

func main() {
	params := forest.DefaultParams()
	var opts options
	flag.StringVar(&opts.in, "in", "", "CICIDS2017 CSV export (required)")
	flag.StringVar(&opts.processed, "processed", "", "Also write the derived training rows to this CSV")
	flag.StringVar(&opts.out, "out", "risk_model.json", "Model artifact to write")
	flag.Float64Var(&opts.testFrac, "test", 0.2, "Fraction of rows held out for evaluation")
	flag.IntVar(&params.Trees, "trees", params.Trees, "Number of trees")
	flag.IntVar(&params.MaxDepth, "depth", params.MaxDepth, "Maximum tree depth")
	flag.Uint64Var(&params.Seed, "seed", params.Seed, "Random seed")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()
	opts.params = params

	if opts.in == "" {
		fmt.Println("Please provide the dataset with -in")
		fmt.Println("Example: trainrisk -in cicids2017_cleaned.csv -out risk_model.json")
		os.Exit(2)
	}

	cfg := logging.DefaultConfig()
	cfg.Level = *logLevel
	log, err := logging.New(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	acc, err := train(opts, log)
	if err != nil {
		log.Fatal("training failed", zap.Error(err))
	}
	fmt.Printf("Model accuracy: %.4f\n", acc)
	fmt.Printf("Model saved to %s\n", opts.out)
}

func train(opts options, log *zap.Logger) (float64, error) {
	f, err := os.Open(opts.in)
	if err != nil {
		return 0, errors.Wrap(err, "open dataset")
	}
	defer f.Close()

	rows, err := dataset.ReadFlows(f)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, errors.New("dataset has no rows")
	}
	counts := dataset.Counts(rows)
	log.Info("dataset loaded",
		zap.Int("rows", len(rows)),
		zap.Int("low", counts[models.RiskLow]),
		zap.Int("medium", counts[models.RiskMedium]),
		zap.Int("high", counts[models.RiskHigh]))

	if opts.processed != "" {
		if err := writeProcessed(opts.processed, rows); err != nil {
			return 0, err
		}
		log.Info("processed rows written", zap.String("path", opts.processed))
	}

	trainRows, testRows := dataset.Split(rows, opts.testFrac, opts.params.Seed)
	x, y := dataset.Matrix(trainRows)
	log.Info("training forest",
		zap.Int("train", len(trainRows)),
		zap.Int("test", len(testRows)),
		zap.Int("trees", opts.params.Trees))

	model, err := forest.Train(x, y, features.Columns, dataset.ClassNames(), opts.params)
	if err != nil {
		return 0, err
	}

	acc := 1.0
	if len(testRows) > 0 {
		tx, ty := dataset.Matrix(testRows)
		acc = model.Accuracy(tx, ty)
	}
	if err := model.Save(opts.out); err != nil {
		return 0, err
	}
	return acc, nil
}

func writeProcessed(path string, rows []dataset.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create processed dataset")
	}
	if err := dataset.WriteProcessed(f, rows); err != nil {
		f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "close processed dataset")
}
