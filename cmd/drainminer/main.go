// Command drainminer streams a log file through a Miner and writes a CSV
// summary of the discovered templates.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/peterbourgon/ff/v3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mrlyc/drainminer/config"
	"github.com/mrlyc/drainminer/miner"
	"github.com/mrlyc/drainminer/report"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("drainminer", flag.ContinueOnError)
	var (
		configPath = fs.String("config", "", "path to a TOML config file (required)")
		logPath    = fs.String("log", "", "path to the log file to mine (required)")
		outPath    = fs.String("out", "", "path to write the CSV report (default: stdout)")
	)
	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("DRAINMINER")); err != nil {
		return errors.Wrap(err, "drainminer: parsing flags")
	}
	if *configPath == "" || *logPath == "" {
		return errors.New("drainminer: -config and -log are both required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return errors.Wrap(err, "drainminer: loading config")
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return errors.Wrap(err, "drainminer: building logger")
	}
	defer logger.Sync() //nolint:errcheck

	m, err := miner.New(cfg, logger)
	if err != nil {
		return errors.Wrap(err, "drainminer: building miner")
	}

	if err := mine(m, *logPath); err != nil {
		return err
	}

	if err := m.SaveState(); err != nil {
		logger.Warn("drainminer: final snapshot failed", zap.Error(err))
	}

	out := os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return errors.Wrapf(err, "drainminer: creating %s", *outPath)
		}
		defer f.Close()
		out = f
	}
	return report.Write(out, m.Clusters())
}

func mine(m *miner.Miner, logPath string) error {
	f, err := os.Open(logPath)
	if err != nil {
		return errors.Wrapf(err, "drainminer: opening %s", logPath)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		m.Ingest(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "drainminer: reading %s", logPath)
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if level == "" {
		level = "info"
	}
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.Wrapf(err, "drainminer: invalid log_level %q", level)
	}
	return cfg.Build()
}
