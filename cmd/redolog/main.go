package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/julianstephens/go-utils/cliutil"

	"github.com/julianstephens/redolog/internal/cli"
	"github.com/julianstephens/redolog/internal/logger"
	"github.com/julianstephens/redolog/internal/redolog"
	"github.com/julianstephens/redolog/internal/redolog/metrics"
)

var (
	version = "redolog v0.1.0"
)

type LogOpts struct {
	Level  string `help:"Logging level (debug, info, warn, error)" envvar:"REDOLOG_LOG_LEVEL"`
	Debug  bool   `help:"Enable debug logging (overrides --level)" envvar:"REDOLOG_DEBUG"`
	Stream bool   `help:"Log to stdout/stderr only, not to a file" envvar:"REDOLOG_LOG_STREAM"`
}

type CLI struct {
	Recover cli.RecoverCmd `cmd:"" help:"Replay every mailbox log under a root and advance checkpoints"`
	Dump    cli.DumpCmd    `cmd:"" help:"Print every frame of a segment file"`
	Verify  cli.VerifyCmd  `cmd:"" help:"Scan every segment under a root and report damage"`
	Purge   cli.PurgeCmd   `cmd:"" help:"Remove segments below each mailbox checkpoint"`
	Stats   cli.StatsCmd   `cmd:"" help:"Display per-mailbox log statistics"`
	Tags    cli.TagsCmd    `cmd:"" help:"List the registered operation tags"`

	Config      string `help:"YAML config file" type:"existingfile" envvar:"REDOLOG_CONFIG"`
	Durability  string `help:"Override the durability policy (sync, batched)" envvar:"REDOLOG_DURABILITY"`
	Parallelism int    `help:"Override recovery parallelism" envvar:"REDOLOG_RECOVERY_PARALLELISM"`

	LogOpts LogOpts          `embed:"" prefix:"log-" help:"Logging options"`
	Version kong.VersionFlag `help:"Show version information" short:"V"`
}

// options loads the config file, then applies flag overrides.
func (c *CLI) options() (redolog.Options, error) {
	opts, err := cli.LoadOptions(c.Config)
	if err != nil {
		return opts, err
	}
	if c.Durability != "" {
		if opts.Durability, err = redolog.ParseDurabilityPolicy(c.Durability); err != nil {
			return opts, err
		}
	}
	if c.Parallelism > 0 {
		opts.RecoveryParallelism = c.Parallelism
	}
	if c.LogOpts.Level != "" {
		opts.LogLevel = c.LogOpts.Level
	}
	if c.LogOpts.Debug {
		opts.LogLevel = "debug"
	}
	if err := cli.ValidateOptions(opts); err != nil {
		return opts, err
	}
	return opts.WithDefaults(), nil
}

func createLogger(opts redolog.Options, stream bool) (logger.Logger, error) {
	consoleLogger := logger.NewConsoleLogger(opts.LogLevel)
	if stream {
		return consoleLogger, nil
	}

	logDir := opts.LogDir
	if logDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		logDir = filepath.Join(homeDir, redolog.DefaultAppDir, redolog.DefaultLogDir)
	}
	fileLogger, err := logger.NewFileLogger(logger.FileConfig{
		Dir:        logDir,
		FileName:   redolog.DefaultLogFileName,
		MaxSizeMB:  opts.LogMaxSize,
		MaxBackups: opts.LogMaxBak,
		Level:      opts.LogLevel,
	})
	if err != nil {
		return nil, err
	}

	return logger.NewMultiLogger(fileLogger, consoleLogger), nil
}

func main() {
	os.Exit(run())
}

func run() int {
	cliApp := &CLI{}
	ctx := kong.Parse(cliApp,
		kong.Name("redolog"),
		kong.Description("Inspect, verify and replay mailbox redo logs"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)

	opts, err := cliApp.options()
	if err != nil {
		cliutil.PrintError(err.Error())
		return 2
	}

	lg, err := createLogger(opts, cliApp.LogOpts.Stream)
	if err != nil {
		cliutil.PrintError(err.Error())
		return 1
	}
	// Ensure logger is properly closed
	defer func() {
		if c, ok := lg.(logger.Closeable); ok {
			_ = c.Close()
		}
	}()

	globals := &cli.Globals{
		Options: opts,
		Logger:  lg,
		Metrics: metrics.DefaultRegistry(),
		Out:     os.Stdout,
	}

	if err := ctx.Run(globals); err != nil {
		lg.Error("command failed", err, "command", ctx.Command())
		cliutil.PrintError(err.Error())
		if errors.Is(err, cli.ErrVerifyFailed) || errors.Is(err, cli.ErrRecoverFailed) {
			return 3
		}
		return 1
	}
	return 0
}
