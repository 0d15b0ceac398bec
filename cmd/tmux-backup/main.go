package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/alchemmist/tmux-backup/internal/app"
	"github.com/alchemmist/tmux-backup/internal/catalog"
	"github.com/alchemmist/tmux-backup/internal/config"
	"github.com/alchemmist/tmux-backup/internal/logging"
	"github.com/alchemmist/tmux-backup/internal/retention"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stdout)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch args[0] {
	case "save":
		err = runSave(ctx, args[1:], stdout, stderr)
	case "restore":
		err = runRestore(ctx, args[1:], stdout, stderr)
	case "catalog":
		err = runCatalog(ctx, args[1:], stdout, stderr)
	case "describe":
		err = runDescribe(args[1:], stdout)
	case "picker":
		err = runPicker(ctx, args[1:], stdout, stderr)
	case "daemon":
		err = runDaemon(ctx, args[1:], stdout, stderr)
	case "init":
		err = runInit(args[1:], stdout)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "tmux-backup: unknown command: %s\n", args[0])
		return 1
	}
	if errors.Is(err, pflag.ErrHelp) {
		usage(stdout)
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "tmux-backup: %s\n", formatError(err))
		return 1
	}
	return 0
}

// shared holds the flags every command reading the catalog accepts. They
// override the config file and the environment only when given.
type shared struct {
	fs         *pflag.FlagSet
	configPath string
	dir        string
	tmuxBin    string
	strategy   string
	numBackups int
	logLevel   string
}

func newFlagSet(name string) (*pflag.FlagSet, *shared) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	s := &shared{fs: fs}
	fs.StringVar(&s.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/tmux-backup/config.yaml)")
	fs.StringVarP(&s.dir, "dirpath", "d", "", "backup directory")
	fs.StringVar(&s.tmuxBin, "tmux-bin", "", "tmux binary")
	fs.StringVarP(&s.strategy, "strategy", "s", "", "retention strategy: most-recent or classic")
	fs.IntVarP(&s.numBackups, "num-backups", "n", 0, "backups kept by the most-recent strategy")
	fs.StringVar(&s.logLevel, "log-level", "", "debug, info, warn or error")
	return fs, s
}

func (s *shared) config() (config.Config, error) {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if s.fs.Changed("dirpath") {
		cfg.BackupDir = s.dir
	}
	if s.fs.Changed("tmux-bin") {
		cfg.TmuxBin = s.tmuxBin
	}
	if s.fs.Changed("strategy") {
		cfg.Strategy = s.strategy
	}
	if s.fs.Changed("num-backups") {
		cfg.NumBackups = s.numBackups
	}
	if s.fs.Changed("log-level") {
		cfg.LogLevel = s.logLevel
	}
	return cfg, nil
}

func (s *shared) app(cfg config.Config, stderr io.Writer) (*app.App, error) {
	log, err := logging.New(logging.Config{Level: cfg.LogLevel}, stderr)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, log)
}

func (s *shared) open(stderr io.Writer) (*app.App, config.Config, error) {
	cfg, err := s.config()
	if err != nil {
		return nil, config.Config{}, err
	}
	a, err := s.app(cfg, stderr)
	return a, cfg, err
}

func runSave(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, s := newFlagSet("save")
	compact := fs.Bool("compact", false, "delete purgeable backups after saving")
	toTmux := fs.Bool("to-tmux", false, "report in the tmux status line")
	ignore := fs.IntP("ignore-last-lines", "i", 0, "lines dropped from the end of shell panes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, cfg, err := s.open(stderr)
	if err != nil {
		return err
	}
	lines := cfg.LinesToDrop
	if fs.Changed("ignore-last-lines") {
		lines = *ignore
	}
	if lines < 0 {
		return fmt.Errorf("ignore-last-lines must not be negative, got %d", lines)
	}

	res, err := a.Save(ctx, app.SaveOptions{Compact: *compact, LinesToDrop: lines})
	if err != nil {
		if *toTmux {
			_ = a.Notify(ctx, stdout, true, "could not save sessions: "+err.Error())
		}
		return err
	}
	return a.Notify(ctx, stdout, *toTmux, res.String())
}

func runRestore(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, s := newFlagSet("restore")
	toTmux := fs.Bool("to-tmux", false, "report in the tmux status line")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return errors.New("restore takes at most one backup file")
	}

	a, _, err := s.open(stderr)
	if err != nil {
		return err
	}
	return restore(ctx, a, fs.Arg(0), *toTmux, stdout)
}

func restore(ctx context.Context, a *app.App, path string, toTmux bool, stdout io.Writer) error {
	res, err := a.Restore(ctx, path)
	if !toTmux {
		for _, line := range res.Sessions() {
			fmt.Fprintln(stdout, line)
		}
	}
	if err != nil {
		if toTmux {
			_ = a.Notify(ctx, stdout, true, "could not restore sessions: "+err.Error())
		}
		return err
	}
	return a.Notify(ctx, stdout, toTmux, res.String())
}

func runCatalog(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		return errors.New("catalog requires a subcommand: list or compact")
	}
	switch args[0] {
	case "list":
		return runCatalogList(ctx, args[1:], stdout, stderr)
	case "compact":
		return runCatalogCompact(args[1:], stdout, stderr)
	default:
		return fmt.Errorf("unknown catalog subcommand: %s", args[0])
	}
}

func runCatalogList(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, s := newFlagSet("catalog list")
	details := fs.Bool("details", false, "show size, version and content of every backup")
	only := fs.String("only", "", "print only the paths of retainable or purgeable backups")
	filepaths := fs.Bool("filepaths", false, "print only the paths of the backups")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := catalog.ListOptions{Details: *details, FilePaths: *filepaths}
	if fs.Changed("only") {
		status, err := retention.ParseStatus(*only)
		if err != nil {
			return err
		}
		opts.Only = &status
	}

	a, cfg, err := s.open(stderr)
	if err != nil {
		return err
	}
	opts.Parallelism = cfg.Parallelism
	opts.Home, _ = os.UserHomeDir()
	return a.Catalog().List(ctx, stdout, time.Now(), opts)
}

func runCatalogCompact(args []string, stdout, stderr io.Writer) error {
	fs, s := newFlagSet("catalog compact")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, _, err := s.open(stderr)
	if err != nil {
		return err
	}
	removed, err := a.Catalog().Compact(time.Now())
	if err != nil {
		return fmt.Errorf("could not compact backups: %w", err)
	}
	fmt.Fprintf(stdout, "deleted %d outdated backups\n", len(removed))
	return nil
}

func runDescribe(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("describe", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("describe requires a backup file")
	}
	return app.Describe(stdout, fs.Arg(0))
}

func runPicker(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, s := newFlagSet("picker")
	useFZF := fs.Bool("fzf", false, "pick with fzf instead of the built-in TUI")
	toTmux := fs.Bool("to-tmux", false, "report in the tmux status line")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, _, err := s.open(stderr)
	if err != nil {
		return err
	}
	var path string
	if *useFZF {
		path, err = a.SelectWithFZF(ctx)
	} else {
		path, err = a.SelectWithTUI(ctx)
	}
	if errors.Is(err, app.ErrSelectionCanceled) {
		return nil
	}
	if err != nil {
		return err
	}
	return restore(ctx, a, path, *toTmux, stdout)
}

func runDaemon(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, s := newFlagSet("daemon")
	interval := fs.Duration("interval", 0, "autosave interval (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := s.config()
	if err != nil {
		return err
	}
	if fs.Changed("interval") {
		cfg.SaveInterval = *interval
	}
	a, err := s.app(cfg, stderr)
	if err != nil {
		return err
	}
	return a.RunDaemon(ctx, cfg.SaveInterval)
}

func runInit(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("init", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	bin := fs.String("bin", "tmux-backup", "command the key bindings run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	_, err := io.WriteString(stdout, app.InitScript(*bin))
	return err
}

func usage(out io.Writer) {
	fmt.Fprint(out, `tmux-backup - save and restore tmux sessions

Usage:
  tmux-backup <command> [flags]

Commands:
  save              Save all sessions to a new backup
                    [--compact] [--to-tmux] [-i N]
  restore [FILE]    Restore a backup, the latest by default [--to-tmux]
  catalog list      List backups [--details] [--only STATUS] [--filepaths]
  catalog compact   Delete purgeable backups
  describe FILE     Show what a backup holds
  picker            Pick a backup to restore [--fzf] [--to-tmux]
  daemon            Save and compact periodically [--interval D]
  init              Print tmux key bindings [--bin PATH]

Flags shared by save, restore, catalog, picker and daemon:
  -d, --dirpath DIR        backup directory
  -s, --strategy NAME      most-recent or classic
  -n, --num-backups N      backups kept by most-recent
      --tmux-bin PATH      tmux binary
      --config FILE        config file
      --log-level LEVEL    debug, info, warn or error
`)
}

func formatError(err error) string {
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Sprintf("not found: %v", err)
	}
	return strings.TrimSpace(err.Error())
}
