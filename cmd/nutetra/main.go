package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/luki/nutetra/internal/api"
	"github.com/luki/nutetra/internal/config"
	"github.com/luki/nutetra/internal/logging"
	"github.com/luki/nutetra/internal/monitor"
	"github.com/luki/nutetra/internal/settings"
	"github.com/luki/nutetra/internal/viewer"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "monitor":
		err = monitorCommand(os.Args[2:])
	case "view":
		err = viewCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "profile":
		err = profileCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "nutetra %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

// loadConfig reads path, or the defaults plus environment when path is
// empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	log := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.JSON)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	a.start(ctx)

	var poller api.Poller
	if a.poller != nil {
		poller = a.poller
	}
	srv := api.New(api.Options{
		Snapshots: a.engine,
		Settings:  a.settings,
		Poller:    poller,
		DataDir:   cfg.Store.Dir,
		Gatherer:  a.registry,
		Log:       log.With().Str("component", "api").Logger(),
	})
	err = srv.Run(ctx, cfg.API.Addr)
	stop()
	a.wait()
	log.Info().Msg("stopped")
	return err
}

func monitorCommand(args []string) error {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}

	// The terminal belongs to the TUI, so logs go to a file.
	log, closer, err := logging.ToFile(cfg.Store.Dir, "nutetra.log", cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("log file: %w", err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	snaps, cancel := a.engine.Subscribe()
	defer cancel()
	a.start(ctx)

	p := tea.NewProgram(monitor.New(snaps, a.history, cfg.Store.Dir), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	stop()
	a.wait()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

func viewCommand(args []string) error {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to configuration file")
	dir := fs.String("dir", "", "History directory (defaults to store.dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dir == "" {
		cfg, err := loadConfig(*cfgPath)
		if err != nil {
			return err
		}
		*dir = cfg.Store.Dir
	}
	return viewer.Run(*dir)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *cfgPath == "" {
		return errors.New("-config is required")
	}
	if _, err := config.Load(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

func profileCommand(args []string) error {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Println("Profiles:")
		for _, name := range settings.ProfileNames() {
			p := settings.Profiles[name]
			fmt.Printf("  %-14s pH %.1f±%.1f  EC %.0f±%.0f  %.0f-%.0f °C\n",
				name, p.PHSetpoint, p.PHBuffer, p.ECSetpoint, p.ECBuffer, p.TempMin, p.TempMax)
		}
		return errors.New("usage: nutetra profile [-config file] <name>")
	}

	if err := os.MkdirAll(cfg.Store.Dir, 0755); err != nil {
		return err
	}
	st, err := settings.Open(cfg.Settings.DB)
	if err != nil {
		return err
	}
	defer st.Close()

	s, err := st.ApplyProfile(fs.Arg(0))
	if err != nil {
		return err
	}
	log := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.JSON)
	logRanges(log, s)
	return nil
}

func logRanges(log zerolog.Logger, s settings.Settings) {
	ranges := s.Ranges()
	ev := log.Info().Str("profile", s.ActiveProfile)
	for ch, r := range ranges {
		ev = ev.Str(string(ch), fmt.Sprintf("%g..%g", r.Min, r.Max))
	}
	ev.Msg("plant profile applied")
}

func printUsage() {
	fmt.Printf(`NuTetra sensor dashboard

Usage:
  nutetra <command> [flags]

Commands:
  run        Start the headless reconciler with the HTTP API and metrics
  monitor    Start the reconciler with the live terminal dashboard
  view       Browse recorded history day by day
  validate   Load and validate a config file
  profile    Apply a plant profile to the stored settings

Examples:
  nutetra run -config ./nutetra.yaml
  nutetra monitor
  nutetra view -dir ~/.nutetra-data
  nutetra profile leafy_greens
`)
}
