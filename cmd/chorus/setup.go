package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"chorus/internal/boost"
	"chorus/internal/config"
	"chorus/internal/models"
	"chorus/internal/notify"
	"chorus/internal/orchestrator"
	"chorus/internal/relay"
	"chorus/internal/ui"
)

var errRelayNotConfigured = errors.New("relay url is not configured: set relay.url in the config file or CHORUS_RELAY_URL")

// app holds what every command needs once the config is loaded
type app struct {
	cfg      *config.Config
	reg      *models.Registry
	logger   *slog.Logger
	closeLog func() error
	notifier *notify.Client
}

func loadApp(cfgPath string) (*app, error) {
	if cfgPath == "" {
		cfgPath = config.ConfigPath()
	}
	cfg, err := config.LoadFrom(cfgPath)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := newLogger(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	logger.Debug("config loaded", "path", cfgPath, "relay", cfg.Relay.URL)

	return &app{
		cfg:      cfg,
		reg:      models.NewRegistry(cfg),
		logger:   logger,
		closeLog: closeLog,
	}, nil
}

// Close flushes pending notifications and closes the log file
func (a *app) Close() error {
	if a.notifier != nil {
		a.notifier.Flush(notifyFlushTimeout)
	}
	return a.closeLog()
}

// newLogger writes text logs to file; the terminal belongs to the UI
func newLogger(level, file string) (*slog.Logger, func() error, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}

	var w io.Writer
	closeFn := func() error { return nil }
	switch strings.ToLower(file) {
	case "stderr":
		w = os.Stderr
	case "", "off", "none":
		w = io.Discard
	default:
		if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closeFn = f.Close
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), closeFn, nil
}

// orchestrator builds the relay client and the orchestrator around it
func (a *app) orchestrator(observer orchestrator.Observer) (*orchestrator.Orchestrator, error) {
	if a.cfg.Relay.URL == "" {
		return nil, errRelayNotConfigured
	}

	client := relay.New(a.cfg.ChatURL(),
		relay.WithAPIKey(a.cfg.Relay.APIKey),
		relay.WithHTTPClient(relay.NewHTTPClient(relay.TransportConfigFrom(a.cfg))),
		relay.WithRegistry(a.reg),
		relay.WithMaxPending(a.cfg.Transport.MaxPendingBytes),
		relay.WithLogger(a.logger),
	)

	opts := []orchestrator.Option{
		orchestrator.WithLogger(a.logger),
		orchestrator.WithStagger(a.cfg.Stagger()),
	}
	if observer != nil {
		opts = append(opts, orchestrator.WithObserver(observer))
	}
	if a.cfg.Notify.Enabled {
		a.notifier = notify.NewClient(a.cfg.Notify.Endpoint, a.logger)
		opts = append(opts, orchestrator.WithNotifier(a.notifier))
	}

	return orchestrator.New(client, opts...), nil
}

func (a *app) booster() *boost.Client {
	return boost.New(a.cfg.BoostURL(),
		boost.WithAPIKey(a.cfg.Relay.APIKey),
		boost.WithLogger(a.logger),
	)
}

func (a *app) known(id string) bool {
	_, ok := a.reg.Get(id)
	return ok
}

// selection starts from the configured defaults
func (a *app) selection() *ui.Selection {
	return ui.NewSelection(a.cfg.Defaults.Models, a.cfg.Defaults.MaxModels, a.known, a.reg.IDs())
}

// strictSelection rejects unknown ids and lists over the limit
func (a *app) strictSelection(ids []string) (*ui.Selection, error) {
	if len(ids) == 0 {
		return a.selection(), nil
	}
	for _, id := range ids {
		if !a.known(id) {
			return nil, fmt.Errorf("%w: %s (see 'chorus models')", ui.ErrUnknownModel, id)
		}
	}
	sel := ui.NewSelection(ids, a.cfg.Defaults.MaxModels, a.known, nil)
	if sel.Len() < len(dedupe(ids)) {
		return nil, fmt.Errorf("%w: at most %d models", ui.ErrTooManyModels, a.cfg.Defaults.MaxModels)
	}
	return sel, nil
}

func dedupe(ids []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
