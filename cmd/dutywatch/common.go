package main

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strings"

	"github.com/loykin/dutywatch/internal/config"
	"github.com/loykin/dutywatch/internal/history"
	"github.com/loykin/dutywatch/internal/history/factory"
	"github.com/loykin/dutywatch/internal/logger"
	"github.com/loykin/dutywatch/internal/notify"
)

func loadLayout(flags *GlobalFlags) (config.Layout, error) {
	l, err := config.LoadLayoutAt(flags.ConfigPath, flags.Root)
	if err != nil {
		return config.Layout{}, fmt.Errorf("error loading config: %w", err)
	}
	return l, nil
}

// absConfigPath returns the config path in a form the collector child can
// use from any working directory.
func absConfigPath(flags *GlobalFlags) string {
	if flags.ConfigPath == "" {
		return ""
	}
	if p, err := filepath.Abs(flags.ConfigPath); err == nil {
		return p
	}
	return flags.ConfigPath
}

func newLogger(cfg logger.Config) (*slog.Logger, io.Closer, error) {
	log, closer, err := logger.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("logger setup: %w", err)
	}
	slog.SetDefault(log)
	return log, closer, nil
}

// loadOptions reads the .env options, falling back to defaults with a warning.
func loadOptions(l config.Layout, log *slog.Logger) config.Options {
	opts, err := config.LoadOptions(l.OptionsFile)
	switch {
	case err == nil:
	case config.IsMissing(err):
		log.Warn("options file missing, using defaults", "path", l.OptionsFile)
	case config.IsPartial(err):
		log.Warn("ignoring invalid option values", "path", l.OptionsFile, "error", err)
	default:
		log.Warn("failed to read options, using defaults", "path", l.OptionsFile, "error", err)
	}
	return opts
}

// newGateway wires the Discord transport, the durable queue and the
// quiet-hours window from opts.
func newGateway(l config.Layout, opts config.Options, log *slog.Logger) *notify.Gateway {
	quiet, err := notify.ParseWindow(opts.QuietStart, opts.QuietEnd)
	if err != nil {
		def := config.DefaultOptions()
		log.Warn("invalid quiet hours, using defaults", "start", opts.QuietStart, "end", opts.QuietEnd, "error", err)
		quiet, _ = notify.ParseWindow(def.QuietStart, def.QuietEnd)
	}
	transport := notify.NewDiscord(notify.DiscordConfig{
		Token:       opts.Token,
		RecipientID: opts.PrivateRecipientID,
		ChannelID:   opts.BroadcastChannelID,
	})
	return notify.NewGateway(transport, notify.NewQueue(l.QueueFile), quiet, notify.WithLogger(log))
}

// openHistory connects the optional history sink. Failures disable history
// and are logged.
func openHistory(l config.Layout, log *slog.Logger) (*history.Recorder, func()) {
	if l.History.DSN == "" {
		return nil, func() {}
	}
	sink, closer, err := factory.NewSinkFromDSN(l.History.DSN)
	if err != nil {
		log.Warn("history sink disabled", "error", err)
		return nil, func() {}
	}
	return history.NewRecorder(sink, log), func() { _ = closer.Close() }
}

// apiURLFromListen turns an api.listen address into a client base URL.
func apiURLFromListen(listen, basePath string) string {
	if listen == "" {
		return ""
	}
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return ""
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	bp := strings.TrimRight(basePath, "/")
	if bp != "" && !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return "http://" + net.JoinHostPort(host, port) + bp
}
