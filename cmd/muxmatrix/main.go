package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/muxmatrix/internal/config"
	"github.com/coreman2200/muxmatrix/internal/control"
	"github.com/coreman2200/muxmatrix/internal/display"
	"github.com/coreman2200/muxmatrix/internal/line"
	"github.com/coreman2200/muxmatrix/internal/mirror"
	"github.com/coreman2200/muxmatrix/internal/sequence"
)

func main() {
	// ---- Flags (config.yaml fills in what is not given on the command line) ----
	var (
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
		id         = flag.String("id", "id", "display id used in logs")
		width      = flag.Int("width", 4, "columns (W)")
		height     = flag.Int("height", 4, "rows (H), at most 8")
		refresh    = flag.Float64("refresh", 60, "full refreshes per second")
		backend    = flag.String("backend", "periph", "gpio backend: periph | cdev | sim")
		chip       = flag.String("chip", "gpiochip0", "gpio chip for the cdev backend")
		mirrorDrv  = flag.String("mirror", "none", "frame mirror: none | console | spi")
		addr       = flag.String("addr", "", "control websocket listen address, empty disables")
		level      = flag.String("log-level", "info", "trace | debug | info | warn | error")
		saveConfig = flag.Bool("save-config", false, "write the effective config to -config and exit")
	)
	flag.Parse()

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	if lvl, err := zerolog.ParseLevel(*level); err != nil {
		log.Warn().Err(err).Str("level", *level).Msg("bad log level; using info")
	} else {
		zerolog.SetGlobalLevel(lvl)
	}

	// ---- Load config.yaml (optional) ----
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("config load failed; proceeding with defaults and flags")
		cfg = config.Default()
	}

	// ---- Flags given explicitly win over the file ----
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "id":
			cfg.ID = *id
		case "width":
			cfg.Width = *width
		case "height":
			cfg.Height = *height
		case "refresh":
			cfg.RefreshHz = *refresh
		case "backend":
			cfg.Backend = *backend
		case "chip":
			cfg.Chip = *chip
		case "mirror":
			cfg.Mirror.Driver = *mirrorDrv
		case "addr":
			cfg.Control.Addr = *addr
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if *saveConfig {
		if err := config.Save(*configPath, cfg); err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("config save failed")
		}
		log.Info().Str("path", *configPath).Msg("config saved")
		return
	}

	// ---- Hardware ----
	lines, err := line.Open(cfg.Backend, cfg.Chip)
	if err != nil {
		log.Warn().Err(err).
			Str("backend", cfg.Backend).
			Str("chip", cfg.Chip).
			Msg("gpio init failed; falling back to SIM")
		lines = line.NewSim()
	}

	opts := []display.Option{
		display.WithLines(lines),
		display.WithWaiter(cfg.Waiter()),
		display.WithSettle(cfg.Settle()),
		display.WithQueue(cfg.Queue),
	}
	sink, err := mirror.Open(cfg.Mirror.Driver, cfg.Mirror.Port, cfg.Width*cfg.Height, cfg.MirrorInterval())
	switch {
	case err != nil:
		log.Warn().Err(err).Str("driver", cfg.Mirror.Driver).Msg("mirror init failed; running without it")
	case sink != nil:
		opts = append(opts, display.WithMirror(sink))
		defer sink.Close()
	}

	r, err := display.New(cfg.ID, cfg.Width, cfg.Height).Start(cfg.RefreshHz, cfg.PinConfig(), opts...)
	if err != nil {
		log.Fatal().Err(err).Str("display", cfg.ID).Msg("display start failed")
	}

	for _, path := range cfg.Animations {
		a, err := sequence.ParseFile(path)
		if err == nil {
			err = r.AddAnimation(a)
		}
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("animation skipped")
		}
	}

	// ---- Control ----
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reqs := make(chan control.Request)

	var srv *http.Server
	if cfg.Control.Addr != "" {
		srv = &http.Server{
			Addr:         cfg.Control.Addr,
			Handler:      withCORS(control.NewServer(reqs).Routes()),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.Control.Addr).Msg("HTTP server starting")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("http server crashed")
			}
		}()
	}

	go func() {
		if err := control.Console(ctx, os.Stdin, os.Stdout, reqs); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("console closed")
		}
	}()

	// ---- Run until stopped or signalled ----
	if _, err := control.NewSession(r).Serve(ctx, reqs); err != nil {
		log.Error().Err(err).Str("display", cfg.ID).Msg("shutdown failed")
	}
	if srv != nil {
		_ = srv.Close()
	}
	log.Info().Str("display", cfg.ID).Msg("exited")
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		h.ServeHTTP(w, r)
	})
}
