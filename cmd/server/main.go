package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"image.gen/config"
	"image.gen/internal/api"
	"image.gen/internal/gate"
	"image.gen/internal/imagegen"
	"image.gen/internal/logging"
	"image.gen/internal/naming"
	"image.gen/internal/openai"
	"image.gen/internal/platform"
	"image.gen/internal/store"
	"image.gen/web"

	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	slog.SetDefault(logger)

	st, err := initStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	pages, err := web.Pages()
	if err != nil {
		return fmt.Errorf("templates: %w", err)
	}

	client := openai.NewClient(cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout, openai.WithImageModel(cfg.OpenAI.ImageModel))
	probe := platform.NewProbe(platform.DefaultSource, cfg.Platform.Substring, logger)
	driver := imagegen.NewDriver(
		client,
		naming.NewSynthesizer(client, cfg.OpenAI.ChatModel, cfg.Output.Dir, time.Now),
		imagegen.SavePolicy(cfg.Output.SaveMode, probe.OnLocal),
		imagegen.NewWriter(""),
		logger,
		imagegen.WithGate(cfg.Gate.Enabled),
	)

	h := api.NewHandler(driver, gate.New(st, cfg.Secrets.Password, cfg.Session.TTL), cfg, pages, logger)
	router := api.SetupRouter(h, cfg)

	logger.Info("server starting",
		"addr", cfg.Addr(),
		"store", cfg.Store.Type,
		"save_mode", cfg.Output.SaveMode,
		"output_dir", cfg.Output.Dir,
		"gate", cfg.Gate.Enabled,
	)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func initStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Type {
	case "redis":
		st, err := store.NewRedisStore(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		return st, nil
	default:
		return store.NewMemoryStore(time.Minute), nil
	}
}
