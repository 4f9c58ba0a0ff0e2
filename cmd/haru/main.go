package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haru-ai/haru/common/environment"
	"github.com/haru-ai/haru/common/version"
	"github.com/haru-ai/haru/internal/haru/app"
	"github.com/haru-ai/haru/internal/haru/config"
	"github.com/haru-ai/haru/internal/haru/generate"
	"github.com/haru-ai/haru/internal/haru/httpapi"
	"github.com/haru-ai/haru/internal/haru/llm"
	"github.com/haru-ai/haru/internal/haru/observability"
	"github.com/haru-ai/haru/internal/haru/store"
)

func main() {
	fmt.Printf("Haru Diary Service\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Println()

	observability.Setup(
		environment.StringOr("LOG_LEVEL", "info"),
		environment.StringOr("LOG_FORMAT", "text"),
	)

	cfg := config.Default()
	if path := os.Getenv("HARU_CONFIG"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Secrets come from the environment, never from the config file.
	apiKey, err := environment.RequiredString("LLM_API_KEY")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	imageKey := environment.StringOr("IMAGE_API_KEY", apiKey)
	musicKey := environment.StringOr("MUSIC_API_KEY", "")

	db, err := store.New(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	blobs, err := store.NewBlobStore(cfg.MediaDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open media storage: %v\n", err)
		os.Exit(1)
	}

	provider := llm.New(llm.Config{
		APIKey:  apiKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})
	images := generate.NewImageClient(generate.ImageConfig{
		APIKey:  imageKey,
		BaseURL: cfg.Image.BaseURL,
		Model:   cfg.Image.Model,
		Size:    cfg.Image.Size,
		Timeout: time.Duration(cfg.Image.TimeoutSeconds) * time.Second,
	})
	audio := generate.NewAudioClient(generate.AudioConfig{
		APIKey:          musicKey,
		BaseURL:         cfg.Music.BaseURL,
		DurationSeconds: cfg.Music.DurationSeconds,
		Timeout:         time.Duration(cfg.Music.TimeoutSeconds) * time.Second,
	})

	application := app.New(app.Deps{
		Entries:  db,
		Blobs:    blobs,
		Provider: provider,
		Images:   images,
		Audio:    audio,
		Config:   cfg,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := httpapi.NewServer(cfg.Listen, application)
	if err := server.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start HTTP server: %v\n", err)
		os.Exit(1)
	}
	defer server.Stop()

	// Blocks running background maintenance until shutdown.
	application.Run(ctx)
}
