package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/docchat/backend/internal/app"
	"github.com/zhouzirui/docchat/backend/internal/config"
	"github.com/zhouzirui/docchat/backend/internal/handler"
	"github.com/zhouzirui/docchat/backend/internal/service/chat"
	"github.com/zhouzirui/docchat/backend/internal/service/ingest"
	"github.com/zhouzirui/docchat/backend/internal/service/resolver"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	if err := run(ctx); err != nil {
		stop()
		log.Fatalf("%v", err)
	}
}

// run owns every resource it opens; its deferred closes also run when startup fails.
func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize document store: %w", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	turnResolver, err := application.NewResolver(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize resolver: %w", err)
	}

	chatService := chat.NewService()
	dispatcher := resolver.NewDispatcher(turnResolver, chatService)
	defer dispatcher.Close()

	if cfg.Ingest.Watch {
		startWatcher(ctx, application.Ingest, cfg.Ingest.UploadDir)
	}

	deps := handler.Dependencies{
		Chat:           chatService,
		Notifier:       dispatcher,
		Documents:      application.Ingest,
		Search:         application.Assembler,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	if application.Speech != nil {
		deps.Speech = application.Speech
		log.Println("Speech service initialized successfully")
	} else {
		log.Println("WHISPER_URL 未配置，跳过语音功能初始化")
	}

	return startServer(ctx, cfg.Server, handler.NewRouter(deps))
}

func startWatcher(ctx context.Context, svc *ingest.Service, dir string) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("warning: cannot create upload dir %s: %v", dir, err)
		return
	}
	watcher, err := ingest.NewWatcher(svc, 0)
	if err != nil {
		log.Printf("warning: failed to start folder watcher: %v", err)
		return
	}
	go func() {
		defer watcher.Close()
		if err := watcher.Run(ctx, dir); err != nil {
			log.Printf("[ingest] watcher stopped: %v", err)
		}
	}()
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("docchat backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
