package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kryote/support-chat/internal/ai"
	"github.com/kryote/support-chat/internal/chat"
	"github.com/kryote/support-chat/internal/config"
	"github.com/kryote/support-chat/internal/db"
	"github.com/kryote/support-chat/internal/httpapi"
	"github.com/kryote/support-chat/internal/httpapi/handlers"
	"github.com/kryote/support-chat/internal/identity"
	"github.com/kryote/support-chat/internal/logger"
	"github.com/kryote/support-chat/internal/store/rabbitmq"
	"github.com/kryote/support-chat/internal/store/redisstore"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatal("db connect failed", "error", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		log.Fatal("db migrate failed", "error", err)
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	rabbit, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatal("rabbit connect failed", "error", err)
	}
	defer rabbit.Close()

	completion := ai.NewRAGClient(cfg.RAGBaseURL, cfg.RAGTimeout)
	titler := ai.NewOpenAITitler(cfg.OpenAIAPIKey, cfg.TitleModel)

	chatSvc := chat.NewService(chat.NewRepo(gdb), completion, titler, log, chat.ServiceOptions{
		ContextWindowSize: cfg.ChatContextWindowSize,
		PageSize:          cfg.HistoryPageSize,
		PageMax:           cfg.HistoryPageMax,
		CompletionTimeout: cfg.RAGTimeout,
		TitleTimeout:      cfg.TitleTimeout,
	})

	resolver := identity.NewResolver(
		identity.NewStore(gdb),
		identity.NewMigrator(gdb),
		log,
		cfg.JWTSecret,
		cfg.CookieTTL,
	)
	verifier := identity.NewJWTAssertionVerifier(cfg.AuthSecret, cfg.AuthIssuer, cfg.AuthAudience)

	h := handlers.NewHandler(cfg, chatSvc, resolver, verifier, rabbit, log)
	router := httpapi.NewRouter(cfg, h, resolver, rds, log)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("server started", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
}
