package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tubechat/tubechat/internal/ai"
	"github.com/tubechat/tubechat/internal/chat"
	"github.com/tubechat/tubechat/internal/config"
	"github.com/tubechat/tubechat/internal/db"
	"github.com/tubechat/tubechat/internal/extract"
	"github.com/tubechat/tubechat/internal/httpapi"
	"github.com/tubechat/tubechat/internal/innertube"
	"github.com/tubechat/tubechat/internal/relay"
	"github.com/tubechat/tubechat/internal/store/keystore"
	"github.com/tubechat/tubechat/internal/store/redisstore"
)

func main() {
	cfg := config.Load()

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	keys := keystore.New(gdb)
	if err := keys.AutoMigrate(); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	sessions := redisstore.New(rdb, cfg.SessionTTL)

	// Provider registry. The openai factory reads the credential from the
	// durable store on every call so a newly entered key takes effect
	// without a restart.
	reg := ai.NewRegistry()
	reg.Register("openai", func(ctx context.Context, model string) (ai.Provider, error) {
		key, err := keys.APIKey(ctx)
		if err != nil {
			return nil, err
		}
		if key == "" {
			return nil, chat.ErrNoCredential
		}
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OpenAIModel
		}
		return ai.NewOpenAIProvider(cfg.OpenAIBaseURL, key, m), nil
	})
	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
	})

	chatSvc := chat.NewService(keys, sessions, reg, cfg.AIProvider, "")
	rly := relay.New(cfg.RelayTimeout)
	extractor := extract.NewOrchestrator(innertube.NewClient(cfg.LocaleHL, cfg.LocaleGL))

	router := httpapi.NewRouter(cfg, keys, rly, chatSvc, extractor)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("panel listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("panel shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	_ = rdb.Close()
}
