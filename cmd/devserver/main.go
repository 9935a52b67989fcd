// Command devserver runs a single-process chat server for local
// development: the realtime websocket channel plus the history endpoint
// the client core speaks to.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tasklane/chatkit/internal/devserver/config"
	"github.com/tasklane/chatkit/internal/devserver/handler"
	"github.com/tasklane/chatkit/internal/devserver/hub"
	"github.com/tasklane/chatkit/internal/devserver/service"
	"github.com/tasklane/chatkit/internal/devserver/store"
	"github.com/tasklane/chatkit/pkg/jwt"
	"github.com/tasklane/chatkit/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(log.Config{
		Level:     cfg.Log.Level,
		Pretty:    cfg.Log.Pretty,
		Component: "devserver",
	})
	l := log.L()

	history, err := newHistoryStore(cfg)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to initialize history store")
	}
	defer history.Close()
	l.Info().Str("backend", cfg.History.Backend).Msg("history store ready")

	tokens := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.Duration, cfg.JWT.Issuer)

	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run()

	chatSvc := service.NewChatService(wsHub, tokens, history)
	wsHandler := handler.NewWSHandler(wsHub, chatSvc, cfg.WebSocket)
	httpHandler := handler.NewHTTPHandler(history, tokens)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(log.GinMiddleware(l), gin.Recovery())
	httpHandler.RegisterRoutes(router)
	router.GET("/chat/ws", func(c *gin.Context) {
		wsHandler.HandleWebSocket(c.Writer, c.Request)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		l.Info().Str("addr", server.Addr).Msg("devserver listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info().Msg("shutting down devserver")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Warn().Err(err).Msg("server forced to shutdown")
	}

	l.Info().Msg("devserver stopped")
}

func newHistoryStore(cfg *config.Config) (store.HistoryStore, error) {
	switch cfg.History.Backend {
	case "redis":
		return store.NewRedisStore(cfg.Redis, cfg.History.KeyPrefix, cfg.History.MaxPerRoom)
	default:
		return store.NewMemoryStore(cfg.History.MaxPerRoom), nil
	}
}
