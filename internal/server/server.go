package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/wahyupambudi/chat-websocket/internal/lifecycle"
	"github.com/wahyupambudi/chat-websocket/internal/router"
	"github.com/wahyupambudi/chat-websocket/internal/server/middleware"
	"github.com/wahyupambudi/chat-websocket/pkg/config"
	"github.com/wahyupambudi/chat-websocket/pkg/state"
	"github.com/wahyupambudi/chat-websocket/pkg/state/statemanager"
	"github.com/wahyupambudi/chat-websocket/pkg/transport"
)

type App struct {
	logger        *slog.Logger
	stateManager  state.Manager
	lifecycle     *lifecycle.Lifecycle
	messageRouter *router.MessageRouter
	wg            sync.WaitGroup
	http          *http.Server
	config        *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config) *App {
	stateManager := statemanager.NewInMemoryManager(logger, cfg.Chat.DefaultGroup)
	lc := lifecycle.New(logger, stateManager, cfg.Chat.DefaultGroup)
	messageRouter := router.NewMessageRouter(logger, stateManager, lc)

	app := &App{
		logger:        logger,
		stateManager:  stateManager,
		lifecycle:     lc,
		messageRouter: messageRouter,
		config:        cfg,
		ctx:           rootCtx,
	}

	mux := http.NewServeMux()
	mux.Handle("/ws",
		middleware.Chain(http.HandlerFunc(app.upgradeHandler),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
			middleware.NewConnectionLimiter(
				logger,
				stateManager.ConnectionCountForIP,
				cfg.Server.RateLimit.MaxConnsPerIP,
			),
		),
	)
	// The browser client bundle is plain static hosting.
	if cfg.Server.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.Server.StaticDir)))
	}

	app.http = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
		BaseContext: func(l net.Listener) context.Context {
			return app.ctx
		},
	}
	return app
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(slog.String("remoteAddr", reqMeta.IP))

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig{
			ReadTimeout:    a.config.Transport.ReadTimeout,
			MaxMessageSize: a.config.Transport.MaxMessageSize,
		},
		a.logger,
	)

	stateConn, err := a.stateManager.RegisterConnection(conn, reqMeta.IP)
	if err != nil {
		connLogger.Error("failed to register connection state", slog.Any("error", err))
		conn.Close(err)
		return
	}

	conn.SetOnMessageHandler(a.messageRouter.HandleMessage)
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		a.lifecycle.HandleDisconnect(id)
	})

	connLogger.Info("connection established", slog.String("connID", stateConn.ID.String()))
	// Queue the snapshot push before the pumps start so history and group
	// lists are the first frames the client sees.
	a.lifecycle.HandleConnect(stateConn)
	conn.Run()
	<-conn.Done()
}

// Shutdown runs the graceful shutdown sequence: stop accepting, close every
// live connection, then wait for the pumps to drain.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	a.logger.Info("closing all active connections...")
	for _, conn := range a.stateManager.Connections() {
		conn.Transport.Close(errors.New("graceful shutdown"))
	}

	a.wg.Wait()
	a.logger.Info("server shut down gracefully")
	return nil
}
