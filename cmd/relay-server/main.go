package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/orchestra-mcp/relay/config"
	"github.com/orchestra-mcp/relay/src/bridge"
	"github.com/orchestra-mcp/relay/src/gateway"
	"github.com/orchestra-mcp/relay/src/hub"
	"github.com/orchestra-mcp/relay/src/server"
	"github.com/orchestra-mcp/relay/src/service"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (defaults if empty)")
	listen := flag.String("listen", "", "override server.listen_addr")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	if *listen != "" {
		cfg.Server.ListenAddr = *listen
	}

	logger := newLogger(cfg.Log)
	logger.Info().
		Str("listen", cfg.Server.ListenAddr).
		Int("queue_size", cfg.Router.QueueSize).
		Dur("write_timeout", cfg.Router.WriteTimeout).
		Bool("exclude_sender", cfg.Router.ExcludeSender).
		Msg("starting relay")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := hub.New(hub.Config{
		QueueSize:         cfg.Router.QueueSize,
		WriteTimeout:      cfg.Router.WriteTimeout,
		FanoutConcurrency: cfg.Router.FanoutConcurrency,
		ExcludeSender:     cfg.Router.ExcludeSender,
	}, hub.NewRegistry(), logger)
	go h.Run()

	srv := server.New(server.Config{
		Addr:           cfg.Server.ListenAddr,
		MaxConnections: cfg.Server.MaxConnections,
		MaxFieldSize:   cfg.Server.MaxFieldSize,
	}, h, logger)
	ln, err := srv.Listen()
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot start relay")
	}

	var rb *bridge.RedisBridge
	if cfg.Bridge.Enabled {
		rb = startBridge(ctx, h, cfg.Server.MaxFieldSize, logger)
	}

	svc := service.New(h, cfg.Admin.ServerName, logger)
	gw := gateway.New(gateway.Config{
		Path:            cfg.WebSocket.Path,
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		MaxConnections:  cfg.Server.MaxConnections,
		MaxFieldSize:    cfg.Server.MaxFieldSize,
	}, svc, logger)

	var wsServer *fasthttp.Server
	if cfg.WebSocket.Enabled {
		wsServer = &fasthttp.Server{Handler: gw.FastHTTPHandler(), Name: "relay"}
		go func() {
			logger.Info().Str("addr", cfg.WebSocket.ListenAddr).Str("path", cfg.WebSocket.Path).Msg("websocket listening")
			if err := wsServer.ListenAndServe(cfg.WebSocket.ListenAddr); err != nil {
				logger.Error().Err(err).Msg("websocket server stopped")
			}
		}()
	}

	var admin *fiber.App
	if cfg.Admin.Enabled {
		admin = gw.NewAdminApp()
		go func() {
			logger.Info().Str("addr", cfg.Admin.ListenAddr).Msg("admin api listening")
			if err := admin.Listen(cfg.Admin.ListenAddr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
				logger.Error().Err(err).Msg("admin api stopped")
			}
		}()
	}

	if err := srv.Serve(ctx, ln); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("accept loop failed")
	}

	shutdown(h, rb, wsServer, admin, logger)
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// startBridge tries to start the Redis pub/sub bridge.
// If Redis is not reachable, the relay runs standalone.
func startBridge(ctx context.Context, h *hub.Hub, maxField int, logger zerolog.Logger) *bridge.RedisBridge {
	rc := bridge.RedisConfigFromEnv()
	rc.MaxFieldSize = maxField
	rb := bridge.NewRedisBridge(rc, h, logger)

	startCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rb.Start(startCtx); err != nil {
		logger.Warn().Err(err).Msg("redis bridge unavailable, running standalone")
		_ = rb.Stop()
		return nil
	}
	h.SetBridge(rb)
	logger.Info().Str("redis_addr", rc.Addr).Msg("redis bridge connected")
	return rb
}

func shutdown(h *hub.Hub, rb *bridge.RedisBridge, ws *fasthttp.Server, admin *fiber.App, logger zerolog.Logger) {
	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if admin != nil {
		if err := admin.ShutdownWithContext(ctx); err != nil {
			logger.Error().Err(err).Msg("admin shutdown error")
		}
	}
	if ws != nil {
		if err := ws.ShutdownWithContext(ctx); err != nil {
			logger.Error().Err(err).Msg("websocket shutdown error")
		}
	}
	if rb != nil {
		if err := rb.Stop(); err != nil {
			logger.Error().Err(err).Msg("bridge stop error")
		}
	}
	h.Stop()
	h.DisconnectAll()
	logger.Info().Msg("relay stopped")
}
