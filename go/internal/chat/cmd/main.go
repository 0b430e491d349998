package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leaguechat/go/clients/chatapi_client"
	"github.com/mcdev12/leaguechat/go/internal/chat/debug"
	"github.com/mcdev12/leaguechat/go/internal/chat/gateway"
	"github.com/mcdev12/leaguechat/go/internal/chat/gesture"
	"github.com/mcdev12/leaguechat/go/internal/chat/metrics"
	"github.com/mcdev12/leaguechat/go/internal/chat/notify"
	"github.com/mcdev12/leaguechat/go/internal/chat/session"
	"github.com/mcdev12/leaguechat/go/internal/chatconfig"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("user_id", cfg.UserID).
		Str("socket_url", cfg.SocketURL).
		Str("api_url", cfg.APIBaseURL).
		Str("room_id", cfg.RoomID).
		Msg("starting league chat")

	clock := clockwork.NewRealClock()
	credentials := gateway.FileCredentialProvider{Path: cfg.TokenFile, Clock: clock}
	api := chatapi_client.NewChatApiClient(cfg.APIBaseURL, credentials.Credential)
	collector := metrics.NewPrometheusCollector(prometheus.DefaultRegisterer)

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.InitialBackoff = cfg.InitialBackoff
	gatewayConfig.MaxBackoff = cfg.MaxBackoff
	gatewayConfig.MaxReconnects = cfg.MaxReconnects
	gatewayConfig.EmitRate = cfg.EmitRate
	gatewayConfig.EmitBurst = cfg.EmitBurst
	cm := gateway.NewConnectionManager(
		gatewayConfig,
		gateway.NewWebsocketDialer(gateway.DefaultWebsocketConfig(cfg.SocketURL)),
		clock,
		collector,
	)

	sessionConfig := session.DefaultConfig(cfg.UserID, cfg.Name())
	sessionConfig.PageSize = cfg.PageSize
	sessionConfig.PendingTimeout = cfg.PendingTimeout
	sessionConfig.TypingStopDelay = cfg.TypingStopDelay
	sessionConfig.TypingTTL = cfg.TypingTTL
	s := session.New(sessionConfig, cm, api, clock, collector)
	s.Attach(cm)

	con := &console{session: s, out: os.Stdout, room: cfg.RoomID, timeout: 10 * time.Second}
	con.recognizer = gesture.NewRecognizer(clock, cfg.LongPressDelay, con.onLongPress)
	s.OnUpdate(func(u session.Update) {
		log.Debug().Str("kind", string(u.Kind)).Str("room_id", u.RoomID).Msg("state updated")
	})

	var source *notify.NATSSource
	if cfg.NATSURL != "" {
		natsConfig := notify.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		source, err = notify.ConnectNATSSource(s.Feed(), cfg.UserID, natsConfig)
		if err != nil {
			log.Error().Err(err).Msg("notifications unavailable")
		} else {
			source.OnChange(s.FeedChanged)
			if err := source.Start(); err != nil {
				log.Error().Err(err).Msg("failed to subscribe to notifications")
			}
		}
	}

	var server *http.Server
	if cfg.DebugAddr != "" {
		server = debug.NewServer(cfg.DebugAddr, debug.NewHandler(s, prometheus.DefaultGatherer))
		go func() {
			log.Info().Str("addr", server.Addr).Msg("debug server starting")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("debug server failed")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cm.Connect(ctx, credentials); err != nil {
		log.Fatal().Err(err).Msg("failed to connect")
	}
	if cfg.RoomID != "" {
		openCtx, openCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := s.OpenRoom(openCtx, cfg.RoomID); err != nil {
			log.Error().Err(err).Str("room_id", cfg.RoomID).Msg("failed to open room")
		}
		openCancel()
		con.printRoom()
	}

	lines := make(chan string)
	go readLines(lines)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

loop:
	for {
		select {
		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if err := con.run(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					break loop
				}
				fmt.Fprintf(os.Stdout, "error: %v\n", err)
			}
		}
	}

	cancel()
	con.recognizer.Close()
	cm.Disconnect()
	s.Close()

	if source != nil {
		if err := source.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop notifications")
		}
	}
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("debug server shutdown failed")
		}
	}

	log.Info().Msg("league chat shutdown complete")
}

func loadConfig(path string) (chatconfig.Config, error) {
	cfg := chatconfig.NewConfigFromEnv()
	if path != "" {
		var err error
		if cfg, err = chatconfig.LoadFile(path); err != nil {
			return cfg, err
		}
	}
	return cfg, cfg.Validate()
}

func readLines(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}
