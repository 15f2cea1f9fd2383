// Command agent is a headless call endpoint. It connects to the signaling
// server as one user, answers every incoming call and can place one call on
// startup.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Wyydra/yacall/internal/adapter/driven/media/devices"
	"github.com/Wyydra/yacall/internal/adapter/driven/media/pion"
	signalws "github.com/Wyydra/yacall/internal/adapter/driven/signaling/ws"
	"github.com/Wyydra/yacall/internal/config"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/Wyydra/yacall/internal/core/service"
	"github.com/Wyydra/yacall/internal/core/store"
	"github.com/rs/zerolog/log"
)

func main() {
	user := flag.String("user", "", "user id to register as")
	name := flag.String("name", "", "display name sent with call requests")
	callee := flag.String("call", "", "user id to call once connected")
	synthetic := flag.Bool("synthetic", false, "send generated media instead of capturing devices")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	config.SetupLogger(cfg.LogLevel, os.Stderr)

	if *user == "" {
		log.Fatal().Msg("-user is required")
	}
	if *name == "" {
		*name = *user
	}

	var (
		media  port.MediaDevices
		codecs pion.CodecSetup
	)
	if *synthetic {
		media = pion.NewSyntheticDevices()
		codecs = pion.DefaultCodecs
	} else {
		dev, err := devices.New()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to prepare capture devices")
		}
		media = dev
		codecs = dev.RegisterCodecs
	}

	factory, err := pion.NewFactory(codecs)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create WebRTC API")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	transport, err := signalws.Dial(dialCtx, cfg.Signaling.URL, domain.UserID(*user))
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.Signaling.URL).Msg("Failed to reach signaling server")
	}
	defer transport.Close()

	orch := service.NewOrchestrator(service.OrchestratorConfig{
		LocalUserID: domain.UserID(*user),
		DisplayName: *name,
		ICE: port.ICEConfig{
			URLs:              cfg.ICE.URLs,
			CandidatePoolSize: cfg.ICE.CandidatePoolSize,
		},
		GraceWindow: cfg.Call.OtherPartyGrace,
	}, store.New(), transport, factory, media)

	orch.OnError(func(err error) {
		log.Error().Err(err).Msg("Call error")
	})
	orch.OnConnectionState(func(s domain.ConnectionState) {
		log.Info().Str("state", string(s)).Msg("Connection state")
	})
	orch.OnRemoteTrack(func(t port.RemoteTrack) {
		log.Info().Str("track_id", t.ID()).Str("stream_id", t.StreamID()).Msg("Receiving remote media")
	})
	orch.OnIncoming(func(s domain.CallState) {
		caller := ""
		if s.CallerName != nil {
			caller = *s.CallerName
		}
		log.Info().Str("caller", caller).Msg("Answering incoming call")
		// OnIncoming handlers run under the operation lock Accept needs.
		go func() {
			if err := orch.Accept(ctx); err != nil {
				log.Error().Err(err).Msg("Accept failed")
			}
		}()
	})

	if err := orch.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start call orchestrator")
	}
	log.Info().Str("user_id", *user).Msg("Agent ready")

	if *callee != "" {
		if err := orch.Call(ctx, domain.UserID(*callee), *callee); err != nil {
			log.Error().Err(err).Str("callee", *callee).Msg("Call failed")
		}
	}

	select {
	case <-ctx.Done():
	case <-transport.Done():
		log.Warn().Msg("Signaling connection lost")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	orch.Stop(shutdownCtx)
	log.Info().Msg("Agent exited")
}
