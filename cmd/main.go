package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/do/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/doomhound188/dorte/internal/audio"
	"github.com/doomhound188/dorte/internal/bot"
	"github.com/doomhound188/dorte/internal/chat"
	"github.com/doomhound188/dorte/internal/config"
	"github.com/doomhound188/dorte/internal/keepalive"
	"github.com/doomhound188/dorte/internal/logging"
	"github.com/doomhound188/dorte/internal/player"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting", zap.String("env", cfg.Env), zap.Bool("chat", cfg.Chat.Enabled()))

	if err := run(cfg, log); err != nil {
		log.Error("bot stopped with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	injector := setupDI(ctx, cfg, log)

	b, err := do.Invoke[*bot.Bot](injector)
	if err != nil {
		return fmt.Errorf("resolve bot: %w", err)
	}
	manager := do.MustInvoke[*player.Manager](injector)
	reporter := do.MustInvoke[*bot.Reporter](injector)
	server := do.MustInvoke[*keepalive.Server](injector)

	// stop playback and flush reports before the gateway goes away
	b.OnClose(manager.Close)
	b.OnClose(reporter.Wait)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Run(gctx) })
	g.Go(func() error { return server.ListenAndServe(gctx) })

	err = g.Wait()
	log.Info("shutting down")
	// no-ops when Run already closed them; covers a failed session open
	manager.Close()
	reporter.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func setupDI(ctx context.Context, cfg *config.Config, log *zap.Logger) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, log)

	do.Provide(injector, func(i do.Injector) (*discordgo.Session, error) {
		c := do.MustInvoke[*config.Config](i)
		session, err := discordgo.New("Bot " + c.DiscordToken)
		if err != nil {
			return nil, fmt.Errorf("create discord session: %w", err)
		}
		return session, nil
	})
	do.Provide(injector, func(i do.Injector) (*audio.YouTube, error) {
		c := do.MustInvoke[*config.Config](i)
		return audio.NewYouTube(c.YouTubeHTTPTimeout, do.MustInvoke[*zap.Logger](i)), nil
	})
	do.Provide(injector, func(i do.Injector) (*audio.Voice, error) {
		c := do.MustInvoke[*config.Config](i)
		session := do.MustInvoke[*discordgo.Session](i)
		return audio.NewVoice(session, c.EncodeBitrate, do.MustInvoke[*zap.Logger](i)), nil
	})
	do.Provide(injector, func(i do.Injector) (*bot.Reporter, error) {
		session := do.MustInvoke[*discordgo.Session](i)
		return bot.NewReporter(session, do.MustInvoke[*zap.Logger](i)), nil
	})
	do.Provide(injector, func(i do.Injector) (*player.Manager, error) {
		c := do.MustInvoke[*config.Config](i)
		return player.NewManager(
			do.MustInvoke[*audio.Voice](i),
			do.MustInvoke[*audio.YouTube](i),
			do.MustInvoke[*bot.Reporter](i),
			player.Config{IdleTimeout: c.PlayerIdleTimeout},
			do.MustInvoke[*zap.Logger](i).Named("player"),
		), nil
	})
	do.Provide(injector, func(i do.Injector) (*chat.Assistant, error) {
		c := do.MustInvoke[*config.Config](i)
		backend, err := chat.NewGemini(ctx, c.Chat.APIKey, c.Chat.Model)
		if err != nil {
			return nil, err
		}
		return chat.New(backend, chat.Config{
			OwnerID:       c.Chat.OwnerID,
			BotName:       c.Chat.BotName,
			Language:      c.Chat.Language,
			SessionTTL:    c.Chat.SessionTTL,
			MaxSessions:   c.Chat.MaxSessions,
			RatePerMinute: c.Chat.RatePerMinute,
			Burst:         c.Chat.Burst,
		}, do.MustInvoke[*zap.Logger](i)), nil
	})
	do.Provide(injector, func(i do.Injector) (*bot.Bot, error) {
		c := do.MustInvoke[*config.Config](i)
		deps := bot.Deps{
			Player:   do.MustInvoke[*player.Manager](i),
			Resolver: do.MustInvoke[*audio.YouTube](i),
		}
		if c.Chat.Enabled() {
			assistant, err := do.Invoke[*chat.Assistant](i)
			if err != nil {
				return nil, fmt.Errorf("create chat assistant: %w", err)
			}
			deps.Chat = assistant
		}
		session := do.MustInvoke[*discordgo.Session](i)
		return bot.New(session, c, deps, do.MustInvoke[*zap.Logger](i)), nil
	})
	do.Provide(injector, func(i do.Injector) (*keepalive.Server, error) {
		c := do.MustInvoke[*config.Config](i)
		manager := do.MustInvoke[*player.Manager](i)
		return keepalive.NewServer(c.Addr(), manager, do.MustInvoke[*zap.Logger](i)), nil
	})

	return injector
}
