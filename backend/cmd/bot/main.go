package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"mindgraph/backend/internal/discord"
	"mindgraph/backend/internal/services"
	"mindgraph/backend/pkg/config"
	"mindgraph/backend/pkg/logger"
)

// botIntents are the gateway intents the bot needs: guild and DM messages plus their content
const botIntents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsMessageContent

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting Discord bot...")

	if cfg.DiscordBotToken == "" {
		log.Fatal("DISCORD_BOT_TOKEN is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sm, err := services.NewServiceManager(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer sm.StopAll()
	sm.StartAll(ctx)

	dg, err := newSession(cfg, sm, log)
	if err != nil {
		log.Error("Failed to create Discord session", zap.Error(err))
		return
	}

	// Open connection
	if err := dg.Open(); err != nil {
		log.Error("Failed to open Discord connection", zap.Error(err))
		return
	}
	defer dg.Close()

	log.Info("Discord bot is running. Press CTRL-C to exit.",
		zap.String("prefix", cfg.DiscordPrefix),
	)

	<-ctx.Done()
	log.Info("Shutting down Discord bot...")
}

// newSession creates the Discord session with the message handler attached
func newSession(cfg *config.Config, sm *services.ServiceManager, log *zap.Logger) (*discordgo.Session, error) {
	dg, err := discordgo.New("Bot " + cfg.DiscordBotToken)
	if err != nil {
		return nil, err
	}

	handler := discord.NewHandler(sm.Orchestrator, cfg.DiscordPrefix, log)
	dg.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		handler.HandleMessage(s, m)
	})
	dg.Identify.Intents = botIntents

	log.Info("Discord bot intents configured",
		zap.Bool("guild_messages", (dg.Identify.Intents&discordgo.IntentsGuildMessages) != 0),
		zap.Bool("direct_messages", (dg.Identify.Intents&discordgo.IntentsDirectMessages) != 0),
		zap.Bool("message_content", (dg.Identify.Intents&discordgo.IntentsMessageContent) != 0),
	)
	return dg, nil
}
