package main

import (
	"context"
	"fmt"
	"time"

	"jarvis-bot/internal/ai"
	"jarvis-bot/internal/bot"
	"jarvis-bot/internal/config"
	"jarvis-bot/internal/database"
	"jarvis-bot/internal/engine"
	"jarvis-bot/internal/intent"
	"jarvis-bot/internal/invites"
	"jarvis-bot/internal/memory"
	"jarvis-bot/internal/moderation"
	"jarvis-bot/internal/rag"
	"jarvis-bot/internal/responder"
	"jarvis-bot/internal/roles"
	"jarvis-bot/internal/schedule"
	"jarvis-bot/internal/state"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const recallLimit = 3

// openStore opens the configured memory backend. With postgres and a
// completion key, entries are embedded for semantic recall.
func openStore() (memory.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := database.NewDB(cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return db, nil
	default:
		store, err := memory.OpenSQLite(cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open memory store: %w", err)
		}
		return store, nil
	}
}

func runBot(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	aiService := ai.NewAIService(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	if !aiService.Configured() {
		logger.Warn("OPENAI_API_KEY not set, conversation replies are disabled")
	}
	if db, ok := store.(*database.DB); ok && aiService.Configured() {
		db.SetEmbedder(aiService)
	}

	discord, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("error creating Discord session: %w", err)
	}
	me, err := discord.User("@me")
	if err != nil {
		return fmt.Errorf("error getting bot user: %w", err)
	}

	classifier, err := intent.NewClassifier(intent.Config{
		BotID:                me.ID,
		OwnerID:              cfg.OwnerID,
		TriggerWord:          cfg.TriggerWord,
		ReactivationPhrases:  cfg.ReactivationPhrases,
		PrimaryGuildPhrase:   cfg.PrimaryGuildPhrase,
		ConfidentialPatterns: cfg.ConfidentialPatterns,
		WatchedKeywords:      cfg.WatchedKeywords,
		FollowUpWindow:       cfg.FollowUpWindow,
	})
	if err != nil {
		return err
	}

	st := state.NewStore()
	guild := bot.NewGuild(discord)
	output := bot.NewOutput(discord)
	logChannels := bot.NewLogChannels(output, cfg.ModLogChannel, cfg.InviteLogChannel)

	executor := moderation.NewExecutor(guild, output, logChannels, moderation.Config{
		BanDeleteDays: cfg.BanDeleteDays,
		DefaultMute:   cfg.DefaultMute,
	}, logger.Named("moderation"))

	conversation := responder.New(aiService, store, st, output, rag.NewRetriever(store, recallLimit), responder.Config{
		BotID:            me.ID,
		OwnerID:          cfg.OwnerID,
		Persona:          cfg.Persona,
		OwnerPrefix:      cfg.OwnerPrefix,
		DisclosureSuffix: cfg.DisclosureSuffix,
		Window:           cfg.MemoryWindow,
		Stream:           cfg.StreamReplies,
		AssistCooldown:   cfg.AssistCooldown,
	}, logger.Named("responder"))

	dispatcher := engine.NewDispatcher(classifier, st, store, executor, conversation, output, cancel, logger.Named("engine"))
	tracker := invites.NewTracker(st, guild, logChannels, logger.Named("invites"))

	handler := bot.NewBotHandler(ctx, dispatcher, tracker, logger)
	handler.Register(discord)

	discord.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildInvites |
		discordgo.IntentsMessageContent

	scheduler := schedule.New(logger.Named("schedule"))
	refresher := roles.NewRefresher(store, guild, output, cfg.RoleListChannel, logger.Named("roles"))
	if err := scheduler.Add("role-list", cfg.RoleRefreshSpec, refresher.Run); err != nil {
		return err
	}

	if err := discord.Open(); err != nil {
		return fmt.Errorf("error opening Discord connection: %w", err)
	}
	defer discord.Close()
	scheduler.Start()

	logger.Info("Jarvis is online",
		zap.String("bot", me.ID),
		zap.String("trigger", cfg.TriggerWord),
		zap.String("store", cfg.StoreDriver),
		zap.Bool("stream", cfg.StreamReplies),
	)

	<-ctx.Done()
	logger.Info("Shutting down Jarvis...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	scheduler.Stop(stopCtx)
	return nil
}
