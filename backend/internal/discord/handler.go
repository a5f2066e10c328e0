package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"mindgraph/backend/internal/agent"
	"mindgraph/backend/internal/state"
	apperrors "mindgraph/backend/pkg/errors"
)

// DefaultPrefix starts a command in guild channels
const DefaultPrefix = "!mind"

// OwnerPrefix namespaces Discord users among map owners
const OwnerPrefix = "discord:"

const turnTimeout = 2 * time.Minute

// Service is the part of the orchestrator the bot drives
type Service interface {
	RunTurn(ctx context.Context, req agent.TurnRequest) (*agent.TurnResult, error)
	CreateMap(ctx context.Context, ownerID string) (*state.MapRecord, error)
	ListMaps(ctx context.Context, ownerID string) ([]state.MapSummary, error)
}

// Sender posts messages to a channel. *discordgo.Session satisfies it.
type Sender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Handler handles Discord message processing
type Handler struct {
	svc    Service
	prefix string
	logger *zap.Logger

	// ensureMu serializes lazy map creation per owner
	ensureMu sync.Mutex
}

// NewHandler creates a new Discord message handler
func NewHandler(svc Service, prefix string, logger *zap.Logger) *Handler {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		svc:    svc,
		prefix: prefix,
		logger: logger,
	}
}

// HandleMessage is the discordgo MessageCreate callback
func (h *Handler) HandleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	botID := ""
	if s.State != nil && s.State.User != nil {
		botID = s.State.User.ID
	}

	ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
	defer cancel()
	h.Handle(ctx, s, botID, m.Message)
}

// Handle processes one message. Only DMs, prefixed messages and mentions are answered.
func (h *Handler) Handle(ctx context.Context, sender Sender, botID string, m *discordgo.Message) {
	if m == nil || m.Author == nil || m.Author.Bot || m.Author.ID == botID {
		return
	}

	content, ok := h.extractCommand(m, botID)
	if !ok || content == "" {
		return
	}

	owner := OwnerPrefix + m.Author.ID
	log := h.logger.With(
		zap.String("owner_id", owner),
		zap.String("channel_id", m.ChannelID),
	)

	switch strings.ToLower(content) {
	case "new":
		rec, err := h.svc.CreateMap(ctx, owner)
		if err != nil {
			log.Error("Failed to create map", zap.Error(err))
			h.reply(sender, m.ChannelID, failureMessage(err))
			return
		}
		h.reply(sender, m.ChannelID, fmt.Sprintf("Started a new mind map `%s`.", rec.ID))
		return
	case "maps":
		maps, err := h.svc.ListMaps(ctx, owner)
		if err != nil {
			h.reply(sender, m.ChannelID, failureMessage(err))
			return
		}
		h.reply(sender, m.ChannelID, formatMapList(maps))
		return
	}

	mapID, err := h.currentMap(ctx, owner)
	if err != nil {
		log.Error("Failed to resolve map", zap.Error(err))
		h.reply(sender, m.ChannelID, failureMessage(err))
		return
	}

	log.Info("Processing Discord message", zap.String("map_id", mapID), zap.Bool("is_dm", m.GuildID == ""))

	result, err := h.svc.RunTurn(ctx, agent.TurnRequest{
		MapID:            mapID,
		OwnerID:          owner,
		OwnerDisplayName: displayName(m.Author),
		Text:             content,
	})
	if err != nil {
		kind, _ := apperrors.KindOf(err)
		log.Error("Failed to process message",
			zap.String("map_id", mapID),
			zap.String("error_type", string(kind)),
			zap.Error(err),
		)
		h.reply(sender, m.ChannelID, failureMessage(err))
		return
	}

	h.reply(sender, m.ChannelID, formatResult(result))
}

// extractCommand strips the prefix or bot mention. DMs need neither.
func (h *Handler) extractCommand(m *discordgo.Message, botID string) (string, bool) {
	content := strings.TrimSpace(m.Content)

	if rest, ok := cutPrefix(content, h.prefix); ok {
		return rest, true
	}
	if botID != "" {
		for _, mention := range []string{"<@" + botID + ">", "<@!" + botID + ">"} {
			if strings.HasPrefix(content, mention) {
				return strings.TrimSpace(strings.TrimPrefix(content, mention)), true
			}
		}
	}
	if m.GuildID == "" {
		return content, true
	}
	return "", false
}

// cutPrefix matches prefix only as a whole word, so "!mindful" is not "!mind"
func cutPrefix(content, prefix string) (string, bool) {
	rest, ok := strings.CutPrefix(content, prefix)
	if !ok || prefix == "" {
		return "", false
	}
	if rest != "" && !unicode.IsSpace([]rune(rest)[0]) {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// currentMap returns the owner's most recently updated map, creating one on first use
func (h *Handler) currentMap(ctx context.Context, owner string) (string, error) {
	h.ensureMu.Lock()
	defer h.ensureMu.Unlock()

	maps, err := h.svc.ListMaps(ctx, owner)
	if err != nil {
		return "", err
	}
	if len(maps) > 0 {
		return maps[0].ID, nil
	}

	rec, err := h.svc.CreateMap(ctx, owner)
	if err != nil {
		return "", err
	}
	h.logger.Info("Created first map for Discord user",
		zap.String("owner_id", owner),
		zap.String("map_id", rec.ID),
	)
	return rec.ID, nil
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}
