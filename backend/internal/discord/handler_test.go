package discord

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindgraph/backend/internal/agent"
	"mindgraph/backend/internal/state"
	apperrors "mindgraph/backend/pkg/errors"
)

type sentMessage struct {
	channelID string
	content   string
}

type mockSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (m *mockSender) ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{channelID, content})
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

type mockService struct {
	maps    map[string][]state.MapSummary
	turns   []agent.TurnRequest
	result  *agent.TurnResult
	turnErr error
	created int
}

func newMockService() *mockService {
	return &mockService{maps: make(map[string][]state.MapSummary)}
}

func (s *mockService) RunTurn(ctx context.Context, req agent.TurnRequest) (*agent.TurnResult, error) {
	s.turns = append(s.turns, req)
	if s.turnErr != nil {
		return nil, s.turnErr
	}
	return s.result, nil
}

func (s *mockService) CreateMap(ctx context.Context, ownerID string) (*state.MapRecord, error) {
	s.created++
	id := ownerID + "-map-" + string(rune('0'+s.created))
	s.maps[ownerID] = append([]state.MapSummary{{ID: id, OwnerID: ownerID, UpdatedAt: time.Now()}}, s.maps[ownerID]...)
	return &state.MapRecord{ID: id, OwnerID: ownerID}, nil
}

func (s *mockService) ListMaps(ctx context.Context, ownerID string) ([]state.MapSummary, error) {
	return s.maps[ownerID], nil
}

func message(content, guildID string) *discordgo.Message {
	return &discordgo.Message{
		ChannelID: "chan-1",
		GuildID:   guildID,
		Content:   content,
		Author:    &discordgo.User{ID: "42", Username: "ada", GlobalName: "Ada"},
	}
}

func TestHandle_DirectMessageRunsTurn(t *testing.T) {
	svc := newMockService()
	svc.result = &agent.TurnResult{
		Intent:       state.IntentStoreMemory,
		ResponseText: "Got it!",
		NodesAdded: []state.Node{
			{ID: state.AnchorNodeID, Label: "Ada"},
			{ID: "n1", Label: "Rex"},
		},
		EdgesAdded: []state.Edge{{ID: "e1", Source: state.AnchorNodeID, Target: "n1"}},
	}
	sender := &mockSender{}
	h := NewHandler(svc, "", nil)

	h.Handle(context.Background(), sender, "bot", message("My dog's name is Rex", ""))

	require.Len(t, svc.turns, 1)
	turn := svc.turns[0]
	assert.Equal(t, "discord:42", turn.OwnerID)
	assert.Equal(t, "Ada", turn.OwnerDisplayName)
	assert.Equal(t, "My dog's name is Rex", turn.Text)
	assert.Equal(t, 1, svc.created, "First message creates a map")
	assert.Equal(t, "discord:42-map-1", turn.MapID)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Got it!\n-# Added 1 node, 1 edge: Rex", sender.sent[0].content)

	// Second message reuses the map
	h.Handle(context.Background(), sender, "bot", message("I like jazz", ""))
	assert.Equal(t, 1, svc.created)
	assert.Equal(t, "discord:42-map-1", svc.turns[1].MapID)
}

func TestHandle_GuildRequiresPrefixOrMention(t *testing.T) {
	svc := newMockService()
	svc.result = &agent.TurnResult{ResponseText: "Hi"}
	sender := &mockSender{}
	h := NewHandler(svc, "!mind", nil)

	h.Handle(context.Background(), sender, "bot", message("just chatting", "guild-1"))
	h.Handle(context.Background(), sender, "bot", message("!mindful breathing", "guild-1"))
	assert.Empty(t, svc.turns)

	h.Handle(context.Background(), sender, "bot", message("!mind hello", "guild-1"))
	h.Handle(context.Background(), sender, "bot", message("<@bot> hello again", "guild-1"))
	require.Len(t, svc.turns, 2)
	assert.Equal(t, "hello", svc.turns[0].Text)
	assert.Equal(t, "hello again", svc.turns[1].Text)
}

func TestHandle_IgnoresBots(t *testing.T) {
	svc := newMockService()
	sender := &mockSender{}
	h := NewHandler(svc, "", nil)

	m := message("hello", "")
	m.Author.Bot = true
	h.Handle(context.Background(), sender, "bot", m)

	self := message("hello", "")
	self.Author.ID = "bot"
	h.Handle(context.Background(), sender, "bot", self)

	assert.Empty(t, svc.turns)
	assert.Empty(t, sender.sent)
}

func TestHandle_NewCommand(t *testing.T) {
	svc := newMockService()
	svc.result = &agent.TurnResult{ResponseText: "ok"}
	sender := &mockSender{}
	h := NewHandler(svc, "", nil)

	h.Handle(context.Background(), sender, "bot", message("first", ""))
	h.Handle(context.Background(), sender, "bot", message("!mind new", ""))
	h.Handle(context.Background(), sender, "bot", message("second", ""))

	assert.Equal(t, 2, svc.created)
	assert.Contains(t, sender.sent[1].content, "Started a new mind map")
	assert.Equal(t, "discord:42-map-2", svc.turns[1].MapID)
}

func TestHandle_MapsCommand(t *testing.T) {
	svc := newMockService()
	sender := &mockSender{}
	h := NewHandler(svc, "", nil)

	h.Handle(context.Background(), sender, "bot", message("!mind maps", ""))
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].content, "no mind maps yet")
	assert.Empty(t, svc.turns)
}

func TestHandle_FailureIsAcknowledged(t *testing.T) {
	svc := newMockService()
	svc.turnErr = apperrors.NewTurnFailed("CLASSIFYING", apperrors.ErrorTypeIntentDecode, errors.New("bad json"))
	sender := &mockSender{}
	h := NewHandler(svc, "", nil)

	h.Handle(context.Background(), sender, "bot", message("hello", ""))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Sorry, I couldn't process that (intent_decode).", sender.sent[0].content)
}

func TestHandle_RetryableFailure(t *testing.T) {
	svc := newMockService()
	svc.turnErr = apperrors.NewTurnFailed("CLASSIFYING", apperrors.ErrorTypeDependencyTimeout, context.DeadlineExceeded)
	sender := &mockSender{}
	h := NewHandler(svc, "", nil)

	h.Handle(context.Background(), sender, "bot", message("hello", ""))
	assert.Contains(t, sender.sent[0].content, "Please try again.")
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	content := strings.Repeat("line of text\n", 20)
	chunks := splitMessage(content, 50)
	assert.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 50)
	}
	assert.Equal(t, content, strings.Join(chunks, ""))

	long := strings.Repeat("x", 120)
	chunks = splitMessage(long, 50)
	assert.Len(t, chunks, 3)
	assert.Equal(t, long, strings.Join(chunks, ""))
}

func TestCutPrefix(t *testing.T) {
	tests := []struct {
		content string
		rest    string
		ok      bool
	}{
		{"!mind hello", "hello", true},
		{"!mind\tnew", "new", true},
		{"!mind", "", true},
		{"!mindful idea", "", false},
		{"hello !mind", "", false},
	}
	for _, tt := range tests {
		rest, ok := cutPrefix(tt.content, "!mind")
		assert.Equal(t, tt.ok, ok, tt.content)
		assert.Equal(t, tt.rest, rest, tt.content)
	}
}
