package discord

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"mindgraph/backend/internal/agent"
	"mindgraph/backend/internal/state"
	apperrors "mindgraph/backend/pkg/errors"
)

// MaxMessageLength is Discord's per-message character limit
const MaxMessageLength = 2000

// reply sends content, splitting it when it exceeds Discord's limit
func (h *Handler) reply(sender Sender, channelID, content string) {
	chunks := splitMessage(content, MaxMessageLength)
	for i, chunk := range chunks {
		if _, err := sender.ChannelMessageSend(channelID, chunk); err != nil {
			h.logger.Error("Failed to send message chunk",
				zap.Error(err),
				zap.String("channel_id", channelID),
				zap.Int("chunk", i+1),
				zap.Int("total_chunks", len(chunks)),
			)
			break
		}
		// Brief pause between messages
		if i < len(chunks)-1 {
			time.Sleep(100 * time.Millisecond)
		}
	}
}

func formatResult(result *agent.TurnResult) string {
	var sb strings.Builder
	sb.WriteString(result.ResponseText)

	var labels []string
	for _, n := range result.NodesAdded {
		if n.ID == state.AnchorNodeID {
			continue
		}
		labels = append(labels, n.Label)
	}
	if len(labels) > 0 || len(result.EdgesAdded) > 0 {
		sb.WriteString("\n-# ")
		sb.WriteString(fmt.Sprintf("Added %s, %s", plural(len(labels), "node"), plural(len(result.EdgesAdded), "edge")))
		if len(labels) > 0 {
			sb.WriteString(": ")
			sb.WriteString(strings.Join(labels, ", "))
		}
	}
	return sb.String()
}

func formatMapList(maps []state.MapSummary) string {
	if len(maps) == 0 {
		return "You have no mind maps yet. Send me something to remember."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**Your mind maps** (%d)\n", len(maps)))
	for i, m := range maps {
		marker := ""
		if i == 0 {
			marker = " (current)"
		}
		sb.WriteString(fmt.Sprintf("• `%s` %s, updated %s%s\n", m.ID, plural(m.NodeCount, "node"), m.UpdatedAt.Format("2006-01-02 15:04"), marker))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func failureMessage(err error) string {
	kind, ok := apperrors.KindOf(err)
	if !ok {
		kind = "internal"
	}
	msg := fmt.Sprintf("Sorry, I couldn't process that (%s).", kind)
	if apperrors.IsRetryable(err) {
		msg += " Please try again."
	}
	return msg
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// splitMessage splits content into chunks of at most maxLength, preferring line breaks
func splitMessage(content string, maxLength int) []string {
	if len(content) <= maxLength {
		return []string{content}
	}

	var chunks []string
	var current strings.Builder
	for _, line := range strings.SplitAfter(content, "\n") {
		for len(line) > maxLength {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			chunks = append(chunks, line[:maxLength])
			line = line[maxLength:]
		}
		if current.Len()+len(line) > maxLength {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
