package replies

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/roomstate/internal/state"
	"github.com/vovakirdan/roomstate/internal/store"
)

// PreviewLimit is the rune limit for quoted bodies in reply previews.
const PreviewLimit = 60

// InlinePreviewLimit is the wider limit for quotes rendered inside a bubble.
const InlinePreviewLimit = 80

// Preview is what the presentation layer renders above a replying message.
type Preview struct {
	SenderLabel string
	Body        string
}

// Graph resolves reply references. A reply holds a weak link: the target may
// be deleted independently, so resolution degrades to "not found" and the
// caller renders a neutral placeholder. Missing targets are never errors.
type Graph struct {
	messages store.MessageStore
	log      *zerolog.Logger
}

// NewGraph builds a resolver over the message store.
func NewGraph(messages store.MessageStore, logger *zerolog.Logger) *Graph {
	return &Graph{messages: messages, log: logger}
}

// ResolveTarget looks up the message a reply points at. ok is false when the
// target does not exist anymore, or transiently cannot be fetched; either way
// the caller shows a placeholder.
func (g *Graph) ResolveTarget(ctx context.Context, replyToID string) (state.Message, bool) {
	if replyToID == "" {
		return state.Message{}, false
	}

	msg, err := g.messages.GetMessage(ctx, replyToID)
	if err != nil {
		if !errors.Is(err, state.ErrNotFound) && g.log != nil {
			g.log.Warn().Err(err).Str("message", replyToID).Msg("resolve reply target failed")
		}
		return state.Message{}, false
	}
	return *msg, true
}

// Preview builds the quoted preview of a message, truncated for display.
func (g *Graph) Preview(msg state.Message) Preview {
	return Preview{
		SenderLabel: senderLabel(msg),
		Body:        state.Ellipsize(msg.Body, PreviewLimit),
	}
}

// InlinePreview builds the wider quote shown inside a message bubble.
func (g *Graph) InlinePreview(msg state.Message) Preview {
	return Preview{
		SenderLabel: senderLabel(msg),
		Body:        state.Ellipsize(msg.Body, InlinePreviewLimit),
	}
}

func senderLabel(msg state.Message) string {
	if msg.SenderName != "" {
		return msg.SenderName
	}
	return msg.SenderID
}
