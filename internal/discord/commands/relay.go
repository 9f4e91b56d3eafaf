package commands

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/leadamp/pitchdrill/internal/practice"
)

// MessageRelay feeds channel messages into active text roleplay sessions and
// posts the prospect's replies back to the channel.
type MessageRelay struct {
	manager *practice.Manager
}

// NewMessageRelay creates a relay for the given session manager. Attach it
// with session.AddHandler(relay.Handle).
func NewMessageRelay(manager *practice.Manager) *MessageRelay {
	return &MessageRelay{manager: manager}
}

// Handle is a discordgo MessageCreate handler. Messages from bots, or from
// users without an active session in that channel, are ignored.
func (r *MessageRelay) Handle(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	reply, _, err := r.manager.HandleMessage(context.Background(), m.Author.ID, m.ChannelID, m.Content)
	if err != nil || reply == "" {
		// No session for this user/channel, or nothing to say.
		return
	}
	_, _ = s.ChannelMessageSend(m.ChannelID, reply)
}
