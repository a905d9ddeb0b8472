package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"github.com/modgate/modgate/pkg/bus"
	"github.com/modgate/modgate/pkg/config"
	"github.com/modgate/modgate/pkg/logger"
)

// DiscordChannel is the primary platform gateway. Only messages that
// mention the bot enter the bus; everything else is dropped before the
// pipeline sees it.
type DiscordChannel struct {
	session *discordgo.Session
	msgBus  *bus.MessageBus
	target  string
	botID   string
	running atomic.Bool
}

func NewDiscord(cfg config.DiscordConfig, msgBus *bus.MessageBus) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	return &DiscordChannel{
		session: session,
		msgBus:  msgBus,
		target:  cfg.TargetConversation,
	}, nil
}

func (c *DiscordChannel) Name() string { return "discord" }

func (c *DiscordChannel) IsRunning() bool { return c.running.Load() }

func (c *DiscordChannel) Start(ctx context.Context) error {
	c.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		c.onMessageCreate(ctx, m)
	})
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("opening discord session: %w", err)
	}
	if c.session.State != nil && c.session.State.User != nil {
		c.botID = c.session.State.User.ID
	}
	c.running.Store(true)
	return nil
}

func (c *DiscordChannel) Stop(_ context.Context) error {
	c.running.Store(false)
	return c.session.Close()
}

func (c *DiscordChannel) onMessageCreate(ctx context.Context, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botID {
		return
	}
	if c.target != "" && m.ChannelID != c.target {
		return
	}

	mentions := false
	for _, u := range m.Mentions {
		if u.ID == c.botID {
			mentions = true
			break
		}
	}
	if !mentions {
		return
	}

	attachments := make([]string, 0, len(m.Attachments))
	for _, att := range m.Attachments {
		attachments = append(attachments, att.URL)
	}

	content, err := m.ContentWithMoreMentionsReplaced(c.session)
	if err != nil {
		content = m.ContentWithMentionsReplaced()
	}

	err = c.msgBus.PublishInbound(ctx, bus.InboundMessage{
		Channel:     c.Name(),
		SenderID:    m.Author.ID,
		SenderIsBot: m.Author.Bot,
		ChatID:      m.ChannelID,
		MessageID:   m.ID,
		Content:     content,
		Attachments: attachments,
		MentionsBot: true,
	})
	if err != nil {
		logger.ErrorCF("discord", "publishing inbound message", map[string]any{"error": err.Error()})
	}
}

func (c *DiscordChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	if msg.Typing {
		if err := c.session.ChannelTyping(msg.ChatID); err != nil {
			c.logOrReturn("typing indicator", err)
		}
		return nil
	}

	if msg.Reaction != "" {
		if err := c.session.MessageReactionAdd(msg.ChatID, msg.ReplyToID, msg.Reaction); err != nil {
			if permissionDenied(err) {
				logger.WarnCF("discord", "no permission to add reaction", map[string]any{"chat": msg.ChatID})
			} else {
				return fmt.Errorf("adding reaction: %w", err)
			}
		}
	}

	if msg.Content == "" {
		return nil
	}

	var err error
	if msg.ReplyToID != "" {
		_, err = c.session.ChannelMessageSendReply(msg.ChatID, msg.Content, &discordgo.MessageReference{
			MessageID: msg.ReplyToID,
			ChannelID: msg.ChatID,
		})
	} else {
		_, err = c.session.ChannelMessageSend(msg.ChatID, msg.Content)
	}
	if err != nil {
		if permissionDenied(err) {
			// Delivery refusal cannot be reported to the user; log only.
			logger.WarnCF("discord", "no permission to reply", map[string]any{"chat": msg.ChatID})
			return nil
		}
		return fmt.Errorf("sending reply: %w", err)
	}
	return nil
}

func (c *DiscordChannel) logOrReturn(op string, err error) {
	if permissionDenied(err) {
		logger.WarnCF("discord", "no permission for "+op, nil)
		return
	}
	logger.ErrorCF("discord", op+" failed", map[string]any{"error": err.Error()})
}

// permissionDenied reports whether the platform refused the call outright
// (HTTP 403 / missing permissions).
func permissionDenied(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode == http.StatusForbidden
	}
	return false
}
