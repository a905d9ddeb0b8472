package channels

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/modgate/modgate/pkg/bus"
	"github.com/modgate/modgate/pkg/config"
	"github.com/modgate/modgate/pkg/logger"
)

// TelegramChannel is the secondary platform gateway. Direct messages always
// count as mentions; in groups the bot must be @-mentioned.
type TelegramChannel struct {
	api     *tgbotapi.BotAPI
	msgBus  *bus.MessageBus
	running atomic.Bool
}

func NewTelegram(cfg config.TelegramConfig, msgBus *bus.MessageBus) (*TelegramChannel, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating telegram api: %w", err)
	}
	return &TelegramChannel{api: api, msgBus: msgBus}, nil
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) IsRunning() bool { return c.running.Load() }

func (c *TelegramChannel) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.api.GetUpdatesChan(u)
	c.running.Store(true)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil {
					c.onMessage(ctx, update.Message)
				}
			}
		}
	}()
	return nil
}

func (c *TelegramChannel) Stop(_ context.Context) error {
	c.running.Store(false)
	c.api.StopReceivingUpdates()
	return nil
}

func (c *TelegramChannel) onMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.ID == c.api.Self.ID {
		return
	}

	mentioned := msg.Chat.IsPrivate() ||
		strings.Contains(msg.Text, "@"+c.api.Self.UserName)
	if !mentioned {
		return
	}

	var attachments []string
	if len(msg.Photo) > 0 {
		// Largest rendition is last; first-match-wins downstream.
		photo := msg.Photo[len(msg.Photo)-1]
		if url, err := c.api.GetFileDirectURL(photo.FileID); err == nil {
			attachments = append(attachments, url)
		} else {
			logger.WarnCF("telegram", "resolving photo url", map[string]any{"error": err.Error()})
		}
	}

	content := strings.TrimSpace(strings.ReplaceAll(msg.Text, "@"+c.api.Self.UserName, ""))

	err := c.msgBus.PublishInbound(ctx, bus.InboundMessage{
		Channel:     c.Name(),
		SenderID:    strconv.FormatInt(msg.From.ID, 10),
		SenderIsBot: msg.From.IsBot,
		ChatID:      strconv.FormatInt(msg.Chat.ID, 10),
		MessageID:   strconv.Itoa(msg.MessageID),
		Content:     content,
		Attachments: attachments,
		MentionsBot: true,
	})
	if err != nil {
		logger.ErrorCF("telegram", "publishing inbound message", map[string]any{"error": err.Error()})
	}
}

func (c *TelegramChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad telegram chat id %q: %w", msg.ChatID, err)
	}

	if msg.Typing {
		action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
		if _, err := c.api.Request(action); err != nil {
			logger.WarnCF("telegram", "typing indicator failed", map[string]any{"error": err.Error()})
		}
		return nil
	}

	content := msg.Content
	if msg.Reaction != "" {
		// Telegram has no reaction API in this client; fold the marker into
		// the reply text instead.
		content = strings.TrimSpace(msg.Reaction + " " + content)
	}
	if content == "" {
		return nil
	}

	out := tgbotapi.NewMessage(chatID, content)
	if msg.ReplyToID != "" {
		if replyTo, err := strconv.Atoi(msg.ReplyToID); err == nil {
			out.ReplyToMessageID = replyTo
		}
	}
	if _, err := c.api.Send(out); err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	return nil
}
