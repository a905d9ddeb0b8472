package channels

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/modgate/modgate/pkg/bus"
	"github.com/modgate/modgate/pkg/config"
	"github.com/modgate/modgate/pkg/logger"
)

// Manager owns the enabled channels and the outbound dispatch loop.
type Manager struct {
	channels map[string]Channel
	msgBus   *bus.MessageBus
}

func NewManager(cfg *config.Config, msgBus *bus.MessageBus) (*Manager, error) {
	m := &Manager{
		channels: make(map[string]Channel),
		msgBus:   msgBus,
	}

	if cfg.Channels.Discord.Enabled {
		ch, err := NewDiscord(cfg.Channels.Discord, msgBus)
		if err != nil {
			return nil, fmt.Errorf("discord channel: %w", err)
		}
		m.channels[ch.Name()] = ch
	}

	if cfg.Channels.Telegram.Enabled {
		ch, err := NewTelegram(cfg.Channels.Telegram, msgBus)
		if err != nil {
			return nil, fmt.Errorf("telegram channel: %w", err)
		}
		m.channels[ch.Name()] = ch
	}

	return m, nil
}

func (m *Manager) GetChannel(name string) (Channel, bool) {
	ch, ok := m.channels[name]
	return ch, ok
}

func (m *Manager) EnabledChannels() string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func (m *Manager) StartAll(ctx context.Context) error {
	for name, ch := range m.channels {
		if err := ch.Start(ctx); err != nil {
			return fmt.Errorf("starting %s: %w", name, err)
		}
		logger.InfoC("channels", name+" channel started")
	}
	go m.dispatchOutbound(ctx)
	return nil
}

func (m *Manager) StopAll(ctx context.Context) {
	for name, ch := range m.channels {
		if err := ch.Stop(ctx); err != nil {
			logger.ErrorCF("channels", "stopping channel", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}
}

// dispatchOutbound routes bus outbound messages to their channel. Send
// errors are logged and dropped; there is no channel to report them into.
func (m *Manager) dispatchOutbound(ctx context.Context) {
	for {
		msg, ok := m.msgBus.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		ch, found := m.channels[msg.Channel]
		if !found {
			logger.WarnCF("channels", "outbound message for unknown channel", map[string]any{
				"channel": msg.Channel,
			})
			continue
		}
		if err := ch.Send(ctx, msg); err != nil {
			logger.ErrorCF("channels", "outbound delivery failed", map[string]any{
				"channel": msg.Channel,
				"error":   err.Error(),
			})
		}
	}
}
