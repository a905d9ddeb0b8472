// Package channels adapts chat platforms to the message bus. Each channel
// publishes inbound events and delivers outbound replies, reactions and
// typing indicators; delivery refusals by the platform are logged, never
// escalated.
package channels

import (
	"context"

	"github.com/modgate/modgate/pkg/bus"
)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
}
