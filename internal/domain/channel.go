package domain

import "context"

// Channel is one chat transport (WhatsApp Cloud API, Callbell, Telegram).
// Start wires the channel to the bus: it publishes normalized inbound
// messages and registers itself for outbound delivery.
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
	Send(ctx context.Context, to string, content string) error
}
