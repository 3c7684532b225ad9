package domain

import "time"

// MessageKind classifies a normalized inbound message.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindAudio    MessageKind = "audio"
	KindImage    MessageKind = "image"
	KindLocation MessageKind = "location"
	KindUnknown  MessageKind = "unknown"
)

// InboundMessage is the channel-independent form every adapter produces
// before handing a message to the orchestrator. Exactly one payload group
// is populated depending on Kind: Text for text, MediaRef for audio/image,
// Lat/Lng for location.
type InboundMessage struct {
	ID        string
	Timestamp time.Time
	Channel   string // adapter name, e.g. "whatsapp", "callbell", "telegram"
	From      string // channel address of the sender (reply destination)
	Kind      MessageKind

	Text     string
	MediaRef string
	Lat      float64
	Lng      float64
}

// OutboundMessage is a reply routed back to the channel that owns the
// conversation.
type OutboundMessage struct {
	Channel string
	To      string
	Content string
}

// MessageBus decouples channel adapters from the gateway. Adapters publish
// normalized inbound messages and register a handler for their outbound
// traffic.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	SendOutbound(msg OutboundMessage)
	OnOutbound(channelName string, handler func(OutboundMessage))
}
