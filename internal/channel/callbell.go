package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/chuchurex/papaia.cl/internal/config"
	"github.com/chuchurex/papaia.cl/internal/domain"
)

// Callbell implements domain.Channel for the Callbell messaging platform
// (WhatsApp behind Callbell's API). Media references are the attachment
// URLs Callbell delivers, so FetchMedia is a plain download.
type Callbell struct {
	cfg    config.CallbellConfig
	bus    domain.MessageBus
	logger *slog.Logger
	client *http.Client
	mux    *http.ServeMux
}

type CallbellChannelConfig struct {
	Config config.CallbellConfig
	Logger *slog.Logger
}

func NewCallbell(cfg CallbellChannelConfig) *Callbell {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	c := cfg.Config
	if c.APIBase == "" {
		c.APIBase = "https://api.callbell.eu/v1"
	}
	return &Callbell{
		cfg:    c,
		logger: cfg.Logger,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Callbell) Name() string { return "callbell" }

func (c *Callbell) Start(ctx context.Context, bus domain.MessageBus) error {
	c.bus = bus

	bus.OnOutbound("callbell", func(msg domain.OutboundMessage) {
		if err := c.sendMessage(ctx, msg.To, msg.Content); err != nil {
			c.logger.Error("callbell send failed", "err", err, "to", msg.To)
		}
	})

	c.mux = http.NewServeMux()
	webhookPath := c.cfg.WebhookPath
	if webhookPath == "" {
		webhookPath = "/webhook/callbell"
	}
	c.mux.HandleFunc("POST "+webhookPath, c.handleIncoming)

	c.logger.Info("callbell channel ready", "webhook", webhookPath)
	return nil
}

func (c *Callbell) Stop() error { return nil }

func (c *Callbell) Send(ctx context.Context, to string, content string) error {
	return c.sendMessage(ctx, to, content)
}

// Handler returns the HTTP handler for the Callbell webhook.
func (c *Callbell) Handler() http.Handler {
	if c.mux == nil {
		return http.NotFoundHandler()
	}
	return c.mux
}

func (c *Callbell) handleIncoming(rw http.ResponseWriter, r *http.Request) {
	var payload cbWebhook
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		c.logger.Warn("callbell bad payload", "err", err)
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}

	// Only new messages matter; status updates and agent events are
	// acknowledged and discarded.
	if payload.Type != "message_created" {
		rw.WriteHeader(http.StatusOK)
		return
	}

	msg := payload.Payload.Message

	// Callbell echoes our own replies back as message_created events with
	// direction "out". Republishing those would feed the bot its own words.
	if msg.Direction != "in" {
		rw.WriteHeader(http.StatusOK)
		return
	}

	from := payload.Payload.Contact.Phone
	if from == "" {
		from = payload.Payload.Contact.UUID
	}
	if from == "" {
		c.logger.Warn("callbell message without contact", "uuid", msg.UUID)
		rw.WriteHeader(http.StatusOK)
		return
	}

	inbound := domain.InboundMessage{
		ID:        msg.UUID,
		Timestamp: time.Now(),
		Channel:   "callbell",
		From:      from,
	}

	switch msg.Type {
	case "text":
		inbound.Kind = domain.KindText
		inbound.Text = msg.Text
	case "image":
		inbound.Kind = domain.KindImage
		inbound.MediaRef = msg.MediaURL
	case "audio", "voice":
		inbound.Kind = domain.KindAudio
		inbound.MediaRef = msg.MediaURL
	case "location":
		inbound.Kind = domain.KindLocation
		inbound.Lat = msg.Latitude
		inbound.Lng = msg.Longitude
	default:
		inbound.Kind = domain.KindUnknown
	}

	c.logger.Info("callbell message received", "from", from, "kind", inbound.Kind)
	c.bus.Publish(inbound)
	rw.WriteHeader(http.StatusOK)
}

func (c *Callbell) sendMessage(ctx context.Context, to string, text string) error {
	payload := map[string]any{
		"to":      to,
		"from":    "whatsapp",
		"type":    "text",
		"content": map[string]string{"text": text},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.APIBase+"/messages/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("callbell API %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// FetchMedia downloads an attachment URL delivered by the webhook.
func (c *Callbell) FetchMedia(ctx context.Context, mediaRef string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", mediaRef, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build media download: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("media download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media download %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read media: %w", err)
	}

	name := path.Base(strings.SplitN(mediaRef, "?", 2)[0])
	if name == "" || name == "/" || name == "." {
		name = "attachment.bin"
	}
	return data, name, nil
}

// --- Callbell webhook payload types ---

type cbWebhook struct {
	Type    string    `json:"type"`
	Payload cbPayload `json:"payload"`
}

type cbPayload struct {
	Message cbMessage `json:"message"`
	Contact cbContact `json:"contact"`
}

type cbMessage struct {
	UUID      string  `json:"uuid"`
	Type      string  `json:"type"`
	Text      string  `json:"text"`
	Direction string  `json:"direction"`
	MediaURL  string  `json:"mediaUrl"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type cbContact struct {
	UUID  string `json:"uuid"`
	Phone string `json:"phone"`
	Name  string `json:"name"`
}
