// Package channel implements the messaging adapters. Each adapter
// normalizes its platform's payloads into domain.InboundMessage, publishes
// them on the bus, and registers an outbound handler for its replies.
package channel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/chuchurex/papaia.cl/internal/config"
	"github.com/chuchurex/papaia.cl/internal/domain"
)

const whatsappAPIBase = "https://graph.facebook.com/v21.0"

// WhatsApp implements domain.Channel for WhatsApp Business Cloud API.
// Audio and image messages carry the Graph media ID as their MediaRef;
// FetchMedia resolves it to bytes with an authorized download.
type WhatsApp struct {
	cfg     config.WhatsAppConfig
	bus     domain.MessageBus
	logger  *slog.Logger
	client  *http.Client
	mux     *http.ServeMux
	apiBase string
}

type WhatsAppChannelConfig struct {
	Config  config.WhatsAppConfig
	Logger  *slog.Logger
	APIBase string // override for tests
}

func NewWhatsApp(cfg WhatsAppChannelConfig) *WhatsApp {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.APIBase == "" {
		cfg.APIBase = whatsappAPIBase
	}
	return &WhatsApp{
		cfg:     cfg.Config,
		logger:  cfg.Logger,
		client:  &http.Client{Timeout: 30 * time.Second},
		apiBase: cfg.APIBase,
	}
}

func (w *WhatsApp) Name() string { return "whatsapp" }

func (w *WhatsApp) Start(ctx context.Context, bus domain.MessageBus) error {
	w.bus = bus

	bus.OnOutbound("whatsapp", func(msg domain.OutboundMessage) {
		if err := w.sendMessage(ctx, msg.To, msg.Content); err != nil {
			w.logger.Error("whatsapp send failed", "err", err, "to", msg.To)
		}
	})

	w.mux = http.NewServeMux()
	webhookPath := w.cfg.WebhookPath
	if webhookPath == "" {
		webhookPath = "/webhook/whatsapp"
	}

	w.mux.HandleFunc("GET "+webhookPath, w.handleVerification)
	w.mux.HandleFunc("POST "+webhookPath, w.handleIncoming)

	w.logger.Info("whatsapp channel ready", "webhook", webhookPath)
	return nil
}

func (w *WhatsApp) Stop() error { return nil }

func (w *WhatsApp) Send(ctx context.Context, to string, content string) error {
	return w.sendMessage(ctx, to, content)
}

// Handler returns the HTTP handler for the WhatsApp webhook (to be mounted on the main mux).
func (w *WhatsApp) Handler() http.Handler {
	if w.mux == nil {
		return http.NotFoundHandler()
	}
	return w.mux
}

// handleVerification handles the WhatsApp webhook verification challenge.
func (w *WhatsApp) handleVerification(rw http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == w.cfg.VerifyToken {
		w.logger.Info("whatsapp webhook verified")
		rw.WriteHeader(http.StatusOK)
		fmt.Fprint(rw, html.EscapeString(challenge))
		return
	}

	w.logger.Warn("whatsapp webhook verification failed", "mode", mode)
	http.Error(rw, "Forbidden", http.StatusForbidden)
}

// handleIncoming processes incoming WhatsApp messages.
func (w *WhatsApp) handleIncoming(rw http.ResponseWriter, r *http.Request) {
	// Verify signature
	if w.cfg.AppSecret != "" {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(rw, "Bad request", http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		sig := r.Header.Get("X-Hub-Signature-256")
		if !w.verifySignature(body, sig) {
			w.logger.Warn("whatsapp invalid signature")
			http.Error(rw, "Forbidden", http.StatusForbidden)
			return
		}
	}

	var payload waPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		w.logger.Warn("whatsapp bad payload", "err", err)
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Value.Messages == nil {
				continue
			}
			for _, msg := range change.Value.Messages {
				w.publish(msg)
			}
		}
	}

	rw.WriteHeader(http.StatusOK)
}

func (w *WhatsApp) publish(msg waMessage) {
	inbound := domain.InboundMessage{
		ID:        msg.ID,
		Timestamp: time.Now(),
		Channel:   "whatsapp",
		From:      msg.From,
	}

	switch {
	case msg.Type == "text" && msg.Text != nil:
		inbound.Kind = domain.KindText
		inbound.Text = msg.Text.Body
	case msg.Type == "audio" && msg.Audio != nil:
		inbound.Kind = domain.KindAudio
		inbound.MediaRef = msg.Audio.ID
	case msg.Type == "image" && msg.Image != nil:
		inbound.Kind = domain.KindImage
		inbound.MediaRef = msg.Image.ID
	case msg.Type == "location" && msg.Location != nil:
		inbound.Kind = domain.KindLocation
		inbound.Lat = msg.Location.Latitude
		inbound.Lng = msg.Location.Longitude
	default:
		inbound.Kind = domain.KindUnknown
	}

	w.logger.Info("whatsapp message received", "from", msg.From, "kind", inbound.Kind)
	w.bus.Publish(inbound)
}

// verifySignature checks the X-Hub-Signature-256 header.
func (w *WhatsApp) verifySignature(body []byte, signature string) bool {
	if len(signature) < 7 || signature[:7] != "sha256=" {
		return false
	}
	expected := signature[7:]

	mac := hmac.New(sha256.New, []byte(w.cfg.AppSecret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(computed))
}

// sendMessage sends a text message via WhatsApp Cloud API.
func (w *WhatsApp) sendMessage(ctx context.Context, to string, text string) error {
	url := fmt.Sprintf("%s/%s/messages", w.apiBase, w.cfg.PhoneNumberID)

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": text},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.cfg.AccessToken)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("whatsapp API %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// FetchMedia resolves a Graph media ID into the downloaded bytes. The
// lookup returns a short-lived URL that itself needs the bearer token.
func (w *WhatsApp) FetchMedia(ctx context.Context, mediaRef string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", w.apiBase+"/"+mediaRef, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build media lookup: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.cfg.AccessToken)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("media lookup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media lookup %d", resp.StatusCode)
	}

	var meta struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, "", fmt.Errorf("decode media lookup: %w", err)
	}

	dl, err := http.NewRequestWithContext(ctx, "GET", meta.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build media download: %w", err)
	}
	dl.Header.Set("Authorization", "Bearer "+w.cfg.AccessToken)

	dresp, err := w.client.Do(dl)
	if err != nil {
		return nil, "", fmt.Errorf("media download: %w", err)
	}
	defer dresp.Body.Close()
	if dresp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media download %d", dresp.StatusCode)
	}

	data, err := io.ReadAll(dresp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read media: %w", err)
	}
	return data, filenameForMime(mediaRef, meta.MimeType), nil
}

func filenameForMime(ref, mime string) string {
	switch mime {
	case "audio/ogg", "audio/opus":
		return ref + ".ogg"
	case "audio/mpeg":
		return ref + ".mp3"
	case "image/jpeg":
		return ref + ".jpg"
	case "image/png":
		return ref + ".png"
	default:
		return ref + ".bin"
	}
}

// --- WhatsApp webhook payload types ---

type waPayload struct {
	Object string    `json:"object"`
	Entry  []waEntry `json:"entry"`
}

type waEntry struct {
	ID      string     `json:"id"`
	Changes []waChange `json:"changes"`
}

type waChange struct {
	Value waValue `json:"value"`
	Field string  `json:"field"`
}

type waValue struct {
	MessagingProduct string      `json:"messaging_product"`
	Messages         []waMessage `json:"messages"`
}

type waMessage struct {
	From     string      `json:"from"`
	ID       string      `json:"id"`
	Type     string      `json:"type"`
	Text     *waText     `json:"text,omitempty"`
	Audio    *waMedia    `json:"audio,omitempty"`
	Image    *waMedia    `json:"image,omitempty"`
	Location *waLocation `json:"location,omitempty"`
}

type waText struct {
	Body string `json:"body"`
}

type waMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type,omitempty"`
}

type waLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
