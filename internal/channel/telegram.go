package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/chuchurex/papaia.cl/internal/domain"
)

const telegramMaxMsgLen = 4000

// Telegram implements domain.Channel via long polling. Voice notes map to
// audio messages and the largest photo size is kept; MediaRef is the
// Telegram file ID resolved through GetFileDirectURL on fetch.
type Telegram struct {
	token  string
	bot    *tgbotapi.BotAPI
	bus    domain.MessageBus
	logger *slog.Logger
	client *http.Client
}

type TelegramChannelConfig struct {
	Token  string
	Logger *slog.Logger
}

func NewTelegram(cfg TelegramChannelConfig) *Telegram {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		token:  cfg.Token,
		logger: cfg.Logger,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and begins polling for updates. It blocks
// until ctx is cancelled, so run it in its own goroutine.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	t.bus = bus

	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	bus.OnOutbound("telegram", func(msg domain.OutboundMessage) {
		chatID, err := strconv.ParseInt(msg.To, 10, 64)
		if err != nil {
			t.logger.Error("invalid chat ID for telegram outbound", "to", msg.To, "err", err)
			return
		}
		t.sendMessage(chatID, msg.Content)
	})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(update)
		}
	}
}

// Stop is a no-op: the bot stops when Start's context is cancelled.
// Calling StopReceivingUpdates twice panics.
func (t *Telegram) Stop() error {
	return nil
}

func (t *Telegram) Send(_ context.Context, chatID string, content string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}
	t.sendMessage(id, content)
	return nil
}

func (t *Telegram) handleUpdate(update tgbotapi.Update) {
	msg := update.Message
	if msg == nil {
		return
	}

	inbound := domain.InboundMessage{
		ID:        strconv.Itoa(msg.MessageID),
		Timestamp: time.Now(),
		Channel:   "telegram",
		From:      strconv.FormatInt(msg.Chat.ID, 10),
	}

	switch {
	case msg.Voice != nil:
		inbound.Kind = domain.KindAudio
		inbound.MediaRef = msg.Voice.FileID
	case msg.Audio != nil:
		inbound.Kind = domain.KindAudio
		inbound.MediaRef = msg.Audio.FileID
	case len(msg.Photo) > 0:
		inbound.Kind = domain.KindImage
		inbound.MediaRef = msg.Photo[len(msg.Photo)-1].FileID // largest size last
	case msg.Location != nil:
		inbound.Kind = domain.KindLocation
		inbound.Lat = msg.Location.Latitude
		inbound.Lng = msg.Location.Longitude
	case msg.Text != "":
		inbound.Kind = domain.KindText
		inbound.Text = msg.Text
	default:
		inbound.Kind = domain.KindUnknown
	}

	t.logger.Info("telegram message received", "chat", msg.Chat.ID, "kind", inbound.Kind)
	t.bus.Publish(inbound)
}

func (t *Telegram) sendMessage(chatID int64, content string) {
	for len(content) > 0 {
		chunk := content
		if len(chunk) > telegramMaxMsgLen {
			chunk = chunk[:telegramMaxMsgLen]
		}
		content = content[len(chunk):]

		out := tgbotapi.NewMessage(chatID, chunk)
		if _, err := t.bot.Send(out); err != nil {
			t.logger.Error("telegram send failed", "chat", chatID, "err", err)
			return
		}
	}
}

// FetchMedia downloads a Telegram file by its file ID.
func (t *Telegram) FetchMedia(ctx context.Context, mediaRef string) ([]byte, string, error) {
	if t.bot == nil {
		return nil, "", fmt.Errorf("telegram bot not started")
	}

	url, err := t.bot.GetFileDirectURL(mediaRef)
	if err != nil {
		return nil, "", fmt.Errorf("resolve file %s: %w", mediaRef, err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build media download: %w", err)
	}
	resp, err := t.client.Do(req)
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

	name := path.Base(strings.SplitN(url, "?", 2)[0])
	if name == "" || name == "/" || name == "." {
		name = mediaRef + ".bin"
	}
	return data, name, nil
}
