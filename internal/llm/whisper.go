package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"
)

// Transcriber converts voice notes to text through an OpenAI-compatible
// Whisper endpoint.
type Transcriber struct {
	apiBase  string
	apiKey   string
	model    string
	language string
	client   *http.Client
	logger   *slog.Logger
}

type TranscriberConfig struct {
	APIBase  string
	APIKey   string
	Model    string
	Language string // ISO-639-1, e.g. "es"
	Logger   *slog.Logger
}

func NewTranscriber(cfg TranscriberConfig) *Transcriber {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Transcriber{
		apiBase:  cfg.APIBase,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		language: cfg.Language,
		client:   &http.Client{Timeout: defaultHTTPTimeout},
		logger:   cfg.Logger,
	}
}

type transcription struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Transcribe sends raw audio bytes and returns the transcript text.
// filename must carry the right extension (e.g. "note.ogg").
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("write audio data: %w", err)
	}

	writer.WriteField("model", t.model)
	writer.WriteField("response_format", "json")
	if t.language != "" {
		writer.WriteField("language", t.language)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.apiBase+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("whisper API %d: %s", resp.StatusCode, string(respBody))
	}

	var out transcription
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode whisper response: %w", err)
	}

	t.logger.Info("transcription complete",
		"text_len", len(out.Text),
		"language", out.Language,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return out.Text, nil
}
