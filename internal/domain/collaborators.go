package domain

import "context"

// Extractor turns raw operator input into a partial PropertyFields tree.
// Implementations must leave every unmentioned leaf nil — sacred fields are
// extracted only when stated explicitly, never inferred.
type Extractor interface {
	// ExtractText extracts structured fields from a text message.
	ExtractText(ctx context.Context, text string) (PropertyFields, error)
	// ExtractAudio transcribes an audio media reference from the given
	// channel and extracts structured fields from the transcript.
	ExtractAudio(ctx context.Context, channel, mediaRef string) (PropertyFields, error)
}

// PhotoStudio categorizes, scores and optionally enhances one photo.
// Accepted=false means the photo was rejected and must not join the curated
// selection.
type PhotoStudio interface {
	Process(ctx context.Context, channel, mediaRef string) (StudioResult, error)
}

type StudioResult struct {
	Photo    ProcessedPhoto
	Accepted bool
}

// TemplateKey names one of the fixed outbound message templates. The
// orchestrator decides the key; a Responder may enrich the text and its
// failure always falls back to a fixed deterministic string per key.
type TemplateKey string

const (
	TemplateWelcome             TemplateKey = "welcome"
	TemplateRequestMissing      TemplateKey = "request_missing"
	TemplateCaptureComplete     TemplateKey = "capture_complete"
	TemplatePublishConfirmation TemplateKey = "publish_confirmation"
)

// Responder renders an outbound chat message for a template key and the
// current capture. An error tells the caller to use the fixed fallback text;
// it never affects control flow beyond that.
type Responder interface {
	Render(ctx context.Context, key TemplateKey, rec *CaptureRecord) (string, error)
}

// Publisher pushes a finished capture to the configured external catalogs
// and reports one result per destination, in destination order.
type Publisher interface {
	Publish(ctx context.Context, rec *CaptureRecord) ([]PublishResult, error)
}

// MediaFetcher resolves an opaque media reference into readable bytes.
// Channel adapters that mint references implement this for their own refs.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, mediaRef string) ([]byte, string, error) // data, filename
}
