// Package orchestrator advances a capture through the conversation flow:
// each inbound message mutates the record through extraction, photo
// curation and validation, and yields exactly one reply. Callers must
// serialize invocations per channel address; the machine itself holds no
// locks.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/chuchurex/papaia.cl/internal/domain"
	"github.com/chuchurex/papaia.cl/internal/metrics"
	"github.com/chuchurex/papaia.cl/internal/photo"
	"github.com/chuchurex/papaia.cl/internal/respond"
	"github.com/chuchurex/papaia.cl/internal/validate"
)

const (
	apologyReply = "😓 Uy, tuve un problema procesando tu mensaje. ¿Me lo puedes mandar de nuevo?"
	clarifyReply = "🤔 No pude interpretar ese mensaje. Mándame texto, un audio o fotos de la propiedad."
	rejectReply  = "👍 Ok, no publico todavía. Mándame las correcciones cuando quieras."
)

// \b is ASCII-only in RE2, so an accented "sí" needs an explicit
// space/punctuation/end check after the keyword.
var approvalPattern = regexp.MustCompile(`(?i)^\s*(s[ií]+|apruebo|aprobado|publica(?:r|lo)?|dale|ok(?:ey)?|listo|ya)(?:\s|[[:punct:]]|$)`)
var rejectPattern = regexp.MustCompile(`(?i)^\s*(no\b|espera|todav[ií]a no|cambiar)`)

// Machine drives one capture per call. It is stateless between calls; all
// conversation state lives in the CaptureRecord.
type Machine struct {
	extractor domain.Extractor
	studio    domain.PhotoStudio
	responder domain.Responder
	publisher domain.Publisher

	maxPerCategory int
	maxTotal       int

	logger *slog.Logger
}

type Config struct {
	Extractor domain.Extractor
	Studio    domain.PhotoStudio
	Responder domain.Responder
	Publisher domain.Publisher

	MaxPhotosPerCategory int
	MaxPhotosTotal       int

	Logger *slog.Logger
}

func New(cfg Config) *Machine {
	if cfg.MaxPhotosPerCategory <= 0 {
		cfg.MaxPhotosPerCategory = photo.DefaultMaxPerCategory
	}
	if cfg.MaxPhotosTotal <= 0 {
		cfg.MaxPhotosTotal = photo.DefaultMaxTotal
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Machine{
		extractor:      cfg.Extractor,
		studio:         cfg.Studio,
		responder:      cfg.Responder,
		publisher:      cfg.Publisher,
		maxPerCategory: cfg.MaxPhotosPerCategory,
		maxTotal:       cfg.MaxPhotosTotal,
		logger:         cfg.Logger,
	}
}

// HandleMessage advances rec with one inbound message and returns the reply
// to send back. The record is always left in a consistent state, including
// after collaborator failures (StateError plus a recoverable apology).
func (m *Machine) HandleMessage(ctx context.Context, rec *domain.CaptureRecord, msg domain.InboundMessage) string {
	log := m.logger.With("capture", rec.ID, "channel", rec.Channel, "kind", msg.Kind)

	if msg.Kind == domain.KindText && awaitingDecision(rec.State) {
		if approvalPattern.MatchString(msg.Text) {
			return m.handleApprovalReply(ctx, rec, log)
		}
		if rejectPattern.MatchString(msg.Text) {
			rec.SetState(domain.StateReceiving)
			return rejectReply
		}
		// Anything else while waiting is treated as a correction and runs
		// through normal extraction below.
	}

	switch msg.Kind {
	case domain.KindText:
		rec.SetState(domain.StateReceiving)
		fields, err := m.extractor.ExtractText(ctx, msg.Text)
		if err != nil {
			return m.fail(rec, log, "text extraction", err)
		}
		rec.Fields = rec.Fields.Merge(fields)

	case domain.KindAudio:
		rec.SetState(domain.StateProcessingAudio)
		rec.AudioRefs = append(rec.AudioRefs, msg.MediaRef)
		fields, err := m.extractor.ExtractAudio(ctx, msg.Channel, msg.MediaRef)
		if err != nil {
			return m.fail(rec, log, "audio extraction", err)
		}
		rec.Fields = rec.Fields.Merge(fields)

	case domain.KindImage:
		rec.SetState(domain.StateProcessingPhotos)
		rec.PhotoRefs = append(rec.PhotoRefs, msg.MediaRef)
		res, err := m.studio.Process(ctx, msg.Channel, msg.MediaRef)
		if err != nil {
			return m.fail(rec, log, "photo processing", err)
		}
		if res.Accepted {
			rec.Photos = photo.Curate(rec.Photos, []domain.ProcessedPhoto{res.Photo}, m.maxPerCategory, m.maxTotal)
		}

	case domain.KindLocation:
		rec.SetState(domain.StateReceiving)
		rec.Fields = rec.Fields.Merge(domain.PropertyFields{
			Address: &domain.Address{
				Coordinates: &domain.Coordinates{Lat: msg.Lat, Lng: msg.Lng},
			},
		})

	default:
		rec.Touch()
		return clarifyReply
	}

	return m.validateAndReply(ctx, rec, log)
}

func (m *Machine) validateAndReply(ctx context.Context, rec *domain.CaptureRecord, log *slog.Logger) string {
	rec.SetState(domain.StateValidating)
	rec.Missing = validate.Missing(rec.Fields)

	res := validate.Check(rec.Fields)
	rec.Warnings = res.Warnings

	if !res.OK {
		rec.SetState(domain.StateReceiving)
		log.Warn("validation rejected fields", "errors", res.Errors)
		return "⚠️ " + strings.Join(res.Errors, "\n⚠️ ") + "\n¿Me confirmas los valores correctos?"
	}

	if len(rec.Missing) == 0 {
		rec.SetState(domain.StateReadyToPublish)
		reply := m.render(ctx, domain.TemplateCaptureComplete, rec)
		rec.SetState(domain.StateAwaitingApproval)
		return reply
	}

	// Still collecting: the capture rests in receiving between turns so the
	// operator-facing state reads correctly while we wait for more data.
	rec.SetState(domain.StateReceiving)
	log.Info("capture advanced", "state", rec.State, "missing", rec.Missing)
	return m.render(ctx, domain.TemplateRequestMissing, rec)
}

// HandleApproval publishes an approved capture and attaches the results. An
// error means no result list was produced at all (infrastructure failure);
// the record stays in StatePublishing so a retry is possible. Per-destination
// failures are not errors — they come back as unsuccessful PublishResults.
func (m *Machine) HandleApproval(ctx context.Context, rec *domain.CaptureRecord) ([]domain.PublishResult, error) {
	switch rec.State {
	case domain.StateReadyToPublish, domain.StateAwaitingApproval, domain.StatePublishing:
	default:
		return nil, fmt.Errorf("capture %s not ready to publish (state %s)", rec.ID, rec.State)
	}

	rec.SetState(domain.StatePublishing)
	results, err := m.publisher.Publish(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("publish capture %s: %w", rec.ID, err)
	}

	rec.Results = results
	rec.SetState(domain.StateCompleted)
	m.logger.Info("capture published", "capture", rec.ID, "destinations", len(results))
	return results, nil
}

func (m *Machine) handleApprovalReply(ctx context.Context, rec *domain.CaptureRecord, log *slog.Logger) string {
	if _, err := m.HandleApproval(ctx, rec); err != nil {
		log.Error("publish failed", "error", err)
		return apologyReply
	}
	return m.render(ctx, domain.TemplatePublishConfirmation, rec)
}

// Confirmation renders the post-publication message for a capture that was
// approved out of band.
func (m *Machine) Confirmation(ctx context.Context, rec *domain.CaptureRecord) string {
	return m.render(ctx, domain.TemplatePublishConfirmation, rec)
}

// Welcome renders the greeting for a conversation that just started.
func (m *Machine) Welcome(ctx context.Context, rec *domain.CaptureRecord) string {
	rec.SetState(domain.StateReceiving)
	return m.render(ctx, domain.TemplateWelcome, rec)
}

func (m *Machine) render(ctx context.Context, key domain.TemplateKey, rec *domain.CaptureRecord) string {
	if m.responder != nil {
		if reply, err := m.responder.Render(ctx, key, rec); err == nil {
			return reply
		} else {
			m.logger.Warn("responder failed, using fallback", "key", key, "error", err)
		}
	}
	return respond.Fallback(key, rec)
}

func (m *Machine) fail(rec *domain.CaptureRecord, log *slog.Logger, op string, err error) string {
	rec.SetState(domain.StateError)
	metrics.ExtractionErrors.Inc()
	log.Error(op+" failed", "error", err)
	return apologyReply
}

func awaitingDecision(s domain.State) bool {
	return s == domain.StateReadyToPublish || s == domain.StateAwaitingApproval
}
