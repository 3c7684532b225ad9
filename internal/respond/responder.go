// Package respond renders the operator-facing replies. Every reply has a
// fixed Spanish fallback so a dead model API never silences the bot.
package respond

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chuchurex/papaia.cl/internal/domain"
	"github.com/chuchurex/papaia.cl/internal/llm"
)

const responderSystem = `Eres el asistente de captación de PAPAIA, una plataforma inmobiliaria chilena.
Hablas en español chileno, cercano pero profesional, con algún emoji ocasional.
Respondes en máximo 3 líneas. Nunca inventas datos de la propiedad.`

var fieldLabels = map[string]string{
	domain.FieldPrice:     "precio",
	domain.FieldArea:      "superficie",
	domain.FieldBathrooms: "baños",
	domain.FieldAddress:   "dirección",
}

// Labels maps internal field names to the Spanish words shown to operators.
func Labels(fields []string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if label, ok := fieldLabels[f]; ok {
			out = append(out, label)
		} else {
			out = append(out, f)
		}
	}
	return out
}

// LLMResponder phrases replies with a chat model, seeded with the capture
// snapshot so the model can acknowledge what was just understood.
type LLMResponder struct {
	client *llm.Client
	logger *slog.Logger
}

func NewLLMResponder(client *llm.Client, logger *slog.Logger) *LLMResponder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMResponder{client: client, logger: logger}
}

func (r *LLMResponder) Render(ctx context.Context, key domain.TemplateKey, rec *domain.CaptureRecord) (string, error) {
	prompt, err := buildPrompt(key, rec)
	if err != nil {
		return "", err
	}

	reply, err := r.client.Complete(ctx, prompt, llm.CompleteOptions{
		System:      responderSystem,
		Temperature: 0.7,
		MaxTokens:   200,
	})
	if err != nil {
		return "", fmt.Errorf("render %s: %w", key, err)
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("render %s: empty completion", key)
	}
	return reply, nil
}

func buildPrompt(key domain.TemplateKey, rec *domain.CaptureRecord) (string, error) {
	snapshot, err := json.Marshal(rec.Fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}

	switch key {
	case domain.TemplateWelcome:
		return "Saluda a un corredor que acaba de escribir por primera vez. Explica en una frase que puede mandar audios, fotos y la dirección de la propiedad que quiere publicar.", nil
	case domain.TemplateRequestMissing:
		return fmt.Sprintf(
			"Datos capturados hasta ahora: %s\nAún faltan: %s.\nConfirma brevemente lo que ya entendiste y pide SOLO lo que falta.",
			snapshot, strings.Join(Labels(rec.Missing), ", ")), nil
	case domain.TemplateCaptureComplete:
		return fmt.Sprintf(
			"Datos completos de la propiedad: %s\nAvísale al corredor que ya tienes todo y pregúntale si aprueba la publicación.",
			snapshot), nil
	case domain.TemplatePublishConfirmation:
		return fmt.Sprintf(
			"La propiedad se publicó en %d portales. Celebra brevemente y despídete.",
			countPublished(rec.Results)), nil
	default:
		return "", fmt.Errorf("unknown template key %q", key)
	}
}

func countPublished(results []domain.PublishResult) int {
	n := 0
	for _, r := range results {
		if r.Success {
			n++
		}
	}
	return n
}

// Fallback returns the canned Spanish reply for key. It never fails.
func Fallback(key domain.TemplateKey, rec *domain.CaptureRecord) string {
	switch key {
	case domain.TemplateWelcome:
		return "¡Hola! 👋 Soy el asistente de captación de PAPAIA.\n" +
			"Mándame audios, fotos y la dirección de la propiedad que quieres publicar, y yo armo la ficha."
	case domain.TemplateRequestMissing:
		return "📝 Me falta: " + strings.Join(Labels(rec.Missing), ", ") + ".\n¿Me lo puedes mandar?"
	case domain.TemplateCaptureComplete:
		return "✅ ¡Tengo todos los datos! Revisa la ficha y dime si apruebas la publicación."
	case domain.TemplatePublishConfirmation:
		return "🎉 ¡Publicado con éxito! Gracias por confiar en PAPAIA."
	default:
		return "Recibido 👍"
	}
}
