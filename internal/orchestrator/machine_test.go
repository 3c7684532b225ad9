package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/chuchurex/papaia.cl/internal/domain"
	"github.com/chuchurex/papaia.cl/internal/extract"
)

type fakeStudio struct {
	result domain.StudioResult
	err    error
}

func (s *fakeStudio) Process(_ context.Context, _, ref string) (domain.StudioResult, error) {
	if s.err != nil {
		return domain.StudioResult{}, s.err
	}
	res := s.result
	if res.Photo.Ref == "" {
		res.Photo.Ref = ref
	}
	return res, nil
}

type fakePublisher struct {
	results []domain.PublishResult
	err     error
	calls   int
}

func (p *fakePublisher) Publish(_ context.Context, _ *domain.CaptureRecord) ([]domain.PublishResult, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.results, nil
}

type failingExtractor struct{ err error }

func (e *failingExtractor) ExtractText(context.Context, string) (domain.PropertyFields, error) {
	return domain.PropertyFields{}, e.err
}

func (e *failingExtractor) ExtractAudio(context.Context, string, string) (domain.PropertyFields, error) {
	return domain.PropertyFields{}, e.err
}

func newMachine(ext domain.Extractor, pub domain.Publisher) *Machine {
	if ext == nil {
		ext = extract.NewRegexExtractor()
	}
	if pub == nil {
		pub = &fakePublisher{}
	}
	return New(Config{
		Extractor: ext,
		Studio:    &fakeStudio{result: domain.StudioResult{Accepted: true, Photo: domain.ProcessedPhoto{Category: "otro", Score: 70}}},
		Publisher: pub,
	})
}

func textMsg(text string) domain.InboundMessage {
	return domain.InboundMessage{Channel: "whatsapp", From: "+56911112222", Kind: domain.KindText, Text: text}
}

func TestHandleMessage_PartialCaptureRequestsMissing(t *testing.T) {
	m := newMachine(nil, nil)
	rec := domain.NewCapture("whatsapp", "+56911112222", "")

	reply := m.HandleMessage(context.Background(), rec, textMsg("depa 2 dormitorios, 3500 UF, 60m2, 1 baño"))

	if rec.State != domain.StateReceiving {
		t.Fatalf("expected receiving, got %s", rec.State)
	}
	if len(rec.Missing) != 1 || rec.Missing[0] != domain.FieldAddress {
		t.Fatalf("expected only address missing, got %v", rec.Missing)
	}
	if !strings.Contains(reply, "dirección") {
		t.Fatalf("reply should ask for the address: %q", reply)
	}
}

func TestHandleMessage_LocationCompletesCapture(t *testing.T) {
	m := newMachine(nil, nil)
	rec := domain.NewCapture("whatsapp", "+56911112222", "")

	m.HandleMessage(context.Background(), rec, textMsg("depa 2 dormitorios, 3500 UF, 60m2, 1 baño"))
	reply := m.HandleMessage(context.Background(), rec, domain.InboundMessage{
		Channel: "whatsapp", From: "+56911112222", Kind: domain.KindLocation,
		Lat: -33.42, Lng: -70.61,
	})

	if rec.State != domain.StateAwaitingApproval {
		t.Fatalf("expected awaiting_approval, got %s", rec.State)
	}
	if len(rec.Missing) != 0 {
		t.Fatalf("expected nothing missing, got %v", rec.Missing)
	}
	if !strings.Contains(reply, "todos los datos") {
		t.Fatalf("unexpected completion reply: %q", reply)
	}
}

func TestHandleMessage_ImplausiblePriceBlocks(t *testing.T) {
	m := newMachine(nil, nil)
	rec := domain.NewCapture("whatsapp", "+56911112222", "")

	reply := m.HandleMessage(context.Background(), rec, textMsg("vendo casa a $500.000"))

	if rec.State != domain.StateReceiving {
		t.Fatalf("expected receiving after rejection, got %s", rec.State)
	}
	if !strings.Contains(reply, "precio fuera de rango") {
		t.Fatalf("expected range error in reply: %q", reply)
	}
}

func TestHandleMessage_ExtractorErrorIsRecoverable(t *testing.T) {
	failing := &failingExtractor{err: errors.New("api down")}
	m := newMachine(failing, nil)
	rec := domain.NewCapture("whatsapp", "+56911112222", "")

	reply := m.HandleMessage(context.Background(), rec, textMsg("hola"))
	if rec.State != domain.StateError {
		t.Fatalf("expected error state, got %s", rec.State)
	}
	if reply != apologyReply {
		t.Fatalf("expected apology, got %q", reply)
	}

	// Next message with a healthy extractor proceeds normally.
	m2 := newMachine(nil, nil)
	reply = m2.HandleMessage(context.Background(), rec, textMsg("casa 150 palos, 120m2, 2 baños"))
	if rec.State == domain.StateError {
		t.Fatal("capture stuck in error state")
	}
	if reply == apologyReply {
		t.Fatalf("unexpected apology after recovery: %q", reply)
	}
}

func TestHandleMessage_PhotoJoinsCuratedSelection(t *testing.T) {
	m := newMachine(nil, nil)
	rec := domain.NewCapture("whatsapp", "+56911112222", "")

	m.HandleMessage(context.Background(), rec, domain.InboundMessage{
		Channel: "whatsapp", From: "+56911112222", Kind: domain.KindImage, MediaRef: "media-1",
	})

	if len(rec.PhotoRefs) != 1 || rec.PhotoRefs[0] != "media-1" {
		t.Fatalf("photo ref not recorded: %v", rec.PhotoRefs)
	}
	if len(rec.Photos) != 1 {
		t.Fatalf("photo not curated: %v", rec.Photos)
	}
	if rec.State != domain.StateReceiving {
		t.Fatalf("capture must rest in receiving after a photo, got %s", rec.State)
	}
}

func TestHandleMessage_LocationWithMissingFieldsStaysReceiving(t *testing.T) {
	m := newMachine(nil, nil)
	rec := domain.NewCapture("whatsapp", "+56911112222", "")

	m.HandleMessage(context.Background(), rec, domain.InboundMessage{
		Channel: "whatsapp", From: "+56911112222", Kind: domain.KindLocation,
		Lat: -33.42, Lng: -70.61,
	})

	if rec.State != domain.StateReceiving {
		t.Fatalf("expected receiving, got %s", rec.State)
	}
	if len(rec.Missing) == 0 {
		t.Fatal("price, area and bathrooms are still missing")
	}
}

func TestHandleMessage_TextApprovalPublishes(t *testing.T) {
	pub := &fakePublisher{results: []domain.PublishResult{
		{Destination: "papaia.cl", Success: true, ID: "L-1"},
	}}
	m := newMachine(nil, pub)
	rec := domain.NewCapture("whatsapp", "+56911112222", "")
	rec.SetState(domain.StateAwaitingApproval)

	reply := m.HandleMessage(context.Background(), rec, textMsg("sí, publica!"))

	if pub.calls != 1 {
		t.Fatalf("publisher called %d times", pub.calls)
	}
	if rec.State != domain.StateCompleted {
		t.Fatalf("expected completed, got %s", rec.State)
	}
	if !strings.Contains(reply, "Publicado") {
		t.Fatalf("unexpected confirmation: %q", reply)
	}
}

func TestApprovalPattern_AccentedForms(t *testing.T) {
	approvals := []string{"sí", "Sí!", "sí, publica!", "si", "sii", "apruebo", "dale", "ok, listo", "Ya"}
	for _, text := range approvals {
		if !approvalPattern.MatchString(text) {
			t.Errorf("%q must count as approval", text)
		}
	}

	others := []string{"siento que no", "síganme contando", "yate con estacionamiento", "3 dormitorios"}
	for _, text := range others {
		if approvalPattern.MatchString(text) {
			t.Errorf("%q must not count as approval", text)
		}
	}
}

func TestHandleMessage_BareAccentedYesPublishes(t *testing.T) {
	pub := &fakePublisher{results: []domain.PublishResult{
		{Destination: "papaia.cl", Success: true, ID: "L-2"},
	}}
	m := newMachine(nil, pub)
	rec := domain.NewCapture("whatsapp", "+56911112222", "")
	rec.SetState(domain.StateAwaitingApproval)

	m.HandleMessage(context.Background(), rec, textMsg("sí"))

	if pub.calls != 1 {
		t.Fatalf("publisher called %d times", pub.calls)
	}
	if rec.State != domain.StateCompleted {
		t.Fatalf("expected completed, got %s", rec.State)
	}
}

func TestHandleMessage_RejectionReturnsToReceiving(t *testing.T) {
	pub := &fakePublisher{}
	m := newMachine(nil, pub)
	rec := domain.NewCapture("whatsapp", "+56911112222", "")
	rec.SetState(domain.StateAwaitingApproval)

	m.HandleMessage(context.Background(), rec, textMsg("no, espera"))

	if pub.calls != 0 {
		t.Fatal("publisher must not be called on rejection")
	}
	if rec.State != domain.StateReceiving {
		t.Fatalf("expected receiving, got %s", rec.State)
	}
}

func TestHandleApproval_ResultsInDestinationOrder(t *testing.T) {
	pub := &fakePublisher{results: []domain.PublishResult{
		{Destination: "papaia.cl", Success: true, ID: "L-1"},
		{Destination: "portal-b", Success: false, Error: "timeout"},
		{Destination: "portal-c", Success: true, ID: "C-9"},
	}}
	m := newMachine(nil, pub)
	rec := domain.NewCapture("whatsapp", "+56911112222", "")
	rec.SetState(domain.StateAwaitingApproval)

	results, err := m.HandleApproval(context.Background(), rec)
	if err != nil {
		t.Fatalf("approval: %v", err)
	}
	want := []string{"papaia.cl", "portal-b", "portal-c"}
	for i, dest := range want {
		if results[i].Destination != dest {
			t.Fatalf("result %d: expected %s, got %s", i, dest, results[i].Destination)
		}
	}
	if rec.State != domain.StateCompleted {
		t.Fatalf("expected completed, got %s", rec.State)
	}
	if len(rec.Results) != 3 {
		t.Fatalf("results not attached: %v", rec.Results)
	}
}

func TestHandleApproval_InfrastructureErrorKeepsPublishing(t *testing.T) {
	pub := &fakePublisher{err: errors.New("no destinations configured")}
	m := newMachine(nil, pub)
	rec := domain.NewCapture("whatsapp", "+56911112222", "")
	rec.SetState(domain.StateAwaitingApproval)

	if _, err := m.HandleApproval(context.Background(), rec); err == nil {
		t.Fatal("expected error")
	}
	if rec.State != domain.StatePublishing {
		t.Fatalf("expected publishing for retry, got %s", rec.State)
	}

	// Retry from publishing is allowed.
	pub.err = nil
	pub.results = []domain.PublishResult{{Destination: "papaia.cl", Success: true}}
	if _, err := m.HandleApproval(context.Background(), rec); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if rec.State != domain.StateCompleted {
		t.Fatalf("expected completed after retry, got %s", rec.State)
	}
}

func TestHandleApproval_RejectsWrongState(t *testing.T) {
	m := newMachine(nil, nil)
	rec := domain.NewCapture("whatsapp", "+56911112222", "")

	if _, err := m.HandleApproval(context.Background(), rec); err == nil {
		t.Fatal("expected error for initial state")
	}
}

func TestHandleMessage_UnknownKindAsksForClarification(t *testing.T) {
	m := newMachine(nil, nil)
	rec := domain.NewCapture("whatsapp", "+56911112222", "")

	reply := m.HandleMessage(context.Background(), rec, domain.InboundMessage{
		Channel: "whatsapp", From: "+56911112222", Kind: domain.KindUnknown,
	})
	if reply != clarifyReply {
		t.Fatalf("expected clarification, got %q", reply)
	}
}
