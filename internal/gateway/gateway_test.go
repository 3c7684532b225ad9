package gateway

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/chuchurex/papaia.cl/internal/bus"
	"github.com/chuchurex/papaia.cl/internal/domain"
	"github.com/chuchurex/papaia.cl/internal/extract"
	"github.com/chuchurex/papaia.cl/internal/orchestrator"
	"github.com/chuchurex/papaia.cl/internal/store"
)

type fakeStudio struct{}

func (fakeStudio) Process(_ context.Context, _, ref string) (domain.StudioResult, error) {
	return domain.StudioResult{Accepted: true, Photo: domain.ProcessedPhoto{Ref: ref, Category: "otro", Score: 70}}, nil
}

type fakePublisher struct{ results []domain.PublishResult }

func (p *fakePublisher) Publish(context.Context, *domain.CaptureRecord) ([]domain.PublishResult, error) {
	return p.results, nil
}

func testGateway(t *testing.T, pub domain.Publisher) (*Gateway, *bus.InMemoryBus, domain.CaptureStore, func()) {
	t.Helper()
	if pub == nil {
		pub = &fakePublisher{results: []domain.PublishResult{{Destination: "papaia.cl", Success: true}}}
	}
	b := bus.New(16, nil)
	st := store.NewMemory()
	machine := orchestrator.New(orchestrator.Config{
		Extractor: extract.NewRegexExtractor(),
		Studio:    fakeStudio{},
		Publisher: pub,
	})
	g := New(b, st, machine, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.Run(ctx)
		close(done)
	}()
	return g, b, st, func() {
		cancel()
		<-done
		b.Close()
	}
}

func collectOutbound(b *bus.InMemoryBus, channel string) <-chan domain.OutboundMessage {
	out := make(chan domain.OutboundMessage, 16)
	b.OnOutbound(channel, func(msg domain.OutboundMessage) { out <- msg })
	return out
}

func waitReply(t *testing.T, out <-chan domain.OutboundMessage) domain.OutboundMessage {
	t.Helper()
	select {
	case msg := <-out:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no outbound reply")
		return domain.OutboundMessage{}
	}
}

func TestGateway_FirstContactGetsWelcome(t *testing.T) {
	_, b, st, stop := testGateway(t, nil)
	defer stop()
	out := collectOutbound(b, "whatsapp")

	b.Publish(domain.InboundMessage{Channel: "whatsapp", From: "+56911112222", Kind: domain.KindText, Text: "hola"})

	reply := waitReply(t, out)
	if !strings.Contains(reply.Content, "PAPAIA") {
		t.Fatalf("expected welcome, got %q", reply.Content)
	}

	rec, err := st.Get(context.Background(), "+56911112222")
	if err != nil || rec == nil {
		t.Fatalf("capture not created: %v", err)
	}
	if rec.State != domain.StateReceiving {
		t.Fatalf("expected receiving, got %s", rec.State)
	}
}

func TestGateway_SameAddressIsSerializedInOrder(t *testing.T) {
	_, b, st, stop := testGateway(t, nil)
	defer stop()
	out := collectOutbound(b, "whatsapp")

	addr := "+56911112222"
	b.Publish(domain.InboundMessage{Channel: "whatsapp", From: addr, Kind: domain.KindText, Text: "hola"})
	b.Publish(domain.InboundMessage{Channel: "whatsapp", From: addr, Kind: domain.KindText, Text: "depa 3500 UF, 60m2, 1 baño"})
	b.Publish(domain.InboundMessage{Channel: "whatsapp", From: addr, Kind: domain.KindLocation, Lat: -33.42, Lng: -70.61})

	waitReply(t, out) // welcome
	second := waitReply(t, out)
	if !strings.Contains(second.Content, "dirección") {
		t.Fatalf("second reply should ask for the address: %q", second.Content)
	}
	third := waitReply(t, out)
	if !strings.Contains(third.Content, "todos los datos") {
		t.Fatalf("third reply should confirm completeness: %q", third.Content)
	}

	rec, _ := st.Get(context.Background(), addr)
	if rec.State != domain.StateAwaitingApproval {
		t.Fatalf("expected awaiting_approval, got %s", rec.State)
	}
}

func TestGateway_DistinctAddressesGetDistinctCaptures(t *testing.T) {
	_, b, st, stop := testGateway(t, nil)
	defer stop()
	outWA := collectOutbound(b, "whatsapp")
	outTG := collectOutbound(b, "telegram")

	b.Publish(domain.InboundMessage{Channel: "whatsapp", From: "+56911112222", Kind: domain.KindText, Text: "hola"})
	b.Publish(domain.InboundMessage{Channel: "telegram", From: "777", Kind: domain.KindText, Text: "hola"})

	waitReply(t, outWA)
	waitReply(t, outTG)

	a, _ := st.Get(context.Background(), "+56911112222")
	c, _ := st.Get(context.Background(), "777")
	if a == nil || c == nil || a.ID == c.ID {
		t.Fatalf("captures not isolated: %+v %+v", a, c)
	}
}

func TestGateway_ApproveOutOfBand(t *testing.T) {
	pub := &fakePublisher{results: []domain.PublishResult{
		{Destination: "papaia.cl", Success: true, ID: "L-7"},
		{Destination: "portal-b", Success: true, ID: "B-2"},
	}}
	g, b, st, stop := testGateway(t, pub)
	defer stop()
	out := collectOutbound(b, "whatsapp")

	addr := "+56911112222"
	rec := domain.NewCapture("whatsapp", addr, "")
	rec.SetState(domain.StateAwaitingApproval)
	if err := st.Put(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	results, err := g.Approve(context.Background(), addr)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if len(results) != 2 || results[0].Destination != "papaia.cl" || results[1].Destination != "portal-b" {
		t.Fatalf("results out of order: %+v", results)
	}

	confirmation := waitReply(t, out)
	if !strings.Contains(confirmation.Content, "Publicado") {
		t.Fatalf("expected confirmation, got %q", confirmation.Content)
	}

	got, _ := st.Get(context.Background(), addr)
	if got.State != domain.StateCompleted {
		t.Fatalf("expected completed, got %s", got.State)
	}
}

// auditStore records LogPublish calls on top of the in-memory store.
type auditStore struct {
	domain.CaptureStore
	logged map[string][]domain.PublishResult
}

func (a *auditStore) LogPublish(_ context.Context, captureID string, results []domain.PublishResult) error {
	a.logged[captureID] = results
	return nil
}

func TestGateway_ApprovalWritesPublishLog(t *testing.T) {
	st := &auditStore{CaptureStore: store.NewMemory(), logged: map[string][]domain.PublishResult{}}
	pub := &fakePublisher{results: []domain.PublishResult{
		{Destination: "papaia.cl", Success: true, ID: "L-9"},
		{Destination: "portal-b", Success: false, Error: "status 500"},
	}}
	b := bus.New(4, nil)
	defer b.Close()
	machine := orchestrator.New(orchestrator.Config{
		Extractor: extract.NewRegexExtractor(),
		Studio:    fakeStudio{},
		Publisher: pub,
	})
	g := New(b, st, machine, nil)

	rec := domain.NewCapture("whatsapp", "+56911112222", "")
	rec.SetState(domain.StateAwaitingApproval)
	if err := st.Put(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	if _, err := g.Approve(context.Background(), "+56911112222"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	logged := st.logged[rec.ID]
	if len(logged) != 2 {
		t.Fatalf("expected 2 logged results, got %d", len(logged))
	}
	if logged[0].Destination != "papaia.cl" || logged[1].Error != "status 500" {
		t.Fatalf("unexpected log entries: %+v", logged)
	}
}

func TestGateway_AddressLocksRetireAfterUse(t *testing.T) {
	g, b, _, stop := testGateway(t, nil)
	defer stop()
	out := collectOutbound(b, "whatsapp")

	b.Publish(domain.InboundMessage{Channel: "whatsapp", From: "+56911112222", Kind: domain.KindText, Text: "hola"})
	waitReply(t, out)

	deadline := time.Now().Add(time.Second)
	for {
		g.mu.Lock()
		n := len(g.locks)
		g.mu.Unlock()
		if n == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("%d address locks still registered", n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGateway_ApproveUnknownAddressFails(t *testing.T) {
	g, _, _, stop := testGateway(t, nil)
	defer stop()

	if _, err := g.Approve(context.Background(), "+56999999999"); err == nil {
		t.Fatal("expected error for unknown address")
	}
}
