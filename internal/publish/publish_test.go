package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chuchurex/papaia.cl/internal/domain"
)

func writeDest(t *testing.T, dir, file, name, url string, enabled bool) {
	t.Helper()
	content := "name: " + name + "\nurl: " + url + "\napiKey: test-key\nenabled: "
	if enabled {
		content += "true\n"
	} else {
		content += "false\n"
	}
	if err := os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDestinations_LexicalOrderSkippingDisabled(t *testing.T) {
	dir := t.TempDir()
	writeDest(t, dir, "20-portal-b.yaml", "portal-b", "https://b.example/api", true)
	writeDest(t, dir, "10-papaia.yaml", "papaia.cl", "https://papaia.cl/api", true)
	writeDest(t, dir, "30-off.yaml", "portal-off", "https://off.example/api", false)

	dests, err := LoadDestinations(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(dests) != 2 {
		t.Fatalf("expected 2 destinations, got %d", len(dests))
	}
	if dests[0].Name != "papaia.cl" || dests[1].Name != "portal-b" {
		t.Fatalf("wrong order: %s, %s", dests[0].Name, dests[1].Name)
	}
}

func TestLoadDestinations_RejectsIncomplete(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("name: solo-nombre\nenabled: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDestinations(dir); err == nil {
		t.Fatal("expected error for destination without url")
	}
}

func completedCapture() *domain.CaptureRecord {
	rec := domain.NewCapture("whatsapp", "+56911112222", "")
	amount, currency := 3500.0, "UF"
	total := 60.0
	baths := 1
	district := "Providencia"
	ptype := "departamento"
	rec.Fields = domain.PropertyFields{
		Type:      &ptype,
		Price:     &domain.Price{Amount: &amount, Currency: &currency},
		Area:      &domain.Area{Total: &total},
		Bathrooms: &baths,
		Address:   &domain.Address{District: &district},
	}
	return rec
}

func TestPublish_FanOutKeepsOrderAndSurvivesFailures(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", got)
		}
		var listing domain.Listing
		if err := json.NewDecoder(r.Body).Decode(&listing); err != nil {
			t.Errorf("bad listing payload: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "L-42", "url": "https://papaia.cl/p/L-42"})
	}))
	defer ok.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer broken.Close()

	p := NewHTTPPublisher(PublisherConfig{
		Destinations: []Destination{
			{Name: "papaia.cl", URL: ok.URL, APIKey: "test-key", Enabled: true},
			{Name: "portal-b", URL: broken.URL, APIKey: "test-key", Enabled: true},
		},
	})

	results, err := p.Publish(context.Background(), completedCapture())
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Success || results[0].ID != "L-42" {
		t.Fatalf("first destination should succeed: %+v", results[0])
	}
	if results[1].Success || !strings.Contains(results[1].Error, "status 500") {
		t.Fatalf("second destination should fail with status: %+v", results[1])
	}
}

func TestPublish_NoDestinationsIsError(t *testing.T) {
	p := NewHTTPPublisher(PublisherConfig{})
	if _, err := p.Publish(context.Background(), completedCapture()); err != ErrNoDestinations {
		t.Fatalf("expected ErrNoDestinations, got %v", err)
	}
}

func TestFallbackCopy_UsesCapturedFields(t *testing.T) {
	rec := completedCapture()
	copy := FallbackCopy(rec.Fields)

	if !strings.Contains(copy.Title, "Departamento") {
		t.Fatalf("title missing type: %q", copy.Title)
	}
	if !strings.Contains(copy.Title, "Providencia") {
		t.Fatalf("title missing district: %q", copy.Title)
	}
	if !strings.Contains(copy.Description, "60 m²") {
		t.Fatalf("description missing area: %q", copy.Description)
	}
}

func TestNearbyHighlights_DegradesOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	pc := NewPlacesClient(srv.URL, "key", nil)
	if got := pc.NearbyHighlights(context.Background(), domain.Coordinates{Lat: -33.42, Lng: -70.61}); got != nil {
		t.Fatalf("expected nil on failure, got %v", got)
	}
}

func TestNearbyHighlights_NearestFirstCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"name": "Los Leones", "types": []string{"subway_station"},
					"geometry": map[string]any{"location": map[string]float64{"lat": -33.421, "lng": -70.61}}},
				{"name": "Bustamante", "types": []string{"park"},
					"geometry": map[string]any{"location": map[string]float64{"lat": -33.4201, "lng": -70.61}}},
				{"name": "Sin etiqueta", "types": []string{"casino"},
					"geometry": map[string]any{"location": map[string]float64{"lat": -33.42, "lng": -70.61}}},
			},
		})
	}))
	defer srv.Close()

	pc := NewPlacesClient(srv.URL, "key", nil)
	got := pc.NearbyHighlights(context.Background(), domain.Coordinates{Lat: -33.42, Lng: -70.61})
	if len(got) != 2 {
		t.Fatalf("expected 2 highlights, got %v", got)
	}
	if !strings.Contains(got[0], "Parque Bustamante") {
		t.Fatalf("nearest should come first: %v", got)
	}
	if !strings.Contains(got[1], "Metro Los Leones") {
		t.Fatalf("expected metro second: %v", got)
	}
}
