package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ratsinfo/oparl-pipeline/internal/model"
)

func TestGeocoder_gazetteerCoordinatesNeverOverwritten(t *testing.T) {
	g, err := NewGeocoder(Config{})
	if err != nil {
		t.Fatalf("NewGeocoder: %v", err)
	}
	loc := &model.Location{CanonicalName: "Ludwigstraße", Lat: 48.3705, Lon: 10.8978, HasCoords: true}
	if err := g.Resolve(context.Background(), loc); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if loc.Provenance != model.ProvenanceGazetteer {
		t.Fatalf("expected gazetteer provenance, got %s", loc.Provenance)
	}
	if loc.Lat != 48.3705 || loc.Lon != 10.8978 {
		t.Fatalf("gazetteer coordinates were overwritten: %+v", loc)
	}
}

func TestGeocoder_noServiceURLLeavesUnresolved(t *testing.T) {
	g, err := NewGeocoder(Config{})
	if err != nil {
		t.Fatalf("NewGeocoder: %v", err)
	}
	loc := &model.Location{CanonicalName: "Rathausplatz"}
	if err := g.Resolve(context.Background(), loc); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if loc.Provenance != model.ProvenanceUnresolved || loc.HasCoords {
		t.Fatalf("expected unresolved location, got %+v", loc)
	}
}

func TestGeocoder_remoteResolutionIsCachedAndIdempotent(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(geocodeResponse{Lat: 48.37, Lon: 10.9, Found: true})
	}))
	defer server.Close()

	g, err := NewGeocoder(Config{ServiceURL: server.URL})
	if err != nil {
		t.Fatalf("NewGeocoder: %v", err)
	}

	for i := 0; i < 3; i++ {
		loc := &model.Location{CanonicalName: "Rathausplatz", Category: model.CategoryStreet}
		if err := g.Resolve(context.Background(), loc); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if !loc.HasCoords || loc.Provenance != model.ProvenanceRemoteGeocoder {
			t.Fatalf("expected resolved remote location, got %+v", loc)
		}
	}

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly one remote call across repeat resolutions, got %d", calls)
	}
}

func TestGeocoder_clientErrorIsUnresolvedNotFatalAndNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	g, err := NewGeocoder(Config{ServiceURL: server.URL, Retries: 3})
	if err != nil {
		t.Fatalf("NewGeocoder: %v", err)
	}
	loc := &model.Location{CanonicalName: "Irgendwo"}
	if err := g.Resolve(context.Background(), loc); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if loc.HasCoords || loc.Provenance != model.ProvenanceUnresolved {
		t.Fatalf("expected a 4xx response to leave the location unresolved, got %+v", loc)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected a 4xx response to not be retried, got %d calls", calls)
	}
}

func TestGeocoder_persistentServerErrorIsUnresolvedNotFatal(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	g, err := NewGeocoder(Config{ServiceURL: server.URL, Retries: 3})
	if err != nil {
		t.Fatalf("NewGeocoder: %v", err)
	}
	loc := &model.Location{CanonicalName: "Irgendwo"}
	if err := g.Resolve(context.Background(), loc); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if loc.HasCoords || loc.Provenance != model.ProvenanceUnresolved {
		t.Fatalf("expected a persistent 5xx to leave the location unresolved, got %+v", loc)
	}
	if atomic.LoadInt32(&calls) < 2 {
		t.Fatalf("expected a 5xx response to be retried before giving up, got %d calls", calls)
	}
}

func TestGeocoder_outOfRangeRemoteResultTreatedAsUnresolved(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(geocodeResponse{Lat: 999, Lon: 999, Found: true})
	}))
	defer server.Close()

	g, err := NewGeocoder(Config{ServiceURL: server.URL})
	if err != nil {
		t.Fatalf("NewGeocoder: %v", err)
	}
	loc := &model.Location{CanonicalName: "Irgendwo"}
	if err := g.Resolve(context.Background(), loc); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if loc.HasCoords || loc.Provenance != model.ProvenanceUnresolved {
		t.Fatalf("expected out-of-range coordinates to be rejected, got %+v", loc)
	}
}
