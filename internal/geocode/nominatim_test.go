package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseNominatimItems(t *testing.T) {
	items := []nominatimItem{
		{
			Lat:         "52.2297",
			Lon:         "21.0122",
			DisplayName: "Warszawa, Polska",
			Importance:  0.72,
		},
	}
	res, err := parseNominatimItems(items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Lat != 52.2297 || res.Lon != 21.0122 {
		t.Fatalf("unexpected coordinates: %+v", res)
	}
	if res.DisplayName != "Warszawa, Polska" {
		t.Fatalf("unexpected display name: %s", res.DisplayName)
	}
	if _, err := parseNominatimItems(nil); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNominatimGeocoderCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"lat":"50.0647","lon":"19.9450","display_name":"Kraków","importance":0.8}]`))
	}))
	defer srv.Close()

	g := &NominatimGeocoder{BaseURL: srv.URL, UserAgent: "test-agent", MinInterval: time.Millisecond}
	for i := 0; i < 3; i++ {
		res, err := g.Geocode(context.Background(), "Poland, Kraków")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Lat != 50.0647 {
			t.Fatalf("unexpected result: %+v", res)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one upstream call, got %d", hits.Load())
	}
}

func TestNominatimGeocoderCachesMisses(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("q") != "Poland, Nowhere" {
			t.Errorf("unexpected query %q", r.URL.Query().Get("q"))
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	g := &NominatimGeocoder{BaseURL: srv.URL, MinInterval: time.Millisecond}
	for i := 0; i < 2; i++ {
		if _, err := g.Geocode(context.Background(), "Poland, Nowhere"); err != ErrNotFound {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("expected the miss to be cached, got %d upstream calls", hits.Load())
	}
}

func TestNominatimGeocoderUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := &NominatimGeocoder{BaseURL: srv.URL, MinInterval: time.Millisecond}
	if _, err := g.Geocode(context.Background(), "x"); err == nil || err == ErrNotFound {
		t.Fatalf("expected an upstream error, got %v", err)
	}
}

func TestNominatimGeocoderHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	g := &NominatimGeocoder{BaseURL: srv.URL, MinInterval: time.Hour}
	if _, err := g.Geocode(context.Background(), "a"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := g.Geocode(ctx, "b"); err != context.DeadlineExceeded {
		t.Fatalf("expected the rate limit wait to be cancelled, got %v", err)
	}
}
