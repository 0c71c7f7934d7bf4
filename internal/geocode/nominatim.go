package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

const defaultNominatimURL = "https://nominatim.openstreetmap.org"

// NominatimGeocoder looks up free-text queries against a Nominatim instance. Answers,
// including "not found", are cached for the life of the process; technician regions and
// customer towns repeat a lot.
type NominatimGeocoder struct {
	BaseURL     string
	UserAgent   string
	MinInterval time.Duration
	Client      *http.Client

	once    sync.Once
	cache   *xsync.Map[string, lookup]
	mu      sync.Mutex
	nextReq time.Time
}

type lookup struct {
	res   Result
	found bool
}

type nominatimItem struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Importance  float64 `json:"importance"`
}

func (g *NominatimGeocoder) Geocode(ctx context.Context, query string) (Result, error) {
	g.once.Do(g.init)
	if hit, ok := g.cache.Load(query); ok {
		if !hit.found {
			return Result{}, ErrNotFound
		}
		return hit.res, nil
	}

	if err := g.throttle(ctx); err != nil {
		return Result{}, err
	}
	res, err := g.search(ctx, query)
	switch {
	case errors.Is(err, ErrNotFound):
		g.cache.Store(query, lookup{})
		return Result{}, err
	case err != nil:
		return Result{}, err
	}
	g.cache.Store(query, lookup{res: res, found: true})
	return res, nil
}

// throttle reserves the next request slot. Public Nominatim allows one request per second.
func (g *NominatimGeocoder) throttle(ctx context.Context) error {
	g.mu.Lock()
	now := time.Now()
	slot := g.nextReq
	if slot.Before(now) {
		slot = now
	}
	g.nextReq = slot.Add(g.MinInterval)
	g.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (g *NominatimGeocoder) search(ctx context.Context, query string) (Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("User-Agent", g.UserAgent)

	resp, err := g.Client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("nominatim: unexpected status %s", resp.Status)
	}

	var items []nominatimItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return Result{}, fmt.Errorf("nominatim: decode: %w", err)
	}
	return parseNominatimItems(items)
}

func (g *NominatimGeocoder) init() {
	if g.Client == nil {
		g.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if g.BaseURL == "" {
		g.BaseURL = defaultNominatimURL
	}
	if g.UserAgent == "" {
		g.UserAgent = "hvac-dispatch"
	}
	if g.MinInterval <= 0 {
		g.MinInterval = time.Second
	}
	g.cache = xsync.NewMap[string, lookup]()
}

func parseNominatimItems(items []nominatimItem) (Result, error) {
	if len(items) == 0 {
		return Result{}, ErrNotFound
	}
	top := items[0]
	lat, errLat := strconv.ParseFloat(top.Lat, 64)
	lon, errLon := strconv.ParseFloat(top.Lon, 64)
	if err := errors.Join(errLat, errLon); err != nil {
		return Result{}, fmt.Errorf("nominatim: coordinates: %w", err)
	}
	if lat == 0 && lon == 0 && top.DisplayName == "" {
		return Result{}, ErrNotFound
	}
	return Result{Lat: lat, Lon: lon, DisplayName: top.DisplayName, Confidence: top.Importance}, nil
}
