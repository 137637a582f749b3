package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

type NominatimGeocoder struct {
	BaseURL     string
	UserAgent   string
	MinInterval time.Duration
	Client      *http.Client

	mu        sync.Mutex
	lastReqAt time.Time
	cache     map[string]nominatimResult
}

type nominatimResult struct {
	DisplayName  string
	Municipality string
}

type nominatimItem struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		City         string `json:"city"`
		Town         string `json:"town"`
		Village      string `json:"village"`
		Municipality string `json:"municipality"`
	} `json:"address"`
}

func (g *NominatimGeocoder) ReverseGeocode(ctx context.Context, lat float64, lon float64) (string, string, error) {
	if g.Client == nil {
		g.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if g.BaseURL == "" {
		g.BaseURL = "https://nominatim.openstreetmap.org"
	}
	if g.UserAgent == "" {
		g.UserAgent = "civiclens-backend"
	}
	if g.MinInterval <= 0 {
		g.MinInterval = time.Second
	}

	// ~11m cache granularity; near-identical pins share one lookup.
	key := fmt.Sprintf("%.4f,%.4f", lat, lon)

	g.mu.Lock()
	if g.cache == nil {
		g.cache = map[string]nominatimResult{}
	}
	if cached, ok := g.cache[key]; ok {
		g.mu.Unlock()
		return cached.DisplayName, cached.Municipality, nil
	}
	sleepFor := time.Until(g.lastReqAt.Add(g.MinInterval))
	if sleepFor > 0 {
		g.mu.Unlock()
		time.Sleep(sleepFor)
		g.mu.Lock()
	}
	g.lastReqAt = time.Now()
	g.mu.Unlock()

	endpoint := fmt.Sprintf("%s/reverse?lat=%f&lon=%f&format=json&addressdetails=1", g.BaseURL, lat, lon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", g.UserAgent)

	resp, err := g.Client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("nominatim http error: %s", resp.Status)
	}

	var item nominatimItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return "", "", err
	}
	result, err := parseNominatimItem(item)
	if err != nil {
		return "", "", err
	}

	g.mu.Lock()
	g.cache[key] = result
	g.mu.Unlock()

	return result.DisplayName, result.Municipality, nil
}

func parseNominatimItem(item nominatimItem) (nominatimResult, error) {
	if item.DisplayName == "" {
		return nominatimResult{}, ErrNotFound
	}
	result := nominatimResult{
		DisplayName:  item.DisplayName,
		Municipality: pickMunicipality(item),
	}
	return result, nil
}

func pickMunicipality(item nominatimItem) string {
	for _, v := range []string{item.Address.City, item.Address.Town, item.Address.Village, item.Address.Municipality} {
		if v != "" {
			return v
		}
	}
	return ""
}
