package countries

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://restcountries.com"

// HTTPSource fetches the country list from a restcountries-compatible API.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource builds a source for baseURL (defaults to the public
// restcountries endpoint when empty).
func NewHTTPSource(baseURL string) *HTTPSource {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Fetch retrieves all countries with only the fields the directory needs.
func (s *HTTPSource) Fetch(ctx context.Context) ([]Record, error) {
	url := s.baseURL + "/v3.1/all?fields=name,cca3,idd,flags"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch countries: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch countries: unexpected status %d", resp.StatusCode)
	}
	var records []Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode countries: %w", err)
	}
	return records, nil
}
