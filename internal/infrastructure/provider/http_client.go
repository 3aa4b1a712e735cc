package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"elevation_service/internal/domain/model"
)

// HTTPProvider talks to an elevation API using the open-elevation wire
// format: POST {"locations": [...]} -> {"results": [...]}.
type HTTPProvider struct {
	name      string
	endpoint  string
	batchSize int
	accuracy  model.Accuracy
	client    *http.Client
}

type Options struct {
	Name      string
	Endpoint  string
	BatchSize int
	Accuracy  model.Accuracy
	Timeout   time.Duration
}

func NewHTTPProvider(opts Options) *HTTPProvider {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Accuracy == "" {
		opts.Accuracy = model.AccuracyMedium
	}
	return &HTTPProvider{
		name:      opts.Name,
		endpoint:  opts.Endpoint,
		batchSize: opts.BatchSize,
		accuracy:  opts.Accuracy,
		client: &http.Client{
			Timeout: opts.Timeout,
		},
	}
}

func (p *HTTPProvider) Name() string             { return p.name }
func (p *HTTPProvider) BatchSize() int           { return p.batchSize }
func (p *HTTPProvider) Accuracy() model.Accuracy { return p.accuracy }

type location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type lookupRequest struct {
	Locations []location `json:"locations"`
}

type lookupResponse struct {
	Results []model.ProviderPoint `json:"results"`
}

// Lookup resolves one batch. The result has one entry per coordinate, in
// order; an entry without elevation means the provider has no data there.
func (p *HTTPProvider) Lookup(ctx context.Context, coords []model.Coordinate) ([]model.ProviderPoint, error) {
	reqBody := lookupRequest{Locations: make([]location, len(coords))}
	for i, c := range coords {
		reqBody.Locations[i] = location{Latitude: c.Lat, Longitude: c.Lng}
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, p.fail(0, fmt.Errorf("failed to marshal lookup request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, p.fail(0, fmt.Errorf("failed to create lookup request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, p.fail(0, fmt.Errorf("lookup request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, p.fail(resp.StatusCode, fmt.Errorf("unexpected status: %s", bytes.TrimSpace(snippet)))
	}

	var out lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, p.fail(0, fmt.Errorf("failed to decode lookup response: %w", err))
	}
	if len(out.Results) != len(coords) {
		return nil, p.fail(0, fmt.Errorf("malformed response: %d results for %d locations", len(out.Results), len(coords)))
	}
	for i, r := range out.Results {
		if r.Elevation == nil {
			// Not every provider echoes coordinates for empty points.
			out.Results[i].Lat, out.Results[i].Lng = coords[i].Lat, coords[i].Lng
		}
	}
	return out.Results, nil
}

func (p *HTTPProvider) fail(status int, err error) error {
	return &model.ProviderError{Provider: p.name, StatusCode: status, Err: err}
}
