// Package training loads the optional market data used to seed assistant
// replies: trending products, market insights and known suppliers.
package training

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNoSource is returned by Open when neither a URL nor a file is configured.
var ErrNoSource = errors.New("no training data source configured")

// Product is a trending product.
type Product struct {
	Name       string `json:"name" yaml:"name"`
	Category   string `json:"category" yaml:"category"`
	PriceRange string `json:"price_range" yaml:"price_range"`
	Trend      string `json:"trend" yaml:"trend"`
}

// Insight is a short market observation about one material or category.
type Insight struct {
	Topic   string `json:"topic" yaml:"topic"`
	Summary string `json:"summary" yaml:"summary"`
}

// Supplier is a supplier known to the portal.
type Supplier struct {
	Name      string   `json:"name" yaml:"name"`
	Location  string   `json:"location" yaml:"location"`
	Materials []string `json:"materials" yaml:"materials"`
	Rating    float64  `json:"rating" yaml:"rating"`
}

// Payload is the whole training data set.
type Payload struct {
	HotProducts    []Product  `json:"hot_products" yaml:"hot_products"`
	MarketInsights []Insight  `json:"market_insights" yaml:"market_insights"`
	Suppliers      []Supplier `json:"suppliers" yaml:"suppliers"`
}

// Empty reports whether p carries no data at all.
func (p *Payload) Empty() bool {
	return p == nil || (len(p.HotProducts) == 0 && len(p.MarketInsights) == 0 && len(p.Suppliers) == 0)
}

// InsightFor returns the first insight about topic.
func (p *Payload) InsightFor(topic string) (Insight, bool) {
	if p == nil {
		return Insight{}, false
	}
	for _, in := range p.MarketInsights {
		if strings.EqualFold(in.Topic, topic) {
			return in, true
		}
	}
	return Insight{}, false
}

// SuppliersOf returns suppliers that list material.
func (p *Payload) SuppliersOf(material string) []Supplier {
	if p == nil {
		return nil
	}
	var out []Supplier
	for _, s := range p.Suppliers {
		for _, m := range s.Materials {
			if strings.EqualFold(m, material) {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// Source fetches a payload.
type Source interface {
	Load(ctx context.Context) (*Payload, error)
}

// Open returns the source for a URL or a file path. The URL wins when both
// are set.
func Open(url, path string, timeout time.Duration) (Source, error) {
	switch {
	case url != "":
		return NewHTTPSource(url, timeout), nil
	case path != "":
		return &FileSource{Path: path}, nil
	}
	return nil, ErrNoSource
}

// HTTPSource fetches a JSON payload over HTTP.
type HTTPSource struct {
	URL        string
	httpClient *http.Client
}

// NewHTTPSource creates a source with its own client timeout.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		URL:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Load implements Source.
func (s *HTTPSource) Load(ctx context.Context) (*Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch training data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("training data request failed: %d - %s", resp.StatusCode, string(body))
	}

	var payload Payload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode training data: %w", err)
	}
	return &payload, nil
}

// FileSource reads a YAML (or JSON) payload from disk.
type FileSource struct {
	Path string
}

// Load implements Source.
func (s *FileSource) Load(ctx context.Context) (*Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read training data: %w", err)
	}
	var payload Payload
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse training data: %w", err)
	}
	return &payload, nil
}

// Shared wraps src so that a successful load is fetched once and reused by
// every caller. Failed loads are retried on the next call.
func Shared(src Source) Source {
	return &sharedSource{src: src}
}

type sharedSource struct {
	src Source

	mu      sync.Mutex
	payload *Payload
}

func (s *sharedSource) Load(ctx context.Context) (*Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payload != nil {
		return s.payload, nil
	}
	p, err := s.src.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.payload = p
	return p, nil
}
