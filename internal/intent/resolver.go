// Package intent maps user queries to assistant replies.
//
// Resolution tries keyword rules in a fixed priority order, then composes a
// generic capabilities reply. An optional remote generator may replace the
// local answer for selected message categories.
package intent

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/procurevoice/internal/fingerprint"
	"github.com/normanking/procurevoice/internal/lang"
	"github.com/normanking/procurevoice/internal/training"
	"github.com/normanking/procurevoice/internal/voice"
)

// Source records which step produced a reply.
type Source string

const (
	SourceRule      Source = "rule"
	SourceFallback  Source = "fallback"
	SourceGenerated Source = "generated"
)

// ErrEmptyGeneration is returned when the generator answers without text.
var ErrEmptyGeneration = errors.New("generator returned no text")

// Request is one query to resolve.
type Request struct {
	Text        string
	Fingerprint fingerprint.Key
	Lang        lang.Tag
	Context     voice.Context

	// Repeat is set when Fingerprint equals the previous turn's fingerprint.
	Repeat bool
	// Previous holds replies already given for Fingerprint in this session.
	Previous []string
}

// Result is a resolved reply and the context signals found in the query.
type Result struct {
	Text     string
	Patch    voice.Patch
	Source   Source
	Rule     string
	Category Category
}

// GenerateRequest is sent to the remote generator.
type GenerateRequest struct {
	MessageType string `json:"messageType"`
	Prompt      string `json:"prompt"`
}

// GenerateResponse is the remote generator's answer.
type GenerateResponse struct {
	Success bool   `json:"success"`
	Text    string `json:"text"`
}

// Generator produces free-form replies remotely.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
}

// Rand is the randomness used to pick among reply variants.
type Rand interface {
	Intn(n int) int
}

// Config configures a Resolver.
type Config struct {
	Rules []Rule
	Rand  Rand

	Generator           Generator
	GeneratorTimeout    time.Duration
	GeneratorCategories []Category
}

// DefaultConfig returns the built-in rules with no generator.
func DefaultConfig() Config {
	return Config{
		Rules:            DefaultRules(),
		GeneratorTimeout: 4 * time.Second,
	}
}

// Resolver resolves queries. It is safe for concurrent use.
type Resolver struct {
	rules      []Rule
	generator  Generator
	timeout    time.Duration
	categories map[Category]bool
	logger     zerolog.Logger

	randMu sync.Mutex
	rand   Rand

	seedMu sync.RWMutex
	seed   *training.Payload
}

// New creates a resolver.
func New(cfg Config, logger zerolog.Logger) *Resolver {
	if cfg.Rules == nil {
		cfg.Rules = DefaultRules()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.GeneratorTimeout <= 0 {
		cfg.GeneratorTimeout = 4 * time.Second
	}

	categories := make(map[Category]bool, len(cfg.GeneratorCategories))
	for _, c := range cfg.GeneratorCategories {
		categories[c] = true
	}

	return &Resolver{
		rules:      cfg.Rules,
		generator:  cfg.Generator,
		timeout:    cfg.GeneratorTimeout,
		categories: categories,
		rand:       cfg.Rand,
		logger:     logger.With().Str("component", "intent").Logger(),
	}
}

// Seed installs training data used to enrich replies. A nil payload clears
// it.
func (r *Resolver) Seed(p *training.Payload) {
	r.seedMu.Lock()
	defer r.seedMu.Unlock()
	r.seed = p
}

func (r *Resolver) payload() *training.Payload {
	r.seedMu.RLock()
	defer r.seedMu.RUnlock()
	return r.seed
}

// Resolve maps req to a reply. It only fails when ctx is already done.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if req.Lang == "" {
		req.Lang = lang.Default
	}
	if req.Fingerprint.IsBlank() {
		req.Fingerprint = fingerprint.Of(req.Text)
	}

	line := tokenLine(req.Text)
	res := Result{
		Patch:    r.patch(line, req.Fingerprint),
		Category: CategoryGeneral,
	}

	rule, ok := r.match(line)
	if ok {
		res.Rule = rule.Name
		res.Category = rule.Category
	}

	if r.generator != nil && r.categories[res.Category] {
		text, err := r.generate(ctx, req, res.Category)
		if err == nil {
			res.Text = text
			res.Source = SourceGenerated
			return res, nil
		}
		r.logger.Warn().Err(err).Str("category", string(res.Category)).Msg("Remote generation failed, composing locally")
		res.Text = r.pick(variantsFor(fallbackVariants, req.Lang), req)
		res.Source = SourceFallback
		return res, nil
	}

	if ok {
		variants := variantsFor(rule.Variants, req.Lang)
		if p := r.payload(); !p.Empty() && rule.enrich != nil {
			if extra := rule.enrich(p, req, variantLang(rule.Variants, req.Lang)); extra != "" {
				enriched := make([]string, len(variants))
				for i, v := range variants {
					enriched[i] = v + extra
				}
				variants = enriched
			}
		}
		res.Text = r.pick(variants, req)
		res.Source = SourceRule
		return res, nil
	}

	res.Text = r.pick(variantsFor(fallbackVariants, req.Lang), req)
	res.Source = SourceFallback
	return res, nil
}

func (r *Resolver) match(line string) (Rule, bool) {
	for _, rule := range r.rules {
		if containsAny(line, rule.Keywords) {
			return rule, true
		}
	}
	return Rule{}, false
}

// pick chooses a variant. On a repeated query, variants already given for the
// fingerprint are skipped while an unused one remains.
func (r *Resolver) pick(variants []string, req Request) string {
	if len(variants) == 0 {
		return ""
	}
	candidates := variants
	if req.Repeat && len(req.Previous) > 0 {
		given := make(map[string]bool, len(req.Previous))
		for _, p := range req.Previous {
			given[p] = true
		}
		var unused []string
		for _, v := range variants {
			if !given[v] {
				unused = append(unused, v)
			}
		}
		if len(unused) > 0 {
			candidates = unused
		}
	}
	if len(candidates) == 1 {
		return candidates[0]
	}

	r.randMu.Lock()
	i := r.rand.Intn(len(candidates))
	r.randMu.Unlock()
	return candidates[i]
}

// generate calls the remote generator once, retrying at most once. Each
// attempt is bounded by the configured timeout.
func (r *Resolver) generate(ctx context.Context, req Request, category Category) (string, error) {
	greq := GenerateRequest{
		MessageType: string(category),
		Prompt:      buildPrompt(req),
	}

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		text, err := r.generateOnce(ctx, greq)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		r.logger.Debug().Err(err).Int("attempt", attempt).Msg("Generation attempt failed")
	}
	return "", lastErr
}

func (r *Resolver) generateOnce(ctx context.Context, greq GenerateRequest) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		resp GenerateResponse
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := r.generator.Generate(attemptCtx, greq)
		done <- outcome{resp, err}
	}()

	select {
	case <-attemptCtx.Done():
		return "", fmt.Errorf("generation timed out: %w", attemptCtx.Err())
	case out := <-done:
		if out.err != nil {
			return "", out.err
		}
		if !out.resp.Success {
			return "", errors.New("generator reported failure")
		}
		text := strings.TrimSpace(out.resp.Text)
		if text == "" {
			return "", ErrEmptyGeneration
		}
		return text, nil
	}
}

func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\n", req.Lang)
	fmt.Fprintf(&b, "User role: %s\n", req.Context.Role)
	if len(req.Context.Topics) > 0 {
		fmt.Fprintf(&b, "Topics: %s\n", strings.Join(req.Context.Topics, ", "))
	}
	fmt.Fprintf(&b, "Message: %s", req.Text)
	return b.String()
}

// patch collects the context signals in a query.
func (r *Resolver) patch(line string, fp fingerprint.Key) voice.Patch {
	return voice.Patch{
		Role:        detectRole(line),
		Topics:      detectTopics(line),
		Fingerprint: fp,
		Sentiment:   detectSentiment(line),
	}
}

func variantsFor(m map[lang.Tag][]string, tag lang.Tag) []string {
	if v, ok := m[tag]; ok && len(v) > 0 {
		return v
	}
	return m[lang.Default]
}

func variantLang(m map[lang.Tag][]string, tag lang.Tag) lang.Tag {
	if v, ok := m[tag]; ok && len(v) > 0 {
		return tag
	}
	return lang.Default
}
