// Package sample produces synthetic analytics traffic for demos and load
// testing. Generated events go through the normal write path.
package sample

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/beacon/pkg/events"
	"github.com/platinummonkey/beacon/pkg/observability"
)

// UserPoolSize is the number of distinct synthetic users
const UserPoolSize = 500

// ProgressInterval is how often (in events) progress is logged
const ProgressInterval = 100

// EventTypes are the synthetic event types, drawn uniformly
var EventTypes = []string{
	"page_view", "button_click", "form_submit", "feature_used",
	"user_registered", "purchase_completed", "session_start", "logout",
}

// Pages are the synthetic page URLs
var Pages = []string{"/dashboard", "/pricing", "/features", "/about", "/contact", "/login", "/signup"}

var (
	userAgents = []string{
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 15_0 like Mac OS X)",
	}
	deviceTypes    = []string{"desktop", "mobile", "tablet"}
	browsers       = []string{"Chrome", "Safari", "Firefox", "Edge"}
	countries      = []string{"US", "UK", "CA", "DE", "FR", "JP", "AU"}
	referrers      = []string{"google.com", "facebook.com", "direct", "twitter.com"}
	buttonTexts    = []string{"Sign Up", "Learn More", "Get Started", "Contact Us"}
	positions      = []string{"header", "sidebar", "footer", "main"}
	products       = []string{"Basic Plan", "Pro Plan", "Enterprise Plan"}
	paymentMethods = []string{"credit_card", "paypal", "stripe"}
	signupMethods  = []string{"email", "google", "facebook"}
	plans          = []string{"free", "basic", "pro"}
	referralSource = []string{"organic", "paid_ads", "referral", "social"}
)

// UserID returns the id of the i-th synthetic user (1-based)
func UserID(i int) string {
	return fmt.Sprintf("user_%05d", i)
}

// EventStorer is the write path the generator feeds
type EventStorer interface {
	StoreEvent(ctx context.Context, req events.StoreRequest) (string, error)
}

// Result reports the outcome of a Generate call
type Result struct {
	Requested int `json:"requested"`
	Generated int `json:"generated"`
	Failed    int `json:"failed"`
}

// Generator creates random but plausible events
type Generator struct {
	storer  EventStorer
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// Option customizes a Generator
type Option func(*Generator)

// WithSeed makes the generated sequence reproducible
func WithSeed(seed uint64) Option {
	return func(g *Generator) { g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithLogger sets the generator logger
func WithLogger(logger *observability.Logger) Option {
	return func(g *Generator) { g.logger = logger }
}

// WithMetrics enables generator counters
func WithMetrics(metrics *observability.Metrics) Option {
	return func(g *Generator) { g.metrics = metrics }
}

// WithClock replaces time.Now for the timestamp property
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a Generator writing through storer
func NewGenerator(storer EventStorer, opts ...Option) *Generator {
	g := &Generator{
		storer: storer,
		now:    time.Now,
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = observability.NewNopLogger()
	}
	g.logger = g.logger.WithComponent("sample")
	return g
}

// Generate stores n synthetic events. Individual failures are logged and
// skipped. It stops early only when ctx is done, returning the partial result
// together with the context error.
func (g *Generator) Generate(ctx context.Context, n int) (*Result, error) {
	result := &Result{Requested: n}
	if n <= 0 {
		return result, nil
	}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			g.logger.WithError(err).Errorf("Sample generation stopped after %d/%d events", result.Generated, n)
			return result, fmt.Errorf("sample generation interrupted: %w", err)
		}

		req := g.next()
		if _, err := g.storer.StoreEvent(ctx, req); err != nil {
			result.Failed++
			g.observe("failed")
			g.logger.WithError(err).Errorf("Failed to generate sample event %d", result.Generated+1)
			continue
		}
		result.Generated++
		g.observe("generated")

		if result.Generated%ProgressInterval == 0 {
			g.logger.Infof("Generated %d/%d sample events", result.Generated, n)
		}
	}

	g.logger.WithFields(map[string]interface{}{
		"generated": result.Generated,
		"failed":    result.Failed,
	}).Infof("Successfully generated %d sample events", result.Generated)
	return result, nil
}

func (g *Generator) observe(status string) {
	if g.metrics != nil {
		g.metrics.SampleEventsTotal.WithLabelValues(status).Inc()
	}
}

// next draws one synthetic event
func (g *Generator) next() events.StoreRequest {
	g.mu.Lock()
	defer g.mu.Unlock()

	eventType := pick(g.rng, EventTypes)
	u := uuid.New()
	return events.StoreRequest{
		EventType:  eventType,
		UserID:     UserID(g.rng.IntN(UserPoolSize) + 1),
		SessionID:  fmt.Sprintf("sess_%x", u[:4]),
		Properties: g.properties(eventType),
	}
}

// properties builds the property bag for eventType. Caller holds g.mu.
func (g *Generator) properties(eventType string) map[string]interface{} {
	r := g.rng
	props := map[string]interface{}{
		"timestamp":   events.NewTimestamp(g.now()).String(),
		"user_agent":  pick(r, userAgents),
		"device_type": pick(r, deviceTypes),
		"browser":     pick(r, browsers),
		"country":     pick(r, countries),
	}

	switch eventType {
	case "page_view":
		props["page_url"] = pick(r, Pages)
		props["referrer"] = pick(r, referrers)
		props["load_time"] = uniform2(r, 0.5, 3.0)
	case "button_click":
		props["button_text"] = pick(r, buttonTexts)
		props["page_url"] = pick(r, Pages)
		props["element_position"] = pick(r, positions)
	case "purchase_completed":
		props["revenue"] = uniform2(r, 10.0, 500.0)
		props["currency"] = "USD"
		props["product_name"] = pick(r, products)
		props["payment_method"] = pick(r, paymentMethods)
	case "user_registered":
		props["signup_method"] = pick(r, signupMethods)
		props["plan_selected"] = pick(r, plans)
		props["referral_source"] = pick(r, referralSource)
	}
	return props
}

func pick(r *rand.Rand, options []string) string {
	return options[r.IntN(len(options))]
}

// uniform2 draws from [lo, hi] rounded to 2 decimals
func uniform2(r *rand.Rand, lo, hi float64) float64 {
	return math.Round((lo+r.Float64()*(hi-lo))*100) / 100
}
