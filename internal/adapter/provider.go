package adapter

import (
	"fmt"
	"sync"
	"time"
)

// DataProvider selects the RPC endpoint and keeps a health record for it
type DataProvider interface {
	// GetPrimaryURL returns the primary RPC endpoint URL
	GetPrimaryURL() (string, error)

	// GetCurrentURL returns the currently active RPC endpoint URL
	GetCurrentURL() (string, error)

	// Failover switches to the other endpoint. It fails when only one is configured.
	Failover() error

	// RecordSuccess and RecordFailure feed the active endpoint's record
	RecordSuccess(latency time.Duration)
	RecordFailure(err error)

	// IsHealthy reports whether the active endpoint should keep serving requests
	IsHealthy() bool

	// Health returns a snapshot of the active endpoint's record
	Health() ProviderHealth
}

const (
	endpointPrimary   = "primary"
	endpointSecondary = "secondary"

	// healthWindow is the number of recent outcomes the success rate covers
	healthWindow = 20
	// minWindowSamples is the number of outcomes needed before the rate counts
	minWindowSamples = 10
)

// ProviderHealth describes the active endpoint. URLs are left out since they
// usually carry an API key.
type ProviderHealth struct {
	Endpoint         string        `json:"endpoint"`
	Requests         int64         `json:"requests"`
	Failures         int64         `json:"failures"`
	ConsecutiveFails int           `json:"consecutiveFails"`
	RecentSuccess    float64       `json:"recentSuccessRate"`
	AverageLatency   time.Duration `json:"averageLatency"`
	LastFailure      time.Time     `json:"lastFailure,omitempty"`
	Failovers        int           `json:"failovers"`
	Healthy          bool          `json:"healthy"`
}

// endpointRecord keeps the outcomes seen on one endpoint
type endpointRecord struct {
	url              string
	requests         int64
	failures         int64
	consecutiveFails int
	latency          time.Duration
	lastFailure      time.Time

	recent  [healthWindow]bool
	samples int
	next    int
}

func (e *endpointRecord) record(ok bool) {
	e.requests++
	e.recent[e.next] = ok
	e.next = (e.next + 1) % healthWindow
	if e.samples < healthWindow {
		e.samples++
	}
}

func (e *endpointRecord) recentSuccessRate() float64 {
	if e.samples == 0 {
		return 1
	}
	ok := 0
	for i := 0; i < e.samples; i++ {
		if e.recent[i] {
			ok++
		}
	}
	return float64(ok) / float64(e.samples)
}

// RPCProvider switches between a primary and an optional secondary RPC endpoint
type RPCProvider struct {
	mu sync.RWMutex

	endpoints map[string]*endpointRecord
	active    string
	failovers int

	maxConsecutiveFails int
	minSuccessRate      float64
}

// NewRPCProvider creates a provider starting on the primary endpoint
func NewRPCProvider(primaryURL, secondaryURL string) (*RPCProvider, error) {
	if primaryURL == "" {
		return nil, fmt.Errorf("primary URL cannot be empty")
	}

	endpoints := map[string]*endpointRecord{
		endpointPrimary: {url: primaryURL},
	}
	if secondaryURL != "" {
		endpoints[endpointSecondary] = &endpointRecord{url: secondaryURL}
	}
	return &RPCProvider{
		endpoints:           endpoints,
		active:              endpointPrimary,
		maxConsecutiveFails: 5,
		minSuccessRate:      0.5,
	}, nil
}

// GetPrimaryURL returns the primary RPC endpoint URL
func (p *RPCProvider) GetPrimaryURL() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.endpoints[endpointPrimary].url, nil
}

// GetCurrentURL returns the currently active RPC endpoint URL
func (p *RPCProvider) GetCurrentURL() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.endpoints[p.active].url, nil
}

// Failover makes the other endpoint active. Its failure streak is cleared so
// an endpoint that was abandoned earlier gets a fresh chance.
func (p *RPCProvider) Failover() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := endpointSecondary
	if p.active == endpointSecondary {
		next = endpointPrimary
	}
	rec, ok := p.endpoints[next]
	if !ok {
		return fmt.Errorf("no %s provider configured", next)
	}
	rec.consecutiveFails = 0
	p.active = next
	p.failovers++
	return nil
}

// RecordSuccess records a successful request on the active endpoint
func (p *RPCProvider) RecordSuccess(latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec := p.endpoints[p.active]
	rec.record(true)
	rec.latency += latency
	rec.consecutiveFails = 0
}

// RecordFailure records a failed request on the active endpoint
func (p *RPCProvider) RecordFailure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec := p.endpoints[p.active]
	rec.record(false)
	rec.failures++
	rec.consecutiveFails++
	rec.lastFailure = time.Now()
}

// IsHealthy is false after a run of consecutive failures or when too many of
// the recent requests failed
func (p *RPCProvider) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.healthyLocked(p.endpoints[p.active])
}

func (p *RPCProvider) healthyLocked(rec *endpointRecord) bool {
	if rec.consecutiveFails >= p.maxConsecutiveFails {
		return false
	}
	return rec.samples < minWindowSamples || rec.recentSuccessRate() >= p.minSuccessRate
}

// Health returns a snapshot of the active endpoint's record
func (p *RPCProvider) Health() ProviderHealth {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rec := p.endpoints[p.active]
	var avg time.Duration
	if ok := rec.requests - rec.failures; ok > 0 {
		avg = rec.latency / time.Duration(ok)
	}
	return ProviderHealth{
		Endpoint:         p.active,
		Requests:         rec.requests,
		Failures:         rec.failures,
		ConsecutiveFails: rec.consecutiveFails,
		RecentSuccess:    rec.recentSuccessRate(),
		AverageLatency:   avg,
		LastFailure:      rec.lastFailure,
		Failovers:        p.failovers,
		Healthy:          p.healthyLocked(rec),
	}
}
