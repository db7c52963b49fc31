package standard

import (
	"sort"
	"sync"
	"time"
)

// Connectivity status values.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// ConnectionCall represents a single call to a remote service.
type ConnectionCall struct {
	Timestamp time.Time
	Success   bool
	Latency   time.Duration
	Error     string
}

// Connection tracks connectivity to a single remote service.
type Connection struct {
	Service string
	URL     string
	calls   []ConnectionCall
}

// ConnectionStats summarizes the last hour of calls to one service.
type ConnectionStats struct {
	Service      string    `json:"service"`
	URL          string    `json:"url"`
	Status       string    `json:"status"`
	LastCall     time.Time `json:"last_call"`
	LastSuccess  bool      `json:"last_success"`
	TotalCalls   int       `json:"total_calls_1h"`
	SuccessRate  float64   `json:"success_rate_1h"`
	LatencyP50   int64     `json:"latency_p50_ms"`
	LatencyP95   int64     `json:"latency_p95_ms"`
	LatencyP99   int64     `json:"latency_p99_ms"`
	RecentErrors []string  `json:"recent_errors"`
}

// ConnectivityTracker tracks connectivity to the backend services.
type ConnectivityTracker struct {
	mu          sync.Mutex
	connections map[string]*Connection
	now         func() time.Time
}

// NewConnectivityTracker creates a new connectivity tracker.
func NewConnectivityTracker() *ConnectivityTracker {
	return &ConnectivityTracker{
		connections: make(map[string]*Connection),
		now:         time.Now,
	}
}

// TrackSuccess records a successful call.
func (t *ConnectivityTracker) TrackSuccess(service, url string, latency time.Duration) {
	t.track(service, url, ConnectionCall{Success: true, Latency: latency})
}

// TrackFailure records a failed call.
func (t *ConnectivityTracker) TrackFailure(service, url string, latency time.Duration, errorMsg string) {
	t.track(service, url, ConnectionCall{Success: false, Latency: latency, Error: errorMsg})
}

func (t *ConnectivityTracker) track(service, url string, call ConnectionCall) {
	t.mu.Lock()
	defer t.mu.Unlock()

	call.Timestamp = t.now().UTC()
	conn := t.getOrCreateConnection(service, url)
	conn.calls = append(conn.calls, call)

	// Keep only last hour
	t.pruneOldCalls(conn)
}

// getOrCreateConnection returns existing connection or creates new one.
func (t *ConnectivityTracker) getOrCreateConnection(service, url string) *Connection {
	if conn, exists := t.connections[service]; exists {
		conn.URL = url
		return conn
	}

	conn := &Connection{
		Service: service,
		URL:     url,
		calls:   make([]ConnectionCall, 0),
	}
	t.connections[service] = conn
	return conn
}

// pruneOldCalls removes calls older than 1 hour.
func (t *ConnectivityTracker) pruneOldCalls(conn *Connection) {
	oneHourAgo := t.now().Add(-1 * time.Hour)
	for i, call := range conn.calls {
		if call.Timestamp.After(oneHourAgo) {
			conn.calls = conn.calls[i:]
			return
		}
	}
	conn.calls = []ConnectionCall{}
}

// Snapshot returns per-service stats, sorted by service name.
// Services without calls in the last hour are omitted.
func (t *ConnectivityTracker) Snapshot() []ConnectionStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]ConnectionStats, 0, len(t.connections))

	for _, conn := range t.connections {
		t.pruneOldCalls(conn)
		if len(conn.calls) == 0 {
			continue
		}

		var successCount int
		latencies := make([]time.Duration, 0, len(conn.calls))
		recentErrors := make([]string, 0)

		// Newest first for recent errors.
		for i := len(conn.calls) - 1; i >= 0; i-- {
			call := conn.calls[i]
			if call.Success {
				successCount++
			} else if len(recentErrors) < 5 {
				recentErrors = append(recentErrors, call.Error)
			}
			latencies = append(latencies, call.Latency)
		}

		last := conn.calls[len(conn.calls)-1]
		successRate := float64(successCount) / float64(len(conn.calls))

		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

		out = append(out, ConnectionStats{
			Service:      conn.Service,
			URL:          conn.URL,
			Status:       statusFor(successRate),
			LastCall:     last.Timestamp,
			LastSuccess:  last.Success,
			TotalCalls:   len(conn.calls),
			SuccessRate:  successRate,
			LatencyP50:   percentile(latencies, 0.50).Milliseconds(),
			LatencyP95:   percentile(latencies, 0.95).Milliseconds(),
			LatencyP99:   percentile(latencies, 0.99).Milliseconds(),
			RecentErrors: recentErrors,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

func statusFor(successRate float64) string {
	switch {
	case successRate < 0.9:
		return StatusUnhealthy
	case successRate < 0.95:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// percentile returns the p-th percentile of a sorted slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	index := int(float64(len(sorted)-1) * p)
	return sorted[index]
}
