package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Metrics tracks accept-loop and connection lifecycle counters
type Metrics struct {
	mu sync.Mutex

	startTime       time.Time
	acceptedTotal   int64
	activeConns     int64
	handshakeErrors int64
	transientErrors int64
	acceptBackoffs  int64
	peerCountries   map[string]int64
}

// Snapshot is a point-in-time copy of all counters
type Snapshot struct {
	UptimeSeconds   float64          `json:"uptime_seconds"`
	AcceptedTotal   int64            `json:"accepted_total"`
	ActiveConns     int64            `json:"active_conns"`
	HandshakeErrors int64            `json:"handshake_errors"`
	TransientErrors int64            `json:"transient_accept_errors"`
	AcceptBackoffs  int64            `json:"accept_backoffs"`
	PeerCountries   map[string]int64 `json:"peer_countries,omitempty"`
}

// New creates an empty metrics collector
func New() *Metrics {
	return &Metrics{
		startTime:     time.Now(),
		peerCountries: make(map[string]int64),
	}
}

// ConnAccepted records a successfully negotiated connection
func (m *Metrics) ConnAccepted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acceptedTotal++
	m.activeConns++
}

// ConnClosed records the end of a negotiated connection
func (m *Metrics) ConnClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeConns--
}

// HandshakeError records a failed TLS negotiation
func (m *Metrics) HandshakeError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handshakeErrors++
}

// AcceptTransient records an accept error retried without delay
func (m *Metrics) AcceptTransient() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transientErrors++
}

// AcceptBackoff records an accept error that triggered the backoff pause
func (m *Metrics) AcceptBackoff() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acceptBackoffs++
}

// RecordPeerCountry counts a connection by the peer's country code
func (m *Metrics) RecordPeerCountry(code string) {
	if code == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peerCountries[code]++
}

// GetSnapshot returns a copy of all counters
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	countries := make(map[string]int64, len(m.peerCountries))
	for k, v := range m.peerCountries {
		countries[k] = v
	}

	return Snapshot{
		UptimeSeconds:   time.Since(m.startTime).Seconds(),
		AcceptedTotal:   m.acceptedTotal,
		ActiveConns:     m.activeConns,
		HandshakeErrors: m.handshakeErrors,
		TransientErrors: m.transientErrors,
		AcceptBackoffs:  m.acceptBackoffs,
		PeerCountries:   countries,
	}
}

// Handler returns an HTTP handler that serves the snapshot as JSON
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.GetSnapshot())
	})
}
