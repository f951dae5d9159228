package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"

	"tlsgate/internal/listener"
	"tlsgate/internal/metrics"
)

// API provides administrative endpoints for a running server
type API struct {
	addr      string
	server    *http.Server
	metrics   *metrics.Metrics
	listeners map[string]*listener.Listener
	mu        sync.RWMutex
	startTime time.Time
	version   string
}

// Config configures the Admin API
type Config struct {
	Addr    string
	Metrics *metrics.Metrics
	Version string
}

// New creates a new Admin API
func New(cfg Config) *API {
	api := &API{
		addr:      cfg.Addr,
		metrics:   cfg.Metrics,
		listeners: make(map[string]*listener.Listener),
		startTime: time.Now(),
		version:   cfg.Version,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", api.handleHealth)
	mux.HandleFunc("/status", api.handleStatus)
	mux.HandleFunc("/metrics", api.handleMetrics)
	mux.HandleFunc("/listeners", api.handleListeners)

	api.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return api
}

// RegisterListener registers a listener for status reporting
func (a *API) RegisterListener(name string, l *listener.Listener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners[name] = l
}

// Start starts the Admin API server
func (a *API) Start() error {
	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't crash
		}
	}()
	return nil
}

// Stop stops the Admin API server
func (a *API) Stop(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

// StatusResponse represents the status endpoint response
type StatusResponse struct {
	Status     string      `json:"status"`
	Version    string      `json:"version"`
	Uptime     string      `json:"uptime"`
	GoVersion  string      `json:"go_version"`
	NumCPU     int         `json:"num_cpu"`
	Goroutines int         `json:"goroutines"`
	Memory     MemoryStats `json:"memory"`
}

// MemoryStats contains memory statistics
type MemoryStats struct {
	Alloc      uint64 `json:"alloc_bytes"`
	TotalAlloc uint64 `json:"total_alloc_bytes"`
	Sys        uint64 `json:"sys_bytes"`
	NumGC      uint32 `json:"num_gc"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := StatusResponse{
		Status:     "running",
		Version:    a.version,
		Uptime:     time.Since(a.startTime).Round(time.Second).String(),
		GoVersion:  runtime.Version(),
		NumCPU:     runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
		Memory: MemoryStats{
			Alloc:      mem.Alloc,
			TotalAlloc: mem.TotalAlloc,
			Sys:        mem.Sys,
			NumGC:      mem.NumGC,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if a.metrics == nil {
		http.Error(w, "Metrics not available", http.StatusServiceUnavailable)
		return
	}

	a.metrics.Handler().ServeHTTP(w, r)
}

// ListenersResponse represents the listeners endpoint response
type ListenersResponse struct {
	Listeners map[string]ListenerStatus `json:"listeners"`
}

// ListenerStatus reports one listener's bind state
type ListenerStatus struct {
	Addr  string `json:"addr,omitempty"`
	Bound bool   `json:"bound"`
}

func (a *API) handleListeners(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	resp := ListenersResponse{
		Listeners: make(map[string]ListenerStatus),
	}

	for name, l := range a.listeners {
		addr := l.Addr()
		resp.Listeners[name] = ListenerStatus{
			Addr:  addr,
			Bound: addr != "",
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
