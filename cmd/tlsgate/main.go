package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"tlsgate/internal/admin"
	"tlsgate/internal/config"
	"tlsgate/internal/geoip"
	"tlsgate/internal/httpconn"
	"tlsgate/internal/listener"
	"tlsgate/internal/logging"
	"tlsgate/internal/metrics"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "tlsgate.yaml", "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "tlsgate: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return err
	}

	m := metrics.New()

	var db *geoip.DB
	if cfg.GeoIPDB != "" {
		db, err = geoip.Open(cfg.GeoIPDB)
		if err != nil {
			logger.Warn("GeoIP database unavailable, connection logs will not be annotated", map[string]interface{}{
				"path":  cfg.GeoIPDB,
				"error": err.Error(),
			})
		} else {
			defer db.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var api *admin.API
	if cfg.Admin.Addr != "" {
		api = admin.New(admin.Config{
			Addr:    cfg.Admin.Addr,
			Metrics: m,
			Version: version,
		})
		api.Start()
		defer api.Stop(context.Background())
		logger.Info("admin API listening", map[string]interface{}{"addr": cfg.Admin.Addr})
	}

	handler := &connLogger{
		next:    httpconn.New(http.HandlerFunc(serveStatus), logger),
		db:      db,
		metrics: m,
		logger:  logger,
	}

	errCh := make(chan error, len(cfg.Listeners))
	var wg sync.WaitGroup

	for i, lc := range cfg.Listeners {
		l, err := listener.Build().
			Addrs(lc.Addrs...).
			Cert(lc.Cert).
			Key(lc.Key).
			Logger(logger).
			Metrics(m).
			Finish()
		if err != nil {
			return fmt.Errorf("listener %d: %w", i, err)
		}

		if api != nil {
			api.RegisterListener(fmt.Sprintf("listener-%d", i), l)
		}

		logger.Info("starting listener", map[string]interface{}{
			"addrs": lc.Addrs,
			"cert":  lc.Cert,
		})

		wg.Add(1)
		go func(i int, l *listener.Listener) {
			defer wg.Done()
			if err := l.Serve(ctx, handler); err != nil {
				errCh <- fmt.Errorf("listener %d: %w", i, err)
			}
		}(i, l)
	}

	go func() {
		wg.Wait()
		close(errCh)
	}()

	// A fatal error on any listener brings the whole process down;
	// signal-driven shutdown drains with a nil error.
	var firstErr error
	for err := range errCh {
		if firstErr == nil {
			firstErr = err
			stop()
		}
	}
	return firstErr
}

// connLogger annotates and logs every negotiated connection before
// delegating to the HTTP layer.
type connLogger struct {
	next    listener.Handler
	db      *geoip.DB
	metrics *metrics.Metrics
	logger  *logging.Logger
}

func (c *connLogger) HandleConn(ctx context.Context, stream *listener.Stream, info listener.ConnInfo) error {
	geo := c.db.LookupAddr(info.PeerAddr)
	c.metrics.RecordPeerCountry(geo.CountryCode)

	c.logger.LogConn(logging.ConnLog{
		Event:     "conn_open",
		LocalAddr: addrString(info.LocalAddr),
		PeerAddr:  addrString(info.PeerAddr),
		Scheme:    info.Scheme,
		Country:   geo.CountryCode,
	})

	return c.next.HandleConn(ctx, stream, info)
}

// serveStatus is the built-in endpoint: it reports what the listener
// knows about the request's connection.
func serveStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{
		"method": r.Method,
		"path":   r.URL.Path,
	}
	if info, ok := httpconn.Info(r.Context()); ok {
		resp["scheme"] = info.Scheme
		resp["peer_addr"] = addrString(info.PeerAddr)
		resp["local_addr"] = addrString(info.LocalAddr)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
