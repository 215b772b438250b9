package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Checker bundles the probes reported by /healthz.
type Checker struct {
	DBPing  func(ctx context.Context) error
	RPCPing func(ctx context.Context) error
}

// Serve starts a minimal /healthz handler.
func Serve(addr string, checker Checker) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", checker.handle)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

func (c Checker) handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	checks := map[string]string{}
	probe := func(name string, ping func(context.Context) error) {
		if ping == nil {
			return
		}
		if err := ping(ctx); err != nil {
			checks[name] = "fail"
			status = "degraded"
			code = http.StatusServiceUnavailable
			return
		}
		checks[name] = "ok"
	}
	probe("db", c.DBPing)
	probe("rpc", c.RPCPing)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": checks,
	})
}

// Shutdown gracefully shuts down the health server.
func Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
