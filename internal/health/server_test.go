package health

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
)

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		checker    Checker
		wantCode   int
		wantStatus string
		wantDB     string
		wantRPC    string
	}{
		{
			name: "all_ok",
			checker: Checker{
				DBPing:  func(ctx context.Context) error { return nil },
				RPCPing: func(ctx context.Context) error { return nil },
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantDB:     "ok",
			wantRPC:    "ok",
		},
		{
			name: "db_fail",
			checker: Checker{
				DBPing:  func(ctx context.Context) error { return context.DeadlineExceeded },
				RPCPing: func(ctx context.Context) error { return nil },
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "degraded",
			wantDB:     "fail",
			wantRPC:    "ok",
		},
		{
			name: "rpc_fail",
			checker: Checker{
				DBPing:  func(ctx context.Context) error { return nil },
				RPCPing: func(ctx context.Context) error { return context.DeadlineExceeded },
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "degraded",
			wantDB:     "ok",
			wantRPC:    "fail",
		},
		{
			name:       "no_checkers",
			checker:    Checker{},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := Serve(":0", tt.checker)
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = Shutdown(ctx, srv)
			}()

			req := httptest.NewRequest(http.MethodGet, "http://localhost/healthz", nil)
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}

			var resp struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}

			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if tt.wantDB != "" && resp.Checks["db"] != tt.wantDB {
				t.Errorf("db = %q, want %q", resp.Checks["db"], tt.wantDB)
			}
			if tt.wantRPC != "" && resp.Checks["rpc"] != tt.wantRPC {
				t.Errorf("rpc = %q, want %q", resp.Checks["rpc"], tt.wantRPC)
			}
		})
	}
}

type fakeHeadClient struct {
	err error
}

func (f *fakeHeadClient) HeaderByNumber(_ context.Context, _ *big.Int) (*types.Header, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &types.Header{Number: big.NewInt(100)}, nil
}

func TestRPCChecker(t *testing.T) {
	ok := NewRPCChecker(&fakeHeadClient{})
	if err := ok.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}

	down := NewRPCChecker(&fakeHeadClient{err: errors.New("connection refused")})
	if err := down.Ping(context.Background()); err == nil {
		t.Fatalf("expected error from failing endpoint")
	}
}
