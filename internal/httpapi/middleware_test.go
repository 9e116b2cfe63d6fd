package httpapi

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestLoggerRecordsStatusAndRequestID(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, nil))

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/payments/create-order", nil)
	req.Header.Set(RequestIDHeader, "rid-42")
	rec := httptest.NewRecorder()

	WithRequestID(RequestLogger(logger, handler)).ServeHTTP(rec, req)

	out := buf.String()
	for _, want := range []string{"method=POST", "path=/payments/create-order", "status=201", "request_id=rid-42"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in log, got %q", want, out)
		}
	}
	if got := rec.Header().Get(RequestIDHeader); got != "rid-42" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
}

func TestWithRequestIDGenerates(t *testing.T) {
	t.Parallel()

	var seen string
	handler := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if seen == "" {
		t.Fatalf("expected generated request id in context")
	}
	if rec.Header().Get(RequestIDHeader) != seen {
		t.Fatalf("expected response header %q, got %q", seen, rec.Header().Get(RequestIDHeader))
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name        string
		allowed     []string
		origin      string
		preflight   bool
		wantStatus  int
		wantAllowed string
	}{
		{name: "no origin", allowed: []string{"https://app.example"}, wantStatus: http.StatusOK},
		{name: "wildcard", allowed: []string{"*"}, origin: "https://x.example", wantStatus: http.StatusOK, wantAllowed: "*"},
		{name: "listed", allowed: []string{"https://app.example"}, origin: "https://app.example", wantStatus: http.StatusOK, wantAllowed: "https://app.example"},
		{name: "listed preflight", allowed: []string{"https://app.example"}, origin: "https://app.example", preflight: true, wantStatus: http.StatusNoContent, wantAllowed: "https://app.example"},
		{name: "unlisted simple request", allowed: []string{"https://app.example"}, origin: "https://evil.example", wantStatus: http.StatusOK},
		{name: "unlisted preflight", allowed: []string{"https://app.example"}, origin: "https://evil.example", preflight: true, wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			method := http.MethodGet
			if tt.preflight {
				method = http.MethodOptions
			}
			req := httptest.NewRequest(method, "/payments/create-order", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()

			CORS(tt.allowed, next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllowed {
				t.Fatalf("expected allow origin %q, got %q", tt.wantAllowed, got)
			}
		})
	}
}
