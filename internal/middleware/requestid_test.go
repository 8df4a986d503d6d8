package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/multivitaminds/signof-sub014/internal/logger"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "generated when absent"},
		{name: "caller id kept", incoming: "run-42:step.7", keep: true},
		{name: "whitespace replaced", incoming: "id with spaces"},
		{name: "newline replaced", incoming: "abc\ninjected=1"},
		{name: "oversized replaced", incoming: strings.Repeat("a", maxHeaderIDLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inCtx string
			handler := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				inCtx = logger.RequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			if tt.incoming != "" {
				req.Header.Set(headerRequestID, tt.incoming)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get(headerRequestID)
			if got != inCtx {
				t.Fatalf("response id %q differs from context id %q", got, inCtx)
			}
			if tt.keep {
				if got != tt.incoming {
					t.Fatalf("expected %q, got %q", tt.incoming, got)
				}
				return
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Fatalf("expected a generated uuid, got %q", got)
			}
		})
	}
}
