package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/multivitaminds/signof-sub014/internal/logger"
)

const headerTenantID = "X-Tenant-ID"

type tenantCtxKey struct{}

// TenantID requires the X-Tenant-ID header and stores the tenant in the
// request context. Missing or malformed tenants get 400.
func TenantID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tid := r.Header.Get(headerTenantID)
		switch {
		case tid == "":
			rejectTenant(w, "missing X-Tenant-ID header")
			return
		case !validHeaderID(tid):
			rejectTenant(w, "invalid X-Tenant-ID header")
			return
		}
		ctx := context.WithValue(r.Context(), tenantCtxKey{}, tid)
		ctx = logger.WithTenantID(ctx, tid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TenantIDFromContext returns the tenant ID stored in ctx, or "" if absent.
func TenantIDFromContext(ctx context.Context) string {
	tid, _ := ctx.Value(tenantCtxKey{}).(string)
	return tid
}

func rejectTenant(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = fmt.Fprintf(w, `{"error":%q}`, msg)
}
