package shared

import (
	"context"
	"net/http"
	"strconv"
)

// Role enumerates the roles the identity provider hands us.
type Role string

const (
	// RoleOwner has tenant-wide scope.
	RoleOwner Role = "OWNER"
	// RoleAdmin has tenant-wide scope.
	RoleAdmin Role = "ADMIN"
	// RoleManager is scoped to a single outlet.
	RoleManager Role = "MANAGER"
	// RoleStaff is scoped to a single outlet.
	RoleStaff Role = "STAFF"
)

// Identity describes the acting user as supplied by the external
// identity provider. It travels on the request context and is used for
// authorization checks and audit attribution only.
type Identity struct {
	UserID   int64
	Name     string
	Role     Role
	OutletID int64
	OrgID    int64
}

// IsOrgWide reports whether the role carries tenant-wide scope.
func (id Identity) IsOrgWide() bool {
	return id.Role == RoleOwner || id.Role == RoleAdmin
}

// CanAccessOutlet reports whether the actor may operate on the outlet:
// tenant-wide roles always, otherwise only their own outlet.
func (id Identity) CanAccessOutlet(outletID int64) bool {
	if id.IsOrgWide() {
		return true
	}
	return id.OutletID != 0 && id.OutletID == outletID
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context. The zero
// Identity is returned when no provider middleware ran.
func IdentityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityContextKey{}).(Identity)
	return id
}

// IdentityMiddleware reads the identity headers set by the upstream
// session gateway. Requests without a user id are rejected; this
// service never authenticates on its own.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := strconv.ParseInt(r.Header.Get("X-User-Id"), 10, 64)
		if userID == 0 {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		outletID, _ := strconv.ParseInt(r.Header.Get("X-Outlet-Id"), 10, 64)
		orgID, _ := strconv.ParseInt(r.Header.Get("X-Org-Id"), 10, 64)
		id := Identity{
			UserID:   userID,
			Name:     r.Header.Get("X-User-Name"),
			Role:     Role(r.Header.Get("X-User-Role")),
			OutletID: outletID,
			OrgID:    orgID,
		}
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
	})
}
