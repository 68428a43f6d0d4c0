package auth

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
)

var ErrForbidden = errors.New("forbidden")

// ABACPolicy is a small attribute-based access control helper.
type ABACPolicy struct{}

func (p *ABACPolicy) Allow(userAttrs map[string]string, resourceOwnerID string, action string) bool {
	if role, ok := userAttrs["role"]; ok && role == "admin" {
		return true
	}

	// Permission-based access
	if permissions, ok := userAttrs["permissions"]; ok {
		switch action {
		case "read":
			if strings.Contains(permissions, "review_applications") {
				return true
			}
		case "approve":
			if strings.Contains(permissions, "approve_applications") {
				return true
			}
		case "reject":
			if strings.Contains(permissions, "reject_applications") {
				return true
			}
		}
		if strings.Contains(permissions, "admin") {
			return true
		}
	}

	// Owner access for basic operations
	if uid, ok := userAttrs["user_id"]; ok && uid == resourceOwnerID {
		return action == "read" || action == "write" || action == "update"
	}

	return false
}

// CanViewApplication checks whether the user can view the application owned by ownerID.
func (p *ABACPolicy) CanViewApplication(u *User, ownerID int64) error {
	attrs := extractUserAttributes(u)
	if attrs["user_id"] == "" {
		return ErrForbidden
	}

	if p.Allow(attrs, strconv.FormatInt(ownerID, 10), "read") {
		return nil
	}
	return ErrForbidden
}

func extractUserAttributes(u *User) map[string]string {
	if u == nil {
		return map[string]string{}
	}

	return map[string]string{
		"user_id":     strconv.FormatInt(u.ID, 10),
		"permissions": strings.Join(u.Permissions, ","),
	}
}

// RequireABAC is a generic middleware wrapper that runs an ABAC check function.
func RequireABAC(abac *ABACPolicy, check func(a *ABACPolicy, u *User, r *http.Request) error) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := UserFromContext(r.Context())
			if !ok || u == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if err := check(abac, u, r); err != nil {
				if errors.Is(err, ErrForbidden) {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireCanViewApplication builds a middleware that checks if the
// authenticated user can view the application in the route.
func RequireCanViewApplication(db *sqlx.DB, abac *ABACPolicy) func(next http.Handler) http.Handler {
	return RequireABAC(abac, func(a *ABACPolicy, u *User, r *http.Request) error {
		idStr := chi.URLParam(r, "id")
		if idStr == "" {
			return ErrForbidden
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return err
		}

		var ownerID int64
		err = db.GetContext(r.Context(), &ownerID, "SELECT user_id FROM applications WHERE id=$1", id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrForbidden
			}
			return err
		}
		return a.CanViewApplication(u, ownerID)
	})
}
