package auth

import (
	"context"
	"log/slog"
	"net/http"
)

type PermissionAuthorizer interface {
	HasPermission(ctx context.Context, userPermissions []string, permission string) (bool, error)
	CanReviewApplicationsCtx(ctx context.Context, userPermissions []string) (bool, error)
	CanApproveApplicationsCtx(ctx context.Context, userPermissions []string) (bool, error)
	CanRejectApplicationsCtx(ctx context.Context, userPermissions []string) (bool, error)
	IsReviewerCtx(ctx context.Context, userPermissions []string) (bool, error)
	IsAdminCtx(ctx context.Context, userPermissions []string) (bool, error)
}

type RBACAuthorization struct {
	authorizer PermissionAuthorizer
	logger     *slog.Logger
}

func NewRBACAuthorization(authorizer PermissionAuthorizer, logger *slog.Logger) *RBACAuthorization {
	return &RBACAuthorization{
		authorizer: authorizer,
		logger:     logger,
	}
}

func (ra *RBACAuthorization) Check(next http.HandlerFunc, permission string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok || user == nil {
			ra.logger.Warn("authorization check failed: user not found in context")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		hasAccess, err := ra.authorizer.HasPermission(r.Context(), user.Permissions, permission)
		if err != nil {
			ra.logger.ErrorContext(r.Context(), "authorization check failed", "error", err, "user_id", user.ID, "permission", permission)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		if !hasAccess {
			ra.logger.WarnContext(r.Context(), "access denied: insufficient permissions",
				"user_id", user.ID,
				"required_permission", permission,
				"user_permissions", user.Permissions)
			http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	}
}

func (ra *RBACAuthorization) Middleware(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return ra.Check(next.ServeHTTP, permission)
	}
}

func (ra *RBACAuthorization) requireCheck(
	check func(ctx context.Context, perms []string) (bool, error),
	denyMsg string,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok || user == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			allowed, err := check(r.Context(), user.Permissions)
			if err != nil {
				ra.logger.ErrorContext(r.Context(), "authorization check failed", "error", err, "user_id", user.ID)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			if !allowed {
				ra.logger.WarnContext(r.Context(), denyMsg, "user_id", user.ID)
				http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (ra *RBACAuthorization) RequireReviewApplication() func(http.Handler) http.Handler {
	return ra.requireCheck(ra.authorizer.CanReviewApplicationsCtx, "access denied: cannot review applications")
}

func (ra *RBACAuthorization) RequireApproveApplication() func(http.Handler) http.Handler {
	return ra.requireCheck(ra.authorizer.CanApproveApplicationsCtx, "access denied: cannot approve applications")
}

func (ra *RBACAuthorization) RequireRejectApplication() func(http.Handler) http.Handler {
	return ra.requireCheck(ra.authorizer.CanRejectApplicationsCtx, "access denied: cannot reject applications")
}

func (ra *RBACAuthorization) RequireReviewer() func(http.Handler) http.Handler {
	return ra.requireCheck(ra.authorizer.IsReviewerCtx, "access denied: reviewer permissions required")
}

func (ra *RBACAuthorization) RequireAdmin() func(http.Handler) http.Handler {
	return ra.requireCheck(ra.authorizer.IsAdminCtx, "access denied: admin permissions required")
}
