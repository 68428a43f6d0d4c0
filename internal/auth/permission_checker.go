package auth

import "context"

type PermissionChecker interface {
	CanReviewApplications(userPermissions []string) bool
	CanApproveApplications(userPermissions []string) bool
	CanRejectApplications(userPermissions []string) bool
	CanViewAllApplications(userPermissions []string) bool
	HasAnyPermission(userPermissions []string, requiredPermissions []string) bool
	IsReviewer(userPermissions []string) bool
	IsAdmin(userPermissions []string) bool
}

type DefaultPermissionChecker struct{}

func NewPermissionChecker() PermissionChecker {
	return &DefaultPermissionChecker{}
}

func (c *DefaultPermissionChecker) HasPermission(ctx context.Context, userPermissions []string, permission string) (bool, error) {
	return c.HasAnyPermission(userPermissions, []string{permission}), nil
}

func (c *DefaultPermissionChecker) CanReviewApplicationsCtx(ctx context.Context, userPermissions []string) (bool, error) {
	return c.CanReviewApplications(userPermissions), nil
}

func (c *DefaultPermissionChecker) CanApproveApplicationsCtx(ctx context.Context, userPermissions []string) (bool, error) {
	return c.CanApproveApplications(userPermissions), nil
}

func (c *DefaultPermissionChecker) CanRejectApplicationsCtx(ctx context.Context, userPermissions []string) (bool, error) {
	return c.CanRejectApplications(userPermissions), nil
}

func (c *DefaultPermissionChecker) IsReviewerCtx(ctx context.Context, userPermissions []string) (bool, error) {
	return c.IsReviewer(userPermissions), nil
}

func (c *DefaultPermissionChecker) IsAdminCtx(ctx context.Context, userPermissions []string) (bool, error) {
	return c.IsAdmin(userPermissions), nil
}

func (c *DefaultPermissionChecker) CanReviewApplications(userPermissions []string) bool {
	return c.HasAnyPermission(userPermissions, []string{"review_applications", "admin"})
}

func (c *DefaultPermissionChecker) CanApproveApplications(userPermissions []string) bool {
	return c.HasAnyPermission(userPermissions, []string{"approve_applications", "admin"})
}

func (c *DefaultPermissionChecker) CanRejectApplications(userPermissions []string) bool {
	return c.HasAnyPermission(userPermissions, []string{"reject_applications", "admin"})
}

func (c *DefaultPermissionChecker) CanViewAllApplications(userPermissions []string) bool {
	reviewerPerms := []string{"admin", "review_applications", "approve_applications", "reject_applications"}
	return c.HasAnyPermission(userPermissions, reviewerPerms)
}

func (c *DefaultPermissionChecker) HasAnyPermission(userPermissions []string, requiredPermissions []string) bool {
	for _, userPerm := range userPermissions {
		for _, requiredPerm := range requiredPermissions {
			if userPerm == requiredPerm {
				return true
			}
		}
	}
	return false
}

func (c *DefaultPermissionChecker) IsReviewer(userPermissions []string) bool {
	reviewerPerms := []string{"review_applications", "approve_applications", "reject_applications", "admin"}
	return c.HasAnyPermission(userPermissions, reviewerPerms)
}

func (c *DefaultPermissionChecker) IsAdmin(userPermissions []string) bool {
	return c.HasAnyPermission(userPermissions, []string{"admin"})
}
