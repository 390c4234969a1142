package audit

import "strings"

// Actions recorded by the account workflows.
const (
	ActionRegisterInit  = "register_init"
	ActionRegister      = "register"
	ActionVerifyEmail   = "verify_email"
	ActionLoginSuccess  = "login_success"
	ActionLoginFailure  = "login_failure"
	ActionLogout        = "logout"
	ActionRefreshReuse  = "refresh_reuse"
	ActionPasswordReset = "password_reset"
	ActionInvite        = "invite"
	ActionApprove       = "approve"
	ActionProfileUpdate = "profile_update"

	ResourceAuth       = "auth"
	ResourceAccount    = "account"
	ResourceInvitation = "invitation"
	ResourceMirror     = "mirror"
)

// ActionResource holds action and resource derived from an HTTP route.
type ActionResource struct {
	Action   string
	Resource string
}

// routeOverrides name routes whose generic derivation would be ambiguous.
var routeOverrides = map[string]ActionResource{
	"POST /api/accounts/{id}/approve": {Action: ActionApprove, Resource: ResourceAccount},
	"POST /api/auth/send-invitation":  {Action: ActionInvite, Resource: ResourceInvitation},
	"PUT /api/auth/profile":           {Action: ActionProfileUpdate, Resource: ResourceAccount},
	"POST /api/auth/logout":           {Action: ActionLogout, Resource: ResourceAuth},
}

// ParseRoute returns action and resource for a method and chi route pattern
// (e.g. POST /api/accounts/{id}/approve). Resource is the first path segment after /api,
// singularized; action is derived from the method unless the route has an override.
func ParseRoute(method, pattern string) ActionResource {
	method = strings.ToUpper(method)
	if ar, ok := routeOverrides[method+" "+pattern]; ok {
		return ar
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(pattern, "/api"), "/"), "/")
	resource := "unknown"
	if len(parts) > 0 && parts[0] != "" {
		resource = strings.TrimSuffix(parts[0], "s")
	}
	return ActionResource{Action: methodToAction(method), Resource: resource}
}

func methodToAction(method string) string {
	switch method {
	case "GET", "HEAD":
		return "get"
	case "POST":
		return "create"
	case "PUT", "PATCH":
		return "update"
	case "DELETE":
		return "delete"
	default:
		return strings.ToLower(method)
	}
}
