// config/security_config.go
package config

type SecurityLevel int

const (
	SecurityPublic SecurityLevel = iota // No authentication
	SecurityAccess                      // Access token required
	SecurityAdmin                       // Access token with the admin role
)

// EndpointSecurityConfig maps "METHOD path-template" to the required security
// level. Routes missing from the map default to SecurityAccess.
var EndpointSecurityConfig = map[string]SecurityLevel{
	// Probes and gateway callbacks - Public
	"GET /healthz":                   SecurityPublic,
	"POST /api/v1/webhooks/payments": SecurityPublic,

	// Bookings - Access Protected
	"POST /api/v1/bookings":                      SecurityAccess,
	"GET /api/v1/bookings":                       SecurityAccess,
	"GET /api/v1/bookings/{id}":                  SecurityAccess,
	"PATCH /api/v1/bookings/{id}":                SecurityAccess,
	"POST /api/v1/bookings/{id}/request":         SecurityAccess,
	"POST /api/v1/bookings/{id}/cancel":          SecurityAccess,
	"POST /api/v1/bookings/{id}/approve":         SecurityAccess,
	"POST /api/v1/bookings/{id}/reject":          SecurityAccess,
	"POST /api/v1/bookings/{id}/start":           SecurityAccess,
	"POST /api/v1/bookings/{id}/terminate":       SecurityAccess,
	"POST /api/v1/bookings/{id}/close":           SecurityAccess,
	"POST /api/v1/bookings/{id}/payment":         SecurityAccess,
	"POST /api/v1/bookings/{id}/payment/refresh": SecurityAccess,
	"GET /api/v1/bookings/{id}/settlement":       SecurityAccess,
	"GET /api/v1/notifications":                  SecurityAccess,

	// Operations - Admin only
	"POST /api/v1/admin/notifications/retry": SecurityAdmin,
}

// RouteSecurity returns the level for a route, defaulting to SecurityAccess.
func RouteSecurity(method, pathTemplate string) SecurityLevel {
	if level, ok := EndpointSecurityConfig[method+" "+pathTemplate]; ok {
		return level
	}
	return SecurityAccess
}
