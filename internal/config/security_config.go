// config/security_config.go
package config

type SecurityLevel int

const (
	SecurityPublic SecurityLevel = iota // No authentication
	SecurityAccess                      // Access token required
	SecurityAdmin                       // Access token of the treasury account required
)

// EndpointSecurityConfig maps "METHOD route-template" to the required
// security level. Routes missing from the map require an access token.
var EndpointSecurityConfig = map[string]SecurityLevel{
	// Health
	"GET /healthz": SecurityPublic,

	// Auth - Public
	"POST /api/auth/register": SecurityPublic,
	"POST /api/auth/login":    SecurityPublic,

	// Devices - Public
	"GET /api/devices":      SecurityPublic,
	"GET /api/devices/{id}": SecurityPublic,
	"GET /api/plans":        SecurityPublic,

	// Account - Access Protected
	"GET /api/me":             SecurityAccess,
	"POST /api/me/recharge":   SecurityAccess,
	"POST /api/me/membership": SecurityAccess,

	// Rentals - Access Protected
	"POST /api/rentals":             SecurityAccess,
	"POST /api/devices/{id}/return": SecurityAccess,
	"GET /api/rentals/{id}/quote":   SecurityAccess,
	"GET /api/orders":               SecurityAccess,
	"GET /api/orders/code/{code}":   SecurityAccess,
	"DELETE /api/orders/{id}":       SecurityAccess,

	// Admin - Treasury only
	"GET /api/admin/devices":             SecurityAdmin,
	"POST /api/admin/devices":            SecurityAdmin,
	"PUT /api/admin/devices/{id}":        SecurityAdmin,
	"DELETE /api/admin/devices/{id}":     SecurityAdmin,
	"POST /api/admin/rentals/{id}/close": SecurityAdmin,
	"POST /api/admin/battery-tick":       SecurityAdmin,
	"GET /api/admin/accounts":            SecurityAdmin,
	"GET /api/admin/accounts/{id}":       SecurityAdmin,
	"PUT /api/admin/accounts/{id}":       SecurityAdmin,
	"DELETE /api/admin/accounts/{id}":    SecurityAdmin,
}

// GetSecurityLevel returns the security level for a route
func GetSecurityLevel(route string) SecurityLevel {
	if level, ok := EndpointSecurityConfig[route]; ok {
		return level
	}
	return SecurityAccess
}
