package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"powerbank-rental-backend/internal/config"
	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/jobs"
	"powerbank-rental-backend/internal/security"
	"powerbank-rental-backend/internal/service"
)

// BatteryTicker runs one battery pass on demand
type BatteryTicker interface {
	TickBatteries(ctx context.Context) jobs.BatteryTickReport
}

// Handler serves the REST API
type Handler struct {
	accounts  service.AccountService
	inventory service.InventoryService
	rentals   service.RentalService
	batteries BatteryTicker
}

func NewHandler(accounts service.AccountService, inventory service.InventoryService, rentals service.RentalService, batteries BatteryTicker) *Handler {
	return &Handler{accounts: accounts, inventory: inventory, rentals: rentals, batteries: batteries}
}

// NewRouter wires every route behind request-id, rate limiting, auth and
// the public response cache, in that order. A zero rate or cache TTL turns
// that layer off.
func NewRouter(h *Handler, tokens security.TokenManager, cfg config.ServerConfig) *mux.Router {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "route not found"})
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})

	router.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)

	router.HandleFunc("/api/auth/register", h.Register).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", h.Login).Methods(http.MethodPost)

	router.HandleFunc("/api/devices", h.ListDevices).Methods(http.MethodGet)
	router.HandleFunc("/api/devices/{id}", h.GetDevice).Methods(http.MethodGet)
	router.HandleFunc("/api/devices/{id}/return", h.ReturnDevice).Methods(http.MethodPost)
	router.HandleFunc("/api/plans", h.ListPlans).Methods(http.MethodGet)

	router.HandleFunc("/api/me", h.Me).Methods(http.MethodGet)
	router.HandleFunc("/api/me/recharge", h.Recharge).Methods(http.MethodPost)
	router.HandleFunc("/api/me/membership", h.UpgradeMembership).Methods(http.MethodPost)

	router.HandleFunc("/api/rentals", h.CreateRental).Methods(http.MethodPost)
	router.HandleFunc("/api/rentals/{id}/quote", h.QuoteReturn).Methods(http.MethodGet)
	router.HandleFunc("/api/orders", h.ListOrders).Methods(http.MethodGet)
	router.HandleFunc("/api/orders/code/{code}", h.GetOrderByCode).Methods(http.MethodGet)
	router.HandleFunc("/api/orders/{id}", h.DeleteOrder).Methods(http.MethodDelete)

	router.HandleFunc("/api/admin/devices", h.AdminListDevices).Methods(http.MethodGet)
	router.HandleFunc("/api/admin/devices", h.AdminAddDevice).Methods(http.MethodPost)
	router.HandleFunc("/api/admin/devices/{id}", h.AdminUpdateDevice).Methods(http.MethodPut)
	router.HandleFunc("/api/admin/devices/{id}", h.AdminDeleteDevice).Methods(http.MethodDelete)
	router.HandleFunc("/api/admin/rentals/{id}/close", h.AdminCloseRental).Methods(http.MethodPost)
	router.HandleFunc("/api/admin/battery-tick", h.AdminBatteryTick).Methods(http.MethodPost)
	router.HandleFunc("/api/admin/accounts", h.AdminListAccounts).Methods(http.MethodGet)
	router.HandleFunc("/api/admin/accounts/{id}", h.AdminGetAccount).Methods(http.MethodGet)
	router.HandleFunc("/api/admin/accounts/{id}", h.AdminUpdateAccount).Methods(http.MethodPut)
	router.HandleFunc("/api/admin/accounts/{id}", h.AdminDeleteAccount).Methods(http.MethodDelete)

	router.Use(RequestID)
	if cfg.RateLimitPerSecond > 0 {
		router.Use(RateLimit(NewIPRateLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst)))
	}
	router.Use(Auth(tokens))
	if cfg.CacheTTLSeconds > 0 {
		ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
		router.Use(Cache(cache.New(ttl, 2*ttl), ttl))
	}
	return router
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// caller returns the authenticated user id. Routes reaching it always passed
// the auth middleware.
func caller(r *http.Request) (int32, error) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		return 0, errorf(domain.ErrUnauthorized, "no caller in context")
	}
	return claims.UserID, nil
}

// parseDeviceFilter reads status, brand, min_price, max_price, min_battery
// and max_battery from the query string. The bool result reports whether
// any of them was given.
func parseDeviceFilter(r *http.Request) (domain.DeviceFilter, bool, error) {
	q := r.URL.Query()
	var f domain.DeviceFilter
	given := false

	if v := q.Get("status"); v != "" {
		s, err := domain.ParseDeviceStatus(v)
		if err != nil {
			return f, false, err
		}
		f.Status = &s
		given = true
	}
	if v := q.Get("brand"); v != "" {
		f.Brand = v
		given = true
	}
	for name, dst := range map[string]**decimal.Decimal{"min_price": &f.MinPrice, "max_price": &f.MaxPrice} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return f, false, errorf(domain.ErrInvalidArgument, "invalid %s %q", name, v)
		}
		*dst = &d
		given = true
	}
	for name, dst := range map[string]**int{"min_battery": &f.MinBattery, "max_battery": &f.MaxBattery} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, false, errorf(domain.ErrInvalidArgument, "invalid %s %q", name, v)
		}
		*dst = &n
		given = true
	}
	return f, given, nil
}
