package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"powerbank-rental-backend/internal/domain"
)

type deviceRequest struct {
	Brand        string              `json:"brand"`
	Status       domain.DeviceStatus `json:"status"`
	BatteryLevel int                 `json:"battery_level"`
	PricePerHour decimal.Decimal     `json:"price_per_hour"`
}

// ListDevices lists rentable devices, or every device matching the query
// filter when one is given.
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	f, given, err := parseDeviceFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var devices []domain.Device
	if given {
		devices, err = h.inventory.FilterDevices(r.Context(), f)
	} else {
		devices, err = h.inventory.ListAvailable(r.Context())
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (h *Handler) GetDevice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.inventory.GetDevice(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) AdminListDevices(w http.ResponseWriter, r *http.Request) {
	f, _, err := parseDeviceFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	devices, err := h.inventory.FilterDevices(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (h *Handler) AdminAddDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	d := &domain.Device{Brand: req.Brand, Status: req.Status, BatteryLevel: req.BatteryLevel, PricePerHour: req.PricePerHour}
	if err := h.inventory.AddDevice(r.Context(), d); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handler) AdminUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req deviceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.inventory.UpdateDevice(r.Context(), &domain.Device{ID: id, Status: req.Status, BatteryLevel: req.BatteryLevel, PricePerHour: req.PricePerHour})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) AdminDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.inventory.DeleteDevice(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminBatteryTick runs one tick now. The report has busy set, and nothing
// was changed, when a scheduled tick was already running.
func (h *Handler) AdminBatteryTick(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.batteries.TickBatteries(r.Context()))
}
