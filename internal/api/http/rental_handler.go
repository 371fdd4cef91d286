package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/service"
)

type createRentalRequest struct {
	DeviceID int32  `json:"device_id"`
	Brand    string `json:"brand,omitempty"`
}

type closeRentalRequest struct {
	DeviceID  int32           `json:"device_id"`
	Hours     int64           `json:"hours"`
	TotalCost decimal.Decimal `json:"total_cost"`
	OrderCode string          `json:"order_code"`
}

func (h *Handler) CreateRental(w http.ResponseWriter, r *http.Request) {
	userID, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createRentalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	order, err := h.rentals.CreateRental(r.Context(), userID, req.DeviceID, req.Brand)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) ReturnDevice(w http.ResponseWriter, r *http.Request) {
	userID, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	deviceID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	receipt, err := h.rentals.ReturnDevice(r.Context(), userID, deviceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (h *Handler) QuoteReturn(w http.ResponseWriter, r *http.Request) {
	userID, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	orderID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	quote, err := h.rentals.QuoteReturn(r.Context(), userID, orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// ListOrders returns the caller's orders. keyword searches by brand or cost;
// otherwise scope=current lists open rentals and anything else the full
// history.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	var orders []domain.Order
	switch {
	case q.Get("keyword") != "":
		orders, err = h.rentals.SearchOrders(r.Context(), userID, q.Get("keyword"))
	case q.Get("scope") == "current":
		orders, err = h.rentals.ListCurrentRentals(r.Context(), userID)
	default:
		orders, err = h.rentals.ListOrderHistory(r.Context(), userID)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) GetOrderByCode(w http.ResponseWriter, r *http.Request) {
	userID, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	order, err := h.rentals.GetOrderByCode(r.Context(), userID, mux.Vars(r)["code"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	userID, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	orderID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.rentals.DeleteOrder(r.Context(), userID, orderID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminCloseRental closes an order with operator-supplied hours, cost and
// code, bypassing the ownership check.
func (h *Handler) AdminCloseRental(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req closeRentalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	receipt, err := h.rentals.ReturnRental(r.Context(), service.ReturnRequest{
		OrderID:   orderID,
		DeviceID:  req.DeviceID,
		Hours:     req.Hours,
		TotalCost: req.TotalCost,
		OrderCode: req.OrderCode,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}
