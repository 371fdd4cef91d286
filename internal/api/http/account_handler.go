package http

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/service"
)

type registerRequest struct {
	Username        string `json:"username"`
	Phone           string `json:"phone"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token   string          `json:"token"`
	Account *domain.Account `json:"account"`
}

type rechargeRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type membershipRequest struct {
	Plan string `json:"plan"`
}

// accountUpdateRequest is a partial edit; absent fields are kept.
type accountUpdateRequest struct {
	Username         *string            `json:"username"`
	Phone            *string            `json:"phone"`
	Membership       *domain.Membership `json:"membership"`
	MembershipExpiry *time.Time         `json:"membership_expiry"`
	Balance          *decimal.Decimal   `json:"balance"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	acc, err := h.accounts.Register(r.Context(), service.RegisterRequest{
		Username:        req.Username,
		Phone:           req.Phone,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	token, acc, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Account: acc})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	acc, err := h.accounts.GetAccount(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (h *Handler) Recharge(w http.ResponseWriter, r *http.Request) {
	userID, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req rechargeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	acc, err := h.accounts.Recharge(r.Context(), userID, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (h *Handler) UpgradeMembership(w http.ResponseWriter, r *http.Request) {
	userID, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req membershipRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	acc, err := h.accounts.UpgradeMembership(r.Context(), userID, req.Plan)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.accounts.ListPlans())
}

// AdminListAccounts lists accounts, narrowed by ?membership= and ?keyword=
// (a username or phone fragment).
func (h *Handler) AdminListAccounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.AccountFilter{Keyword: q.Get("keyword")}
	if v := q.Get("membership"); v != "" {
		m, err := domain.ParseMembership(v)
		if err != nil {
			writeError(w, r, err)
			return
		}
		f.Membership = &m
	}
	accounts, err := h.accounts.ListAccounts(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *Handler) AdminGetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	acc, err := h.accounts.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (h *Handler) AdminUpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req accountUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	acc, err := h.accounts.UpdateAccount(r.Context(), service.AccountUpdate{
		ID:               id,
		Username:         req.Username,
		Phone:            req.Phone,
		Membership:       req.Membership,
		MembershipExpiry: req.MembershipExpiry,
		Balance:          req.Balance,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (h *Handler) AdminDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.accounts.DeleteAccount(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
