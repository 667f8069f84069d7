package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/linkledger/internal/common"
	"github.com/dmitrijs2005/linkledger/internal/money"
	"github.com/dmitrijs2005/linkledger/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type ctxKey struct{}

// Account is the administrative account view.
type Account struct {
	Name             string `json:"name"`
	Balance          string `json:"balance"`
	Locked           bool   `json:"locked"`
	LockReason       string `json:"lock_reason,omitempty"`
	LockedAt         int64  `json:"locked_at,omitempty"`
	CreatedAt        int64  `json:"created_at"`
	LastActivity     int64  `json:"last_activity,omitempty"`
	TransactionCount uint64 `json:"transaction_count"`
	RelayHint        string `json:"relay_hint,omitempty"`
	Online           bool   `json:"online"`
}

// Relay is one relay the server has heard from.
type Relay struct {
	Address   string         `json:"address"`
	Name      string         `json:"name,omitempty"`
	LastSeen  int64          `json:"last_seen"`
	Endpoints map[string]int `json:"endpoints,omitempty"`
}

type errorJSON struct {
	Error   common.Code `json:"error"`
	Message string      `json:"message,omitempty"`
}

type createRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	Balance  any    `json:"balance"`
}

type balanceRequest struct {
	Amount any `json:"amount"`
}

type lockRequest struct {
	Reason string `json:"reason"`
}

type credentialRequest struct {
	Password string `json:"password"`
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			s.writeError(w, r, common.ErrUnauthorized)
			return
		}
		actor, err := s.admin.Authorize(strings.TrimSpace(token))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, actor)))
	})
}

func actorFrom(ctx context.Context) services.Actor {
	a, _ := ctx.Value(ctxKey{}).(services.Actor)
	return a
}

func statusOf(code common.Code) int {
	switch code {
	case common.CodeUnauthorized:
		return http.StatusUnauthorized
	case common.CodeAccountNotFound:
		return http.StatusNotFound
	case common.CodeAccountExists:
		return http.StatusConflict
	case common.CodeInvalidRequest, common.CodeInvalidAmount:
		return http.StatusBadRequest
	case common.CodeReadOnly:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var e *common.Error
	if !errors.As(err, &e) {
		s.logger.Error(r.Context(), "admin request failed", "path", r.URL.Path, "error", err)
		e = common.ErrInternal
	}
	writeJSON(w, statusOf(e.Code), errorJSON{Error: e.Code, Message: e.Message})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return common.Errorf(common.CodeInvalidRequest, "bad request body: %v", err)
	}
	return nil
}

// parseAmount accepts a JSON string or number.
func parseAmount(raw any, field string, required bool) (decimal.Decimal, error) {
	if raw == nil {
		if required {
			return decimal.Zero, common.Errorf(common.CodeInvalidRequest, "missing required field %q", field)
		}
		return decimal.Zero, nil
	}
	if n, ok := raw.(json.Number); ok {
		raw = n.String()
	}
	d, err := money.Parse(raw)
	if err != nil {
		return decimal.Zero, common.Errorf(common.CodeInvalidAmount, "%s: %v", field, err)
	}
	return d, nil
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	list := s.admin.List(r.Context(), actorFrom(r.Context()))
	out := make([]Account, 0, len(list))
	for _, a := range list {
		d := services.Detail(a)
		out = append(out, Account{
			Name:             d.Name,
			Balance:          d.Balance,
			Locked:           d.Locked,
			LockReason:       d.LockReason,
			LockedAt:         d.LockedAt,
			CreatedAt:        d.CreatedAt,
			LastActivity:     d.LastActivity,
			TransactionCount: d.TransactionCount,
			RelayHint:        d.RelayHint,
			Online:           d.Online,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": out, "total": len(out)})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Name == "" || req.Password == "" {
		s.writeError(w, r, common.NewError(common.CodeInvalidRequest, "name and password are required"))
		return
	}
	balance, err := parseAmount(req.Balance, "balance", false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.admin.Create(r.Context(), actorFrom(r.Context()), req.Name, req.Password, balance); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"name": req.Name, "balance": money.Format(balance)})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.admin.Delete(r.Context(), actorFrom(r.Context()), name); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetBalance(w http.ResponseWriter, r *http.Request) {
	var req balanceRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount, "amount", true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	name := chi.URLParam(r, "name")
	if err := s.admin.SetBalance(r.Context(), actorFrom(r.Context()), name, amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name, "balance": money.Format(amount)})
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if err := s.admin.Lock(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "name"), req.Reason); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.Unlock(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "name")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetCredential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Password == "" {
		s.writeError(w, r, common.NewError(common.CodeInvalidRequest, "password is required"))
		return
	}
	if err := s.admin.ResetCredential(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "name"), req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRelays(w http.ResponseWriter, r *http.Request) {
	out := []Relay{}
	if s.relays != nil {
		for _, rl := range s.relays.List() {
			out = append(out, Relay{
				Address:   rl.Address,
				Name:      rl.Name,
				LastSeen:  rl.LastSeen.UnixMilli(),
				Endpoints: rl.Endpoints,
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"relays": out})
}
