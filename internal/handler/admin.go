package handler

import (
	"encoding/json"
	"net/http"
)

// Pause приостанавливает пул.
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Pause(r.Context()); err != nil {
		h.writeError(w, "pause pool", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Unpause снимает приостановку пула.
func (h *Handler) Unpause(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Unpause(r.Context()); err != nil {
		h.writeError(w, "unpause pool", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type banRequest struct {
	Login  string `json:"login"`
	Reason string `json:"reason"`
}

// Ban блокирует пользователя по логину.
func (h *Handler) Ban(w http.ResponseWriter, r *http.Request) {
	var req banRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.BanUser(r.Context(), req.Login, req.Reason); err != nil {
		h.writeError(w, "ban user", err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type tierRequest struct {
	LockupDays int   `json:"lockup_days"`
	APYBps     int64 `json:"apy_bps"`
}

// SetTier изменяет годовую ставку существующего уровня блокировки.
func (h *Handler) SetTier(w http.ResponseWriter, r *http.Request) {
	var req tierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.APYBps <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SetTierAPY(req.LockupDays, req.APYBps); err != nil {
		h.writeError(w, "set tier", err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type poolActiveRequest struct {
	Active bool `json:"active"`
}

// SetPoolActive открывает или закрывает приём новых вкладов.
func (h *Handler) SetPoolActive(w http.ResponseWriter, r *http.Request) {
	var req poolActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	h.service.SetPoolActive(req.Active)
	w.WriteHeader(http.StatusOK)
}

// PoolStatus возвращает текущее состояние пула.
func (h *Handler) PoolStatus(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.PoolStatus(r.Context())
	if err != nil {
		h.writeError(w, "pool status", err)
		return
	}

	h.writeJSON(w, state)
}

type sweepResult struct {
	UserID int64  `json:"user_id"`
	Amount int64  `json:"amount"`
	Error  string `json:"error,omitempty"`
}

// Sweep запускает внеплановый проход авто-реинвестирования.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.service.AutoCompoundCandidates(r.Context())
	if err != nil {
		h.writeError(w, "sweep candidates", err)
		return
	}

	results := h.service.BatchAutoCompound(r.Context(), candidates)

	resp := make([]sweepResult, 0, len(results))
	for _, res := range results {
		item := sweepResult{UserID: res.UserID, Amount: res.Amount}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		resp = append(resp, item)
	}

	h.writeJSON(w, resp)
}
