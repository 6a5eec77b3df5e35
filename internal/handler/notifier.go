package handler

import (
	"encoding/json"
	"net/http"

	"github.com/mmeshcher/stakepool-system/internal/model"
	"github.com/mmeshcher/stakepool-system/internal/validation"
)

type skillActivationRequest struct {
	Login     string `json:"login"`
	SourceID  string `json:"source_id"`
	SkillType string `json:"skill_type"`
	EffectBps int64  `json:"effect_bps"`
	Rarity    string `json:"rarity"`
}

// ActivateSkill регистрирует активацию навыка, о которой сообщил нотификатор.
func (h *Handler) ActivateSkill(w http.ResponseWriter, r *http.Request) {
	var req skillActivationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || !validation.IsValidSourceID(req.SourceID) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	skillType, err := model.ParseSkillType(req.SkillType)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	rarity, err := model.ParseRarity(req.Rarity)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	skill := model.ActiveSkill{
		SourceID:  req.SourceID,
		Type:      skillType,
		EffectBps: req.EffectBps,
		Rarity:    rarity,
	}

	if err := h.service.NotifySkillActivation(r.Context(), req.Login, skill); err != nil {
		h.writeError(w, "activate skill", err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type skillDeactivationRequest struct {
	Login    string `json:"login"`
	SourceID string `json:"source_id"`
}

// DeactivateSkill снимает ранее активированный навык.
func (h *Handler) DeactivateSkill(w http.ResponseWriter, r *http.Request) {
	var req skillDeactivationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.SourceID == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.NotifySkillDeactivation(r.Context(), req.Login, req.SourceID); err != nil {
		h.writeError(w, "deactivate skill", err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type questRewardRequest struct {
	Login       string `json:"login"`
	Amount      int64  `json:"amount"`
	Achievement bool   `json:"achievement"`
}

// QuestReward начисляет пользователю награду за квест или достижение.
func (h *Handler) QuestReward(w http.ResponseWriter, r *http.Request) {
	var req questRewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Amount <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.CreditQuestReward(r.Context(), req.Login, req.Amount, req.Achievement); err != nil {
		h.writeError(w, "quest reward", err)
		return
	}

	w.WriteHeader(http.StatusOK)
}
