package handler

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Alexey3476/CoC-Telegramm/internal/api/respond"
)

type bindingJSON struct {
	UserID      int64     `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Username    string    `json:"username,omitempty"`
	PlayerTag   string    `json:"player_tag"`
	BoundAt     time.Time `json:"bound_at"`
}

type cooldownJSON struct {
	UserID         int64     `json:"user_id"`
	LastRemindedAt time.Time `json:"last_reminded_at"`
	EligibleAt     time.Time `json:"eligible_at"`
	CoolingDown    bool      `json:"cooling_down"`
}

// ListGroups returns every group with at least one binding.
// @Summary List groups
// @Tags groups
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /groups [get]
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.GroupIDs(r.Context())
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to list groups", err.Error())
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"groups": ids,
		"count":  len(ids),
	})
}

// ListBindings returns the bindings of one group.
// @Summary List group bindings
// @Tags groups
// @Produce json
// @Param groupID path int true "Telegram chat id"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /groups/{groupID}/bindings [get]
func (h *Handler) ListBindings(w http.ResponseWriter, r *http.Request) {
	groupID, ok := parseGroupID(w, r)
	if !ok {
		return
	}
	bindings, err := h.store.ListByGroup(r.Context(), groupID)
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to list bindings", err.Error())
		return
	}

	out := make([]bindingJSON, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, bindingJSON{
			UserID:      b.UserID,
			DisplayName: b.DisplayName,
			Username:    b.Username,
			PlayerTag:   b.PlayerTag,
			BoundAt:     b.BoundAt,
		})
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"group_id": groupID,
		"bindings": out,
		"count":    len(out),
	})
}

// ListCooldowns returns the reminder cooldowns of one group.
// @Summary List group cooldowns
// @Tags groups
// @Produce json
// @Param groupID path int true "Telegram chat id"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /groups/{groupID}/cooldowns [get]
func (h *Handler) ListCooldowns(w http.ResponseWriter, r *http.Request) {
	groupID, ok := parseGroupID(w, r)
	if !ok {
		return
	}
	cooldowns, err := h.store.Cooldowns(r.Context(), groupID)
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to list cooldowns", err.Error())
		return
	}

	cooldown := h.cfg.Reminder.Cooldown
	now := h.now()
	out := make([]cooldownJSON, 0, len(cooldowns))
	for userID, last := range cooldowns {
		out = append(out, cooldownJSON{
			UserID:         userID,
			LastRemindedAt: last,
			EligibleAt:     last.Add(cooldown),
			CoolingDown:    now.Sub(last) < cooldown,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })

	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"group_id":         groupID,
		"cooldown_seconds": int64(cooldown.Seconds()),
		"cooldowns":        out,
	})
}

func parseGroupID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "groupID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_GROUP_ID", "groupID must be a non-zero integer chat id")
		return 0, false
	}
	return id, true
}
