package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/Alexey3476/CoC-Telegramm/internal/api/respond"
	"github.com/Alexey3476/CoC-Telegramm/internal/reminder"
)

type groupResultJSON struct {
	GroupID    int64   `json:"group_id"`
	Recipients []int64 `json:"recipients"`
	Suppressed int     `json:"suppressed"`
	Sent       bool    `json:"sent"`
	Error      string  `json:"error,omitempty"`
}

type cycleJSON struct {
	CycleID      string            `json:"cycle_id"`
	StartedAt    time.Time         `json:"started_at"`
	Due          bool              `json:"due"`
	Reason       string            `json:"reason,omitempty"`
	NonCompliant []string          `json:"non_compliant"`
	GroupsFound  int               `json:"groups_found"`
	GroupsSent   int               `json:"groups_sent"`
	GroupsFailed int               `json:"groups_failed"`
	Notified     int               `json:"notified"`
	DurationMS   int64             `json:"duration_ms"`
	Groups       []groupResultJSON `json:"groups"`
	Error        string            `json:"error,omitempty"`
}

func toCycleJSON(res *reminder.CycleResult, err error) *cycleJSON {
	if res == nil && err == nil {
		return nil
	}
	out := &cycleJSON{NonCompliant: []string{}, Groups: []groupResultJSON{}}
	if res != nil {
		out.CycleID = res.CycleID
		out.StartedAt = res.StartedAt
		out.Due = res.Eligibility.Due
		out.Reason = res.Eligibility.Reason
		if res.Eligibility.NonCompliant != nil {
			out.NonCompliant = res.Eligibility.NonCompliant
		}
		out.GroupsFound = res.GroupsFound
		out.GroupsSent = res.GroupsSent
		out.GroupsFailed = res.GroupsFailed
		out.Notified = res.Notified
		out.DurationMS = res.Duration.Milliseconds()
		for _, g := range res.Groups {
			out.Groups = append(out.Groups, groupResultJSON{
				GroupID:    g.GroupID,
				Recipients: g.Recipients,
				Suppressed: g.Suppressed,
				Sent:       g.Sent,
				Error:      g.Error,
			})
		}
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

// RunReminders runs one reminder cycle now.
// @Summary Run a reminder cycle
// @Tags reminders
// @Produce json
// @Success 200 {object} cycleJSON
// @Failure 409 {object} respond.ErrorResponse
// @Failure 502 {object} cycleJSON
// @Router /reminders/run [post]
func (h *Handler) RunReminders(w http.ResponseWriter, r *http.Request) {
	res, err := h.driver.RunOnce(r.Context())
	if errors.Is(err, reminder.ErrCycleInProgress) {
		respond.WriteError(w, http.StatusConflict, "CYCLE_IN_PROGRESS", "A reminder cycle is already running")
		return
	}
	if err != nil {
		respond.WriteJSONObject(w, http.StatusBadGateway, toCycleJSON(res, err))
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, toCycleJSON(res, nil))
}

// ReminderStatus returns the driver state and the last cycle outcome.
// @Summary Reminder status
// @Tags reminders
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /reminders/status [get]
func (h *Handler) ReminderStatus(w http.ResponseWriter, r *http.Request) {
	last, lastErr := h.driver.Last()
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"enabled":          h.driver.Enabled(),
		"interval_seconds": int64(h.driver.Interval().Seconds()),
		"window_seconds":   int64(h.cfg.Reminder.Window.Seconds()),
		"cooldown_seconds": int64(h.cfg.Reminder.Cooldown.Seconds()),
		"last_cycle":       toCycleJSON(last, lastErr),
	})
}

// GetEnabled returns the reminder enable flag.
// @Summary Get reminder enable flag
// @Tags reminders
// @Produce json
// @Success 200 {object} map[string]bool
// @Router /reminders/enabled [get]
func (h *Handler) GetEnabled(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]bool{"enabled": h.driver.Enabled()})
}

// SetEnabled flips the reminder enable flag; it takes effect at the next tick.
// @Summary Set reminder enable flag
// @Tags reminders
// @Accept json
// @Produce json
// @Success 200 {object} map[string]bool
// @Failure 400 {object} respond.ErrorResponse
// @Router /reminders/enabled [put]
func (h *Handler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := respond.DecodeJSON(r, &body); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_BODY", "Expected {\"enabled\": bool}", err.Error())
		return
	}
	if body.Enabled == nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "Expected {\"enabled\": bool}")
		return
	}
	h.driver.SetEnabled(*body.Enabled)
	respond.WriteJSONObject(w, http.StatusOK, map[string]bool{"enabled": h.driver.Enabled()})
}
