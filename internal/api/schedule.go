package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"dailybot/internal/schedule"
	"dailybot/internal/scheduler"
	"dailybot/pkg/logx"
)

type updateScheduleRequest struct {
	Paused     *bool              `json:"paused"`
	Timezone   *string            `json:"timezone"`
	DailyTimes map[string]*string `json:"dailyTimes"`
	UpdatedBy  string             `json:"updatedBy"`
}

type addOverrideRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Time      string `json:"time" validate:"required"`
	Note      string `json:"note" validate:"max=200"`
	UpdatedBy string `json:"updatedBy" validate:"max=64"`
}

type rescheduleRequest struct {
	Reason string `json:"reason" validate:"max=64"`
}

func (h *Handler) getSchedule(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.Load(r.Context())
	if err != nil {
		h.internalError(w, err)
		return
	}
	h.ok(w, "", doc)
}

func (h *Handler) updateSchedule(w http.ResponseWriter, r *http.Request) {
	var req updateScheduleRequest
	if err := readJSON(w, r, &req); err != nil {
		h.badRequest(w, err)
		return
	}

	doc, err := h.store.Update(r.Context(), schedule.Patch{
		Paused:     req.Paused,
		Timezone:   req.Timezone,
		DailyTimes: req.DailyTimes,
		Actor:      req.UpdatedBy,
	})
	if err != nil {
		if errors.Is(err, schedule.ErrValidation) {
			h.badRequest(w, err)
			return
		}
		h.internalError(w, err)
		return
	}

	h.sched.ForceReschedule(scheduler.ReasonManual)
	h.log.Info("schedule updated",
		logx.String("updatedBy", doc.UpdatedBy),
		logx.Bool("paused", doc.Paused))
	h.ok(w, "schedule updated", doc)
}

func (h *Handler) addOverride(w http.ResponseWriter, r *http.Request) {
	var req addOverrideRequest
	if err := readJSON(w, r, &req); err != nil {
		h.badRequest(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, err)
		return
	}

	doc, err := h.store.AddOverride(r.Context(), req.Date, req.Time, req.Note, req.UpdatedBy)
	if err != nil {
		if errors.Is(err, schedule.ErrValidation) {
			h.badRequest(w, err)
			return
		}
		h.internalError(w, err)
		return
	}

	h.sched.ForceReschedule(scheduler.ReasonManual)
	h.log.Info("override saved",
		logx.String("date", req.Date),
		logx.String("time", req.Time))
	h.ok(w, "override saved", doc)
}

func (h *Handler) removeOverride(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")

	before, err := h.store.Load(r.Context())
	if err != nil {
		h.internalError(w, err)
		return
	}
	found := false
	for _, o := range before.ManualOverrides {
		if o.Date == date {
			found = true
			break
		}
	}
	if !found {
		h.notFound(w, "no override for "+date)
		return
	}

	doc, err := h.store.RemoveOverride(r.Context(), date)
	if err != nil {
		if errors.Is(err, schedule.ErrValidation) {
			h.badRequest(w, err)
			return
		}
		h.internalError(w, err)
		return
	}

	h.sched.ForceReschedule(scheduler.ReasonManual)
	h.log.Info("override removed", logx.String("date", date))
	h.ok(w, "override removed", doc)
}

func (h *Handler) nextRun(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.Load(r.Context())
	if err != nil {
		h.internalError(w, err)
		return
	}
	res, err := schedule.Resolve(doc, time.Now())
	if err != nil {
		h.internalError(w, err)
		return
	}
	out := map[string]any{"state": res.Kind.String()}
	if res.Kind == schedule.KindTriggered {
		out["target"] = res.Target
		out["override"] = res.Override != nil
	}
	h.ok(w, "", out)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	h.ok(w, "", map[string]any{
		"scheduler": h.sched.Snapshot(),
		"history":   h.sched.History(),
	})
}

func (h *Handler) reschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if err := readJSON(w, r, &req); err != nil {
		h.badRequest(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, err)
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = scheduler.ReasonManual
	}
	h.sched.ForceReschedule(reason)
	h.ok(w, "reschedule requested", nil)
}
