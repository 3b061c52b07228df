package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openclinic/scheduling/internal/metrics"
	"github.com/openclinic/scheduling/internal/timeutil"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func weekdayName(wd time.Weekday) string {
	return strings.ToLower(wd.String())
}

func getAvailabilityHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := pathUUID(w, r, "id", "invalid_provider_id")
		if !ok {
			return
		}

		week, err := svc.WeekFor(r.Context(), providerID)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		resp := WeekResponse{ProviderID: providerID, Days: make([]DayResponse, 0, len(week))}
		for _, d := range week {
			resp.Days = append(resp.Days, toDayResponse(d))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func setDayHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := pathUUID(w, r, "id", "invalid_provider_id")
		if !ok {
			return
		}

		weekday, ok := weekdays[strings.ToLower(chi.URLParam(r, "weekday"))]
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_weekday", "weekday must be monday..sunday")
			return
		}

		var req SetDayRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		day, err := svc.SetDay(r.Context(), providerID, weekday, req.Enabled, req.Intervals)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toDayResponse(*day))
	}
}

func listBlocksHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := pathUUID(w, r, "id", "invalid_provider_id")
		if !ok {
			return
		}

		day, err := timeutil.ParseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		blocks, err := svc.BlocksOn(r.Context(), providerID, day)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		out := make([]BlockResponse, 0, len(blocks))
		for i := range blocks {
			out = append(out, toBlockResponse(&blocks[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func addBlockHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := pathUUID(w, r, "id", "invalid_provider_id")
		if !ok {
			return
		}

		var req AddBlockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		day, err := timeutil.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		block, err := svc.AddBlock(r.Context(), providerID, day, req.Interval, req.Reason)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toBlockResponse(block))
	}
}

func removeBlockHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id", "invalid_block_id")
		if !ok {
			return
		}

		if err := svc.RemoveBlock(r.Context(), id); err != nil {
			handleDomainError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func slotsHandler(src SlotSource, m *metrics.SchedulingMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := pathUUID(w, r, "id", "invalid_provider_id")
		if !ok {
			return
		}

		day, err := timeutil.ParseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		duration := queryInt(r, "duration", 30)

		start := time.Now()
		slots, err := src.Slots(r.Context(), providerID, day, duration)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		m.ObserveSlotGeneration(time.Since(start).Seconds())

		resp := SlotsResponse{
			ProviderID:      providerID,
			Date:            timeutil.FormatDate(day),
			DurationMinutes: duration,
			Slots:           make([]timeutil.Interval, 0, len(slots)),
		}
		for _, s := range slots {
			resp.Slots = append(resp.Slots, s.Interval)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, param, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, param+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
