package v1

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/fleetdeck/fleetdeck/internal/service"
	"github.com/fleetdeck/fleetdeck/internal/store"
)

// (GET /api/v1/jobs)
func (s *ServiceHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter := store.NewJobQueryFilter()

	if raw := r.URL.Query().Get("device_id"); raw != "" {
		deviceID, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, r, service.NewErrValidation("invalid device_id %q", raw))
			return
		}
		filter = filter.ByDeviceID(deviceID)
	}

	if raw := r.URL.Query().Get("campaign_id"); raw != "" {
		campaignID, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, r, service.NewErrValidation("invalid campaign_id %q", raw))
			return
		}
		filter = filter.ByCampaignID(campaignID)
	}

	if statuses, ok := r.URL.Query()["status"]; ok && len(statuses) > 0 {
		filter = filter.ByStatus(statuses...)
	}

	jobs, err := s.jobSrv.ListJobs(r.Context(), filter)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, jobs)
}

// (GET /api/v1/jobs/{id})
func (s *ServiceHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	job, err := s.jobSrv.GetJob(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, job)
}

// (GET /api/v1/jobs/{id}/logs)
func (s *ServiceHandler) GetJobLogs(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			respondError(w, r, service.NewErrValidation("invalid limit %q", raw))
			return
		}
	}

	logs, err := s.jobSrv.GetJobLogs(r.Context(), id, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, logs)
}

// (POST /api/v1/jobs/{id}/cancel)
func (s *ServiceHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	job, err := s.jobSrv.CancelJob(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, job)
}

// (POST /api/v1/jobs/{id}/retry)
func (s *ServiceHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	job, err := s.jobSrv.RetryJob(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, job)
}
