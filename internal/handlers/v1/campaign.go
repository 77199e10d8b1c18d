package v1

import (
	"net/http"

	"github.com/go-chi/render"

	api "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/handlers/validator"
	"github.com/fleetdeck/fleetdeck/internal/service"
)

// (POST /api/v1/campaigns)
func (s *ServiceHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var form api.CampaignCreateRequest
	if err := render.DecodeJSON(r.Body, &form); err != nil {
		respondError(w, r, service.NewErrValidation("malformed request body: %v", err))
		return
	}

	v := validator.NewValidator()
	v.Register(validator.NewCampaignValidationRules()...)
	if err := v.Struct(form); err != nil {
		respondError(w, r, service.NewErrValidation("%v", err))
		return
	}

	campaign, err := s.campaignSrv.CreateCampaign(r.Context(), &form)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusCreated, campaign)
}

// (GET /api/v1/campaigns)
func (s *ServiceHandler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := s.campaignSrv.ListCampaigns(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, campaigns)
}

// (GET /api/v1/campaigns/{id})
func (s *ServiceHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	campaign, err := s.campaignSrv.GetCampaign(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, campaign)
}

// (DELETE /api/v1/campaigns/{id})
func (s *ServiceHandler) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := s.campaignSrv.DeleteCampaign(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// (POST /api/v1/campaigns/{id}/start)
//
// A start that planned zero jobs answers 202 with the summary explaining
// why, the campaign stays in draft for another attempt.
func (s *ServiceHandler) StartCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	summary, err := s.campaignSrv.StartCampaign(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if summary.NothingToDispatch {
		respondJSON(w, r, http.StatusAccepted, summary)
		return
	}

	respondJSON(w, r, http.StatusOK, summary)
}

// (POST /api/v1/campaigns/{id}/pause)
func (s *ServiceHandler) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	campaign, err := s.campaignSrv.PauseCampaign(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, campaign)
}

// (POST /api/v1/campaigns/{id}/resume)
func (s *ServiceHandler) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	campaign, err := s.campaignSrv.ResumeCampaign(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, campaign)
}

// (POST /api/v1/campaigns/{id}/cancel)
func (s *ServiceHandler) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	campaign, err := s.campaignSrv.CancelCampaign(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, campaign)
}

// (GET /api/v1/campaigns/{id}/jobs)
func (s *ServiceHandler) ListCampaignJobs(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	jobs, err := s.campaignSrv.ListCampaignJobs(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, jobs)
}
