package v1

import (
	"net/http"

	"github.com/go-chi/render"

	api "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/handlers/validator"
	"github.com/fleetdeck/fleetdeck/internal/service"
)

// (POST /api/v1/flows)
func (s *ServiceHandler) CreateFlow(w http.ResponseWriter, r *http.Request) {
	var form api.FlowCreateRequest
	if err := render.DecodeJSON(r.Body, &form); err != nil {
		respondError(w, r, service.NewErrValidation("malformed request body: %v", err))
		return
	}

	v := validator.NewValidator()
	v.Register(validator.NewFlowValidationRules()...)
	if err := v.Struct(form); err != nil {
		respondError(w, r, service.NewErrValidation("%v", err))
		return
	}

	flow, err := s.flowSrv.CreateFlow(r.Context(), &form)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusCreated, flow)
}

// (GET /api/v1/flows)
func (s *ServiceHandler) ListFlows(w http.ResponseWriter, r *http.Request) {
	flows, err := s.flowSrv.ListFlows(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, flows)
}

// (GET /api/v1/flows/{id})
func (s *ServiceHandler) GetFlow(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	flow, err := s.flowSrv.GetFlow(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, flow)
}

// (DELETE /api/v1/flows/{id})
func (s *ServiceHandler) DeleteFlow(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := s.flowSrv.DeleteFlow(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
