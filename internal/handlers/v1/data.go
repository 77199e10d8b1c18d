package v1

import (
	"net/http"

	"github.com/go-chi/render"

	api "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/handlers/validator"
	"github.com/fleetdeck/fleetdeck/internal/service"
)

// (POST /api/v1/collections)
func (s *ServiceHandler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	var form api.CollectionCreateRequest
	if err := render.DecodeJSON(r.Body, &form); err != nil {
		respondError(w, r, service.NewErrValidation("malformed request body: %v", err))
		return
	}

	v := validator.NewValidator()
	v.Register(validator.NewCollectionValidationRules()...)
	if err := v.Struct(form); err != nil {
		respondError(w, r, service.NewErrValidation("%v", err))
		return
	}

	collection, err := s.dataSrv.CreateCollection(r.Context(), &form)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusCreated, collection)
}

// (GET /api/v1/collections/{id})
func (s *ServiceHandler) GetCollection(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	collection, err := s.dataSrv.GetCollection(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, collection)
}

// (GET /api/v1/collections/{id}/records)
func (s *ServiceHandler) ListCollectionRecords(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	records, err := s.dataSrv.ListCollectionRecords(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, records)
}

// (GET /api/v1/devices)
func (s *ServiceHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.deviceSrv.ListDevices(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, devices)
}
