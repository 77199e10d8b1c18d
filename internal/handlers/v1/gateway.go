package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	api "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/handlers/validator"
	"github.com/fleetdeck/fleetdeck/internal/service"
)

// deviceIDHeader identifies the calling device on every gateway route that
// does not carry the device id in its body or query.
const deviceIDHeader = "X-Device-Id"

// GatewayHandler serves the device-facing API: pending list, claim,
// execution config and the report endpoints devices push progress through.
type GatewayHandler struct {
	gatewaySrv *service.DeviceGatewayService
}

func NewGatewayHandler(gatewayService *service.DeviceGatewayService) *GatewayHandler {
	return &GatewayHandler{gatewaySrv: gatewayService}
}

func (s *GatewayHandler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Route("/jobs", func(r chi.Router) {
		r.Get("/pending", s.ListPendingJobs)
		r.Post("/{id}/claim", s.ClaimJob)
		r.Get("/{id}/config", s.GetExecutionConfig)
		r.Post("/{id}/started", s.JobStarted)
		r.Post("/{id}/tasks/{node_id}/progress", s.ReportTaskProgress)
		r.Post("/{id}/completed", s.ReportCompletion)
		r.Post("/{id}/logs", s.AppendJobLog)
	})

	router.Post("/devices/{id}/heartbeat", s.Heartbeat)

	return router
}

// (GET /api/v1/jobs/pending)
func (s *GatewayHandler) ListPendingJobs(w http.ResponseWriter, r *http.Request) {
	deviceID, err := callingDevice(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	jobs, err := s.gatewaySrv.ListPendingJobs(r.Context(), deviceID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, jobs)
}

// (POST /api/v1/jobs/{id}/claim)
//
// Claiming is the arbitration point: exactly one device wins a job. The
// loser gets a 409 carrying the status it lost against.
func (s *GatewayHandler) ClaimJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	var form api.ClaimRequest
	if err := render.DecodeJSON(r.Body, &form); err != nil {
		respondError(w, r, service.NewErrValidation("malformed request body: %v", err))
		return
	}

	v := validator.NewValidator()
	if err := v.Struct(form); err != nil {
		respondError(w, r, service.NewErrValidation("%v", err))
		return
	}
	deviceID := uuid.MustParse(form.DeviceID)

	claim, err := s.gatewaySrv.Claim(r.Context(), jobID, deviceID)
	if err != nil {
		if conflict, ok := err.(*service.ErrStatusConflict); ok {
			respondJSON(w, r, http.StatusConflict, api.ClaimConflict{
				JobID:         jobID.String(),
				CurrentStatus: conflict.CurrentStatus,
			})
			return
		}
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, claim)
}

// (GET /api/v1/jobs/{id}/config)
func (s *GatewayHandler) GetExecutionConfig(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	deviceID, err := callingDevice(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	config, err := s.gatewaySrv.GetConfig(r.Context(), jobID, deviceID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, config)
}

// (POST /api/v1/jobs/{id}/started)
func (s *GatewayHandler) JobStarted(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	deviceID, err := callingDevice(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := s.gatewaySrv.Started(r.Context(), jobID, deviceID); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// (POST /api/v1/jobs/{id}/tasks/{node_id}/progress)
func (s *GatewayHandler) ReportTaskProgress(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	nodeID := chi.URLParam(r, "node_id")
	if nodeID == "" {
		respondError(w, r, service.NewErrValidation("missing node_id"))
		return
	}

	deviceID, err := callingDevice(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var form api.TaskProgressRequest
	if err := render.DecodeJSON(r.Body, &form); err != nil {
		respondError(w, r, service.NewErrValidation("malformed request body: %v", err))
		return
	}

	v := validator.NewValidator()
	v.Register(validator.NewDeviceReportValidationRules()...)
	if err := v.Struct(form); err != nil {
		respondError(w, r, service.NewErrValidation("%v", err))
		return
	}

	if err := s.gatewaySrv.ReportTaskProgress(r.Context(), jobID, deviceID, nodeID, form); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// (POST /api/v1/jobs/{id}/completed)
func (s *GatewayHandler) ReportCompletion(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	deviceID, err := callingDevice(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var form api.CompletionRequest
	if err := render.DecodeJSON(r.Body, &form); err != nil {
		respondError(w, r, service.NewErrValidation("malformed request body: %v", err))
		return
	}

	if err := s.gatewaySrv.ReportCompletion(r.Context(), jobID, deviceID, form); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// (POST /api/v1/jobs/{id}/logs)
func (s *GatewayHandler) AppendJobLog(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	deviceID, err := callingDevice(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var form api.LogRequest
	if err := render.DecodeJSON(r.Body, &form); err != nil {
		respondError(w, r, service.NewErrValidation("malformed request body: %v", err))
		return
	}

	v := validator.NewValidator()
	v.Register(validator.NewDeviceReportValidationRules()...)
	if err := v.Struct(form); err != nil {
		respondError(w, r, service.NewErrValidation("%v", err))
		return
	}

	if err := s.gatewaySrv.AppendLog(r.Context(), jobID, deviceID, &form); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// (POST /api/v1/devices/{id}/heartbeat)
func (s *GatewayHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	deviceID, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	var form api.HeartbeatRequest
	if r.ContentLength > 0 {
		if err := render.DecodeJSON(r.Body, &form); err != nil {
			respondError(w, r, service.NewErrValidation("malformed request body: %v", err))
			return
		}
	}

	v := validator.NewValidator()
	v.Register(validator.NewDeviceReportValidationRules()...)
	if err := v.Struct(form); err != nil {
		respondError(w, r, service.NewErrValidation("%v", err))
		return
	}

	if err := s.gatewaySrv.Heartbeat(r.Context(), deviceID, &form); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// callingDevice resolves the device identity from the X-Device-Id header,
// falling back to the device_id query parameter.
func callingDevice(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get(deviceIDHeader)
	if raw == "" {
		raw = r.URL.Query().Get("device_id")
	}
	if raw == "" {
		return uuid.Nil, service.NewErrValidation("missing %s header", deviceIDHeader)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, service.NewErrValidation("invalid device id %q", raw)
	}
	return id, nil
}
