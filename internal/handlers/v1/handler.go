package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"go.uber.org/zap"

	api "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/service"
	"github.com/fleetdeck/fleetdeck/pkg/requestid"
)

// ServiceHandler serves the operator API. All routes speak JSON and map
// service errors onto HTTP statuses in respondError.
type ServiceHandler struct {
	flowSrv     *service.FlowService
	campaignSrv *service.CampaignService
	jobSrv      *service.JobService
	dataSrv     *service.DataService
	deviceSrv   *service.DeviceService
}

func NewServiceHandler(
	flowService *service.FlowService,
	campaignService *service.CampaignService,
	jobService *service.JobService,
	dataService *service.DataService,
	deviceService *service.DeviceService,
) *ServiceHandler {
	return &ServiceHandler{
		flowSrv:     flowService,
		campaignSrv: campaignService,
		jobSrv:      jobService,
		dataSrv:     dataService,
		deviceSrv:   deviceService,
	}
}

func (s *ServiceHandler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Route("/flows", func(r chi.Router) {
		r.Post("/", s.CreateFlow)
		r.Get("/", s.ListFlows)
		r.Get("/{id}", s.GetFlow)
		r.Delete("/{id}", s.DeleteFlow)
	})

	router.Route("/campaigns", func(r chi.Router) {
		r.Post("/", s.CreateCampaign)
		r.Get("/", s.ListCampaigns)
		r.Get("/{id}", s.GetCampaign)
		r.Delete("/{id}", s.DeleteCampaign)
		r.Post("/{id}/start", s.StartCampaign)
		r.Post("/{id}/pause", s.PauseCampaign)
		r.Post("/{id}/resume", s.ResumeCampaign)
		r.Post("/{id}/cancel", s.CancelCampaign)
		r.Get("/{id}/jobs", s.ListCampaignJobs)
	})

	router.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.ListJobs)
		r.Get("/{id}", s.GetJob)
		r.Get("/{id}/logs", s.GetJobLogs)
		r.Post("/{id}/cancel", s.CancelJob)
		r.Post("/{id}/retry", s.RetryJob)
	})

	router.Route("/collections", func(r chi.Router) {
		r.Post("/", s.CreateCollection)
		r.Get("/{id}", s.GetCollection)
		r.Get("/{id}/records", s.ListCollectionRecords)
	})

	router.Get("/devices", s.ListDevices)

	return router
}

// respondError translates service errors into HTTP statuses. Anything not
// mapped explicitly is a 500 and gets logged with its request id.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	resp := api.Error{Message: err.Error(), RequestID: requestid.FromRequest(r)}
	status := http.StatusInternalServerError

	switch e := err.(type) {
	case *service.ErrValidation:
		status = http.StatusBadRequest
	case *service.ErrResourceNotFound:
		status = http.StatusNotFound
	case *service.ErrTaskNotFound:
		status = http.StatusNotFound
	case *service.ErrJobOwnership:
		status = http.StatusForbidden
	case *service.ErrStatusConflict:
		status = http.StatusConflict
		resp.CurrentStatus = e.CurrentStatus
	}

	if status == http.StatusInternalServerError {
		zap.S().Named("handlers").Errorw("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", resp.RequestID,
			"error", err,
		)
	}

	render.Status(r, status)
	render.JSON(w, r, resp)
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

// uuidParam parses a route parameter as a uuid. Malformed ids surface as
// validation errors rather than 404s so the caller sees what was wrong.
func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, service.NewErrValidation("invalid %s %q", name, chi.URLParam(r, name))
	}
	return id, nil
}
