// Package health exposes measurement submission, history, prescriptions, and
// the aggregate views.
package health

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/diarisk/health-api/internal/middleware"
	"github.com/diarisk/health-api/internal/model"
	"github.com/diarisk/health-api/internal/service/measurement"
	"github.com/diarisk/health-api/internal/service/prescription"
	"github.com/diarisk/health-api/internal/service/trends"
	apperrors "github.com/diarisk/health-api/pkg/errors"
	"github.com/diarisk/health-api/pkg/httputil"
)

type Handler struct {
	measurements  *measurement.Service
	trends        *trends.Service
	prescriptions *prescription.Service
}

func NewHandler(measurements *measurement.Service, trendsSvc *trends.Service, prescriptions *prescription.Service) *Handler {
	return &Handler{
		measurements:  measurements,
		trends:        trendsSvc,
		prescriptions: prescriptions,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	g := r.Group("", auth.Authenticate(), auth.RequireApproved())
	g.POST("/data", h.SubmitMeasurement)
	g.GET("/data/history", h.History)
	g.GET("/prescriptions", h.Prescriptions)

	clinician := g.Group("", auth.RequireRoles(model.RoleClinician, model.RoleAdmin))
	clinician.GET("/patients/:id/data", h.PatientData)
	clinician.GET("/patients/:id/prescriptions", h.PatientPrescriptions)
	clinician.GET("/aggregate/trends", h.AggregateTrends)
	clinician.GET("/aggregate/risk", h.AggregateRisk)
	clinician.POST("/patients/:id/prescription", h.CreatePrescription)
}

func (h *Handler) SubmitMeasurement(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("missing authorization header", nil))
		return
	}

	var req model.SubmitMeasurementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), nil))
		return
	}

	resp, err := h.measurements.Submit(c.Request.Context(), user, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, resp)
}

func (h *Handler) History(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("missing authorization header", nil))
		return
	}

	r, err := parseRange(c)
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), nil))
		return
	}

	views, err := h.measurements.History(c.Request.Context(), user.ID, r)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, views)
}

func (h *Handler) PatientData(c *gin.Context) {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid patient ID", nil))
		return
	}
	r, err := parseRange(c)
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), nil))
		return
	}

	views, err := h.measurements.PatientHistory(c.Request.Context(), patientID, r)
	if err != nil {
		if errors.Is(err, measurement.ErrPatientNotFound) {
			httputil.RespondWithError(c, apperrors.NotFound("patient not found", nil))
			return
		}
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, views)
}

func (h *Handler) AggregateTrends(c *gin.Context) {
	filter, err := parseAggregateFilter(c)
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), nil))
		return
	}

	buckets, err := h.trends.Trends(c.Request.Context(), filter)
	if err != nil {
		if errors.Is(err, trends.ErrWindowTooLarge) {
			httputil.RespondWithError(c, apperrors.BadRequest("requested window is too large", nil))
			return
		}
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, buckets)
}

func (h *Handler) AggregateRisk(c *gin.Context) {
	filter, err := parseAggregateFilter(c)
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), nil))
		return
	}

	buckets, err := h.trends.RiskTrends(c.Request.Context(), filter)
	if err != nil {
		if errors.Is(err, trends.ErrWindowTooLarge) {
			httputil.RespondWithError(c, apperrors.BadRequest("requested window is too large", nil))
			return
		}
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, buckets)
}

func (h *Handler) Prescriptions(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("missing authorization header", nil))
		return
	}
	r, err := parseRange(c)
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), nil))
		return
	}

	var views []*model.PrescriptionView
	if user.Role == model.RoleClinician {
		views, err = h.prescriptions.ListByAuthor(c.Request.Context(), user.ID, r)
	} else {
		views, err = h.prescriptions.ListForSubject(c.Request.Context(), user.ID, r)
	}
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, views)
}

// PatientPrescriptions is the clinician view of a patient's prescriptions.
func (h *Handler) PatientPrescriptions(c *gin.Context) {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid patient ID", nil))
		return
	}
	r, err := parseRange(c)
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), nil))
		return
	}

	views, err := h.prescriptions.ListForPatient(c.Request.Context(), patientID, r)
	if err != nil {
		if errors.Is(err, prescription.ErrSubjectNotFound) {
			httputil.RespondWithError(c, apperrors.NotFound("patient not found", nil))
			return
		}
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, views)
}

func (h *Handler) CreatePrescription(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("missing authorization header", nil))
		return
	}
	subjectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid patient ID", nil))
		return
	}

	var req model.CreatePrescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), nil))
		return
	}

	view, err := h.prescriptions.Create(c.Request.Context(), user, subjectID, &req)
	if err != nil {
		if errors.Is(err, prescription.ErrSubjectNotFound) {
			httputil.RespondWithError(c, apperrors.NotFound("patient not found", nil))
			return
		}
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, view)
}

// parseRange reads the from/to query window. Dates accept YYYY-MM-DD or
// RFC 3339; "to" given as a date covers that whole day.
func parseRange(c *gin.Context) (model.DateRange, error) {
	var r model.DateRange
	var err error
	if from := c.Query("from"); from != "" {
		r.From, _, err = parseDate(from)
		if err != nil {
			return r, errors.New("invalid from date")
		}
	}
	if to := c.Query("to"); to != "" {
		var dateOnly bool
		r.To, dateOnly, err = parseDate(to)
		if err != nil {
			return r, errors.New("invalid to date")
		}
		if dateOnly {
			r.To = r.To.AddDate(0, 0, 1)
		}
	}
	return r, nil
}

func parseDate(s string) (time.Time, bool, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	return t.UTC(), false, err
}

func parseAggregateFilter(c *gin.Context) (model.AggregateFilter, error) {
	r, err := parseRange(c)
	if err != nil {
		return model.AggregateFilter{}, err
	}
	if r.To.IsZero() {
		r.To = time.Now().UTC().AddDate(0, 0, 1)
	}
	if r.From.IsZero() {
		r.From = r.To.AddDate(0, 0, -31)
	}

	bucket := c.DefaultQuery("ageBucket", model.AgeBucketAll)
	switch bucket {
	case model.AgeBucketAll, model.AgeBucketUnder30, model.AgeBucket30To50, model.AgeBucketOver50:
	default:
		return model.AggregateFilter{}, errors.New("invalid age bucket")
	}

	return model.AggregateFilter{
		From:      r.From,
		To:        r.To,
		AgeBucket: bucket,
		Gender:    c.DefaultQuery("gender", "all"),
		Position:  c.DefaultQuery("position", "all"),
	}, nil
}
