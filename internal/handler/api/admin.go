package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"

	"DropWatch/internal/domain/models"
	"DropWatch/internal/domain/repository"
	"DropWatch/internal/usecase"
	xhttp "DropWatch/pkg/http"
	"DropWatch/pkg/logger"
	"DropWatch/pkg/queue"
)

// AdminHandler exposes the operational API: trigger a check batch,
// enqueue a training run, inspect candidates and the current artifact.
type AdminHandler struct {
	checker    *usecase.CandidateChecker
	candidates repository.Candidates
	publisher  queue.QueueService
	artifact   string
	logger     *logger.Logger
}

// NewAdminHandler creates the admin API handler.
func NewAdminHandler(
	checker *usecase.CandidateChecker,
	candidates repository.Candidates,
	publisher queue.QueueService,
	artifactPath string,
	lgr *logger.Logger,
) *AdminHandler {
	return &AdminHandler{
		checker:    checker,
		candidates: candidates,
		publisher:  publisher,
		artifact:   artifactPath,
		logger:     lgr,
	}
}

// RegisterRoutes registers the admin endpoints.
func (h *AdminHandler) RegisterRoutes(e *echo.Echo) {
	v1 := e.Group("/api/v1")
	v1.POST("/checks", h.RunCheckBatch)
	v1.POST("/train", h.EnqueueTrain)
	v1.GET("/candidates", h.ListCandidates)
	v1.GET("/candidates/:id", h.GetCandidate)
	v1.GET("/calibrator", h.GetCalibrator)
	v1.POST("/retailers/refresh", h.RefreshRetailers)
	e.GET("/healthz", h.Healthz)
}

type checkBatchRequest struct {
	Limit int `json:"limit" default:"25" validate:"gte=1,lte=500"`
}

type trainRequest struct {
	LookbackDays      int `json:"lookback_days" validate:"omitempty,gte=1"`
	HorizonMinutes    int `json:"horizon_minutes" validate:"omitempty,gte=1"`
	HistoryWindowDays int `json:"history_window_days" validate:"omitempty,gte=1"`
	SampleStepMinutes int `json:"sample_step_minutes" validate:"omitempty,gte=1"`
	MaxSamples        int `json:"max_samples" validate:"omitempty,gte=1"`
}

type candidateResponse struct {
	ID            int64   `json:"id"`
	ProductID     int64   `json:"product_id"`
	RetailerID    int64   `json:"retailer_id"`
	URL           string  `json:"url"`
	Status        string  `json:"status"`
	Score         float64 `json:"score"`
	Reason        string  `json:"reason"`
	LastCheckedAt string  `json:"last_checked_at"`
}

// RunCheckBatch evaluates one batch of candidates synchronously and
// returns the batch report.
func (h *AdminHandler) RunCheckBatch(c echo.Context) error {
	req := new(checkBatchRequest)
	if errs := xhttp.ReadAndValidateRequest(c, req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}

	report, err := h.checker.CheckBatch(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("check batch failed", logger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.SuccessResponse(c, report)
}

// EnqueueTrain queues a training run. Runs go through a single-worker
// queue so they never overlap.
func (h *AdminHandler) EnqueueTrain(c echo.Context) error {
	req := new(trainRequest)
	if errs := xhttp.ReadAndValidateRequest(c, req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}

	payload := usecase.TrainPayload{
		LookbackDays:      req.LookbackDays,
		HorizonMinutes:    req.HorizonMinutes,
		HistoryWindowDays: req.HistoryWindowDays,
		SampleStepMinutes: req.SampleStepMinutes,
		MaxSamples:        req.MaxSamples,
	}
	if err := h.publisher.PublishMessage(c.Request().Context(), usecase.TrainMessageType, payload); err != nil {
		h.logger.Error("enqueue train failed", logger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.DataResponse(c, http.StatusAccepted, map[string]string{"status": "queued"})
}

// GetCandidate returns one candidate row by id.
func (h *AdminHandler) GetCandidate(c echo.Context) error {
	var req struct {
		ID int64 `param:"id" validate:"gte=1"`
	}
	if errs := xhttp.ReadAndValidateRequest(c, &req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}

	row, err := h.candidates.GetByID(c.Request().Context(), req.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("candidate %d not found", req.ID))
		}
		h.logger.Error("candidate lookup failed", logger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("candidate lookup failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, toCandidateResponse(row))
}

// ListCandidates returns recently checked candidates, newest first.
// Query params: limit (default 50), from and to as RFC3339 or unix
// seconds bounding last_checked_at.
func (h *AdminHandler) ListCandidates(c echo.Context) error {
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 50)
	if limit < 1 || limit > 500 {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("limit must be between 1 and 500, got %d", limit))
	}
	from := xhttp.ParseTimeDefault(c.QueryParam("from"), time.Time{})
	to := xhttp.ParseTimeDefault(c.QueryParam("to"), time.Time{})

	rows, total, err := h.candidates.ListRecent(c.Request().Context(), from, to, limit)
	if err != nil {
		h.logger.Error("candidate list failed", logger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("candidate list failed").WithError(err))
	}

	out := make([]candidateResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, toCandidateResponse(row))
	}
	return xhttp.ListResponse(c, out, total)
}

// GetCalibrator serves the current calibration artifact.
func (h *AdminHandler) GetCalibrator(c echo.Context) error {
	data, err := os.ReadFile(h.artifact)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no calibrator trained yet"))
	}

	var cal models.Calibrator
	if err := json.Unmarshal(data, &cal); err != nil {
		h.logger.Error("corrupt calibrator artifact", logger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("calibrator artifact unreadable").WithError(err))
	}
	return xhttp.SuccessResponse(c, cal)
}

// RefreshRetailers drops the checker's retailer cache so slug changes
// take effect without a restart.
func (h *AdminHandler) RefreshRetailers(c echo.Context) error {
	h.checker.InvalidateRetailers()
	return xhttp.SuccessResponse(c, map[string]string{"status": "invalidated"})
}

// Healthz is the liveness probe.
func (h *AdminHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func toCandidateResponse(m *models.CandidateURL) candidateResponse {
	return candidateResponse{
		ID:            m.ID,
		ProductID:     m.ProductID,
		RetailerID:    m.RetailerID,
		URL:           m.URL,
		Status:        string(m.Status),
		Score:         m.Score,
		Reason:        m.Reason,
		LastCheckedAt: m.LastCheckedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}
