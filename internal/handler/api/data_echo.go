package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"GoPredict/internal/domain/models"
	"GoPredict/internal/usecase"
	xhttp "GoPredict/pkg/http"
	applogger "GoPredict/pkg/logger"

	"github.com/labstack/echo/v4"
)

// DataService is the set of downstream operations the API exposes.
type DataService interface {
	GetCachedData(key models.DatasetKey) (*models.CachedData, error)
	ClearNotifications(key models.DatasetKey) error
	GetStatus() models.Status
	ForceRefresh(ctx context.Context, target string) (map[models.DatasetKey]models.RefreshResult, error)
	FetchUpstream(ctx context.Context, key string) ([]byte, error)
}

// RateLimiter decides whether a client may trigger another refresh.
type RateLimiter interface {
	Allow(key string) bool
}

// DatasetResponse is the body of dataset reads.
type DatasetResponse struct {
	Success       bool                  `json:"success"`
	Data          []models.Record       `json:"data"`
	LastUpdate    *time.Time            `json:"lastUpdate"`
	Notifications []models.Notification `json:"notifications"`
}

type RefreshResponse struct {
	Success bool                                        `json:"success"`
	Results map[models.DatasetKey]models.RefreshResult `json:"results"`
}

type ClearResponse struct {
	Success bool              `json:"success"`
	Dataset models.DatasetKey `json:"dataset"`
}

// DataEchoHandler serves the cached datasets under /api/data.
type DataEchoHandler struct {
	logger  *applogger.Logger
	svc     DataService
	limiter RateLimiter
	stream  *StreamHub
}

func NewDataEchoHandler(logger *applogger.Logger, svc DataService, limiter RateLimiter, stream *StreamHub) *DataEchoHandler {
	if logger == nil {
		logger = applogger.Nop()
	}
	return &DataEchoHandler{logger: logger, svc: svc, limiter: limiter, stream: stream}
}

func (h *DataEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/data")
	g.GET("/daily-predictions", h.dataset(models.DatasetDailyPredictions))
	g.GET("/intraday-predictions", h.dataset(models.DatasetIntradayPredictions))
	g.GET("/tradebook", h.dataset(models.DatasetTradebook))
	g.GET("/datasets/:key", h.Dataset)
	g.POST("/clear-notifications", h.ClearNotifications)
	g.GET("/status", h.Status)
	g.POST("/refresh", h.Refresh)
	g.GET("/upstream/:key", h.Upstream)
	if h.stream != nil {
		g.GET("/stream", h.stream.Handle)
	}
	e.GET("/healthz", h.Health)
}

func (h *DataEchoHandler) dataset(key models.DatasetKey) echo.HandlerFunc {
	return func(c echo.Context) error { return h.writeDataset(c, key) }
}

func (h *DataEchoHandler) Dataset(c echo.Context) error {
	key, err := models.ParseDatasetKey(c.Param("key"))
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()))
	}
	return h.writeDataset(c, key)
}

func (h *DataEchoHandler) writeDataset(c echo.Context, key models.DatasetKey) error {
	data, err := h.svc.GetCachedData(key)
	if err != nil {
		if errors.Is(err, models.ErrUnknownDataset) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()))
		}
		h.logger.Error("read dataset", applogger.String("dataset", key.String()), applogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	return xhttp.SuccessResponse(c, DatasetResponse{
		Success:       true,
		Data:          data.Data,
		LastUpdate:    data.LastUpdate,
		Notifications: data.Notifications,
	})
}

func (h *DataEchoHandler) ClearNotifications(c echo.Context) error {
	req := &models.ClearNotificationsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	key, err := models.ParseDatasetKey(req.Type)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	if err := h.svc.ClearNotifications(key); err != nil {
		if errors.Is(err, models.ErrUnknownDataset) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()))
		}
		h.logger.Error("clear notifications", applogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.SuccessResponse(c, ClearResponse{Success: true, Dataset: key})
}

func (h *DataEchoHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.svc.GetStatus())
}

func (h *DataEchoHandler) Refresh(c echo.Context) error {
	if h.limiter != nil && !h.limiter.Allow(c.RealIP()) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("refresh rate limit exceeded"))
	}
	req := &models.RefreshRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	results, err := h.svc.ForceRefresh(c.Request().Context(), req.Type)
	if err != nil {
		if errors.Is(err, models.ErrUnknownDataset) {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
		}
		h.logger.Error("force refresh", applogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	success := true
	for _, r := range results {
		if r.Outcome != models.OutcomeSuccess && r.Outcome != models.OutcomeNoData {
			success = false
		}
	}
	return xhttp.SuccessResponse(c, RefreshResponse{Success: success, Results: results})
}

func (h *DataEchoHandler) Upstream(c echo.Context) error {
	key := c.Param("key")
	body, err := h.svc.FetchUpstream(c.Request().Context(), key)
	switch {
	case err == nil:
		return c.JSONBlob(http.StatusOK, body)
	case errors.Is(err, usecase.ErrPassthroughKey):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()))
	case errors.Is(err, models.ErrFetchFailed),
		errors.Is(err, models.ErrLeaseUnavailable),
		errors.Is(err, models.ErrNoLease),
		errors.Is(err, models.ErrLeaseExpired):
		h.logger.Warn("upstream passthrough failed", applogger.String("key", key), applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.BadGatewayError(err.Error()))
	default:
		h.logger.Error("upstream passthrough", applogger.String("key", key), applogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
}

func (h *DataEchoHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
