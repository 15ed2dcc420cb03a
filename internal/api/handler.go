package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rcastellanos/estaciona-server/internal/models"
	"github.com/rcastellanos/estaciona-server/internal/repository"
	"github.com/rcastellanos/estaciona-server/internal/service"
	"github.com/rcastellanos/estaciona-server/internal/utils"
)

// Handler holds the API dependencies
type Handler struct {
	svc service.Service
	log *utils.Logger
}

// NewHandler creates a new API handler
func NewHandler(svc service.Service) *Handler {
	return &Handler{
		svc: svc,
		log: utils.NewLogger(),
	}
}

// SetupRoutes registers all routes on the router. The tablet-facing endpoints
// keep their original paths and response shapes; the admin endpoints live
// under /api behind JWT auth.
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.GET("/pull", h.Pull)
	router.POST("/sync", h.Sync)
	router.GET("/suggestions", h.Suggestions)
	router.GET("/parking_records", h.ListParkingRecords)
	router.POST("/parking_records", h.CreateParkingRecord)
	router.PUT("/parking_records", h.UpdateParkingRecord)
	router.DELETE("/parking_records", h.DeleteParkingRecord)

	api := router.Group("/api")
	api.POST("/auth/login", h.Login)

	authorized := api.Group("", AuthMiddleware())
	authorized.POST("/pensions/payments", h.RegisterPayment)
	authorized.POST("/pensions/subscribers/:id/toggle", h.ToggleSubscriber)
	authorized.POST("/entry_types/:id/default", h.SetDefaultEntryType)
	authorized.GET("/reports/summary", h.ReportSummary)
}

// Pull returns the full offline snapshot for a connecting client.
func (h *Handler) Pull(c *gin.Context) {
	resp, err := h.svc.Pull(c.Request.Context())
	if err != nil {
		h.log.Error("pull failed: %v", err)
		h.legacyError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Sync applies one pushed entity.
func (h *Handler) Sync(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, models.LegacyError{Error: "Invalid JSON"})
		return
	}

	resp, err := h.svc.Sync(c.Request.Context(), body)
	if err != nil {
		h.log.Error("sync rejected: %v", err)
		h.legacyError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Suggestions returns autocomplete values. Mirroring the original endpoint,
// storage failures degrade to an empty list rather than an error.
func (h *Handler) Suggestions(c *gin.Context) {
	kind := c.Query("type")
	query := c.Query("q")

	values, err := h.svc.Suggest(c.Request.Context(), kind, query)
	if err != nil {
		h.log.Error("suggestions failed: %v", err)
		c.JSON(http.StatusOK, []string{})
		return
	}
	c.JSON(http.StatusOK, values)
}

// ListParkingRecords is the read side of the admin CRUD; no auth required.
func (h *Handler) ListParkingRecords(c *gin.Context) {
	filter := repository.RecordFilter{
		Plate:  c.Query("plate"),
		Limit:  intQuery(c, "limit", 100),
		Offset: intQuery(c, "offset", 0),
	}
	if v, err := strconv.ParseInt(c.Query("start_date"), 10, 64); err == nil {
		filter.StartDate = &v
	}
	if v, err := strconv.ParseInt(c.Query("end_date"), 10, 64); err == nil {
		filter.EndDate = &v
	}

	records, err := h.svc.ListParkingRecords(c.Request.Context(), filter)
	if err != nil {
		h.legacyError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.RecordListResponse{Status: "success", Data: records})
}

// CreateParkingRecord lets an admin insert a correction or manual entry.
func (h *Handler) CreateParkingRecord(c *gin.Context) {
	var req models.AdminRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.LegacyError{Error: "Invalid JSON"})
		return
	}

	if err := h.svc.CreateParkingRecord(c.Request.Context(), req); err != nil {
		h.legacyError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.StatusMessageResponse{Status: "success", Message: "Record created"})
}

// UpdateParkingRecord patches the provided fields of one record.
func (h *Handler) UpdateParkingRecord(c *gin.Context) {
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, models.LegacyError{Error: "Invalid JSON"})
		return
	}

	requestingUserID, _ := body["requesting_user_id"].(string)
	id, _ := body["id"].(string)
	delete(body, "requesting_user_id")
	delete(body, "id")

	if err := h.svc.UpdateParkingRecord(c.Request.Context(), requestingUserID, id, body); err != nil {
		h.legacyError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.StatusMessageResponse{Status: "success", Message: "Record updated"})
}

// DeleteParkingRecord removes one record by id.
func (h *Handler) DeleteParkingRecord(c *gin.Context) {
	var body struct {
		RequestingUserID string `json:"requesting_user_id"`
		ID               string `json:"id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, models.LegacyError{Error: "Invalid JSON"})
		return
	}

	if err := h.svc.DeleteParkingRecord(c.Request.Context(), body.RequestingUserID, body.ID); err != nil {
		h.legacyError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.StatusMessageResponse{Status: "success", Message: "Record deleted"})
}

// Login exchanges a user id and PIN for a JWT.
func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Status:  "error",
			Code:    "VALIDATION_ERROR",
			Message: "user_id and pin are required",
		})
		return
	}

	resp, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{
				Status:  "error",
				Code:    "UNAUTHORIZED",
				Message: "Invalid user or PIN",
			})
			return
		}
		h.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RegisterPayment records a pension payment and advances the subscriber's
// coverage.
func (h *Handler) RegisterPayment(c *gin.Context) {
	var req models.RegisterPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Status:  "error",
			Code:    "VALIDATION_ERROR",
			Message: "subscriber_id and amount are required",
		})
		return
	}

	resp, err := h.svc.RegisterPayment(c.Request.Context(), c.GetString("userId"), req)
	if err != nil {
		h.apiError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ToggleSubscriber flips a subscriber's active flag.
func (h *Handler) ToggleSubscriber(c *gin.Context) {
	active, err := h.svc.ToggleSubscriber(c.Request.Context(), c.GetString("userId"), c.Param("id"))
	if err != nil {
		h.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "is_active": active})
}

// SetDefaultEntryType makes one entry type the default selection, clearing
// the flag on all others.
func (h *Handler) SetDefaultEntryType(c *gin.Context) {
	if err := h.svc.SetDefaultEntryType(c.Request.Context(), c.GetString("userId"), c.Param("id")); err != nil {
		h.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.StatusMessageResponse{Status: "success", Message: "Default entry type updated"})
}

// ReportSummary aggregates income and expenses over a date range.
func (h *Handler) ReportSummary(c *gin.Context) {
	start, errStart := strconv.ParseInt(c.Query("start_date"), 10, 64)
	end, errEnd := strconv.ParseInt(c.Query("end_date"), 10, 64)
	if errStart != nil || errEnd != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Status:  "error",
			Code:    "VALIDATION_ERROR",
			Message: "start_date and end_date are required (epoch milliseconds)",
		})
		return
	}

	resp, err := h.svc.ReportSummary(c.Request.Context(), start, end)
	if err != nil {
		h.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// legacyError writes errors in the {"error": ...} shape the tablets expect.
// Storage errors pass their message through verbatim; this is an internal
// tool, not a public API.
func (h *Handler) legacyError(c *gin.Context, err error) {
	c.JSON(legacyStatus(err), models.LegacyError{Error: err.Error()})
}

func legacyStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrBadPayload),
		errors.Is(err, service.ErrUnknownEntity):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// apiError writes errors in the structured shape of the /api endpoints.
func (h *Handler) apiError(c *gin.Context, err error) {
	status := legacyStatus(err)
	code := "INTERNAL_ERROR"
	switch status {
	case http.StatusBadRequest:
		code = "VALIDATION_ERROR"
	case http.StatusForbidden:
		code = "FORBIDDEN"
	case http.StatusNotFound:
		code = "NOT_FOUND"
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed: %v", err)
	}
	c.JSON(status, models.ErrorResponse{Status: "error", Code: code, Message: err.Error()})
}

func intQuery(c *gin.Context, name string, defaultValue int) int {
	if v, err := strconv.Atoi(c.Query(name)); err == nil {
		return v
	}
	return defaultValue
}
