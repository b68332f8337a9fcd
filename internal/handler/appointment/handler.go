package appointment

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/salonhq/booking-api/internal/handler"
	"github.com/salonhq/booking-api/internal/model"
	"github.com/salonhq/booking-api/internal/service/payment"
	"github.com/salonhq/booking-api/internal/service/scheduling"
	apperrors "github.com/salonhq/booking-api/pkg/errors"
	"github.com/salonhq/booking-api/pkg/logger"
	"github.com/salonhq/booking-api/pkg/metrics"
)

type Handler struct {
	scheduling *scheduling.Service
	payments   *payment.Service
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

func NewHandler(schedulingSvc *scheduling.Service, paymentSvc *payment.Service, log *logger.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		scheduling: schedulingSvc,
		payments:   paymentSvc,
		logger:     log,
		metrics:    m,
	}
}

// RegisterPublicRoutes exposes availability to prospective clients who have
// not authenticated yet.
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.GET("/appointments/availability", h.GetAvailability)
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, staffOnly gin.HandlerFunc) {
	appointments := r.Group("/appointments")
	{
		appointments.POST("", h.CreateAppointment)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/:id", h.GetAppointment)
		appointments.PATCH("/:id", h.UpdateAppointment)
		appointments.POST("/:id/cancel", h.CancelAppointment)
		appointments.POST("/:id/check-in", staffOnly, h.CheckIn)
		appointments.POST("/:id/start", staffOnly, h.StartService)
		appointments.POST("/:id/complete", staffOnly, h.CompleteService)
		appointments.POST("/:id/no-show", staffOnly, h.MarkNoShow)
	}
}

func (h *Handler) GetAvailability(c *gin.Context) {
	serviceID, err := uuid.Parse(c.Query("service_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid service ID"))
		return
	}

	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid date format"))
		return
	}

	slots, err := h.scheduling.Availability(c.Request.Context(), date, serviceID)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(slots))
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	requesterID, role, err := handler.CurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication required"))
		return
	}

	var req model.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	apt, err := h.scheduling.CreateAppointment(c.Request.Context(), requesterID, role, &req)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrConflict) {
			h.metrics.BookingConflicts.Inc()
		}
		handler.Error(c, err)
		return
	}

	h.metrics.BookingsCreated.WithLabelValues(string(apt.CreatedBy)).Inc()
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(apt))
}

func (h *Handler) GetAppointment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}

	apt, err := h.scheduling.GetAppointment(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(apt))
}

func (h *Handler) ListAppointments(c *gin.Context) {
	userID, role, err := handler.CurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication required"))
		return
	}

	appointments, err := h.scheduling.ListAppointments(c.Request.Context(), userID, role)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(appointments))
}

func (h *Handler) UpdateAppointment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}

	requesterID, _, err := handler.CurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication required"))
		return
	}

	var req model.UpdateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	apt, err := h.scheduling.UpdateAppointment(c.Request.Context(), id, requesterID, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(apt))
}

type cancelResponse struct {
	Appointment *model.Appointment `json:"appointment"`
	Refund      float64            `json:"refund"`
}

func (h *Handler) CancelAppointment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}

	requesterID, _, err := handler.CurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication required"))
		return
	}

	apt, refund, err := h.scheduling.CancelAppointment(c.Request.Context(), id, requesterID)
	if err != nil {
		handler.Error(c, err)
		return
	}

	kind := "none"
	if refund > 0 {
		kind = "partial"
		if refund >= apt.DepositPaid {
			kind = "full"
		}
	}
	h.metrics.Cancellations.WithLabelValues(kind).Inc()

	// The gateway refund runs after the cancellation is recorded. A failure
	// here leaves the appointment cancelled and is retried by support.
	if refund > 0 && apt.PaymentIntentID != nil {
		if _, err := h.payments.RefundPayment(c.Request.Context(), *apt.PaymentIntentID, &refund); err != nil {
			h.logger.Error(err, "refund failed after cancellation",
				"appointment_id", apt.ID.String(), "refund", refund)
		}
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(cancelResponse{Appointment: apt, Refund: refund}))
}

func (h *Handler) CheckIn(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}

	var req model.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	apt, err := h.scheduling.CheckIn(c.Request.Context(), id, req.QRCode, req.PINCode)
	if err != nil {
		h.metrics.CheckIns.WithLabelValues("failure").Inc()
		handler.Error(c, err)
		return
	}

	h.metrics.CheckIns.WithLabelValues("success").Inc()
	c.JSON(http.StatusOK, handler.NewSuccessResponse(apt))
}

func (h *Handler) StartService(c *gin.Context) {
	h.transition(c, h.scheduling.StartService)
}

func (h *Handler) CompleteService(c *gin.Context) {
	h.transition(c, h.scheduling.CompleteService)
}

func (h *Handler) MarkNoShow(c *gin.Context) {
	h.transition(c, h.scheduling.MarkNoShow)
}

func (h *Handler) transition(c *gin.Context, fn func(ctx context.Context, id uuid.UUID) (*model.Appointment, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}

	apt, err := fn(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(apt))
}
