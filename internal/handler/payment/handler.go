package payment

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/salonhq/booking-api/internal/handler"
	"github.com/salonhq/booking-api/internal/service/payment"
	"github.com/salonhq/booking-api/pkg/logger"
	"github.com/salonhq/booking-api/pkg/metrics"
)

type Handler struct {
	service *payment.Service
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewHandler(service *payment.Service, log *logger.Logger, m *metrics.Metrics) *Handler {
	return &Handler{service: service, logger: log, metrics: m}
}

// RegisterRoutes mounts the authenticated payment endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	payments := r.Group("/payments")
	{
		payments.POST("/intents", h.CreateIntent)
		payments.POST("/confirm", h.ConfirmPayment)
	}
}

// RegisterWebhook mounts the gateway callback. It is authenticated by
// signature, not by bearer token.
func (h *Handler) RegisterWebhook(r *gin.RouterGroup) {
	r.POST("/payments/webhook", h.Webhook)
}

type createIntentRequest struct {
	AppointmentID string  `json:"appointment_id" binding:"required"`
	Amount        float64 `json:"amount"`
}

func (h *Handler) CreateIntent(c *gin.Context) {
	var req createIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	appointmentID, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}

	intent, err := h.service.CreatePaymentIntent(c.Request.Context(), appointmentID, req.Amount)
	if err != nil {
		h.metrics.PaymentIntents.WithLabelValues("error").Inc()
		handler.Error(c, err)
		return
	}

	h.metrics.PaymentIntents.WithLabelValues("success").Inc()
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(intent))
}

type confirmRequest struct {
	PaymentIntentID string `json:"payment_intent_id" binding:"required"`
}

func (h *Handler) ConfirmPayment(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	applied, err := h.service.ConfirmPayment(c.Request.Context(), req.PaymentIntentID)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"applied": applied}))
}

// Webhook receives gateway events. Once the signature checks out we always
// return 200: business-level failures are logged and handled out of band so
// the gateway does not keep retrying events we cannot use.
func (h *Handler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("failed to read payload"))
		return
	}

	event, err := h.service.VerifyWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.metrics.WebhookEvents.WithLabelValues("unknown", "invalid_signature").Inc()
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid signature"))
		return
	}

	if err := h.service.HandleEvent(c.Request.Context(), event); err != nil {
		h.metrics.WebhookEvents.WithLabelValues(event.Type, "error").Inc()
		h.logger.Error(err, "failed to handle webhook event",
			"event_id", event.ID, "event_type", event.Type)
	} else {
		h.metrics.WebhookEvents.WithLabelValues(event.Type, "success").Inc()
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}
