package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xerc/ai-payments/internal/http/middleware"
	"github.com/xerc/ai-payments/internal/http/validation"
	"github.com/xerc/ai-payments/internal/modules/basket"
	"github.com/xerc/ai-payments/internal/modules/checkout"
	"github.com/xerc/ai-payments/internal/modules/orders"
	"github.com/xerc/ai-payments/internal/modules/payments"
	"github.com/xerc/ai-payments/internal/shared/apperr"
)

type PaymentHandler struct {
	Logger *slog.Logger
	Svc    *payments.Service
}

func NewPaymentHandler(logger *slog.Logger, svc *payments.Service) *PaymentHandler {
	return &PaymentHandler{Logger: logger, Svc: svc}
}

type payRequest struct {
	UserID *string           `json:"user_id" binding:"omitempty,uuid"`
	Basket basket.Basket     `json:"basket" binding:"required"`
	Params map[string]string `json:"params"`
}

// POST /checkout/:order/payment/:gateway
//
// Without a paymenttoken param the response is a form descriptor for the
// front end to render; with one, the payment is confirmed in the same
// round-trip.
func (h *PaymentHandler) Initiate(c *gin.Context) {
	var in payRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		errs := validation.FromBindError(err, &in)
		middleware.Fail(c, apperr.InvalidErr("Invalid payment request.", errs))
		return
	}

	res, err := h.Svc.Pay(c.Request.Context(), payments.PayInput{
		OrderID: c.Param("order"),
		Gateway: c.Param("gateway"),
		UserID:  in.UserID,
		Basket:  in.Basket,
		Params:  payments.Params(in.Params),
	})
	if err != nil {
		h.fail(c, err, res.Confirmation)
		return
	}

	if res.Form != nil {
		c.JSON(http.StatusOK, gin.H{"form": res.Form})
		return
	}
	c.JSON(http.StatusOK, gin.H{"confirmation": res.Confirmation})
}

// POST /checkout/:order/payment/:gateway/confirm
func (h *PaymentHandler) Confirm(c *gin.Context) {
	var in payRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		errs := validation.FromBindError(err, &in)
		middleware.Fail(c, apperr.InvalidErr("Invalid payment request.", errs))
		return
	}

	conf, err := h.Svc.ConfirmPayment(c.Request.Context(), payments.PayInput{
		OrderID: c.Param("order"),
		Gateway: c.Param("gateway"),
		UserID:  in.UserID,
		Basket:  in.Basket,
		Params:  payments.Params(in.Params),
	})
	if err != nil {
		h.fail(c, err, conf)
		return
	}
	c.JSON(http.StatusOK, gin.H{"confirmation": conf})
}

func (h *PaymentHandler) fail(c *gin.Context, err error, conf *payments.Confirmation) {
	var ibe *basket.InvalidBasketError
	switch {
	case errors.As(err, &ibe):
		middleware.Fail(c, apperr.InvalidErr("Invalid basket.", map[string]string{"basket": ibe.Error()}))
	case errors.Is(err, payments.ErrUnknownGateway):
		middleware.Fail(c, apperr.NotFoundErr("Unknown payment gateway."))
	case errors.Is(err, payments.ErrOrderSettled):
		middleware.Fail(c, apperr.ConflictErr("Payment already settled."))
	case errors.Is(err, payments.ErrNothingToConfirm):
		middleware.Fail(c, apperr.InvalidErr("No payment token or pending payment to confirm.", nil))
	case errors.Is(err, payments.ErrGatewayTimeout):
		// ambiguous outcome: order stays pending until reconciliation
		h.Logger.Warn("gateway timeout", "order_id", c.Param("order"), "gateway", c.Param("gateway"))
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error":        "Gateway timeout, payment pending reconciliation.",
			"confirmation": conf,
		})
	case errors.Is(err, orders.ErrOrderNotFound):
		middleware.Fail(c, apperr.NotFoundErr("Order not found."))
	default:
		var ite *checkout.InvalidTransitionError
		if errors.As(err, &ite) {
			middleware.Fail(c, apperr.ConflictErr("Payment already settled."))
			return
		}
		middleware.Fail(c, apperr.Wrap(err))
	}
}
