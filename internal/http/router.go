package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xerc/ai-payments/internal/http/handlers"
	"github.com/xerc/ai-payments/internal/http/middleware"
	"github.com/xerc/ai-payments/internal/modules/payments"
)

func NewRouter(logger *slog.Logger, svc *payments.Service) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.ErrorHandler(logger))

	payment := handlers.NewPaymentHandler(logger, svc)
	webhook := handlers.NewWebhookHandler(logger, svc)

	r.POST("/checkout/:order/payment/:gateway", payment.Initiate)
	r.POST("/checkout/:order/payment/:gateway/confirm", payment.Confirm)

	// gateways differ on the notification verb
	r.POST("/webhooks/:gateway", webhook.Handle)
	r.GET("/webhooks/:gateway", webhook.Handle)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	return r
}
