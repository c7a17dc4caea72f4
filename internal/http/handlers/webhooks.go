package handlers

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xerc/ai-payments/internal/modules/payments"
)

type WebhookHandler struct {
	Logger *slog.Logger
	Svc    *payments.Service
}

func NewWebhookHandler(logger *slog.Logger, svc *payments.Service) *WebhookHandler {
	return &WebhookHandler{Logger: logger, Svc: svc}
}

// POST|GET /webhooks/:gateway
//
// The response body must be the gateway's literal expected
// acknowledgement; anything else keeps the notification in the gateway's
// retry queue. Unrecognized and stale notifications are acked too — only
// an internal failure answers 500 so the gateway retries.
func (h *WebhookHandler) Handle(c *gin.Context) {
	ad, err := h.Svc.Adapter(c.Param("gateway"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "unknown gateway"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}
	// ParseForm needs the body back after the raw read
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	n := payments.Notification{Params: notificationParams(c), Body: body}

	orderID, err := h.Svc.Reconcile(c.Request.Context(), ad.Name(), n)
	if err != nil {
		// 500 => let the gateway retry
		h.Logger.Error("notification apply failed", "gateway", ad.Name(), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false})
		return
	}

	if orderID != "" {
		h.Logger.Info("notification reconciled", "gateway", ad.Name(), "order_id", orderID)
	}

	contentType, ack := ad.Ack()
	c.Data(http.StatusOK, contentType, []byte(ack))
}

// notificationParams merges query and form parameters; gateways differ on
// where they put the status fields.
func notificationParams(c *gin.Context) payments.Params {
	params := payments.Params{}
	for k, vs := range c.Request.URL.Query() {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}
	_ = c.Request.ParseForm()
	for k, vs := range c.Request.PostForm {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}
	return params
}
