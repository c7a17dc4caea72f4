package payments

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/xerc/ai-payments/internal/modules/basket"
)

// Operations understood by the gateway transport. The wire format behind
// them is the gateway's own business; this layer only normalizes the
// response envelope.
const (
	OpPurchase       = "purchase"
	OpAuthorize      = "authorize"
	OpConfirm        = "confirm"
	OpCreateCustomer = "createCustomer"
)

type GatewayRequest struct {
	Operation string `json:"operation"`

	Amount   string `json:"amount,omitempty"`
	Currency string `json:"currency,omitempty"`

	Token       string `json:"token,omitempty"`
	CustomerRef string `json:"customerReference,omitempty"`
	IntentRef   string `json:"paymentIntentReference,omitempty"`
	Confirm     bool   `json:"confirm,omitempty"`

	AccessMethod string            `json:"accessMethod,omitempty"`
	Items        []basket.LineItem `json:"items,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

type GatewayResponse struct {
	Successful     bool   `json:"isSuccessful"`
	TransactionRef string `json:"transactionReference"`
	IntentRef      string `json:"paymentIntentReference"`
	CustomerRef    string `json:"customerReference"`
	Code           string `json:"code"`
	Message        string `json:"message"`
}

// GatewayClient is the single outbound dependency of an adapter. All
// calls are synchronous; no adapter operation spawns background work.
type GatewayClient interface {
	Send(ctx context.Context, req GatewayRequest) (GatewayResponse, error)
}

type HTTPGateway struct {
	rc *resty.Client
}

const defaultGatewayTimeout = 15 * time.Second

func NewHTTPGateway(baseURL, apiKey string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	rc := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &HTTPGateway{rc: rc}
}

func (g *HTTPGateway) Send(ctx context.Context, req GatewayRequest) (GatewayResponse, error) {
	var out GatewayResponse

	resp, err := g.rc.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/" + req.Operation)
	if err != nil {
		if isTimeout(err) {
			return GatewayResponse{}, fmt.Errorf("%s: %w", req.Operation, ErrGatewayTimeout)
		}
		return GatewayResponse{}, fmt.Errorf("gateway %s: %w", req.Operation, err)
	}

	// Declines arrive as 2xx with isSuccessful=false; non-2xx means the
	// envelope itself failed.
	if resp.IsError() {
		return GatewayResponse{}, fmt.Errorf("gateway %s: http %d", req.Operation, resp.StatusCode())
	}
	return out, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
