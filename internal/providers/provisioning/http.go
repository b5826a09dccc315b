package provisioning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	obsmetrics "github.com/smallbiznis/simcore/internal/observability/metrics"
	"github.com/smallbiznis/simcore/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	partnerName = "provisioning"
	tracerName  = "simcore/providers/provisioning"

	maxResponseBytes = 1 << 20
)

var ErrNotConfigured = errors.New("provisioning_not_configured")

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *zap.Logger
	metrics *obsmetrics.Metrics
}

func NewHTTPClient(cfg Config, log *zap.Logger, metrics *obsmetrics.Metrics) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		client:  &http.Client{Timeout: timeout},
		log:     log.Named("providers.provisioning"),
		metrics: metrics,
	}
}

type createOrderRequest struct {
	SKU               string `json:"sku"`
	CustomerReference string `json:"customer_reference"`
	TransactionID     string `json:"transactionId"`
}

func (c *HTTPClient) CreateOrder(ctx context.Context, sku, customerReference string) (CreateOrderResult, error) {
	sku = strings.TrimSpace(sku)
	customerReference = strings.TrimSpace(customerReference)
	if sku == "" || customerReference == "" {
		return CreateOrderResult{}, fmt.Errorf("create order: %w", orderdomain.ErrInvalidOrder)
	}

	var env wireEnvelope
	err := c.do(ctx, "create_order", http.MethodPost, "/orders", createOrderRequest{
		SKU:               sku,
		CustomerReference: customerReference,
		TransactionID:     customerReference,
	}, customerReference, &env)
	if err != nil {
		return CreateOrderResult{}, err
	}

	order := env.order()
	result := CreateOrderResult{
		PartnerOrderID:   order.partnerOrderID(),
		Status:           order.status(),
		ActivationString: order.activationString(),
	}
	if profiles := order.profiles(); len(profiles) > 0 {
		first := profiles[0]
		result.Profile = &first
		if result.ActivationString == "" {
			result.ActivationString = first.ActivationString
		}
	}
	if result.PartnerOrderID == "" {
		return CreateOrderResult{}, fmt.Errorf("create order: missing partner order id: %w", orderdomain.ErrPartnerRejected)
	}
	return result, nil
}

type topUpRequest struct {
	SKU               string `json:"sku"`
	CustomerReference string `json:"customer_reference"`
	EsimTranNo        string `json:"esimTranNo"`
}

func (c *HTTPClient) TopUp(ctx context.Context, transactionRef, sku, customerReference string) (TopUpResult, error) {
	transactionRef = strings.TrimSpace(transactionRef)
	sku = strings.TrimSpace(sku)
	customerReference = strings.TrimSpace(customerReference)
	if transactionRef == "" || sku == "" || customerReference == "" {
		return TopUpResult{}, fmt.Errorf("top up: %w", orderdomain.ErrInvalidOrder)
	}

	var env wireEnvelope
	err := c.do(ctx, "top_up", http.MethodPost, "/orders/topup", topUpRequest{
		SKU:               sku,
		CustomerReference: customerReference,
		EsimTranNo:        transactionRef,
	}, customerReference, &env)
	if err != nil {
		return TopUpResult{}, err
	}

	order := env.order()
	result := TopUpResult{
		PartnerOrderID: order.partnerOrderID(),
		Status:         order.status(),
	}
	if result.PartnerOrderID == "" {
		return TopUpResult{}, fmt.Errorf("top up: missing partner order id: %w", orderdomain.ErrPartnerRejected)
	}
	return result, nil
}

func (c *HTTPClient) GetOrderStatus(ctx context.Context, partnerOrderID string) (OrderStatusResult, error) {
	partnerOrderID = strings.TrimSpace(partnerOrderID)
	if partnerOrderID == "" {
		return OrderStatusResult{}, fmt.Errorf("get order status: %w", orderdomain.ErrMissingPartnerRef)
	}

	var env wireEnvelope
	if err := c.do(ctx, "get_order_status", http.MethodGet, "/orders/"+url.PathEscape(partnerOrderID), nil, "", &env); err != nil {
		return OrderStatusResult{}, err
	}

	order := env.order()
	return OrderStatusResult{
		Status:        order.status(),
		FailureReason: strings.TrimSpace(order.Reason),
		Profiles:      order.profiles(),
	}, nil
}

func (c *HTTPClient) do(ctx context.Context, operation, method, path string, body any, idempotencyKey string, out *wireEnvelope) (err error) {
	if c.baseURL == "" {
		return fmt.Errorf("%s: %w: %w", operation, ErrNotConfigured, orderdomain.ErrPartnerUnavailable)
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "provisioning."+operation,
		attribute.String("partner", partnerName),
		attribute.String("operation", operation),
	)
	started := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = obsmetrics.ClassifyReason(err)
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, result)
			c.log.Debug("partner call failed",
				zap.String("operation", operation),
				zap.String("reason", result),
				zap.Error(err),
			)
		}
		c.metrics.RecordPartnerCall(ctx, partnerName, operation, result, time.Since(started))
		span.End()
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, classifyTransportError(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", operation, classifyTransportError(err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%s: http %d: %w", operation, resp.StatusCode, orderdomain.ErrPartnerUnavailable)
	case resp.StatusCode >= http.StatusBadRequest:
		var env wireEnvelope
		_ = json.Unmarshal(raw, &env)
		msg, _ := env.rejected()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%s: %s: %w", operation, msg, orderdomain.ErrPartnerRejected)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", operation, orderdomain.ErrPartnerUnavailable)
	}
	if msg, rejected := out.rejected(); rejected {
		return fmt.Errorf("%s: %s: %w", operation, msg, orderdomain.ErrPartnerRejected)
	}
	return nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", orderdomain.ErrPartnerTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", orderdomain.ErrPartnerTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", orderdomain.ErrPartnerUnavailable, err)
}
