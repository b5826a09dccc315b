// Package metering fetches data usage for provisioned profiles in batches.
package metering

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
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
	partnerName = "metering"
	tracerName  = "simcore/providers/metering"

	DefaultMaxBatchSize = 50
	maxResponseBytes    = 4 << 20
)

var (
	ErrBatchTooLarge = errors.New("metering_batch_too_large")
	ErrNotConfigured = errors.New("metering_not_configured")
)

// Sample is one usage reading for a profile.
type Sample struct {
	TransactionRef string
	BytesUsed      int64
	BytesTotal     int64
	SampledAt      time.Time
}

type Client interface {
	// GetUsage returns samples for at most MaxBatchSize refs. Refs the
	// partner does not know are absent from the result.
	GetUsage(ctx context.Context, refs []string) ([]Sample, error)
	MaxBatchSize() int
}

type Config struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	MaxBatchSize int
}

type HTTPClient struct {
	baseURL      string
	apiKey       string
	maxBatchSize int
	client       *http.Client
	log          *zap.Logger
	metrics      *obsmetrics.Metrics
}

func NewHTTPClient(cfg Config, log *zap.Logger, metrics *obsmetrics.Metrics) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	maxBatch := cfg.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatchSize
	}
	return &HTTPClient{
		baseURL:      strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:       strings.TrimSpace(cfg.APIKey),
		maxBatchSize: maxBatch,
		client:       &http.Client{Timeout: timeout},
		log:          log.Named("providers.metering"),
		metrics:      metrics,
	}
}

func (c *HTTPClient) MaxBatchSize() int {
	return c.maxBatchSize
}

type usageRequest struct {
	TransactionRefs []string `json:"transaction_refs"`
	EsimTranNoList  []string `json:"esimTranNoList"`
}

type usageEnvelope struct {
	Success  *bool      `json:"success"`
	ErrorMsg string     `json:"errorMsg"`
	Obj      *usageBody `json:"obj"`
	usageBody
}

type usageBody struct {
	Usage         []usageRow `json:"usage"`
	EsimUsageList []usageRow `json:"esimUsageList"`
}

type usageRow struct {
	EsimTranNo     string `json:"esimTranNo"`
	TransactionRef string `json:"transaction_ref"`

	DataUsage *int64 `json:"dataUsage"`
	BytesUsed *int64 `json:"bytes_used"`

	TotalData  *int64 `json:"totalData"`
	BytesTotal *int64 `json:"bytes_total"`

	LastUpdateTime string `json:"lastUpdateTime"`
	SampledAt      string `json:"sampled_at"`
}

func (c *HTTPClient) GetUsage(ctx context.Context, refs []string) (samples []Sample, err error) {
	if len(refs) == 0 {
		return nil, nil
	}
	if len(refs) > c.maxBatchSize {
		return nil, fmt.Errorf("%d refs, max %d: %w", len(refs), c.maxBatchSize, ErrBatchTooLarge)
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("get usage: %w: %w", ErrNotConfigured, orderdomain.ErrPartnerUnavailable)
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "metering.get_usage",
		attribute.String("partner", partnerName),
		attribute.Int("batch_size", len(refs)),
	)
	started := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = obsmetrics.ClassifyReason(err)
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, result)
		}
		c.metrics.RecordPartnerCall(ctx, partnerName, "get_usage", result, time.Since(started))
		span.End()
	}()

	payload, err := json.Marshal(usageRequest{TransactionRefs: refs, EsimTranNoList: refs})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/usage/query", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get usage: %w", classifyTransportError(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("get usage: read body: %w", classifyTransportError(err))
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("get usage: http %d: %w", resp.StatusCode, orderdomain.ErrPartnerUnavailable)
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, fmt.Errorf("get usage: http %d: %w", resp.StatusCode, orderdomain.ErrPartnerRejected)
	}

	var env usageEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("get usage: decode response: %w", orderdomain.ErrPartnerUnavailable)
	}
	if env.Success != nil && !*env.Success {
		return nil, fmt.Errorf("get usage: %s: %w", strings.TrimSpace(env.ErrorMsg), orderdomain.ErrPartnerRejected)
	}

	body := env.usageBody
	if env.Obj != nil {
		body = *env.Obj
	}
	rows := body.Usage
	if len(rows) == 0 {
		rows = body.EsimUsageList
	}

	now := time.Now().UTC()
	samples = make([]Sample, 0, len(rows))
	for _, row := range rows {
		sample, ok := row.normalize(now)
		if !ok {
			c.log.Debug("dropping usage row without ref or totals")
			continue
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

func (r usageRow) normalize(now time.Time) (Sample, bool) {
	ref := strings.TrimSpace(r.EsimTranNo)
	if ref == "" {
		ref = strings.TrimSpace(r.TransactionRef)
	}
	used := firstInt(r.DataUsage, r.BytesUsed)
	total := firstInt(r.TotalData, r.BytesTotal)
	if ref == "" || used == nil || total == nil {
		return Sample{}, false
	}

	sampledAt := now
	for _, raw := range []string{r.LastUpdateTime, r.SampledAt} {
		if ts, ok := parseTime(raw); ok {
			sampledAt = ts
			break
		}
	}
	return Sample{
		TransactionRef: ref,
		BytesUsed:      *used,
		BytesTotal:     *total,
		SampledAt:      sampledAt,
	}, true
}

func firstInt(values ...*int64) *int64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func parseTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05-0700", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
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
