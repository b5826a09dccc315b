package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obslogger "github.com/smallbiznis/simcore/internal/observability/logger"
	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
	plandomain "github.com/smallbiznis/simcore/internal/plan/domain"
	"github.com/smallbiznis/simcore/internal/provisioning"
	"go.uber.org/zap"
)

// statusInProgress is what owners see while the partner is still provisioning.
const statusInProgress = "in_progress"

type createOrderRequest struct {
	PlanID        string `json:"plan_id" validate:"required,numeric"`
	ParentOrderID string `json:"parent_order_id" validate:"omitempty,numeric"`
}

type refundOrderRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type orderResponse struct {
	ID                 string     `json:"id"`
	PlanID             string     `json:"plan_id"`
	Status             string     `json:"status"`
	Amount             int64      `json:"amount"`
	Currency           string     `json:"currency"`
	IsTopup            bool       `json:"is_topup"`
	ParentOrderID      *string    `json:"parent_order_id,omitempty"`
	ICCID              *string    `json:"iccid,omitempty"`
	SMDPAddress        *string    `json:"smdp_address,omitempty"`
	ActivationCode     *string    `json:"activation_code,omitempty"`
	InstallURL         *string    `json:"install_url,omitempty"`
	TotalBytes         int64      `json:"total_bytes"`
	DataUsedBytes      int64      `json:"data_used_bytes"`
	DataRemainingBytes int64      `json:"data_remaining_bytes"`
	BonusBytes         int64      `json:"bonus_bytes"`
	FailureReason      *string    `json:"failure_reason,omitempty"`
	Simulated          bool       `json:"simulated"`
	CreatedAt          time.Time  `json:"created_at"`
	ActivatedAt        *time.Time `json:"activated_at,omitempty"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	RefundedAt         *time.Time `json:"refunded_at,omitempty"`
}

func (s *Server) CreateOrder(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		AbortWithError(c, fromValidator(err))
		return
	}

	planID, err := snowflake.ParseString(strings.TrimSpace(req.PlanID))
	if err != nil {
		AbortWithError(c, newValidationError("plan_id", "invalid_plan_id", "invalid plan id"))
		return
	}
	create := orderdomain.CreateOrderRequest{UserID: userID, PlanID: planID}
	if parentRaw := strings.TrimSpace(req.ParentOrderID); parentRaw != "" {
		parentID, err := snowflake.ParseString(parentRaw)
		if err != nil {
			AbortWithError(c, newValidationError("parent_order_id", "invalid_parent_order_id", "invalid parent order id"))
			return
		}
		create.ParentOrderID = &parentID
	}

	order, err := s.orders.Create(c.Request.Context(), create)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	plan, err := s.plans.Get(c.Request.Context(), order.PlanID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": newOrderResponse(*order, *plan)})
}

// GetOrder is the owner's detail read. It may recover a stuck order, apply
// the activation read heuristic and overlay the simulated lifecycle of a
// test account; none of these change what the caller is allowed to see.
func (s *Server) GetOrder(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	orderID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || orderID <= 0 {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	ctx := c.Request.Context()
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if order.UserID != userID {
		AbortWithError(c, ErrNotFound)
		return
	}
	plan, err := s.plans.Get(ctx, order.PlanID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	log := obslogger.WithOrder(obslogger.WithContext(ctx, s.log), order.ID.String())
	current := s.recoverOnRead(c, log, *order)
	current = s.activateOnRead(c, log, current)

	resp := newOrderResponse(current, *plan)
	if s.simulation != nil {
		snap, ok, err := s.simulation.Snapshot(ctx, current, *plan, s.now())
		if err != nil {
			log.Warn("simulation snapshot failed", zap.Error(err))
		}
		if ok {
			resp.Status = displayStatus(snap.Status)
			resp.ActivatedAt = snap.ActivatedAt
			resp.ExpiresAt = snap.ExpiresAt
			resp.TotalBytes = snap.TotalBytes
			resp.DataUsedBytes = snap.DataUsedBytes
			resp.DataRemainingBytes = snap.DataRemainingBytes
			resp.Simulated = true
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// RefundOrder moves any non-terminal order to refunded. Only operators
// holding order.refund reach this handler.
func (s *Server) RefundOrder(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	orderID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || orderID <= 0 {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	var req refundOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validate.Struct(req); err != nil {
		AbortWithError(c, fromValidator(err))
		return
	}

	ctx := c.Request.Context()
	res, err := s.orders.Apply(ctx, orderID, orderdomain.Event{
		Type:  orderdomain.EventOrderRefunded,
		Actor: actor,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !res.Applied {
		AbortWithError(c, ErrConflict)
		return
	}

	obslogger.WithOrder(obslogger.WithContext(ctx, s.log), orderID.String()).Info("order refunded",
		zap.String("actor", actor),
		zap.String("reason", req.Reason),
	)

	plan, err := s.plans.Get(ctx, res.Order.PlanID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newOrderResponse(res.Order, *plan)})
}

// recoverOnRead runs the stuck-order recovery synchronously. Failures are
// logged and the stored order is shown as-is.
func (s *Server) recoverOnRead(c *gin.Context, log *zap.Logger, order orderdomain.Order) orderdomain.Order {
	if s.recovery == nil || order.Status != orderdomain.OrderStatusProvisioning || order.PartnerOrderRef == nil {
		return order
	}
	ctx := c.Request.Context()
	outcome, err := s.recovery.Recover(ctx, order)
	if err != nil {
		log.Warn("recovery on read failed", zap.Error(err))
		return order
	}
	switch outcome {
	case provisioning.OutcomeCompleted, provisioning.OutcomeFailed:
		reloaded, err := s.orders.GetByID(ctx, order.ID)
		if err != nil {
			log.Warn("reload after recovery failed", zap.Error(err))
			return order
		}
		return *reloaded
	default:
		return order
	}
}

// activateOnRead treats the owner's first detail read of a completed order
// as activation when partner install events are not relied on.
func (s *Server) activateOnRead(c *gin.Context, log *zap.Logger, order orderdomain.Order) orderdomain.Order {
	if !s.cfg.ActivationReadHeuristic || order.Status != orderdomain.OrderStatusCompleted {
		return order
	}
	if order.IsTopup || order.IsTestAccount {
		return order
	}
	if s.simulation != nil {
		isTest, err := s.simulation.Verify(c.Request.Context(), order.UserID)
		if err != nil {
			log.Warn("test account check failed, activation on read skipped", zap.Error(err))
			return order
		}
		if isTest {
			return order
		}
	}
	res, err := s.orders.Apply(c.Request.Context(), order.ID, orderdomain.Event{
		Type:             orderdomain.EventProfileActivated,
		ActivationSource: orderdomain.ActivationSourceDetailRead,
	})
	if err != nil {
		if !errors.Is(err, orderdomain.ErrIllegalTransition) {
			log.Warn("activation on read failed", zap.Error(err))
		}
		return order
	}
	if !res.Applied {
		return order
	}
	return res.Order
}

func (s *Server) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now().UTC()
}

func newOrderResponse(order orderdomain.Order, plan plandomain.Plan) orderResponse {
	resp := orderResponse{
		ID:                 order.ID.String(),
		PlanID:             order.PlanID.String(),
		Status:             displayStatus(order.Status),
		Amount:             order.Amount,
		Currency:           order.Currency,
		IsTopup:            order.IsTopup,
		ICCID:              order.ICCID,
		SMDPAddress:        order.SMDPAddress,
		ActivationCode:     order.ActivationCode,
		InstallURL:         order.InstallURL,
		TotalBytes:         plan.TotalBytes() + order.BonusBytes,
		DataUsedBytes:      order.DataUsedBytes,
		DataRemainingBytes: order.DataRemainingBytes,
		BonusBytes:         order.BonusBytes,
		FailureReason:      order.FailureReason,
		CreatedAt:          order.CreatedAt,
		ActivatedAt:        order.ActivatedAt,
		ExpiresAt:          order.ExpiresAt(plan.ValidityDays),
		RefundedAt:         order.RefundedAt,
	}
	if order.ParentOrderID != nil {
		parent := order.ParentOrderID.String()
		resp.ParentOrderID = &parent
	}
	if order.UsageUpdatedAt == nil && order.DataUsedBytes == 0 && order.DataRemainingBytes == 0 {
		resp.DataRemainingBytes = resp.TotalBytes
	}
	return resp
}

func displayStatus(status orderdomain.OrderStatus) string {
	if status == orderdomain.OrderStatusProvisioning {
		return statusInProgress
	}
	return string(status)
}
