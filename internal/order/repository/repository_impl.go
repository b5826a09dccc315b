package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
	"gorm.io/gorm"
)

const orderColumns = `id, user_id, plan_id, status, payment_provider, payment_reference, amount, currency, paid_at,
	partner_order_ref, iccid, transaction_ref, smdp_address, activation_code, install_url,
	provisioning_started_at, failure_reason, data_used_bytes, data_remaining_bytes, bonus_bytes,
	usage_updated_at, is_topup, parent_order_id, is_test_account, activation_source,
	created_at, updated_at, activated_at, completed_at, expired_at, refunded_at`

type repo struct{}

func Provide() orderdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *orderdomain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (
			id, user_id, plan_id, status, amount, currency, is_topup, parent_order_id,
			is_test_account, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.UserID,
		order.PlanID,
		order.Status,
		order.Amount,
		order.Currency,
		order.IsTopup,
		order.ParentOrderID,
		order.IsTestAccount,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*orderdomain.Order, error) {
	return r.findOne(ctx, db, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
}

func (r *repo) FindByPartnerOrderRef(ctx context.Context, db *gorm.DB, ref string) (*orderdomain.Order, error) {
	return r.findOne(ctx, db, `SELECT `+orderColumns+` FROM orders WHERE partner_order_ref = ? LIMIT 1`, ref)
}

func (r *repo) FindByTransactionRef(ctx context.Context, db *gorm.DB, ref string) (*orderdomain.Order, error) {
	return r.findOne(ctx, db, `SELECT `+orderColumns+` FROM orders WHERE transaction_ref = ? LIMIT 1`, ref)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*orderdomain.Order, error) {
	var order orderdomain.Order
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&order).Error; err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) CompareAndSwap(ctx context.Context, db *gorm.DB, id snowflake.ID, expected orderdomain.OrderStatus, fields map[string]any) (bool, error) {
	result := db.WithContext(ctx).
		Model(&orderdomain.Order{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) ListExpiryCandidates(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]orderdomain.ExpiryCandidate, error) {
	var candidates []orderdomain.ExpiryCandidate
	err := db.WithContext(ctx).Raw(
		`SELECT o.id, o.user_id, o.plan_id, o.status, o.activated_at, o.is_test_account,
		 o.created_at, o.updated_at, p.validity_days
		 FROM orders o
		 JOIN plans p ON p.id = o.plan_id
		 WHERE o.status IN ?
		 AND o.activated_at IS NOT NULL
		 AND o.is_test_account = ?
		 AND o.id > ?
		 ORDER BY o.id ASC
		 LIMIT ?`,
		[]orderdomain.OrderStatus{
			orderdomain.OrderStatusActive,
			orderdomain.OrderStatusCompleted,
			orderdomain.OrderStatusProvisioning,
		},
		false,
		afterID,
		limit,
	).Scan(&candidates).Error
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

func (r *repo) ListMeteringCandidates(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]orderdomain.Order, error) {
	var orders []orderdomain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE status IN ?
		 AND is_topup = ?
		 AND is_test_account = ?
		 AND transaction_ref IS NOT NULL
		 AND id > ?
		 ORDER BY id ASC
		 LIMIT ?`,
		[]orderdomain.OrderStatus{
			orderdomain.OrderStatusCompleted,
			orderdomain.OrderStatusActive,
			orderdomain.OrderStatusDepleted,
		},
		false,
		false,
		afterID,
		limit,
	).Scan(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) ListStuckProvisioning(ctx context.Context, db *gorm.DB, startedBefore time.Time, limit int) ([]orderdomain.Order, error) {
	var orders []orderdomain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE status = ?
		 AND is_test_account = ?
		 AND partner_order_ref IS NOT NULL
		 AND provisioning_started_at IS NOT NULL
		 AND provisioning_started_at < ?
		 ORDER BY provisioning_started_at ASC
		 LIMIT ?`,
		orderdomain.OrderStatusProvisioning,
		false,
		startedBefore,
		limit,
	).Scan(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) ListPaidUnprovisioned(ctx context.Context, db *gorm.DB, paidBefore time.Time, limit int) ([]orderdomain.Order, error) {
	var orders []orderdomain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE status = ?
		 AND is_test_account = ?
		 AND partner_order_ref IS NULL
		 AND paid_at IS NOT NULL
		 AND paid_at < ?
		 ORDER BY paid_at ASC
		 LIMIT ?`,
		orderdomain.OrderStatusPaid,
		false,
		paidBefore,
		limit,
	).Scan(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ListCompletedTopUps returns the top-ups whose capacity has landed on
// parentID's profile.
func (r *repo) ListCompletedTopUps(ctx context.Context, db *gorm.DB, parentID snowflake.ID) ([]orderdomain.Order, error) {
	var orders []orderdomain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE parent_order_id = ?
		 AND is_topup = ?
		 AND status = ?
		 ORDER BY id ASC`,
		parentID,
		true,
		orderdomain.OrderStatusCompleted,
	).Scan(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
