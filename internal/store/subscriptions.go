package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pitsense/pitsense/internal/models"
)

const subscriptionColumns = `id, tenant_id, device_id, license_key, plan, status,
	monthly_fee, currency, starts_at, expires_at, trial_expires_at,
	grace_period_days, last_payment_at, next_payment_at, created_at`

func scanSubscription(row scanner) (*models.Subscription, error) {
	var (
		s                       models.Subscription
		deviceID                sql.NullString
		fee                     sql.NullFloat64
		startsAt, expiresAt     sql.NullInt64
		trialExpires            sql.NullInt64
		lastPayment, nextPaymnt sql.NullInt64
		createdAt               int64
	)
	err := row.Scan(&s.ID, &s.TenantID, &deviceID, &s.LicenseKey, &s.Plan, &s.Status,
		&fee, &s.Currency, &startsAt, &expiresAt, &trialExpires,
		&s.GracePeriodDays, &lastPayment, &nextPaymnt, &createdAt)
	if err != nil {
		return nil, err
	}
	s.DeviceID = strOrNil(deviceID)
	s.MonthlyFee = floatOrNil(fee)
	s.StartsAt = fromNullUnix(startsAt)
	s.ExpiresAt = fromNullUnix(expiresAt)
	s.TrialExpiresAt = fromNullUnix(trialExpires)
	s.LastPaymentAt = fromNullUnix(lastPayment)
	s.NextPaymentAt = fromNullUnix(nextPaymnt)
	s.CreatedAt = fromUnix(createdAt)
	return &s, nil
}

// GetSubscription returns a subscription by primary key.
func (q *Queries) GetSubscription(ctx context.Context, id int64) (*models.Subscription, error) {
	const op = "store.GetSubscription"
	row := q.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
	s, err := scanSubscription(row)
	if err != nil {
		return nil, wrap(op, err)
	}
	return s, nil
}

// GetSubscriptionByDevice returns the subscription bound to a device.
func (q *Queries) GetSubscriptionByDevice(ctx context.Context, deviceID string) (*models.Subscription, error) {
	const op = "store.GetSubscriptionByDevice"
	row := q.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE device_id = ?`, deviceID)
	s, err := scanSubscription(row)
	if err != nil {
		return nil, wrap(op, err)
	}
	return s, nil
}

// GetSubscriptionByLicense returns the subscription for a license key.
func (q *Queries) GetSubscriptionByLicense(ctx context.Context, licenseKey string) (*models.Subscription, error) {
	const op = "store.GetSubscriptionByLicense"
	row := q.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE license_key = ?`, licenseKey)
	s, err := scanSubscription(row)
	if err != nil {
		return nil, wrap(op, err)
	}
	return s, nil
}

// CreateSubscription inserts a subscription. The unique license_key
// index makes double approval fail with Conflict.
func (q *Queries) CreateSubscription(ctx context.Context, s *models.Subscription, now time.Time) error {
	const op = "store.CreateSubscription"
	var deviceArg any
	if s.DeviceID != nil {
		deviceArg = *s.DeviceID
	}
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO subscriptions (tenant_id, device_id, license_key, plan, status,
			monthly_fee, currency, starts_at, expires_at, trial_expires_at,
			grace_period_days, last_payment_at, next_payment_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.TenantID, deviceArg, s.LicenseKey, s.Plan, s.Status,
		floatArg(s.MonthlyFee), s.Currency, unixPtr(s.StartsAt), unixPtr(s.ExpiresAt),
		unixPtr(s.TrialExpiresAt), s.GracePeriodDays,
		unixPtr(s.LastPaymentAt), unixPtr(s.NextPaymentAt), unix(now))
	if err != nil {
		return wrap(op, err)
	}
	s.ID, _ = res.LastInsertId()
	s.CreatedAt = now.UTC()
	return nil
}

// SetSubscriptionStatus transitions the subscription lifecycle state.
func (q *Queries) SetSubscriptionStatus(ctx context.Context, id int64, status models.SubscriptionStatus) error {
	const op = "store.SetSubscriptionStatus"
	_, err := q.db.ExecContext(ctx,
		`UPDATE subscriptions SET status = ? WHERE id = ?`, status, id)
	return wrap(op, err)
}

// ClearSubscriptionDevice detaches the subscription from its device,
// used when a device is unassigned.
func (q *Queries) ClearSubscriptionDevice(ctx context.Context, deviceID string) error {
	const op = "store.ClearSubscriptionDevice"
	_, err := q.db.ExecContext(ctx,
		`UPDATE subscriptions SET device_id = NULL, status = ? WHERE device_id = ?`,
		models.SubscriptionCancelled, deviceID)
	return wrap(op, err)
}

// ApplyPayment writes the advanced expiry produced by a payment.
func (q *Queries) ApplyPayment(ctx context.Context, id int64, expiresAt, nextPaymentAt, paidAt time.Time) error {
	const op = "store.ApplyPayment"
	_, err := q.db.ExecContext(ctx, `
		UPDATE subscriptions SET status = ?, expires_at = ?, next_payment_at = ?, last_payment_at = ?
		WHERE id = ?`,
		models.SubscriptionActive, unix(expiresAt), unix(nextPaymentAt), unix(paidAt), id)
	return wrap(op, err)
}

// ListExpiredActive returns active subscriptions whose expiry has
// passed.
func (q *Queries) ListExpiredActive(ctx context.Context, now time.Time) ([]models.Subscription, error) {
	const op = "store.ListExpiredActive"
	return q.listSubscriptions(ctx, op, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status = ? AND expires_at IS NOT NULL AND expires_at < ?`,
		models.SubscriptionActive, unix(now))
}

// ListGraceExceeded returns expired subscriptions that have outlived
// their grace period.
func (q *Queries) ListGraceExceeded(ctx context.Context, now time.Time) ([]models.Subscription, error) {
	const op = "store.ListGraceExceeded"
	return q.listSubscriptions(ctx, op, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status = ? AND expires_at IS NOT NULL
		  AND expires_at + grace_period_days * 86400 < ?`,
		models.SubscriptionExpired, unix(now))
}

// ListExpiringWithin returns active subscriptions that expire inside
// the given window.
func (q *Queries) ListExpiringWithin(ctx context.Context, now time.Time, window time.Duration) ([]models.Subscription, error) {
	const op = "store.ListExpiringWithin"
	return q.listSubscriptions(ctx, op, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status = ? AND expires_at IS NOT NULL
		  AND expires_at >= ? AND expires_at < ?`,
		models.SubscriptionActive, unix(now), unix(now.Add(window)))
}

func (q *Queries) listSubscriptions(ctx context.Context, op, query string, args ...any) ([]models.Subscription, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	var items []models.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		items = append(items, *s)
	}
	return items, wrap(op, rows.Err())
}
