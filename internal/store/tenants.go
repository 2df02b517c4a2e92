package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pitsense/pitsense/internal/models"
)

const tenantColumns = `id, name, slug, subscription_plan, subscription_status,
	expires_at, is_active, created_at, updated_at`

func scanTenant(row scanner) (*models.Tenant, error) {
	var (
		t                    models.Tenant
		expiresAt            sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.SubscriptionPlan, &t.SubscriptionStatus,
		&expiresAt, &t.IsActive, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	t.ExpiresAt = fromNullUnix(expiresAt)
	t.CreatedAt = fromUnix(createdAt)
	t.UpdatedAt = fromUnix(updatedAt)
	return &t, nil
}

// GetTenant returns a tenant by primary key.
func (q *Queries) GetTenant(ctx context.Context, id int64) (*models.Tenant, error) {
	const op = "store.GetTenant"
	row := q.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id)
	t, err := scanTenant(row)
	if err != nil {
		return nil, wrap(op, err)
	}
	return t, nil
}

// GetTenantBySlug returns a tenant by its unique slug.
func (q *Queries) GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	const op = "store.GetTenantBySlug"
	row := q.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE slug = ?`, slug)
	t, err := scanTenant(row)
	if err != nil {
		return nil, wrap(op, err)
	}
	return t, nil
}

// CreateTenant inserts a tenant together with its default threshold
// row. Slug collisions surface as Conflict.
func (q *Queries) CreateTenant(ctx context.Context, t *models.Tenant, now time.Time) error {
	const op = "store.CreateTenant"
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO tenants (name, slug, subscription_plan, subscription_status,
			expires_at, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Name, t.Slug, t.SubscriptionPlan, t.SubscriptionStatus,
		unixPtr(t.ExpiresAt), t.IsActive, unix(now), unix(now))
	if err != nil {
		return wrap(op, err)
	}
	t.ID, _ = res.LastInsertId()
	t.CreatedAt = now.UTC()
	t.UpdatedAt = now.UTC()

	th := models.DefaultTenantThresholds(t.ID)
	return q.UpsertTenantThresholds(ctx, &th)
}

// SetTenantStatus updates the workshop-level subscription state.
func (q *Queries) SetTenantStatus(ctx context.Context, id int64, status models.TenantStatus, now time.Time) error {
	const op = "store.SetTenantStatus"
	_, err := q.db.ExecContext(ctx, `
		UPDATE tenants SET subscription_status = ?, updated_at = ? WHERE id = ?`,
		status, unix(now), id)
	return wrap(op, err)
}

const locationColumns = `id, tenant_id, number, name, status,
	camera_ip, camera_rtsp_url, camera_model, camera_online, created_at`

func scanLocation(row scanner) (*models.Location, error) {
	var (
		l                        models.Location
		name                     sql.NullString
		cameraIP, rtsp, camModel sql.NullString
		createdAt                int64
	)
	err := row.Scan(&l.ID, &l.TenantID, &l.Number, &name, &l.Status,
		&cameraIP, &rtsp, &camModel, &l.CameraOnline, &createdAt)
	if err != nil {
		return nil, err
	}
	l.Name = strEmpty(name)
	l.CameraIP = strEmpty(cameraIP)
	l.CameraRTSP = strEmpty(rtsp)
	l.CameraModel = strEmpty(camModel)
	l.CreatedAt = fromUnix(createdAt)
	return &l, nil
}

// GetLocation returns a location by primary key.
func (q *Queries) GetLocation(ctx context.Context, id int64) (*models.Location, error) {
	const op = "store.GetLocation"
	row := q.db.QueryRowContext(ctx,
		`SELECT `+locationColumns+` FROM locations WHERE id = ?`, id)
	l, err := scanLocation(row)
	if err != nil {
		return nil, wrap(op, err)
	}
	return l, nil
}

// CreateLocation inserts a pit. The (tenant_id, number) pair is unique
// and surfaces as Conflict on violation.
func (q *Queries) CreateLocation(ctx context.Context, l *models.Location, now time.Time) error {
	const op = "store.CreateLocation"
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO locations (tenant_id, number, name, status,
			camera_ip, camera_rtsp_url, camera_model, camera_online, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.TenantID, l.Number, l.Name, l.Status,
		l.CameraIP, l.CameraRTSP, l.CameraModel, l.CameraOnline, unix(now))
	if err != nil {
		return wrap(op, err)
	}
	l.ID, _ = res.LastInsertId()
	l.CreatedAt = now.UTC()
	return nil
}

// SetCameraOnline flips the camera health marker for a location.
func (q *Queries) SetCameraOnline(ctx context.Context, locationID int64, online bool) error {
	const op = "store.SetCameraOnline"
	_, err := q.db.ExecContext(ctx,
		`UPDATE locations SET camera_online = ? WHERE id = ?`, online, locationID)
	return wrap(op, err)
}
