package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pitsense/pitsense/internal/models"
)

const firmwareColumns = `id, version, filename, path, size, sha256, notes, uploader_id, created_at`

func scanFirmware(row scanner) (*models.FirmwareRelease, error) {
	var (
		f         models.FirmwareRelease
		notes     sql.NullString
		uploader  sql.NullInt64
		createdAt int64
	)
	err := row.Scan(&f.ID, &f.Version, &f.Filename, &f.Path, &f.Size, &f.SHA256,
		&notes, &uploader, &createdAt)
	if err != nil {
		return nil, err
	}
	f.Notes = strEmpty(notes)
	f.UploaderID = intOrNil(uploader)
	f.CreatedAt = fromUnix(createdAt)
	return &f, nil
}

// InsertFirmware records a firmware release. Duplicate versions fail
// with Conflict via the unique index.
func (q *Queries) InsertFirmware(ctx context.Context, f *models.FirmwareRelease, now time.Time) error {
	const op = "store.InsertFirmware"
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO firmware_releases (version, filename, path, size, sha256, notes, uploader_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Version, f.Filename, f.Path, f.Size, f.SHA256, f.Notes, intArg(f.UploaderID), unix(now))
	if err != nil {
		return wrap(op, err)
	}
	f.ID, _ = res.LastInsertId()
	f.CreatedAt = now.UTC()
	return nil
}

// GetFirmwareByVersion returns one release by its unique version.
func (q *Queries) GetFirmwareByVersion(ctx context.Context, version string) (*models.FirmwareRelease, error) {
	const op = "store.GetFirmwareByVersion"
	row := q.db.QueryRowContext(ctx,
		`SELECT `+firmwareColumns+` FROM firmware_releases WHERE version = ?`, version)
	f, err := scanFirmware(row)
	if err != nil {
		return nil, wrap(op, err)
	}
	return f, nil
}

// LatestFirmware returns the newest release by created_at.
func (q *Queries) LatestFirmware(ctx context.Context) (*models.FirmwareRelease, error) {
	const op = "store.LatestFirmware"
	row := q.db.QueryRowContext(ctx,
		`SELECT `+firmwareColumns+` FROM firmware_releases ORDER BY created_at DESC, id DESC LIMIT 1`)
	f, err := scanFirmware(row)
	if err != nil {
		return nil, wrap(op, err)
	}
	return f, nil
}

// ListFirmware returns all releases newest-first.
func (q *Queries) ListFirmware(ctx context.Context) ([]models.FirmwareRelease, error) {
	const op = "store.ListFirmware"
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+firmwareColumns+` FROM firmware_releases ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	var items []models.FirmwareRelease
	for rows.Next() {
		f, err := scanFirmware(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		items = append(items, *f)
	}
	return items, wrap(op, rows.Err())
}
