package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/rmtbiph/ratemyteacher/core"
	"github.com/rmtbiph/ratemyteacher/core/review"
)

type deviceRepository struct {
	db core.DB
}

var _ review.DeviceRepository = (*deviceRepository)(nil)

func NewDeviceRepository(db core.DB) *deviceRepository {
	return &deviceRepository{db: db}
}

func (repo *deviceRepository) CreateDevice(ctx context.Context, d review.Device, exec ...core.DBExecutor) error {
	ex := getExec(repo.db, exec)
	q := ex.Rebind(`INSERT INTO devices (id, secret_hash, created_at, last_seen_at) VALUES (?, ?, ?, ?)`)
	_, err := ex.ExecContext(ctx, q, d.ID, d.SecretHash, d.CreatedAt, d.LastSeenAt)
	return errors.Wrap(err, "inserting device")
}

func (repo *deviceRepository) GetDevice(ctx context.Context, id string, exec ...core.DBExecutor) (review.Device, error) {
	ex := getExec(repo.db, exec)
	var d review.Device
	q := ex.Rebind(`SELECT id, secret_hash, created_at, last_seen_at FROM devices WHERE id = ?`)
	if err := ex.GetContext(ctx, &d, q, id); err != nil {
		return review.Device{}, trapNoRowsErr(err, review.ErrDeviceNotFound)
	}
	return d, nil
}

func (repo *deviceRepository) TouchDevice(ctx context.Context, id string, seenAt time.Time, exec ...core.DBExecutor) error {
	ex := getExec(repo.db, exec)
	res, err := ex.ExecContext(ctx, ex.Rebind(`UPDATE devices SET last_seen_at = ? WHERE id = ?`), seenAt, id)
	if err != nil {
		return errors.Wrap(err, "touching device")
	}
	return checkAffected(res, review.ErrDeviceNotFound)
}

func (repo *deviceRepository) CountDeviceReviewsSince(ctx context.Context, deviceID string, since time.Time, exec ...core.DBExecutor) (int, error) {
	ex := getExec(repo.db, exec)
	var n int
	q := ex.Rebind(`SELECT COUNT(*) FROM reviews WHERE device_id = ? AND created_at >= ?`)
	if err := ex.GetContext(ctx, &n, q, deviceID, since); err != nil {
		return 0, errors.Wrap(err, "counting device reviews")
	}
	return n, nil
}

func (repo *deviceRepository) DeviceReviewExists(ctx context.Context, deviceID, teacherID, course string, exec ...core.DBExecutor) (bool, error) {
	ex := getExec(repo.db, exec)
	var n int
	q := ex.Rebind(`SELECT COUNT(*) FROM reviews WHERE device_id = ? AND teacher_id = ? AND course = ?`)
	if err := ex.GetContext(ctx, &n, q, deviceID, teacherID, course); err != nil {
		return false, errors.Wrap(err, "checking device review")
	}
	return n > 0, nil
}
