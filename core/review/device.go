package review

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/rmtbiph/ratemyteacher/core"
)

const (
	DeviceRateLimit  = 3
	DeviceRateWindow = time.Hour

	deviceSecretLen = 32
)

var (
	// errors
	ErrDeviceNotFound = errors.New("device not found")
	ErrInvalidDevice  = errors.New("invalid_device")
	ErrRateLimited    = errors.New("rate_limited")
	ErrDuplicate      = errors.New("duplicate")
)

type Device struct {
	ID         string    `db:"id"`
	SecretHash string    `db:"secret_hash"`
	CreatedAt  time.Time `db:"created_at"`
	LastSeenAt time.Time `db:"last_seen_at"`
}

// DeviceForm is a review submitted anonymously by a registered device.
type DeviceForm struct {
	DeviceID       string   `json:"device_id" validate:"required"`
	DeviceSecret   string   `json:"device_secret" validate:"required"`
	TeacherID      string   `json:"teacher_id" validate:"required,uuid"`
	Quality        int      `json:"quality" validate:"required,min=1,max=5"`
	Difficulty     int      `json:"difficulty" validate:"required,min=1,max=5"`
	WouldTakeAgain bool     `json:"would_take_again"`
	Course         string   `json:"course" validate:"required,notblank,max=60"`
	Grade          string   `json:"grade" validate:"grade"`
	IsOnline       bool     `json:"is_online"`
	Tags           []string `json:"tags" validate:"max=50"`
	Comment        string   `json:"comment" validate:"max=2000"`
}

func (f *DeviceForm) Validate(validate *validator.Validate) error {
	f.DeviceID = core.CleanString(f.DeviceID)
	f.TeacherID = core.CleanString(f.TeacherID)
	f.Course = strings.ToUpper(core.CleanString(f.Course))
	f.Grade = strings.ToUpper(core.CleanString(f.Grade))
	f.Comment = core.CleanString(f.Comment)
	if err := validate.Struct(f); err != nil {
		return err
	}
	f.Tags = ParseTags(strings.Join(f.Tags, tagSeps))
	return nil
}

type (
	DeviceRepository interface {
		CreateDevice(ctx context.Context, d Device, exec ...core.DBExecutor) error
		GetDevice(ctx context.Context, id string, exec ...core.DBExecutor) (Device, error)
		TouchDevice(ctx context.Context, id string, seenAt time.Time, exec ...core.DBExecutor) error
		CountDeviceReviewsSince(ctx context.Context, deviceID string, since time.Time, exec ...core.DBExecutor) (int, error)
		DeviceReviewExists(ctx context.Context, deviceID, teacherID, course string, exec ...core.DBExecutor) (bool, error)
	}

	// DeviceService handles the anonymous device flow: devices register once, then submit
	// reviews that wait for moderation.
	DeviceService struct {
		devices DeviceRepository
		reviews *Service
	}
)

func NewDeviceService(devices DeviceRepository, reviews *Service) *DeviceService {
	return &DeviceService{devices: devices, reviews: reviews}
}

// Register creates a device and returns its id and secret. The secret is only ever returned here.
func (svc *DeviceService) Register(ctx context.Context) (id, secret string, err error) {
	buf := make([]byte, deviceSecretLen)
	if _, err = rand.Read(buf); err != nil {
		return "", "", errors.Wrap(err, "generating device secret")
	}
	secret = base64.RawURLEncoding.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", "", errors.Wrap(err, "hashing device secret")
	}

	now := core.Now()
	d := Device{
		ID:         uuid.NewString(),
		SecretHash: string(hash),
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err = svc.devices.CreateDevice(ctx, d); err != nil {
		return "", "", errors.Wrap(err, "creating device")
	}
	return d.ID, secret, nil
}

func (svc *DeviceService) authenticate(ctx context.Context, id, secret string) (Device, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Device{}, ErrInvalidDevice
	}
	d, err := svc.devices.GetDevice(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrDeviceNotFound {
			return Device{}, ErrInvalidDevice
		}
		return Device{}, errors.Wrap(err, "getting device")
	}
	if err = bcrypt.CompareHashAndPassword([]byte(d.SecretHash), []byte(secret)); err != nil {
		return Device{}, ErrInvalidDevice
	}
	return d, nil
}

// Submit saves the review of a validated DeviceForm as pending.
// The rate limit and duplicate checks run in the same transaction as the insert,
// after the device row is touched so that concurrent submissions of a device queue up.
func (svc *DeviceService) Submit(ctx context.Context, form DeviceForm) (Review, error) {
	d, err := svc.authenticate(ctx, form.DeviceID, form.DeviceSecret)
	if err != nil {
		return Review{}, err
	}
	t, err := svc.reviews.getTeacher(ctx, form.TeacherID)
	if err != nil {
		return Review{}, err
	}

	now := core.Now()
	r := Review{
		ID:             uuid.NewString(),
		TeacherID:      t.ID,
		DeviceID:       null.StringFrom(d.ID),
		Quality:        form.Quality,
		Difficulty:     form.Difficulty,
		WouldTakeAgain: form.WouldTakeAgain,
		Course:         form.Course,
		Grade:          form.Grade,
		IsOnline:       form.IsOnline,
		Comment:        form.Comment,
		Tags:           form.Tags,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = core.RunInTx(ctx, svc.reviews.db, func(tx core.DBExecutor) error {
		if err := svc.devices.TouchDevice(ctx, d.ID, now, tx); err != nil {
			return errors.Wrap(err, "touching device")
		}

		n, err := svc.devices.CountDeviceReviewsSince(ctx, d.ID, now.Add(-DeviceRateWindow), tx)
		if err != nil {
			return errors.Wrap(err, "counting device reviews")
		}
		if n >= DeviceRateLimit {
			return ErrRateLimited
		}

		exists, err := svc.devices.DeviceReviewExists(ctx, d.ID, r.TeacherID, r.Course, tx)
		if err != nil {
			return errors.Wrap(err, "checking duplicate review")
		}
		if exists {
			return ErrDuplicate
		}

		r, err = svc.reviews.saveTx(ctx, tx, r, true, "")
		return err
	})
	if err != nil {
		return Review{}, err
	}
	return r, nil
}
