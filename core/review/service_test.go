package review_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmtbiph/ratemyteacher/core"
	"github.com/rmtbiph/ratemyteacher/core/access"
	"github.com/rmtbiph/ratemyteacher/core/review"
	"github.com/rmtbiph/ratemyteacher/core/teacher"
	"github.com/rmtbiph/ratemyteacher/core/user"
	sqlxrepos "github.com/rmtbiph/ratemyteacher/storage/database/sqlx"
	"github.com/rmtbiph/ratemyteacher/testutil"
)

type testEnv struct {
	svc       *review.Service
	deviceSvc *review.DeviceService
	repo      review.Repository
	teacher   teacher.Teacher
	alice     *access.Principal
	bob       *access.Principal
}

func setup(t *testing.T) testEnv {
	conf := testutil.NewConfig(t)
	db := testutil.PrepareDB(t, conf)
	usrRepo := sqlxrepos.NewUserRepository(db)
	teacherRepo := sqlxrepos.NewTeacherRepository(db)
	repo := sqlxrepos.NewReviewRepository(db)
	svc := review.NewService(db, repo, teacherRepo, access.NewGuard(access.EmailSuffix(conf.AllowedEmailDomain)))

	principal := func(usr user.User) *access.Principal {
		return &access.Principal{UserID: usr.ID, Email: usr.Email}
	}
	return testEnv{
		svc:       svc,
		deviceSvc: review.NewDeviceService(sqlxrepos.NewDeviceRepository(db), svc),
		repo:      repo,
		teacher:   testutil.CreateTeacher(t, teacherRepo, "Anna Smith", "AP Physics"),
		alice:     principal(testutil.CreateUser(t, usrRepo, testutil.Email("alice"))),
		bob:       principal(testutil.CreateUser(t, usrRepo, testutil.Email("bob"))),
	}
}

func validForm(t *testing.T) review.Form {
	form := review.Form{
		Quality:        5,
		Difficulty:     2,
		WouldTakeAgain: "yes",
		Course:         "ap physics",
		Grade:          "a",
		TagsCSV:        "Caring, Clear grading",
		Comment:        "Explains everything twice.",
	}
	require.NoError(t, form.Validate(testutil.NewValidator()))
	return form
}

func TestForm_Validate(t *testing.T) {
	validate, translator := testutil.NewValidation()
	tests := []struct {
		name      string
		form      review.Form
		wantField string
	}{
		{name: "quality out of range", form: review.Form{Quality: 6, Difficulty: 1, WouldTakeAgain: "no", Course: "X"}, wantField: "quality"},
		{name: "missing difficulty", form: review.Form{Quality: 1, WouldTakeAgain: "no", Course: "X"}, wantField: "difficulty"},
		{name: "would take again", form: review.Form{Quality: 1, Difficulty: 1, WouldTakeAgain: "maybe", Course: "X"}, wantField: "would_take_again"},
		{name: "blank course", form: review.Form{Quality: 1, Difficulty: 1, WouldTakeAgain: "no", Course: "   "}, wantField: "course"},
		{name: "unknown grade", form: review.Form{Quality: 1, Difficulty: 1, WouldTakeAgain: "no", Course: "X", Grade: "Z"}, wantField: "grade"},
		{name: "valid", form: review.Form{Quality: 1, Difficulty: 1, WouldTakeAgain: "No", Course: "X", Grade: "b+"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := tt.form
			err := form.Validate(validate)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			assert.Contains(t, core.ValidationFields(err, translator), tt.wantField)
		})
	}
}

func TestService_Create(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	form := validForm(t)

	_, err := env.svc.Create(ctx, nil, env.teacher.ID, form)
	assert.Equal(t, access.ErrUnauthenticated, err)
	_, err = env.svc.Create(ctx, &access.Principal{UserID: env.alice.UserID, Email: "alice@gmail.com"}, env.teacher.ID, form)
	assert.Equal(t, access.ErrDomainNotAllowed, err)
	_, err = env.svc.Create(ctx, env.alice, "nope", form)
	assert.Equal(t, teacher.ErrNotFound, errors.Cause(err))

	r, err := env.svc.Create(ctx, env.alice, env.teacher.ID, form)
	require.NoError(t, err)
	assert.Equal(t, review.StatusPublished, r.Status)

	got, err := env.svc.GetMine(ctx, env.alice, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "AP PHYSICS", got.Course)
	assert.Equal(t, "A", got.Grade)
	assert.True(t, got.WouldTakeAgain)
	assert.Equal(t, []string{"CARING", "CLEAR GRADING"}, got.Tags)
	assert.Equal(t, "Anna Smith", got.TeacherName.String)

	listed, err := env.svc.ListForTeacher(ctx, env.teacher.ID, "", nil)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, r.ID, listed[0].ID)
}

func TestService_ownership(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	r, err := env.svc.Create(ctx, env.alice, env.teacher.ID, validForm(t))
	require.NoError(t, err)

	edit := validForm(t)
	edit.Quality = 2
	edit.TagsCSV = "Tough grader"
	require.NoError(t, edit.Validate(testutil.NewValidator()))

	_, err = env.svc.GetMine(ctx, env.bob, r.ID)
	assert.Equal(t, access.ErrNotOwner, err)
	_, err = env.svc.Update(ctx, env.bob, r.ID, edit)
	assert.Equal(t, access.ErrNotOwner, err)
	_, err = env.svc.Delete(ctx, env.bob, r.ID)
	assert.Equal(t, access.ErrNotOwner, err)
	_, err = env.svc.GetMine(ctx, env.alice, "f47ac10b-58cc-4372-a567-0e02b2c3d479")
	assert.Equal(t, review.ErrNotFound, errors.Cause(err))

	updated, err := env.svc.Update(ctx, env.alice, r.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Quality)
	assert.Equal(t, review.StatusPublished, updated.Status)

	mine, err := env.svc.ListMine(ctx, env.alice)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, []string{"TOUGH GRADER"}, mine[0].Tags)

	others, err := env.svc.ListMine(ctx, env.bob)
	require.NoError(t, err)
	assert.Empty(t, others)

	_, err = env.svc.Delete(ctx, env.alice, r.ID)
	require.NoError(t, err)
	_, err = env.svc.GetMine(ctx, env.alice, r.ID)
	assert.Equal(t, review.ErrNotFound, errors.Cause(err))
}

func TestService_Vote(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	r, err := env.svc.Create(ctx, env.alice, env.teacher.ID, validForm(t))
	require.NoError(t, err)

	counts := func(viewer *access.Principal) (review.VoteCounts, int) {
		listed, err := env.svc.ListForTeacher(ctx, env.teacher.ID, "", viewer)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		return listed[0].Votes, listed[0].ViewerVote
	}

	steps := []struct {
		name     string
		voter    *access.Principal
		op       string
		want     review.VoteResult
		wantUp   int
		wantDown int
	}{
		{name: "alice up", voter: env.alice, op: "up", want: review.VoteResult{Created: true, Value: 1}, wantUp: 1},
		{name: "bob down", voter: env.bob, op: "down", want: review.VoteResult{Created: true, Value: -1}, wantUp: 1, wantDown: 1},
		{name: "alice up again toggles off", voter: env.alice, op: "up", want: review.VoteResult{ToggledOff: true}, wantDown: 1},
		{name: "bob switches", voter: env.bob, op: "up", want: review.VoteResult{Updated: true, Value: 1}, wantUp: 1},
		{name: "alice clears nothing", voter: env.alice, op: "clear", want: review.VoteResult{}, wantUp: 1},
		{name: "bob clears", voter: env.bob, op: "clear", want: review.VoteResult{ToggledOff: true}},
	}
	for _, s := range steps {
		t.Run(s.name, func(t *testing.T) {
			res, err := env.svc.SetVote(ctx, s.voter, r.ID, s.op)
			require.NoError(t, err)
			assert.Equal(t, s.want, res)

			vc, mine := counts(s.voter)
			assert.Equal(t, s.wantUp, vc.Up)
			assert.Equal(t, s.wantDown, vc.Down)
			assert.Equal(t, s.want.Value, mine)
		})
	}

	_, err = env.svc.SetVote(ctx, env.alice, r.ID, "sideways")
	assert.Equal(t, review.ErrInvalidVote, err)
	_, err = env.svc.Vote(ctx, nil, r.ID, review.VoteUp)
	assert.Equal(t, access.ErrUnauthenticated, err)

	require.NoError(t, env.svc.Reject(ctx, r.ID))
	_, err = env.svc.Vote(ctx, env.alice, r.ID, review.VoteUp)
	assert.Equal(t, review.ErrNotPublished, err)
}

func TestService_moderation(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	r, err := env.svc.Create(ctx, env.alice, env.teacher.ID, validForm(t))
	require.NoError(t, err)

	require.NoError(t, env.svc.Reject(ctx, r.ID))
	listed, err := env.svc.ListForTeacher(ctx, env.teacher.ID, "", nil)
	require.NoError(t, err)
	assert.Empty(t, listed)

	reviews, total, _, err := env.svc.AdminQuery(ctx, review.AdminFilter{Status: "REJECTED"}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, r.ID, reviews[0].ID)

	form := review.AdminForm{Form: review.Form{Quality: 3, Difficulty: 3, WouldTakeAgain: "no", Course: "ap calc"}, Status: "published"}
	require.NoError(t, form.Validate(testutil.NewValidator()))
	updated, err := env.svc.AdminUpdate(ctx, r.ID, form)
	require.NoError(t, err)
	assert.Equal(t, review.StatusPublished, updated.Status)

	listed, err = env.svc.ListForTeacher(ctx, env.teacher.ID, "ap calc", nil)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Empty(t, listed[0].Tags)

	require.NoError(t, env.svc.AdminDelete(ctx, r.ID))
	assert.Equal(t, review.ErrNotFound, errors.Cause(env.svc.Approve(ctx, r.ID)))
}

func TestDeviceService_Submit(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	validate := testutil.NewValidator()

	id, secret, err := env.deviceSvc.Register(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, secret)

	submit := func(course, devSecret string) (review.Review, error) {
		form := review.DeviceForm{
			DeviceID:     id,
			DeviceSecret: devSecret,
			TeacherID:    env.teacher.ID,
			Quality:      4,
			Difficulty:   3,
			Course:       course,
			Tags:         []string{"caring"},
		}
		require.NoError(t, form.Validate(validate))
		return env.deviceSvc.Submit(ctx, form)
	}

	_, err = submit("AP PHYSICS", "wrong-secret")
	assert.Equal(t, review.ErrInvalidDevice, err)

	r, err := submit("ap physics", secret)
	require.NoError(t, err)
	assert.Equal(t, review.StatusPending, r.Status)
	assert.Equal(t, id, r.DeviceID.String)
	assert.Equal(t, []string{"CARING"}, r.Tags)

	_, err = submit("AP PHYSICS", secret)
	assert.Equal(t, review.ErrDuplicate, err)

	_, err = submit("AP CALC", secret)
	require.NoError(t, err)
	_, err = submit("AP STATS", secret)
	require.NoError(t, err)
	_, err = submit("AP BIO", secret)
	assert.Equal(t, review.ErrRateLimited, err)

	// pending reviews stay hidden until approved
	listed, err := env.svc.ListForTeacher(ctx, env.teacher.ID, "", nil)
	require.NoError(t, err)
	assert.Empty(t, listed)
	require.NoError(t, env.svc.Approve(ctx, r.ID))
	listed, err = env.svc.ListForTeacher(ctx, env.teacher.ID, "", nil)
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	// the window slides
	core.NowFunc = func() time.Time { return time.Now().Add(review.DeviceRateWindow + time.Minute) }
	defer func() { core.NowFunc = time.Now }()
	_, err = submit("AP BIO", secret)
	assert.NoError(t, err)
}

func TestDeviceService_Submit_concurrent(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	id, secret, err := env.deviceSvc.Register(ctx)
	require.NoError(t, err)

	const attempts = 8
	var (
		wg             sync.WaitGroup
		mu             sync.Mutex
		saved, limited int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.deviceSvc.Submit(ctx, review.DeviceForm{
				DeviceID:     id,
				DeviceSecret: secret,
				TeacherID:    env.teacher.ID,
				Quality:      4,
				Difficulty:   3,
				Course:       fmt.Sprintf("COURSE %d", i),
			})
			mu.Lock()
			defer mu.Unlock()
			switch err {
			case nil:
				saved++
			case review.ErrRateLimited:
				limited++
			default:
				t.Errorf("Submit() unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, review.DeviceRateLimit, saved)
	assert.Equal(t, attempts-review.DeviceRateLimit, limited)

	// same course submitted twice at once: one wins
	other, otherSecret, err := env.deviceSvc.Register(ctx)
	require.NoError(t, err)
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := env.deviceSvc.Submit(ctx, review.DeviceForm{
				DeviceID: other, DeviceSecret: otherSecret, TeacherID: env.teacher.ID,
				Quality: 2, Difficulty: 2, Course: "AP PHYSICS",
			})
			errs <- err
		}()
	}
	got := []error{<-errs, <-errs}
	assert.ElementsMatch(t, []error{nil, review.ErrDuplicate}, got)
}
