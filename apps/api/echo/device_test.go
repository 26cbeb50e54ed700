package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmtbiph/ratemyteacher/core/review"
	"github.com/rmtbiph/ratemyteacher/testutil"
)

func registerDevice(t *testing.T, env *testEnv) (id, secret string) {
	rec := env.check(t, httpTest{method: http.MethodPost, path: "/api/v1/devices", body: []byte("{}"), wantCode: http.StatusCreated})
	data := decodeJSON(t, rec)
	id, _ = data["device_id"].(string)
	secret, _ = data["device_secret"].(string)
	require.NotEmpty(t, id)
	require.NotEmpty(t, secret)
	return id, secret
}

func Test_deviceApi_submit(t *testing.T) {
	env := setup(t)
	tch := testutil.CreateTeacher(t, env.teacherRepo, "Isaac Newton", "AP Physics")
	id, secret := registerDevice(t, env)
	otherID, _ := registerDevice(t, env)

	submission := func(deviceID, deviceSecret, teacherID, course string) map[string]interface{} {
		return map[string]interface{}{
			"device_id":        deviceID,
			"device_secret":    deviceSecret,
			"teacher_id":       teacherID,
			"quality":          4,
			"difficulty":       5,
			"would_take_again": true,
			"course":           course,
			"tags":             []string{"lots of homework"},
			"comment":          "Hard but fair.",
		}
	}

	tests := []httpTest{
		{
			name: "malformed body", method: http.MethodPost, path: "/api/v1/reviews", body: []byte("{"),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "invalid fields", method: http.MethodPost, path: "/api/v1/reviews",
			body: marshal(t, map[string]interface{}{"device_id": id}), wantCode: http.StatusBadRequest, wantBody: "teacher_id",
		},
		{
			name: "wrong secret", method: http.MethodPost, path: "/api/v1/reviews",
			body: marshal(t, submission(id, "nope", tch.ID, "physics")), wantCode: http.StatusUnauthorized, wantBody: "invalid_device",
		},
		{
			name: "secret of another device", method: http.MethodPost, path: "/api/v1/reviews",
			body: marshal(t, submission(otherID, secret, tch.ID, "physics")), wantCode: http.StatusUnauthorized, wantBody: "invalid_device",
		},
		{
			name: "unknown teacher", method: http.MethodPost, path: "/api/v1/reviews",
			body: marshal(t, submission(id, secret, "7f1c0c52-45a7-4a52-a5c5-8e9a1b8b1a11", "physics")), wantCode: http.StatusNotFound,
		},
		{
			name: "submitted", method: http.MethodPost, path: "/api/v1/reviews",
			body: marshal(t, submission(id, secret, tch.ID, "physics")), wantCode: http.StatusCreated,
			wantJSON: map[string]interface{}{"status": review.StatusPending},
		},
		{
			name: "duplicate", method: http.MethodPost, path: "/api/v1/reviews",
			body: marshal(t, submission(id, secret, tch.ID, " Physics ")), wantCode: http.StatusConflict, wantBody: "duplicate",
		},
		{
			name: "second course", method: http.MethodPost, path: "/api/v1/reviews",
			body: marshal(t, submission(id, secret, tch.ID, "ap physics c")), wantCode: http.StatusCreated,
		},
		{
			name: "third course", method: http.MethodPost, path: "/api/v1/reviews",
			body: marshal(t, submission(id, secret, tch.ID, "honors physics")), wantCode: http.StatusCreated,
		},
		{
			name: "rate limited", method: http.MethodPost, path: "/api/v1/reviews",
			body: marshal(t, submission(id, secret, tch.ID, "physics lab")), wantCode: http.StatusTooManyRequests, wantBody: "rate_limited",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.check(t, tt)
		})
	}

	// pending reviews stay out of the public listings until approved
	reviews, err := env.reviewRepo.ListTeacherReviews(context.Background(), tch.ID, "", review.TeacherPageLen)
	require.NoError(t, err)
	assert.Empty(t, reviews)

	pending, total, err := env.reviewRepo.QueryReviews(context.Background(), review.AdminFilter{Status: review.StatusPending}, nil, pageOne)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	for _, r := range pending {
		assert.Equal(t, id, r.DeviceID.String)
		assert.False(t, r.UserID.Valid)
	}
}

func Test_deviceApi_teachers(t *testing.T) {
	env := setup(t)
	usr := testutil.CreateUser(t, env.usrRepo, testutil.Email("jane"))
	tch := testutil.CreateTeacher(t, env.teacherRepo, "Isaac Newton", "AP Physics")
	testutil.CreateTeacher(t, env.teacherRepo, "Gottfried Leibniz", "Math")
	testutil.CreateReview(t, env.reviewRepo, tch, &usr, testutil.ReviewOpts{Quality: 5, WouldTakeAgain: true})
	testutil.CreateReview(t, env.reviewRepo, tch, nil, testutil.ReviewOpts{Quality: 1, Status: review.StatusPending})

	rec := env.check(t, httpTest{path: "/api/v1/teachers?q=newton"})
	data := decodeJSON(t, rec)
	assert.Equal(t, float64(1), data["total"])
	items := data["items"].([]interface{})
	require.Len(t, items, 1)
	item := items[0].(map[string]interface{})
	assert.Equal(t, "Isaac Newton", item["full_name"])
	assert.Equal(t, float64(1), item["review_count"])
	assert.Equal(t, float64(5), item["avg_quality"])

	rec = env.check(t, httpTest{path: "/api/v1/teachers/" + tch.ID})
	data = decodeJSON(t, rec)
	assert.Len(t, data["reviews"], 1)

	env.check(t, httpTest{name: "unknown", path: "/api/v1/teachers/lol", wantCode: http.StatusNotFound, wantBody: `"error"`})
}
