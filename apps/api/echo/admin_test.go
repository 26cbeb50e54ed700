package echoapi_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmtbiph/ratemyteacher/core/admin"
	"github.com/rmtbiph/ratemyteacher/core/review"
	"github.com/rmtbiph/ratemyteacher/core/teacher"
	"github.com/rmtbiph/ratemyteacher/core/ticket"
	"github.com/rmtbiph/ratemyteacher/testutil"
)

func adminCookie(rec interface{ Result() *http.Response }) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == admin.CookieName {
			return c
		}
	}
	return nil
}

func Test_adminApi_login(t *testing.T) {
	env := setup(t)
	usr := testutil.CreateUser(t, env.usrRepo, testutil.Email("jane"))

	login := func(username, pwd, next string) url.Values {
		return url.Values{"username": {username}, "password": {pwd}, "next": {next}}
	}

	expired := admin.NewSigner(env.conf.Admin.CookieSecret, env.conf.Admin.Username, env.conf.Admin.Password, time.Second)
	admin.NowFunc = func() time.Time { return time.Now().Add(-time.Hour) }
	expiredToken, err := expired.Sign(env.conf.Admin.Username)
	admin.NowFunc = time.Now
	require.NoError(t, err)

	tests := []httpTest{
		{name: "anonymous", path: "/admin/reviews?status=pending", wantCode: http.StatusSeeOther, wantLocation: "/admin/login?next=%2Fadmin%2Freviews%3Fstatus%3Dpending"},
		{name: "student session is not enough", path: "/admin/teachers", token: getToken(t, env.conf, usr), wantCode: http.StatusSeeOther, wantLocation: "/admin/login?"},
		{name: "tampered cookie", path: "/admin/teachers", adminToken: "eyJ1IjoiYWRtaW4ifQ.forged", wantCode: http.StatusSeeOther, wantLocation: "/admin/login?"},
		{name: "expired cookie", path: "/admin/teachers", adminToken: expiredToken, wantCode: http.StatusSeeOther, wantLocation: "/admin/login?"},
		{name: "login page", path: "/admin/login?next=/admin/tickets", wantBody: "/admin/tickets"},
		{
			name: "wrong password", method: http.MethodPost, path: "/admin/login",
			form: login("admin", "nope", "/admin/tickets"), wantCode: http.StatusSeeOther, wantLocation: "/admin/login?",
		},
		{
			name: "unsafe next", method: http.MethodPost, path: "/admin/login",
			form: login("admin", "admin-pass", "https://evil.com"), wantCode: http.StatusSeeOther, wantLocation: "/admin/teachers",
		},
		{
			name: "logged in", method: http.MethodPost, path: "/admin/login",
			form: login("admin", "admin-pass", "/admin/tickets"), wantCode: http.StatusSeeOther, wantLocation: "/admin/tickets",
		},
		{name: "logout", method: http.MethodPost, path: "/admin/logout", adminToken: getAdminToken(t, env), wantCode: http.StatusSeeOther, wantLocation: "/admin/login?message="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.check(t, tt)
			cookie := adminCookie(rec)
			switch tt.name {
			case "logged in", "unsafe next":
				require.NotNil(t, cookie)
				assert.Equal(t, admin.CookiePath, cookie.Path)
				assert.True(t, cookie.HttpOnly)
				_, err := env.signer.Verify(cookie.Value)
				assert.NoError(t, err)
			case "wrong password":
				assert.Nil(t, cookie)
				assert.Equal(t, "Invalid admin credentials.", location(rec).Query().Get("error"))
			case "tampered cookie", "expired cookie", "logout":
				require.NotNil(t, cookie)
				assert.Empty(t, cookie.Value)
			}
		})
	}
}

func Test_adminApi_loginNext(t *testing.T) {
	env := setup(t)
	tch := testutil.CreateTeacher(t, env.teacherRepo, "Isaac Newton")
	deletePath := "/admin/teachers/" + tch.ID + "/delete"

	tests := []httpTest{
		{name: "page", path: "/admin/tickets?status=open", extra: "/admin/tickets?status=open"},
		{
			name: "post comes back to the referer", method: http.MethodPost, path: deletePath,
			referer: "http://example.com/admin/teachers?page=2", extra: "/admin/teachers?page=2",
		},
		{name: "post without referer", method: http.MethodPost, path: deletePath, extra: "/admin"},
		{
			name: "referer outside admin", method: http.MethodPost, path: deletePath,
			referer: "http://example.com/teachers", extra: "/admin",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.wantCode = http.StatusSeeOther
			tt.wantLocation = "/admin/login?"
			rec := env.check(t, tt)
			assert.Equal(t, tt.extra, location(rec).Query().Get("next"))
		})
	}

	_, err := env.teacherRepo.GetTeacher(context.Background(), tch.ID)
	assert.NoError(t, err, "anonymous delete must not go through")
}

func Test_adminApi_teachers(t *testing.T) {
	env := setup(t)
	token := getAdminToken(t, env)
	usr := testutil.CreateUser(t, env.usrRepo, testutil.Email("jane"))
	rated := testutil.CreateTeacher(t, env.teacherRepo, "Rated Teacher", "History")
	testutil.CreateReview(t, env.reviewRepo, rated, &usr, testutil.ReviewOpts{})
	lonely := testutil.CreateTeacher(t, env.teacherRepo, "Lonely Teacher", "Art")

	tests := []httpTest{
		{name: "list", path: "/admin/teachers", adminToken: token, wantBody: "Lonely Teacher"},
		{name: "search", path: "/admin/teachers?q=rated", adminToken: token, wantBody: "Rated Teacher"},
		{
			name: "create: blank name", method: http.MethodPost, path: "/admin/teachers", adminToken: token,
			form: url.Values{"full_name": {"   "}}, wantCode: http.StatusSeeOther, wantLocation: "/admin/teachers?error=",
		},
		{
			name: "create", method: http.MethodPost, path: "/admin/teachers", adminToken: token,
			form: url.Values{"full_name": {"  Grace   Hopper "}, "subjects": {"AP Computer Science, Math, Math"}}, wantCode: http.StatusSeeOther, wantLocation: "/admin/teachers?message=",
		},
		{name: "edit form", path: "/admin/teachers/" + lonely.ID + "/edit", adminToken: token, wantBody: "Lonely Teacher"},
		{
			name: "update", method: http.MethodPost, path: "/admin/teachers/" + lonely.ID, adminToken: token,
			form: url.Values{"full_name": {"Less Lonely Teacher"}, "subjects": {"Art, Design"}}, wantCode: http.StatusSeeOther, wantLocation: "/admin/teachers/" + lonely.ID + "/edit?message=",
		},
		{
			name: "delete with reviews", method: http.MethodPost, path: "/admin/teachers/" + rated.ID + "/delete", adminToken: token,
			wantCode: http.StatusSeeOther, wantLocation: "/admin/teachers?error=",
		},
		{
			name: "delete", method: http.MethodPost, path: "/admin/teachers/" + lonely.ID + "/delete", adminToken: token,
			wantCode: http.StatusSeeOther, wantLocation: "/admin/teachers?message=",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.check(t, tt)
		})
	}

	ctx := context.Background()
	grace, err := env.teacherRepo.FindTeacherByName(ctx, "Grace Hopper")
	require.NoError(t, err)
	assert.Equal(t, []string{"AP Computer Science", "Math"}, grace.Subjects)
	assert.Equal(t, "AP Computer Science", grace.Subject.String)

	_, err = env.teacherRepo.GetTeacher(ctx, rated.ID)
	assert.NoError(t, err)
	_, err = env.teacherRepo.GetTeacher(ctx, lonely.ID)
	assert.Equal(t, teacher.ErrNotFound, err)
}

func Test_adminApi_reviews(t *testing.T) {
	env := setup(t)
	token := getAdminToken(t, env)
	tch := testutil.CreateTeacher(t, env.teacherRepo, "Marie Curie", "Chemistry")
	toApprove := testutil.CreateReview(t, env.reviewRepo, tch, nil, testutil.ReviewOpts{Status: review.StatusPending, Course: "CHEMISTRY"})
	toReject := testutil.CreateReview(t, env.reviewRepo, tch, nil, testutil.ReviewOpts{Status: review.StatusPending, Course: "AP CHEMISTRY"})
	toEdit := testutil.CreateReview(t, env.reviewRepo, tch, nil, testutil.ReviewOpts{Course: "IB CHEMISTRY"})

	tests := []httpTest{
		{name: "list pending", path: "/admin/reviews?status=pending&ordering=-quality", adminToken: token, wantBody: "AP CHEMISTRY"},
		{name: "edit form", path: "/admin/reviews/" + toEdit.ID + "/edit", adminToken: token, wantBody: "IB CHEMISTRY"},
		{name: "edit form: unknown", path: "/admin/reviews/lol/edit", adminToken: token, wantCode: http.StatusSeeOther, wantLocation: "/admin/reviews?error="},
		{
			name: "approve", method: http.MethodPost, path: "/admin/reviews/" + toApprove.ID + "/approve", adminToken: token,
			wantCode: http.StatusSeeOther, wantLocation: "/admin/reviews?",
		},
		{
			name: "reject", method: http.MethodPost, path: "/admin/reviews/" + toReject.ID + "/reject", adminToken: token,
			wantCode: http.StatusSeeOther, wantLocation: "/admin/reviews?",
		},
		{
			name: "update: bad status", method: http.MethodPost, path: "/admin/reviews/" + toEdit.ID, adminToken: token,
			form:     url.Values{"status": {"hidden"}, "quality": {"1"}, "difficulty": {"1"}, "would_take_again": {"no"}, "course": {"x"}},
			wantCode: http.StatusSeeOther, wantLocation: "/admin/reviews/" + toEdit.ID + "/edit?error=",
		},
		{
			name: "update", method: http.MethodPost, path: "/admin/reviews/" + toEdit.ID, adminToken: token,
			form:     url.Values{"status": {"rejected"}, "quality": {"1"}, "difficulty": {"2"}, "would_take_again": {"no"}, "course": {"ib chem"}, "comment": {"Moderated."}},
			wantCode: http.StatusSeeOther, wantLocation: "/admin/reviews/" + toEdit.ID + "/edit?message=",
		},
		{
			name: "delete", method: http.MethodPost, path: "/admin/reviews/" + toReject.ID + "/delete", adminToken: token,
			wantCode: http.StatusSeeOther, wantLocation: "/admin/reviews?message=",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.check(t, tt)
		})
	}

	ctx := context.Background()
	r, err := env.reviewRepo.GetReview(ctx, toApprove.ID)
	require.NoError(t, err)
	assert.Equal(t, review.StatusPublished, r.Status)

	r, err = env.reviewRepo.GetReview(ctx, toEdit.ID)
	require.NoError(t, err)
	assert.Equal(t, review.StatusRejected, r.Status)
	assert.Equal(t, "IB CHEM", r.Course)
	assert.Equal(t, "Moderated.", r.Comment)

	_, err = env.reviewRepo.GetReview(ctx, toReject.ID)
	assert.Equal(t, review.ErrNotFound, err)
}

func Test_adminApi_tickets(t *testing.T) {
	env := setup(t)
	token := getAdminToken(t, env)
	usr := testutil.CreateUser(t, env.usrRepo, testutil.Email("jane"))
	tk := testutil.CreateTicket(t, env.ticketRepo, usr, "Wrong teacher name", ticket.StatusOpen)
	testutil.CreateTicket(t, env.ticketRepo, usr, "Already closed", ticket.StatusClosed)

	tests := []httpTest{
		{name: "list", path: "/admin/tickets", adminToken: token, wantBody: "Already closed"},
		{name: "list open", path: "/admin/tickets?status=open", adminToken: token, wantBody: "Wrong teacher name"},
		{name: "detail", path: "/admin/tickets/" + tk.ID, adminToken: token, wantBody: usr.Email},
		{
			name: "update: bad status", method: http.MethodPost, path: "/admin/tickets/" + tk.ID, adminToken: token,
			form: url.Values{"status": {"lost"}}, wantCode: http.StatusSeeOther, wantLocation: "/admin/tickets/" + tk.ID + "?error=",
		},
		{
			name: "update", method: http.MethodPost, path: "/admin/tickets/" + tk.ID, adminToken: token,
			form: url.Values{"status": {"resolved"}, "admin_note": {"Fixed, thanks!"}}, wantCode: http.StatusSeeOther, wantLocation: "/admin/tickets/" + tk.ID + "?message=",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.check(t, tt)
		})
	}

	got, err := env.ticketRepo.GetTicket(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.StatusResolved, got.Status)
	assert.Equal(t, "Fixed, thanks!", got.AdminNote.String)

	sent := env.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, usr.Email, sent[0].To[0].Address)
}
