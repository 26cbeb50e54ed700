package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/rmtbiph/ratemyteacher/apps/api/echo"
	"github.com/rmtbiph/ratemyteacher/core"
	"github.com/rmtbiph/ratemyteacher/core/access"
	"github.com/rmtbiph/ratemyteacher/core/admin"
	"github.com/rmtbiph/ratemyteacher/core/review"
	"github.com/rmtbiph/ratemyteacher/core/teacher"
	"github.com/rmtbiph/ratemyteacher/core/ticket"
	"github.com/rmtbiph/ratemyteacher/core/user"
	emailsvc "github.com/rmtbiph/ratemyteacher/services/email"
	sqlxrepos "github.com/rmtbiph/ratemyteacher/storage/database/sqlx"
	"github.com/rmtbiph/ratemyteacher/testutil"
)

const csrfToken = "test-csrf-token"

type testEnv struct {
	app         Server
	conf        *core.Config
	mailSvc     *emailsvc.ConsoleServiceMock
	usrRepo     user.Repository
	teacherRepo teacher.Repository
	reviewRepo  review.Repository
	ticketRepo  ticket.Repository
	signer      *admin.Signer
}

func setup(t *testing.T) *testEnv {
	conf := testutil.NewConfig(t)
	db := testutil.PrepareDB(t, conf)

	env := &testEnv{
		conf:        conf,
		usrRepo:     sqlxrepos.NewUserRepository(db),
		teacherRepo: sqlxrepos.NewTeacherRepository(db),
		reviewRepo:  sqlxrepos.NewReviewRepository(db),
		ticketRepo:  sqlxrepos.NewTicketRepository(db),
		signer:      admin.NewSigner(conf.Admin.CookieSecret, conf.Admin.Username, conf.Admin.Password, conf.Admin.SessionMaxAge),
	}

	logger := testutil.NewLogger(t, conf)
	validate, translator := testutil.NewValidation()
	env.mailSvc = emailsvc.NewConsoleServiceMock(conf, logger)
	core.ParseEmailTemplates(conf, logger)

	guard := access.NewGuard(access.EmailSuffix(conf.AllowedEmailDomain))
	reviewSvc := review.NewService(db, env.reviewRepo, env.teacherRepo, guard)

	env.app = NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		DB:             db,
		UserSvc:        user.NewService(env.usrRepo, guard),
		TeacherSvc:     teacher.NewService(db, env.teacherRepo),
		ReviewSvc:      reviewSvc,
		DeviceSvc:      review.NewDeviceService(sqlxrepos.NewDeviceRepository(db), reviewSvc),
		TicketSvc:      ticket.NewService(env.ticketRepo, guard, env.mailSvc, conf.Admin.NotifyEmail),
		AdminSigner:    env.signer,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})
	return env
}

type httpTest struct {
	name         string
	method       string
	path         string
	form         url.Values
	body         []byte
	token        string // session cookie
	adminToken   string // admin cookie
	referer      string
	noCSRF       bool
	wantCode     int
	wantLocation string                 // prefix of the Location header
	wantBody     string                 // substring of the body
	wantJSON     map[string]interface{} // expected values of the decoded JSON body
	extra        interface{}
}

func (env *testEnv) do(t *testing.T, tt httpTest) *httptest.ResponseRecorder {
	t.Helper()
	return env.serve(env.newFormRequest(tt))
}

func (env *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.app.ServeHTTP(rec, req)
	return rec
}

// newFormRequest builds the request of tt: a JSON body when set, a form with a valid CSRF token for POST.
func (env *testEnv) newFormRequest(tt httpTest) *http.Request {
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}

	var req *http.Request
	switch {
	case tt.body != nil:
		req = httptest.NewRequest(method, tt.path, bytes.NewReader(tt.body))
		req.Header.Set("Content-Type", "application/json")
	case method == http.MethodPost:
		form := url.Values{}
		for k, v := range tt.form {
			form[k] = v
		}
		if !tt.noCSRF {
			form.Set("_csrf", csrfToken)
		}
		req = httptest.NewRequest(method, tt.path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	default:
		req = httptest.NewRequest(method, tt.path, nil)
	}

	if tt.referer != "" {
		req.Header.Set("Referer", tt.referer)
	}
	req.AddCookie(&http.Cookie{Name: "_csrf", Value: csrfToken})
	if tt.token != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.token})
	}
	if tt.adminToken != "" {
		req.AddCookie(&http.Cookie{Name: admin.CookieName, Value: tt.adminToken})
	}
	return req
}

func (env *testEnv) check(t *testing.T, tt httpTest) *httptest.ResponseRecorder {
	t.Helper()

	rec := env.do(t, tt)
	wantCode := tt.wantCode
	if wantCode == 0 {
		wantCode = http.StatusOK
	}
	assert.Equal(t, wantCode, rec.Code, rec.Body.String())
	if tt.wantLocation != "" {
		assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), tt.wantLocation),
			"Location = %q; want prefix %q", rec.Header().Get("Location"), tt.wantLocation)
	}
	if tt.wantBody != "" {
		assert.Contains(t, rec.Body.String(), tt.wantBody)
	}
	if tt.wantJSON != nil {
		data := decodeJSON(t, rec)
		for k, v := range tt.wantJSON {
			assert.Equal(t, v, data[k], "JSON key %q", k)
		}
	}
	return rec
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	token, err := GenerateToken(conf, GetUserClaims(conf, usr))
	require.NoError(t, err, "getToken() failed")
	return token
}

func getAdminToken(t *testing.T, env *testEnv) string {
	token, err := env.signer.Sign(env.conf.Admin.Username)
	require.NoError(t, err, "getAdminToken() failed")
	return token
}

func location(rec *httptest.ResponseRecorder) *url.URL {
	u, _ := url.Parse(rec.Header().Get("Location"))
	return u
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data), rec.Body.String())
	return data
}

func marshal(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	require.NoError(t, err, "marshal() failed")
	return data
}

var pageOne = core.Page{Number: 1, Size: 50}
