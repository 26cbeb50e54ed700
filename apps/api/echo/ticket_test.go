package echoapi_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmtbiph/ratemyteacher/core/ticket"
	"github.com/rmtbiph/ratemyteacher/testutil"
)

func Test_ticketApi_create(t *testing.T) {
	env := setup(t)
	usr := testutil.CreateUser(t, env.usrRepo, testutil.Email("jane"))
	token := getToken(t, env.conf, usr)

	contact := func(category, other, title, description string) url.Values {
		return url.Values{"category": {category}, "category_other": {other}, "title": {title}, "description": {description}}
	}

	tests := []httpTest{
		{name: "anonymous", path: "/contact", wantCode: http.StatusSeeOther, wantLocation: "/login?redirectTo=%2Fcontact"},
		{name: "form", path: "/contact", token: token, wantBody: "Bug Report"},
		{
			name: "unknown category", method: http.MethodPost, path: "/contact", token: token,
			form: contact("Gossip", "", "Hello there", "Long enough description"), wantCode: http.StatusSeeOther, wantLocation: "/contact?error=",
		},
		{
			name: "other without detail", method: http.MethodPost, path: "/contact", token: token,
			form: contact(ticket.CategoryOther, "", "Hello there", "Long enough description"), wantCode: http.StatusSeeOther, wantLocation: "/contact?error=",
		},
		{
			name: "description too short", method: http.MethodPost, path: "/contact", token: token,
			form: contact("Bug Report", "", "Broken", "short"), wantCode: http.StatusSeeOther, wantLocation: "/contact?error=",
		},
		{
			name: "created", method: http.MethodPost, path: "/contact", token: token,
			form: contact(ticket.CategoryOther, "Yearbook", " Wrong photo ", "My photo is on the wrong teacher page."), wantCode: http.StatusSeeOther, wantLocation: "/contact?",
		},
	}
	var rec interface{ Header() http.Header }
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec = env.check(t, tt)
		})
	}

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "1", loc.Query().Get("success"))

	tk, err := env.ticketRepo.GetTicket(context.Background(), loc.Query().Get("ticket"))
	require.NoError(t, err)
	assert.Equal(t, usr.ID, tk.UserID)
	assert.Equal(t, usr.Email, tk.Email)
	assert.Equal(t, "Wrong photo", tk.Title)
	assert.Equal(t, "Other: Yearbook", tk.CategoryLabel())
	assert.Equal(t, ticket.StatusOpen, tk.Status)

	sent := env.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, env.conf.Admin.NotifyEmail, sent[0].To[0].Address)
	assert.Contains(t, sent[0].Subject, "Wrong photo")

	env.check(t, httpTest{name: "success page", path: loc.String(), token: token, wantBody: tk.ID})
}

func Test_ticketApi_mine(t *testing.T) {
	env := setup(t)
	owner := testutil.CreateUser(t, env.usrRepo, testutil.Email("owner"))
	other := testutil.CreateUser(t, env.usrRepo, testutil.Email("other"))
	tk := testutil.CreateTicket(t, env.ticketRepo, owner, "Cannot log in", ticket.StatusInProgress)

	ownerToken := getToken(t, env.conf, owner)
	otherToken := getToken(t, env.conf, other)

	tests := []httpTest{
		{name: "list", path: "/me/tickets", token: ownerToken, wantBody: "Cannot log in"},
		{name: "detail", path: "/me/tickets/" + tk.ID, token: ownerToken, wantBody: "In progress"},
		{name: "detail: not owner", path: "/me/tickets/" + tk.ID, token: otherToken, wantCode: http.StatusNotFound},
		{name: "detail: bad id", path: "/me/tickets/lol", token: ownerToken, wantCode: http.StatusNotFound},
		{name: "anonymous", path: "/me/tickets", wantCode: http.StatusSeeOther, wantLocation: "/login?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.check(t, tt)
		})
	}
}
