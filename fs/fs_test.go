package appfs_test

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appfs "github.com/rmtbiph/ratemyteacher/fs"
)

func TestFS(t *testing.T) {
	// layouts start with "_" and must be embedded too
	for _, name := range []string{
		"templates/web/_layout.gohtml",
		"templates/web/admin/_layout.gohtml",
		"templates/email/_base.txt",
		"templates/email/_base.gohtml",
		"templates/email/ticket_digest.txt",
		"migrations/00001_users_teachers.sql",
		"static/style.css",
	} {
		t.Run(name, func(t *testing.T) {
			content, err := fs.ReadFile(appfs.FS, name)
			require.NoError(t, err)
			assert.NotEmpty(t, content)
		})
	}
}
