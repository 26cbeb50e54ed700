package sqlxrepos

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/rmtbiph/ratemyteacher/core"
)

func Test_likePattern(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: "Smith", want: "%smith%"},
		{in: "100%", want: `%100\%%`},
		{in: "a_b", want: `%a\_b%`},
		{in: `back\slash`, want: `%back\\slash%`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, likePattern(tt.in))
		})
	}
}

func Test_orderBy(t *testing.T) {
	allowed := map[string]string{"quality": "r.quality", "teacher": "t.full_name"}
	tests := []struct {
		name      string
		orderings []core.DBOrdering
		want      string
	}{
		{name: "none", want: "fallback"},
		{name: "unknown field", orderings: []core.DBOrdering{{Field: "password"}}, want: "fallback"},
		{name: "mapped", orderings: []core.DBOrdering{{Field: "teacher", Ascending: true}, {Field: "quality"}}, want: "t.full_name ASC, r.quality DESC"},
		{name: "skip unknown", orderings: []core.DBOrdering{{Field: "id; DROP TABLE users"}, {Field: "quality", Ascending: true}}, want: "r.quality ASC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, orderBy(tt.orderings, allowed, "fallback"))
		})
	}
}

func Test_isForeignKeyViolation(t *testing.T) {
	assert.False(t, isForeignKeyViolation(nil))
	assert.False(t, isForeignKeyViolation(errors.New("UNIQUE constraint failed")))
	assert.True(t, isForeignKeyViolation(errors.New("FOREIGN KEY constraint failed (787)")))
	assert.True(t, isForeignKeyViolation(errors.Wrap(
		errors.New(`pq: update or delete on table "teachers" violates foreign key constraint`), "deleting teacher")))
}
