//go:build container

package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rmtbiph/ratemyteacher/core"
	"github.com/rmtbiph/ratemyteacher/core/review"
	"github.com/rmtbiph/ratemyteacher/core/teacher"
	"github.com/rmtbiph/ratemyteacher/storage/database"
	sqlxrepos "github.com/rmtbiph/ratemyteacher/storage/database/sqlx"
	"github.com/rmtbiph/ratemyteacher/testutil"
)

// startPostgres runs a throwaway PostgreSQL server and points conf at it.
func startPostgres(t *testing.T, conf *core.Config) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "postgres",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := ctr.Terminate(context.Background()); err != nil {
			t.Logf("terminating postgres container: %v", err)
		}
	})

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "5432")
	require.NoError(t, err)

	conf.Database = core.DatabaseConfig{
		Engine:        database.EnginePostgres,
		Host:          host,
		Port:          port.Port(),
		Name:          "ratemyteacher",
		User:          "rmt",
		Password:      "rmt-pass",
		AdminUser:     "postgres",
		AdminPassword: "postgres",
		DisableTLS:    true,
	}
}

func TestPostgres(t *testing.T) {
	conf := testutil.NewConfig(t)
	startPostgres(t, conf)

	require.NoError(t, database.CreateIfNotExist(conf))
	// idempotent
	require.NoError(t, database.CreateIfNotExist(conf))

	db := testutil.PrepareDB(t, conf)
	assert.Equal(t, "postgres", database.Dialect(db))
	ctx := context.Background()

	teacherRepo := sqlxrepos.NewTeacherRepository(db)
	reviewRepo := sqlxrepos.NewReviewRepository(db)
	tch := testutil.CreateTeacher(t, teacherRepo, "Anna Smith", "AP Physics")
	r := testutil.CreateReview(t, reviewRepo, tch, nil, testutil.ReviewOpts{Quality: 5, Tags: []string{"CARING"}})

	t.Run("aggregates", func(t *testing.T) {
		item, err := teacherRepo.GetListItem(ctx, tch.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, item.ReviewCount)
		assert.InDelta(t, 5.0, item.AvgQuality.Float64, 0.001)

		tags, err := teacherRepo.TopTags(ctx, tch.ID, teacher.TopTagLimit)
		require.NoError(t, err)
		assert.Equal(t, []teacher.TagCount{{Tag: "CARING", Count: 1}}, tags)
	})

	t.Run("restrict delete", func(t *testing.T) {
		assert.Equal(t, teacher.ErrHasReviews, teacherRepo.DeleteTeacher(ctx, tch.ID))
	})

	t.Run("admin query", func(t *testing.T) {
		reviews, total, err := reviewRepo.QueryReviews(ctx, review.AdminFilter{Status: review.StatusPublished},
			[]core.DBOrdering{{Field: "quality"}}, core.Page{Number: 1, Size: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, reviews, 1)
		assert.Equal(t, r.ID, reviews[0].ID)
		assert.Equal(t, "Anna Smith", reviews[0].TeacherName.String)
	})
}
