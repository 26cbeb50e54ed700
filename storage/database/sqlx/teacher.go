package sqlxrepos

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/rmtbiph/ratemyteacher/core"
	"github.com/rmtbiph/ratemyteacher/core/review"
	"github.com/rmtbiph/ratemyteacher/core/teacher"
)

type teacherRepository struct {
	db core.DB
}

var (
	_ teacher.Repository    = (*teacherRepository)(nil)
	_ review.TeacherGetter = (*teacherRepository)(nil)
)

func NewTeacherRepository(db core.DB) *teacherRepository {
	return &teacherRepository{db: db}
}

const (
	teacherColumns = "id, full_name, subject, created_at, updated_at"

	// aggregates of published reviews only
	teacherListSelect = `
SELECT t.id, t.full_name, t.subject,
       AVG(r.quality) AS avg_quality,
       AVG(r.difficulty) AS avg_difficulty,
       COUNT(r.id) AS review_count,
       CASE WHEN COUNT(r.id) = 0 THEN NULL
            ELSE 100.0 * SUM(CASE WHEN r.would_take_again THEN 1 ELSE 0 END) / COUNT(r.id)
       END AS pct_would_take_again
FROM teachers t
LEFT JOIN reviews r ON r.teacher_id = t.id AND r.status = 'published'`

	teacherListGroup = `
GROUP BY t.id, t.full_name, t.subject`
)

func (repo *teacherRepository) CreateTeacher(ctx context.Context, t teacher.Teacher, exec ...core.DBExecutor) (teacher.Teacher, error) {
	ex := getExec(repo.db, exec)
	q := ex.Rebind(`INSERT INTO teachers (` + teacherColumns + `) VALUES (?, ?, ?, ?, ?)`)
	if _, err := ex.ExecContext(ctx, q, t.ID, t.FullName, t.Subject, t.CreatedAt, t.UpdatedAt); err != nil {
		return teacher.Teacher{}, errors.Wrap(err, "inserting teacher")
	}
	return t, nil
}

func (repo *teacherRepository) UpdateTeacher(ctx context.Context, t teacher.Teacher, exec ...core.DBExecutor) (teacher.Teacher, error) {
	ex := getExec(repo.db, exec)
	q := ex.Rebind(`UPDATE teachers SET full_name = ?, subject = ?, updated_at = ? WHERE id = ?`)
	res, err := ex.ExecContext(ctx, q, t.FullName, t.Subject, t.UpdatedAt, t.ID)
	if err != nil {
		return teacher.Teacher{}, errors.Wrap(err, "updating teacher")
	}
	if err = checkAffected(res, teacher.ErrNotFound); err != nil {
		return teacher.Teacher{}, err
	}
	return t, nil
}

func (repo *teacherRepository) SetTeacherSubjects(ctx context.Context, teacherID string, subjects []string, exec ...core.DBExecutor) error {
	ex := getExec(repo.db, exec)
	if _, err := ex.ExecContext(ctx, ex.Rebind(`DELETE FROM teacher_subjects WHERE teacher_id = ?`), teacherID); err != nil {
		return errors.Wrap(err, "clearing subjects")
	}
	q := ex.Rebind(`INSERT INTO teacher_subjects (teacher_id, subject, position) VALUES (?, ?, ?)`)
	for i, s := range subjects {
		if _, err := ex.ExecContext(ctx, q, teacherID, s, i); err != nil {
			return errors.Wrap(err, "inserting subject")
		}
	}
	return nil
}

func (repo *teacherRepository) DeleteTeacher(ctx context.Context, id string, exec ...core.DBExecutor) error {
	ex := getExec(repo.db, exec)
	res, err := ex.ExecContext(ctx, ex.Rebind(`DELETE FROM teachers WHERE id = ?`), id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return teacher.ErrHasReviews
		}
		return errors.Wrap(err, "deleting teacher")
	}
	return checkAffected(res, teacher.ErrNotFound)
}

func (repo *teacherRepository) subjects(ctx context.Context, ex core.DBExecutor, teacherID string) ([]string, error) {
	subjects := make([]string, 0)
	q := ex.Rebind(`SELECT subject FROM teacher_subjects WHERE teacher_id = ? ORDER BY position`)
	if err := ex.SelectContext(ctx, &subjects, q, teacherID); err != nil {
		return nil, errors.Wrap(err, "selecting subjects")
	}
	return subjects, nil
}

func (repo *teacherRepository) getTeacher(ctx context.Context, where string, arg interface{}, exec []core.DBExecutor) (teacher.Teacher, error) {
	ex := getExec(repo.db, exec)
	var t teacher.Teacher
	q := ex.Rebind(`SELECT ` + teacherColumns + ` FROM teachers WHERE ` + where)
	if err := ex.GetContext(ctx, &t, q, arg); err != nil {
		return teacher.Teacher{}, trapNoRowsErr(err, teacher.ErrNotFound)
	}

	var err error
	if t.Subjects, err = repo.subjects(ctx, ex, t.ID); err != nil {
		return teacher.Teacher{}, err
	}
	return t, nil
}

func (repo *teacherRepository) GetTeacher(ctx context.Context, id string, exec ...core.DBExecutor) (teacher.Teacher, error) {
	return repo.getTeacher(ctx, "id = ?", id, exec)
}

func (repo *teacherRepository) FindTeacherByName(ctx context.Context, fullName string, exec ...core.DBExecutor) (teacher.Teacher, error) {
	return repo.getTeacher(ctx, "LOWER(full_name) = ?", strings.ToLower(fullName), exec)
}

func teacherFilter(filter teacher.Filter) (string, []interface{}) {
	conds := make([]string, 0, 2)
	args := make([]interface{}, 0, 3)
	if filter.Query != "" {
		conds = append(conds, `LOWER(t.full_name) LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(filter.Query))
	}
	if filter.Subject != "" {
		conds = append(conds, `(t.subject = ? OR EXISTS (
    SELECT 1 FROM teacher_subjects ts WHERE ts.teacher_id = t.id AND ts.subject = ?))`)
		args = append(args, filter.Subject, filter.Subject)
	}
	if len(conds) == 0 {
		return "", args
	}
	return "\nWHERE " + strings.Join(conds, " AND "), args
}

func (repo *teacherRepository) ListTeachers(ctx context.Context, filter teacher.Filter, page core.Page) ([]teacher.ListItem, int, error) {
	where, args := teacherFilter(filter)

	var total int
	if err := repo.db.GetContext(ctx, &total, repo.db.Rebind(`SELECT COUNT(*) FROM teachers t`+where), args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting teachers")
	}

	items := make([]teacher.ListItem, 0, page.Size)
	q := teacherListSelect + where + teacherListGroup + `
ORDER BY review_count DESC, t.full_name ASC`
	if page.Size > 0 {
		q += `
LIMIT ? OFFSET ?`
		args = append(args, page.Size, page.Offset())
	}
	if err := repo.db.SelectContext(ctx, &items, repo.db.Rebind(q), args...); err != nil {
		return nil, 0, errors.Wrap(err, "selecting teachers")
	}
	return items, total, nil
}

func (repo *teacherRepository) GetListItem(ctx context.Context, id string) (teacher.ListItem, error) {
	var item teacher.ListItem
	q := repo.db.Rebind(teacherListSelect + `
WHERE t.id = ?` + teacherListGroup)
	if err := repo.db.GetContext(ctx, &item, q, id); err != nil {
		return teacher.ListItem{}, trapNoRowsErr(err, teacher.ErrNotFound)
	}
	return item, nil
}

func (repo *teacherRepository) ListSubjects(ctx context.Context) ([]string, error) {
	subjects := make([]string, 0)
	q := `
SELECT subject FROM teacher_subjects
UNION
SELECT subject FROM teachers WHERE subject IS NOT NULL AND subject <> ''
ORDER BY 1`
	if err := repo.db.SelectContext(ctx, &subjects, q); err != nil {
		return nil, errors.Wrap(err, "selecting subjects")
	}
	return subjects, nil
}

func (repo *teacherRepository) QualityDistribution(ctx context.Context, id string) (teacher.Distribution, error) {
	var rows []struct {
		Quality int `db:"quality"`
		N       int `db:"n"`
	}
	q := repo.db.Rebind(`
SELECT quality, COUNT(*) AS n
FROM reviews
WHERE teacher_id = ? AND status = 'published'
GROUP BY quality`)
	if err := repo.db.SelectContext(ctx, &rows, q, id); err != nil {
		return teacher.Distribution{}, errors.Wrap(err, "selecting distribution")
	}

	var dist teacher.Distribution
	for _, row := range rows {
		if row.Quality >= 1 && row.Quality <= 5 {
			dist[row.Quality-1] = row.N
		}
	}
	return dist, nil
}

func (repo *teacherRepository) TopTags(ctx context.Context, id string, limit int) ([]teacher.TagCount, error) {
	tags := make([]teacher.TagCount, 0, limit)
	q := repo.db.Rebind(`
SELECT rt.tag, COUNT(*) AS count
FROM review_tags rt
JOIN reviews r ON r.id = rt.review_id
WHERE r.teacher_id = ? AND r.status = 'published'
GROUP BY rt.tag
ORDER BY count DESC, rt.tag ASC
LIMIT ?`)
	if err := repo.db.SelectContext(ctx, &tags, q, id, limit); err != nil {
		return nil, errors.Wrap(err, "selecting top tags")
	}
	return tags, nil
}

func (repo *teacherRepository) CourseOptions(ctx context.Context, id string) ([]string, error) {
	courses := make([]string, 0)
	q := repo.db.Rebind(`
SELECT DISTINCT course
FROM reviews
WHERE teacher_id = ? AND status = 'published' AND course <> ''
ORDER BY course`)
	if err := repo.db.SelectContext(ctx, &courses, q, id); err != nil {
		return nil, errors.Wrap(err, "selecting courses")
	}
	return courses, nil
}
