package sqlxrepos

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/rmtbiph/ratemyteacher/core"
	"github.com/rmtbiph/ratemyteacher/core/review"
)

type reviewRepository struct {
	db core.DB
}

var _ review.Repository = (*reviewRepository)(nil)

func NewReviewRepository(db core.DB) *reviewRepository {
	return &reviewRepository{db: db}
}

const (
	reviewColumns = `r.id, r.teacher_id, r.user_id, r.device_id, r.quality, r.difficulty, r.would_take_again,
       r.course, r.grade, r.is_online, r.comment, r.status, r.created_at, r.updated_at`

	reviewWithTeacherSelect = `
SELECT ` + reviewColumns + `, t.full_name AS teacher_name, t.subject AS teacher_subject
FROM reviews r
JOIN teachers t ON t.id = r.teacher_id`
)

var reviewOrderings = map[string]string{
	"created_at": "r.created_at",
	"updated_at": "r.updated_at",
	"quality":    "r.quality",
	"difficulty": "r.difficulty",
	"status":     "r.status",
	"teacher":    "t.full_name",
}

func (repo *reviewRepository) CreateReview(ctx context.Context, r review.Review, exec ...core.DBExecutor) (review.Review, error) {
	ex := getExec(repo.db, exec)
	q := ex.Rebind(`
INSERT INTO reviews (id, teacher_id, user_id, device_id, quality, difficulty, would_take_again,
                     course, grade, is_online, comment, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := ex.ExecContext(ctx, q,
		r.ID, r.TeacherID, r.UserID, r.DeviceID, r.Quality, r.Difficulty, r.WouldTakeAgain,
		r.Course, r.Grade, r.IsOnline, r.Comment, r.Status, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return review.Review{}, errors.Wrap(err, "inserting review")
	}
	return r, nil
}

func (repo *reviewRepository) SetReviewTags(ctx context.Context, reviewID string, tags []string, exec ...core.DBExecutor) error {
	ex := getExec(repo.db, exec)
	if _, err := ex.ExecContext(ctx, ex.Rebind(`DELETE FROM review_tags WHERE review_id = ?`), reviewID); err != nil {
		return errors.Wrap(err, "clearing tags")
	}
	q := ex.Rebind(`INSERT INTO review_tags (review_id, tag, position) VALUES (?, ?, ?)`)
	for i, tag := range tags {
		if _, err := ex.ExecContext(ctx, q, reviewID, tag, i); err != nil {
			return errors.Wrap(err, "inserting tag")
		}
	}
	return nil
}

// loadTags fills the tags of reviews in a single query.
func (repo *reviewRepository) loadTags(ctx context.Context, ex core.DBExecutor, reviews []review.Review) error {
	if len(reviews) == 0 {
		return nil
	}
	idx := make(map[string]int, len(reviews))
	ids := make([]string, 0, len(reviews))
	for i := range reviews {
		reviews[i].Tags = make([]string, 0)
		idx[reviews[i].ID] = i
		ids = append(ids, reviews[i].ID)
	}

	q, args, err := sqlx.In(`SELECT review_id, tag FROM review_tags WHERE review_id IN (?) ORDER BY review_id, position`, ids)
	if err != nil {
		return errors.Wrap(err, "building tags query")
	}
	var rows []struct {
		ReviewID string `db:"review_id"`
		Tag      string `db:"tag"`
	}
	if err = ex.SelectContext(ctx, &rows, ex.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "selecting tags")
	}
	for _, row := range rows {
		i := idx[row.ReviewID]
		reviews[i].Tags = append(reviews[i].Tags, row.Tag)
	}
	return nil
}

func (repo *reviewRepository) GetReview(ctx context.Context, id string, exec ...core.DBExecutor) (review.Review, error) {
	ex := getExec(repo.db, exec)
	var r review.Review
	q := ex.Rebind(reviewWithTeacherSelect + `
WHERE r.id = ?`)
	if err := ex.GetContext(ctx, &r, q, id); err != nil {
		return review.Review{}, trapNoRowsErr(err, review.ErrNotFound)
	}

	reviews := []review.Review{r}
	if err := repo.loadTags(ctx, ex, reviews); err != nil {
		return review.Review{}, err
	}
	return reviews[0], nil
}

func (repo *reviewRepository) UpdateReview(ctx context.Context, r review.Review, ownerID string, exec ...core.DBExecutor) (review.Review, error) {
	ex := getExec(repo.db, exec)
	q := `
UPDATE reviews
SET quality = ?, difficulty = ?, would_take_again = ?, course = ?, grade = ?, is_online = ?,
    comment = ?, status = ?, updated_at = ?
WHERE id = ?`
	args := []interface{}{
		r.Quality, r.Difficulty, r.WouldTakeAgain, r.Course, r.Grade, r.IsOnline,
		r.Comment, r.Status, r.UpdatedAt, r.ID,
	}
	if ownerID != "" {
		q += ` AND user_id = ?`
		args = append(args, ownerID)
	}

	res, err := ex.ExecContext(ctx, ex.Rebind(q), args...)
	if err != nil {
		return review.Review{}, errors.Wrap(err, "updating review")
	}
	if err = checkAffected(res, review.ErrNotFound); err != nil {
		return review.Review{}, err
	}
	return r, nil
}

func (repo *reviewRepository) DeleteReview(ctx context.Context, id, ownerID string, exec ...core.DBExecutor) error {
	ex := getExec(repo.db, exec)
	q := `DELETE FROM reviews WHERE id = ?`
	args := []interface{}{id}
	if ownerID != "" {
		q += ` AND user_id = ?`
		args = append(args, ownerID)
	}

	res, err := ex.ExecContext(ctx, ex.Rebind(q), args...)
	if err != nil {
		return errors.Wrap(err, "deleting review")
	}
	return checkAffected(res, review.ErrNotFound)
}

func (repo *reviewRepository) SetReviewStatus(ctx context.Context, id, status string, exec ...core.DBExecutor) error {
	ex := getExec(repo.db, exec)
	q := ex.Rebind(`UPDATE reviews SET status = ?, updated_at = ? WHERE id = ?`)
	res, err := ex.ExecContext(ctx, q, status, core.Now(), id)
	if err != nil {
		return errors.Wrap(err, "updating review status")
	}
	return checkAffected(res, review.ErrNotFound)
}

func (repo *reviewRepository) selectReviews(ctx context.Context, q string, args ...interface{}) ([]review.Review, error) {
	reviews := make([]review.Review, 0)
	if err := repo.db.SelectContext(ctx, &reviews, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting reviews")
	}
	if err := repo.loadTags(ctx, repo.db, reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

func (repo *reviewRepository) ListTeacherReviews(ctx context.Context, teacherID, course string, limit int) ([]review.Review, error) {
	q := reviewWithTeacherSelect + `
WHERE r.teacher_id = ? AND r.status = 'published'`
	args := []interface{}{teacherID}
	if course != "" {
		q += ` AND r.course = ?`
		args = append(args, strings.ToUpper(course))
	}
	q += `
ORDER BY r.created_at DESC, r.id
LIMIT ?`
	args = append(args, limit)
	return repo.selectReviews(ctx, q, args...)
}

func (repo *reviewRepository) ListUserReviews(ctx context.Context, userID string) ([]review.Review, error) {
	return repo.selectReviews(ctx, reviewWithTeacherSelect+`
WHERE r.user_id = ?
ORDER BY r.created_at DESC, r.id`, userID)
}

func (repo *reviewRepository) QueryReviews(ctx context.Context, filter review.AdminFilter, ordering []core.DBOrdering, page core.Page) ([]review.Review, int, error) {
	conds := make([]string, 0, 2)
	args := make([]interface{}, 0, 4)
	if filter.Status != "" {
		conds = append(conds, "r.status = ?")
		args = append(args, filter.Status)
	}
	if filter.TeacherID != "" {
		conds = append(conds, "r.teacher_id = ?")
		args = append(args, filter.TeacherID)
	}
	var where string
	if len(conds) > 0 {
		where = "\nWHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := repo.db.GetContext(ctx, &total, repo.db.Rebind(`SELECT COUNT(*) FROM reviews r`+where), args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting reviews")
	}

	q := reviewWithTeacherSelect + where + `
ORDER BY ` + orderBy(ordering, reviewOrderings, "r.created_at DESC") + `, r.id`
	if page.Size > 0 {
		q += `
LIMIT ? OFFSET ?`
		args = append(args, page.Size, page.Offset())
	}
	reviews, err := repo.selectReviews(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	return reviews, total, nil
}

// Votes

func (repo *reviewRepository) GetVote(ctx context.Context, reviewID, userID string, exec ...core.DBExecutor) (review.Vote, error) {
	ex := getExec(repo.db, exec)
	var v review.Vote
	q := ex.Rebind(`
SELECT id, review_id, user_id, value, created_at, updated_at
FROM review_votes
WHERE review_id = ? AND user_id = ?`)
	if err := ex.GetContext(ctx, &v, q, reviewID, userID); err != nil {
		return review.Vote{}, trapNoRowsErr(err, review.ErrVoteNotFound)
	}
	return v, nil
}

func (repo *reviewRepository) CreateVote(ctx context.Context, v review.Vote, exec ...core.DBExecutor) error {
	ex := getExec(repo.db, exec)
	q := ex.Rebind(`
INSERT INTO review_votes (id, review_id, user_id, value, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := ex.ExecContext(ctx, q, v.ID, v.ReviewID, v.UserID, v.Value, v.CreatedAt, v.UpdatedAt)
	return errors.Wrap(err, "inserting vote")
}

func (repo *reviewRepository) UpdateVote(ctx context.Context, v review.Vote, exec ...core.DBExecutor) error {
	ex := getExec(repo.db, exec)
	q := ex.Rebind(`UPDATE review_votes SET value = ?, updated_at = ? WHERE id = ?`)
	res, err := ex.ExecContext(ctx, q, v.Value, v.UpdatedAt, v.ID)
	if err != nil {
		return errors.Wrap(err, "updating vote")
	}
	return checkAffected(res, review.ErrVoteNotFound)
}

func (repo *reviewRepository) DeleteVote(ctx context.Context, id string, exec ...core.DBExecutor) error {
	ex := getExec(repo.db, exec)
	res, err := ex.ExecContext(ctx, ex.Rebind(`DELETE FROM review_votes WHERE id = ?`), id)
	if err != nil {
		return errors.Wrap(err, "deleting vote")
	}
	return checkAffected(res, review.ErrVoteNotFound)
}

func (repo *reviewRepository) VoteCounts(ctx context.Context, reviewIDs []string, viewerID string) (map[string]review.VoteCounts, map[string]int, error) {
	counts := make(map[string]review.VoteCounts, len(reviewIDs))
	mine := make(map[string]int)
	if len(reviewIDs) == 0 {
		return counts, mine, nil
	}

	q, args, err := sqlx.In(`
SELECT review_id,
       SUM(CASE WHEN value = 1 THEN 1 ELSE 0 END) AS up,
       SUM(CASE WHEN value = -1 THEN 1 ELSE 0 END) AS down
FROM review_votes
WHERE review_id IN (?)
GROUP BY review_id`, reviewIDs)
	if err != nil {
		return nil, nil, errors.Wrap(err, "building vote counts query")
	}
	var rows []struct {
		ReviewID string `db:"review_id"`
		review.VoteCounts
	}
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, nil, errors.Wrap(err, "selecting vote counts")
	}
	for _, row := range rows {
		counts[row.ReviewID] = row.VoteCounts
	}

	if viewerID == "" {
		return counts, mine, nil
	}
	q, args, err = sqlx.In(`SELECT review_id, value FROM review_votes WHERE user_id = ? AND review_id IN (?)`, viewerID, reviewIDs)
	if err != nil {
		return nil, nil, errors.Wrap(err, "building viewer votes query")
	}
	var votes []struct {
		ReviewID string `db:"review_id"`
		Value    int    `db:"value"`
	}
	if err = repo.db.SelectContext(ctx, &votes, repo.db.Rebind(q), args...); err != nil {
		return nil, nil, errors.Wrap(err, "selecting viewer votes")
	}
	for _, v := range votes {
		mine[v.ReviewID] = v.Value
	}
	return counts, mine, nil
}
