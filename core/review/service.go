package review

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/rmtbiph/ratemyteacher/core"
	"github.com/rmtbiph/ratemyteacher/core/access"
	"github.com/rmtbiph/ratemyteacher/core/teacher"
)

var (
	// errors
	ErrNotFound     = errors.New("review not found")
	ErrVoteNotFound = errors.New("vote not found")
	ErrNotPublished = errors.New("this review is not published")
)

type (
	Repository interface {
		CreateReview(ctx context.Context, r Review, exec ...core.DBExecutor) (Review, error)
		SetReviewTags(ctx context.Context, reviewID string, tags []string, exec ...core.DBExecutor) error
		// GetReview returns a review with its tags.
		GetReview(ctx context.Context, id string, exec ...core.DBExecutor) (Review, error)
		// UpdateReview saves r. When ownerID is not empty, only a review owned by ownerID is updated.
		UpdateReview(ctx context.Context, r Review, ownerID string, exec ...core.DBExecutor) (Review, error)
		// DeleteReview deletes a review. When ownerID is not empty, only a review owned by ownerID is deleted.
		DeleteReview(ctx context.Context, id, ownerID string, exec ...core.DBExecutor) error
		SetReviewStatus(ctx context.Context, id, status string, exec ...core.DBExecutor) error

		ListTeacherReviews(ctx context.Context, teacherID, course string, limit int) ([]Review, error)
		ListUserReviews(ctx context.Context, userID string) ([]Review, error)
		QueryReviews(ctx context.Context, filter AdminFilter, ordering []core.DBOrdering, page core.Page) ([]Review, int, error)

		GetVote(ctx context.Context, reviewID, userID string, exec ...core.DBExecutor) (Vote, error)
		CreateVote(ctx context.Context, v Vote, exec ...core.DBExecutor) error
		UpdateVote(ctx context.Context, v Vote, exec ...core.DBExecutor) error
		DeleteVote(ctx context.Context, id string, exec ...core.DBExecutor) error
		// VoteCounts returns the up/down counts of each review and, when viewerID is set, the viewer's votes.
		VoteCounts(ctx context.Context, reviewIDs []string, viewerID string) (map[string]VoteCounts, map[string]int, error)
	}

	TeacherGetter interface {
		GetTeacher(ctx context.Context, id string, exec ...core.DBExecutor) (teacher.Teacher, error)
	}

	Service struct {
		db       core.DB
		repo     Repository
		teachers TeacherGetter
		guard    *access.Guard
	}
)

func NewService(db core.DB, repo Repository, teachers TeacherGetter, guard *access.Guard) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		teachers: teachers,
		guard:    guard,
	}
}

func (svc *Service) getTeacher(ctx context.Context, id string) (teacher.Teacher, error) {
	if _, err := uuid.Parse(id); err != nil {
		return teacher.Teacher{}, teacher.ErrNotFound
	}
	return svc.teachers.GetTeacher(ctx, id)
}

func (svc *Service) get(ctx context.Context, id string) (Review, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Review{}, ErrNotFound
	}
	return svc.repo.GetReview(ctx, id)
}

func (svc *Service) ownerOf(id string) access.OwnerLookup {
	return func(ctx context.Context) (string, error) {
		r, err := svc.get(ctx, id)
		if err != nil {
			return "", err
		}
		return r.UserID.String, nil
	}
}

func (svc *Service) save(ctx context.Context, r Review, create bool, ownerID string) (Review, error) {
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		r, err = svc.saveTx(ctx, tx, r, create, ownerID)
		return err
	})
	if err != nil {
		return Review{}, err
	}
	return r, nil
}

func (svc *Service) saveTx(ctx context.Context, tx core.DBExecutor, r Review, create bool, ownerID string) (Review, error) {
	var err error
	if create {
		r, err = svc.repo.CreateReview(ctx, r, tx)
	} else {
		r, err = svc.repo.UpdateReview(ctx, r, ownerID, tx)
	}
	if err != nil {
		return Review{}, errors.Wrap(err, "saving review")
	}
	if err = svc.repo.SetReviewTags(ctx, r.ID, r.Tags, tx); err != nil {
		return Review{}, errors.Wrap(err, "setting tags")
	}
	return r, nil
}

// Create publishes the review of a validated Form written by p about a teacher.
func (svc *Service) Create(ctx context.Context, p *access.Principal, teacherID string, form Form) (Review, error) {
	if err := svc.guard.Check(ctx, p, nil); err != nil {
		return Review{}, err
	}
	t, err := svc.getTeacher(ctx, teacherID)
	if err != nil {
		return Review{}, err
	}

	now := core.Now()
	r := Review{
		ID:        uuid.NewString(),
		TeacherID: t.ID,
		UserID:    null.StringFrom(p.UserID),
		Status:    StatusPublished,
		CreatedAt: now,
		UpdatedAt: now,
	}
	form.apply(&r)
	return svc.save(ctx, r, true, "")
}

// GetMine returns a review of p, for editing.
func (svc *Service) GetMine(ctx context.Context, p *access.Principal, id string) (Review, error) {
	if err := svc.guard.Check(ctx, p, svc.ownerOf(id)); err != nil {
		return Review{}, err
	}
	return svc.get(ctx, id)
}

// Update replaces the content of a review of p with a validated Form.
func (svc *Service) Update(ctx context.Context, p *access.Principal, id string, form Form) (Review, error) {
	if err := svc.guard.Check(ctx, p, svc.ownerOf(id)); err != nil {
		return Review{}, err
	}
	r, err := svc.get(ctx, id)
	if err != nil {
		return Review{}, err
	}
	form.apply(&r)
	r.UpdatedAt = core.Now()
	return svc.save(ctx, r, false, p.UserID)
}

// Delete removes a review of p, with its tags and votes.
func (svc *Service) Delete(ctx context.Context, p *access.Principal, id string) (Review, error) {
	if err := svc.guard.Check(ctx, p, svc.ownerOf(id)); err != nil {
		return Review{}, err
	}
	r, err := svc.get(ctx, id)
	if err != nil {
		return Review{}, err
	}
	return r, svc.repo.DeleteReview(ctx, id, p.UserID)
}

func (svc *Service) ListMine(ctx context.Context, p *access.Principal) ([]Review, error) {
	if err := svc.guard.Check(ctx, p, nil); err != nil {
		return nil, err
	}
	return svc.repo.ListUserReviews(ctx, p.UserID)
}

// ListForTeacher returns the newest published reviews of a teacher, optionally for one course,
// with their vote counts and the viewer's own votes.
func (svc *Service) ListForTeacher(ctx context.Context, teacherID, course string, viewer *access.Principal) ([]Review, error) {
	reviews, err := svc.repo.ListTeacherReviews(ctx, teacherID, core.CleanString(course), TeacherPageLen)
	if err != nil {
		return nil, errors.Wrap(err, "listing teacher reviews")
	}
	if err = svc.fillVotes(ctx, reviews, viewer); err != nil {
		return nil, err
	}
	return reviews, nil
}

func (svc *Service) fillVotes(ctx context.Context, reviews []Review, viewer *access.Principal) error {
	if len(reviews) == 0 {
		return nil
	}
	ids := make([]string, 0, len(reviews))
	for _, r := range reviews {
		ids = append(ids, r.ID)
	}
	var viewerID string
	if viewer != nil {
		viewerID = viewer.UserID
	}

	counts, mine, err := svc.repo.VoteCounts(ctx, ids, viewerID)
	if err != nil {
		return errors.Wrap(err, "counting votes")
	}
	for i := range reviews {
		reviews[i].Votes = counts[reviews[i].ID]
		reviews[i].ViewerVote = mine[reviews[i].ID]
	}
	return nil
}

// Vote records p's vote on a published review: the same value twice removes the vote,
// the opposite value switches it and 0 clears it.
func (svc *Service) Vote(ctx context.Context, p *access.Principal, reviewID string, value int) (VoteResult, error) {
	if err := svc.guard.Check(ctx, p, nil); err != nil {
		return VoteResult{}, err
	}
	if value != VoteUp && value != VoteDown && value != 0 {
		return VoteResult{}, ErrInvalidVote
	}
	r, err := svc.get(ctx, reviewID)
	if err != nil {
		return VoteResult{}, err
	}
	if !r.IsPublished() {
		return VoteResult{}, ErrNotPublished
	}

	var res VoteResult
	err = core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		current, err := svc.repo.GetVote(ctx, reviewID, p.UserID, tx)
		if err != nil && errors.Cause(err) != ErrVoteNotFound {
			return errors.Wrap(err, "getting vote")
		}

		now := core.Now()
		switch ResolveVote(current.Value, value) {
		case VoteInsert:
			res = VoteResult{Created: true, Value: value}
			return svc.repo.CreateVote(ctx, Vote{
				ID:        uuid.NewString(),
				ReviewID:  reviewID,
				UserID:    p.UserID,
				Value:     value,
				CreatedAt: now,
				UpdatedAt: now,
			}, tx)
		case VoteUpdate:
			res = VoteResult{Updated: true, Value: value}
			current.Value = value
			current.UpdatedAt = now
			return svc.repo.UpdateVote(ctx, current, tx)
		case VoteDelete:
			res = VoteResult{ToggledOff: true}
			return svc.repo.DeleteVote(ctx, current.ID, tx)
		}
		return nil
	})
	if err != nil {
		return VoteResult{}, err
	}
	return res, nil
}

// SetVote applies a vote operation: up, down or clear.
func (svc *Service) SetVote(ctx context.Context, p *access.Principal, reviewID, op string) (VoteResult, error) {
	value, err := ParseVoteOp(op)
	if err != nil {
		return VoteResult{}, err
	}
	return svc.Vote(ctx, p, reviewID, value)
}

// Admin

func (svc *Service) AdminQuery(ctx context.Context, filter AdminFilter, ordering []core.DBOrdering) (reviews []Review, total, pages int, err error) {
	filter.Clean()
	page := core.Page{Number: filter.Page, Size: AdminPageSize}
	reviews, total, err = svc.repo.QueryReviews(ctx, filter, ordering, page)
	if err != nil {
		return nil, 0, 0, errors.Wrap(err, "querying reviews")
	}
	return reviews, total, page.TotalPages(total), nil
}

func (svc *Service) AdminGet(ctx context.Context, id string) (Review, error) {
	return svc.get(ctx, id)
}

// AdminUpdate saves any field of a review from a validated AdminForm.
func (svc *Service) AdminUpdate(ctx context.Context, id string, form AdminForm) (Review, error) {
	r, err := svc.get(ctx, id)
	if err != nil {
		return Review{}, err
	}
	form.apply(&r)
	r.Status = form.Status
	r.UpdatedAt = core.Now()
	return svc.save(ctx, r, false, "")
}

func (svc *Service) AdminDelete(ctx context.Context, id string) error {
	if _, err := svc.get(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteReview(ctx, id, "")
}

// Approve publishes a review, e.g. one submitted by a device.
func (svc *Service) Approve(ctx context.Context, id string) error {
	return svc.setStatus(ctx, id, StatusPublished)
}

func (svc *Service) Reject(ctx context.Context, id string) error {
	return svc.setStatus(ctx, id, StatusRejected)
}

func (svc *Service) setStatus(ctx context.Context, id, status string) error {
	if _, err := svc.get(ctx, id); err != nil {
		return err
	}
	return svc.repo.SetReviewStatus(ctx, id, status)
}
