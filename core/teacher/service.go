package teacher

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/rmtbiph/ratemyteacher/core"
)

var (
	// errors
	ErrNotFound   = errors.New("teacher not found")
	ErrHasReviews = errors.New("this teacher still has reviews; delete them first")
)

type (
	Repository interface {
		CreateTeacher(ctx context.Context, t Teacher, exec ...core.DBExecutor) (Teacher, error)
		UpdateTeacher(ctx context.Context, t Teacher, exec ...core.DBExecutor) (Teacher, error)
		SetTeacherSubjects(ctx context.Context, teacherID string, subjects []string, exec ...core.DBExecutor) error
		// DeleteTeacher returns ErrHasReviews while reviews reference the teacher.
		DeleteTeacher(ctx context.Context, id string, exec ...core.DBExecutor) error
		GetTeacher(ctx context.Context, id string, exec ...core.DBExecutor) (Teacher, error)
		FindTeacherByName(ctx context.Context, fullName string, exec ...core.DBExecutor) (Teacher, error)

		// ListTeachers returns one page of teachers ordered by review count desc then name, and the total count.
		ListTeachers(ctx context.Context, filter Filter, page core.Page) ([]ListItem, int, error)
		GetListItem(ctx context.Context, id string) (ListItem, error)
		ListSubjects(ctx context.Context) ([]string, error)
		QualityDistribution(ctx context.Context, id string) (Distribution, error)
		TopTags(ctx context.Context, id string, limit int) ([]TagCount, error)
		CourseOptions(ctx context.Context, id string) ([]string, error)
	}

	Service struct {
		db   core.DB
		repo Repository
	}
)

func NewService(db core.DB, repo Repository) *Service {
	return &Service{db: db, repo: repo}
}

// List returns the requested page of teachers, the total number of matches and the number of pages.
func (svc *Service) List(ctx context.Context, filter Filter) (items []ListItem, total, pages int, err error) {
	filter.Clean()
	page := core.Page{Number: filter.Page, Size: PageSize}
	items, total, err = svc.repo.ListTeachers(ctx, filter, page)
	if err != nil {
		return nil, 0, 0, errors.Wrap(err, "listing teachers")
	}
	return items, total, page.TotalPages(total), nil
}

func (svc *Service) Subjects(ctx context.Context) ([]string, error) {
	return svc.repo.ListSubjects(ctx)
}

func (svc *Service) Get(ctx context.Context, id string) (Teacher, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Teacher{}, ErrNotFound
	}
	return svc.repo.GetTeacher(ctx, id)
}

func (svc *Service) Detail(ctx context.Context, id string) (Detail, error) {
	t, err := svc.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}

	d := Detail{Teacher: t, Subjects: t.SubjectOptions()}
	if d.ListItem, err = svc.repo.GetListItem(ctx, id); err != nil {
		return Detail{}, errors.Wrap(err, "aggregating reviews")
	}
	if d.Distribution, err = svc.repo.QualityDistribution(ctx, id); err != nil {
		return Detail{}, errors.Wrap(err, "computing distribution")
	}
	if d.TopTags, err = svc.repo.TopTags(ctx, id, TopTagLimit); err != nil {
		return Detail{}, errors.Wrap(err, "counting tags")
	}
	if d.Courses, err = svc.repo.CourseOptions(ctx, id); err != nil {
		return Detail{}, errors.Wrap(err, "listing courses")
	}
	return d, nil
}

// Create saves a teacher from a validated Form.
func (svc *Service) Create(ctx context.Context, form Form) (Teacher, error) {
	now := core.Now()
	t := Teacher{
		ID:        uuid.NewString(),
		FullName:  form.FullName,
		Subject:   primarySubject(form.Subjects),
		Subjects:  form.Subjects,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if t, err = svc.repo.CreateTeacher(ctx, t, tx); err != nil {
			return errors.Wrap(err, "creating teacher")
		}
		return errors.Wrap(svc.repo.SetTeacherSubjects(ctx, t.ID, t.Subjects, tx), "setting subjects")
	})
	if err != nil {
		return Teacher{}, err
	}
	return t, nil
}

// Update replaces the name and subjects of a teacher from a validated Form.
func (svc *Service) Update(ctx context.Context, id string, form Form) (Teacher, error) {
	t, err := svc.Get(ctx, id)
	if err != nil {
		return Teacher{}, err
	}
	t.FullName = form.FullName
	t.Subject = primarySubject(form.Subjects)
	t.Subjects = form.Subjects
	t.UpdatedAt = core.Now()

	err = core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if t, err = svc.repo.UpdateTeacher(ctx, t, tx); err != nil {
			return errors.Wrap(err, "updating teacher")
		}
		return errors.Wrap(svc.repo.SetTeacherSubjects(ctx, t.ID, t.Subjects, tx), "setting subjects")
	})
	if err != nil {
		return Teacher{}, err
	}
	return t, nil
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	if _, err := svc.Get(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteTeacher(ctx, id)
}

// Import creates the teachers of records whose name is not taken yet.
func (svc *Service) Import(ctx context.Context, validate *validator.Validate, records []ImportRecord) (created, skipped int, err error) {
	for i, rec := range records {
		form := Form{FullName: rec.Name, SubjectsCSV: strings.Join(rec.Subjects, subjectSeps)}
		if err = form.Validate(validate); err != nil {
			return created, skipped, errors.Wrapf(err, "record %d (%q)", i+1, rec.Name)
		}

		_, err = svc.repo.FindTeacherByName(ctx, form.FullName)
		switch errors.Cause(err) {
		case nil:
			skipped++
			continue
		case ErrNotFound:
		default:
			return created, skipped, errors.Wrap(err, "finding teacher by name")
		}

		if _, err = svc.Create(ctx, form); err != nil {
			return created, skipped, err
		}
		created++
	}
	return created, skipped, nil
}

func primarySubject(subjects []string) null.String {
	if len(subjects) == 0 {
		return null.String{}
	}
	return null.StringFrom(subjects[0])
}
