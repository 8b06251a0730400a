package course

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/pkg/errors"

	"github.com/trezcool/careercompass/core"
	"github.com/trezcool/careercompass/core/user"
)

const maxSlugAttempts = 50

var (
	// errors
	ErrNotFound         = errors.New("course not found")
	ErrLessonNotFound   = errors.New("lesson not found")
	ErrSlugExists       = errors.New("a course with this slug already exists")
	ErrLessonOrderTaken = errors.New("a lesson with this order index already exists in the course")
	ErrNotOwner         = errors.New("only the course instructor or an admin can manage this course")
)

type (
	Repository interface {
		// CreateCourse returns ErrSlugExists when the slug is already used.
		CreateCourse(ctx context.Context, c Course) (Course, error)
		GetCourse(ctx context.Context, filter GetFilter) (Course, error)
		QueryCourses(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		// UpdateCourse never changes the enrollment count.
		UpdateCourse(ctx context.Context, c Course) (Course, error)
		// DeleteCourse deletes the course and everything that belongs to it.
		DeleteCourse(ctx context.Context, id string) error
		// ReconcileEnrollmentCounts resets each course's enrollment count to its number of
		// enrollments, returning how many courses were out of sync.
		ReconcileEnrollmentCounts(ctx context.Context) (int64, error)

		// CreateLesson returns ErrLessonOrderTaken when the order index is already used in the course.
		CreateLesson(ctx context.Context, l Lesson) (Lesson, error)
		GetLesson(ctx context.Context, id string) (Lesson, error)
		// ListLessons returns the lessons of a course ordered by their order index.
		ListLessons(ctx context.Context, courseID string) ([]Lesson, error)
		UpdateLesson(ctx context.Context, l Lesson) (Lesson, error)
		DeleteLesson(ctx context.Context, id string) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CanManage reports whether usr may modify the course and its lessons.
func CanManage(usr user.User, c Course) bool {
	return usr.IsAdmin() || (usr.Can(user.CapManageCourses) && c.InstructorID == usr.ID)
}

func ratingFromInput(r float64) int {
	return int(math.Round(r * 10))
}

// Create creates a new course owned by the instructor. The slug is derived from the title.
func (svc *Service) Create(ctx context.Context, instructorID string, nc NewCourse) (Course, error) {
	now := time.Now().UTC()
	c := Course{
		ID:           uuid.NewString(),
		Title:        nc.Title,
		Description:  nc.Description,
		Category:     nc.Category,
		PriceInCents: nc.PriceInCents,
		Thumbnail:    nc.Thumbnail,
		InstructorID: instructorID,
		Published:    nc.Published,
		Rating:       ratingFromInput(nc.Rating),
		Duration:     nc.Duration,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	base := slug.Make(nc.Title)
	if base == "" {
		base = "course"
	}
	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		c.Slug = base
		if attempt > 1 {
			c.Slug = fmt.Sprintf("%s-%d", base, attempt)
		}
		created, err := svc.repo.CreateCourse(ctx, c)
		if errors.Cause(err) == ErrSlugExists {
			continue
		}
		return created, err
	}
	return Course{}, core.NewValidationError(ErrSlugExists, core.FieldError{Field: "title", Error: ErrSlugExists.Error()})
}

func (svc *Service) Get(ctx context.Context, filter GetFilter) (Course, error) {
	return svc.repo.GetCourse(ctx, filter)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, GetFilter{ID: id})
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error) {
	return svc.repo.QueryCourses(ctx, filter, ordering)
}

func (svc *Service) Update(ctx context.Context, c Course, uc UpdateCourse) (Course, error) {
	if uc.Title != nil {
		c.Title = *uc.Title
	}
	if uc.Description != nil {
		c.Description = *uc.Description
	}
	if uc.Category != nil {
		c.Category = *uc.Category
	}
	if uc.PriceInCents != nil {
		c.PriceInCents = *uc.PriceInCents
	}
	if uc.Thumbnail != nil {
		c.Thumbnail = *uc.Thumbnail
	}
	if uc.Published != nil {
		c.Published = *uc.Published
	}
	if uc.Rating != nil {
		c.Rating = ratingFromInput(*uc.Rating)
	}
	if uc.Duration != nil {
		c.Duration = *uc.Duration
	}
	c.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCourse(ctx, c)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteCourse(ctx, id)
}

// ReconcileEnrollmentCounts recomputes the denormalized enrollment counts from the enrollments.
func (svc *Service) ReconcileEnrollmentCounts(ctx context.Context) (int64, error) {
	return svc.repo.ReconcileEnrollmentCounts(ctx)
}

// Lessons

func lessonOrderErr() error {
	return core.NewValidationError(ErrLessonOrderTaken, core.FieldError{Field: "order_index", Error: ErrLessonOrderTaken.Error()})
}

func (svc *Service) CreateLesson(ctx context.Context, nl NewLesson) (Lesson, error) {
	l := Lesson{
		ID:          uuid.NewString(),
		CourseID:    nl.CourseID,
		Title:       nl.Title,
		VideoURL:    nl.VideoURL,
		OrderIndex:  nl.OrderIndex,
		Duration:    nl.Duration,
		Type:        nl.Type,
		Description: nl.Description,
		CreatedAt:   time.Now().UTC(),
	}
	created, err := svc.repo.CreateLesson(ctx, l)
	if errors.Cause(err) == ErrLessonOrderTaken {
		return Lesson{}, lessonOrderErr()
	}
	return created, err
}

func (svc *Service) GetLesson(ctx context.Context, id string) (Lesson, error) {
	return svc.repo.GetLesson(ctx, id)
}

func (svc *Service) ListLessons(ctx context.Context, courseID string) ([]Lesson, error) {
	return svc.repo.ListLessons(ctx, courseID)
}

func (svc *Service) UpdateLesson(ctx context.Context, l Lesson, ul UpdateLesson) (Lesson, error) {
	if ul.Title != nil {
		l.Title = *ul.Title
	}
	if ul.VideoURL != nil {
		l.VideoURL = *ul.VideoURL
	}
	if ul.OrderIndex != nil {
		l.OrderIndex = *ul.OrderIndex
	}
	if ul.Duration != nil {
		l.Duration = *ul.Duration
	}
	if ul.Type != nil {
		l.Type = *ul.Type
	}
	if ul.Description != nil {
		l.Description = *ul.Description
	}
	updated, err := svc.repo.UpdateLesson(ctx, l)
	if errors.Cause(err) == ErrLessonOrderTaken {
		return Lesson{}, lessonOrderErr()
	}
	return updated, err
}

func (svc *Service) DeleteLesson(ctx context.Context, id string) error {
	return svc.repo.DeleteLesson(ctx, id)
}
