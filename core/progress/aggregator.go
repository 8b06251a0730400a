package progress

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/careercompass/core"
	"github.com/trezcool/careercompass/core/course"
	"github.com/trezcool/careercompass/core/enrollment"
	"github.com/trezcool/careercompass/core/user"
)

const dashboardConcurrency = 8

var (
	// errors
	ErrNotFound       = errors.New("progress not found")
	ErrNotEnrolled    = errors.New("you must be enrolled in the course to track progress")
	ErrLessonNotFound = course.ErrLessonNotFound
)

type (
	Catalog interface {
		GetByID(ctx context.Context, id string) (course.Course, error)
		GetLesson(ctx context.Context, id string) (course.Lesson, error)
		ListLessons(ctx context.Context, courseID string) ([]course.Lesson, error)
	}

	Enrollments interface {
		Get(ctx context.Context, userID, courseID string) (enrollment.Enrollment, error)
		ListByUser(ctx context.Context, userID string) ([]enrollment.Enrollment, error)
	}

	UserFinder interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	AggregatorDeps struct {
		Repo        Repository
		Catalog     Catalog
		Enrollments Enrollments
		Users       UserFinder
		MailSvc     core.EmailService
		Logger      core.Logger
	}

	// Aggregator records lesson completions & derives course completion from them.
	Aggregator struct {
		repo        Repository
		catalog     Catalog
		enrollments Enrollments
		users       UserFinder
		mailSvc     core.EmailService
		logger      core.Logger
	}
)

func NewAggregator(deps AggregatorDeps) *Aggregator {
	return &Aggregator{
		repo:        deps.Repo,
		catalog:     deps.Catalog,
		enrollments: deps.Enrollments,
		users:       deps.Users,
		mailSvc:     deps.MailSvc,
		logger:      deps.Logger,
	}
}

// ComputeProgress derives the user's completion of the course from their lesson progress.
func (a *Aggregator) ComputeProgress(ctx context.Context, userID, courseID string) (Summary, error) {
	lessons, err := a.catalog.ListLessons(ctx, courseID)
	if err != nil {
		return Summary{}, errors.Wrap(err, "listing lessons")
	}
	if len(lessons) == 0 {
		return NewSummary(0, 0), nil
	}

	rows, err := a.repo.ListProgress(ctx, userID, lessonIDs(lessons))
	if err != nil {
		return Summary{}, errors.Wrap(err, "listing progress")
	}
	var completed int
	for _, p := range rows {
		if p.Completed {
			completed++
		}
	}
	return NewSummary(completed, len(lessons)), nil
}

// ListLessonProgress returns the user's progress rows for the lessons of the course.
func (a *Aggregator) ListLessonProgress(ctx context.Context, userID, courseID string) ([]Progress, error) {
	lessons, err := a.catalog.ListLessons(ctx, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "listing lessons")
	}
	if len(lessons) == 0 {
		return []Progress{}, nil
	}
	return a.repo.ListProgress(ctx, userID, lessonIDs(lessons))
}

// MarkLessonComplete records whether the user completed the lesson.
// The user must be enrolled in the lesson's course.
func (a *Aggregator) MarkLessonComplete(ctx context.Context, userID, lessonID string, completed bool) (Progress, error) {
	lesson, err := a.catalog.GetLesson(ctx, lessonID)
	if err != nil {
		if errors.Cause(err) == course.ErrLessonNotFound {
			return Progress{}, ErrLessonNotFound
		}
		return Progress{}, errors.Wrap(err, "getting lesson")
	}

	if _, err = a.enrollments.Get(ctx, userID, lesson.CourseID); err != nil {
		if errors.Cause(err) == enrollment.ErrNotFound {
			return Progress{}, ErrNotEnrolled
		}
		return Progress{}, errors.Wrap(err, "checking enrollment")
	}

	p := Progress{
		ID:        uuid.NewString(),
		UserID:    userID,
		LessonID:  lessonID,
		Completed: completed,
	}
	if completed {
		now := time.Now().UTC()
		p.CompletedAt = &now
	}
	saved, newlyCompleted, err := a.repo.UpsertProgress(ctx, p)
	if err != nil {
		return Progress{}, errors.Wrap(err, "upserting progress")
	}

	if newlyCompleted {
		a.notifyIfCourseCompleted(ctx, userID, lesson.CourseID)
	}
	return saved, nil
}

// ListEnrollments returns the user's enrollments with their course & completion.
func (a *Aggregator) ListEnrollments(ctx context.Context, userID string) ([]EnrollmentProgress, error) {
	enrs, err := a.enrollments.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "listing enrollments")
	}

	result := make([]EnrollmentProgress, len(enrs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(dashboardConcurrency)
	for i, enr := range enrs {
		i, enr := i, enr
		g.Go(func() error {
			crs, err := a.catalog.GetByID(gctx, enr.CourseID)
			if err != nil {
				return errors.Wrapf(err, "getting course %s", enr.CourseID)
			}
			summary, err := a.ComputeProgress(gctx, userID, enr.CourseID)
			if err != nil {
				return errors.Wrapf(err, "computing progress of course %s", enr.CourseID)
			}
			result[i] = EnrollmentProgress{Enrollment: enr, Course: crs, Summary: summary}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// notifyIfCourseCompleted congratulates the user once all lessons of the course are completed.
// Best-effort: failures are only logged.
func (a *Aggregator) notifyIfCourseCompleted(ctx context.Context, userID, courseID string) {
	if a.mailSvc == nil {
		return
	}
	summary, err := a.ComputeProgress(ctx, userID, courseID)
	if err != nil {
		a.logger.Error(fmt.Sprintf("computing progress for completion email: %v", err), err)
		return
	}
	if !summary.IsComplete() {
		return
	}

	crs, err := a.catalog.GetByID(ctx, courseID)
	if err != nil {
		a.logger.Error(fmt.Sprintf("getting course for completion email: %v", err), err)
		return
	}
	usr, err := a.users.GetByID(ctx, userID)
	if err != nil {
		a.logger.Error(fmt.Sprintf("getting user for completion email: %v", err), err)
		return
	}

	a.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      fmt.Sprintf("Congratulations! You've completed %s", crs.Title),
		TemplateName: "course_completion",
		TemplateData: struct {
			Name        string
			CourseTitle string
		}{Name: usr.Name, CourseTitle: crs.Title},
	})
}

func lessonIDs(lessons []course.Lesson) []string {
	ids := make([]string, 0, len(lessons))
	for _, l := range lessons {
		ids = append(ids, l.ID)
	}
	return ids
}
