package lecture

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	// errors
	ErrNotFound          = errors.New("live lecture not found")
	ErrInvalidTransition = errors.New("invalid live lecture status transition")
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create schedules a new lecture for a course.
func (svc *Service) Create(ctx context.Context, instructorID string, nl NewLiveLecture) (LiveLecture, error) {
	l := LiveLecture{
		ID:              uuid.NewString(),
		CourseID:        nl.CourseID,
		Title:           nl.Title,
		Description:     nl.Description,
		ScheduledAt:     nl.ScheduledAt.UTC(),
		DurationMinutes: nl.DurationMinutes,
		MeetingURL:      nl.MeetingURL,
		Status:          StatusScheduled,
		InstructorID:    instructorID,
		CreatedAt:       time.Now().UTC(),
	}
	return svc.repo.CreateLecture(ctx, l)
}

func (svc *Service) Get(ctx context.Context, id string) (LiveLecture, error) {
	return svc.repo.GetLecture(ctx, id)
}

func (svc *Service) ListByCourse(ctx context.Context, courseID string) ([]LiveLecture, error) {
	return svc.repo.ListLectures(ctx, courseID)
}

func (svc *Service) ListUpcoming(ctx context.Context, now time.Time) ([]LiveLecture, error) {
	return svc.repo.ListUpcomingLectures(ctx, now.UTC())
}

// Update changes the lecture's fields and, when a new status is given, moves it along
// scheduled → live → completed or scheduled → cancelled.
func (svc *Service) Update(ctx context.Context, l LiveLecture, ul UpdateLiveLecture) (LiveLecture, error) {
	if ul.Status != nil && *ul.Status != l.Status {
		if !CanTransition(l.Status, *ul.Status) {
			return LiveLecture{}, errors.Wrapf(ErrInvalidTransition, "%s → %s", l.Status, *ul.Status)
		}
		l.Status = *ul.Status
	}
	if ul.Title != nil {
		l.Title = *ul.Title
	}
	if ul.Description != nil {
		l.Description = *ul.Description
	}
	if ul.ScheduledAt != nil {
		l.ScheduledAt = ul.ScheduledAt.UTC()
	}
	if ul.DurationMinutes != nil {
		l.DurationMinutes = *ul.DurationMinutes
	}
	if ul.MeetingURL != nil {
		l.MeetingURL = *ul.MeetingURL
	}
	if ul.RecordingURL != nil {
		rec := *ul.RecordingURL
		l.RecordingURL = &rec
	}
	return svc.repo.UpdateLecture(ctx, l)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteLecture(ctx, id)
}
