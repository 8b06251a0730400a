package lecture

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/careercompass/core"
)

// Statuses
const (
	StatusScheduled = "scheduled"
	StatusLive      = "live"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

var transitions = map[string][]string{
	StatusScheduled: {StatusLive, StatusCancelled},
	StatusLive:      {StatusCompleted},
}

// CanTransition reports whether a lecture may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type LiveLecture struct {
	ID              string    `json:"id"`
	CourseID        string    `json:"course_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	ScheduledAt     time.Time `json:"scheduled_at"` // UTC
	DurationMinutes int       `json:"duration"`
	MeetingURL      string    `json:"meeting_url"`
	Status          string    `json:"status"`
	RecordingURL    *string   `json:"recording_url"`
	InstructorID    string    `json:"instructor_id"`
	CreatedAt       time.Time `json:"created_at"` // UTC
}

// NewLiveLecture contains information needed to schedule a LiveLecture.
type NewLiveLecture struct {
	CourseID        string    `json:"course_id" validate:"required,uuid"`
	Title           string    `json:"title" validate:"required,max=200"`
	Description     string    `json:"description" validate:"max=5000"`
	ScheduledAt     time.Time `json:"scheduled_at" validate:"required"`
	DurationMinutes int       `json:"duration" validate:"required,min=1,max=1440"`
	MeetingURL      string    `json:"meeting_url" validate:"omitempty,url"`
}

func (nl *NewLiveLecture) Validate(validate *validator.Validate) error {
	nl.Title = core.CleanString(nl.Title)
	nl.Description = core.CleanString(nl.Description)
	nl.MeetingURL = core.CleanString(nl.MeetingURL)
	return validate.Struct(nl)
}

// UpdateLiveLecture defines what may be changed on a LiveLecture, including its status.
type UpdateLiveLecture struct {
	Title           *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description     *string    `json:"description" validate:"omitempty,max=5000"`
	ScheduledAt     *time.Time `json:"scheduled_at"`
	DurationMinutes *int       `json:"duration" validate:"omitempty,min=1,max=1440"`
	MeetingURL      *string    `json:"meeting_url" validate:"omitempty,url"`
	RecordingURL    *string    `json:"recording_url" validate:"omitempty,url"`
	Status          *string    `json:"status" validate:"omitempty,oneof=scheduled live completed cancelled"`
}

func (ul *UpdateLiveLecture) Validate(validate *validator.Validate) error {
	for _, s := range []*string{ul.Title, ul.Description, ul.MeetingURL, ul.RecordingURL, ul.Status} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	return validate.Struct(ul)
}

type Repository interface {
	CreateLecture(ctx context.Context, l LiveLecture) (LiveLecture, error)
	// GetLecture returns ErrNotFound when the lecture does not exist.
	GetLecture(ctx context.Context, id string) (LiveLecture, error)
	// ListLectures returns the lectures of a course, soonest first.
	ListLectures(ctx context.Context, courseID string) ([]LiveLecture, error)
	// ListUpcomingLectures returns the scheduled lectures starting at or after `from`, soonest first.
	ListUpcomingLectures(ctx context.Context, from time.Time) ([]LiveLecture, error)
	UpdateLecture(ctx context.Context, l LiveLecture) (LiveLecture, error)
	DeleteLecture(ctx context.Context, id string) error
}
