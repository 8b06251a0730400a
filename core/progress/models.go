package progress

import (
	"context"
	"math"
	"time"

	"github.com/trezcool/careercompass/core/course"
	"github.com/trezcool/careercompass/core/enrollment"
)

// Progress is a user's completion record for one lesson.
// CompletedAt is set iff Completed.
type Progress struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	LessonID    string     `json:"lesson_id"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at"` // UTC
}

// Summary is the completion of a course by a user. It is derived, never stored.
type Summary struct {
	Percentage       int `json:"progress"` // 0-100
	CompletedLessons int `json:"completed_lessons"`
	TotalLessons     int `json:"total_lessons"`
}

// NewSummary rounds the share of completed lessons to a percentage. A course without lessons is at 0%.
func NewSummary(completed, total int) Summary {
	s := Summary{CompletedLessons: completed, TotalLessons: total}
	if total > 0 {
		s.Percentage = int(math.Round(100 * float64(completed) / float64(total)))
	}
	return s
}

func (s Summary) IsComplete() bool { return s.TotalLessons > 0 && s.CompletedLessons >= s.TotalLessons }

// EnrollmentProgress is an enrollment enriched for the student dashboard.
type EnrollmentProgress struct {
	Enrollment enrollment.Enrollment
	Course     course.Course
	Summary    Summary
}

type Repository interface {
	// GetProgress returns ErrNotFound when no row exists for the (user, lesson) pair.
	GetProgress(ctx context.Context, userID, lessonID string) (Progress, error)
	// ListProgress returns the user's rows for the given lessons.
	ListProgress(ctx context.Context, userID string, lessonIDs []string) ([]Progress, error)
	// UpsertProgress inserts the row or, when one exists for the (user, lesson) pair, updates it.
	// Concurrent upserts of the same pair never create two rows.
	// An already completed row keeps its original CompletedAt when completed again.
	// newlyCompleted reports whether this call moved the row from not completed to completed;
	// it is true for at most one of concurrent completions of the same pair.
	UpsertProgress(ctx context.Context, p Progress) (saved Progress, newlyCompleted bool, err error)
}
