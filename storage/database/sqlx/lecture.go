package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/careercompass/core"
	"github.com/trezcool/careercompass/core/course"
	"github.com/trezcool/careercompass/core/lecture"
	"github.com/trezcool/careercompass/storage/database"
)

const lectureColumns = "id, course_id, title, description, scheduled_at, duration_minutes, meeting_url, " +
	"status, recording_url, instructor_id, created_at"

type lectureRow struct {
	ID              string      `db:"id"`
	CourseID        string      `db:"course_id"`
	Title           string      `db:"title"`
	Description     string      `db:"description"`
	ScheduledAt     time.Time   `db:"scheduled_at"`
	DurationMinutes int         `db:"duration_minutes"`
	MeetingURL      string      `db:"meeting_url"`
	Status          string      `db:"status"`
	RecordingURL    null.String `db:"recording_url"`
	InstructorID    string      `db:"instructor_id"`
	CreatedAt       time.Time   `db:"created_at"`
}

func (r lectureRow) lecture() lecture.LiveLecture {
	return lecture.LiveLecture{
		ID:              r.ID,
		CourseID:        r.CourseID,
		Title:           r.Title,
		Description:     r.Description,
		ScheduledAt:     r.ScheduledAt.UTC(),
		DurationMinutes: r.DurationMinutes,
		MeetingURL:      r.MeetingURL,
		Status:          r.Status,
		RecordingURL:    r.RecordingURL.Ptr(),
		InstructorID:    r.InstructorID,
		CreatedAt:       r.CreatedAt.UTC(),
	}
}

type lectureRepository struct {
	db core.DB
}

var _ lecture.Repository = (*lectureRepository)(nil) // interface compliance check

func NewLectureRepository(db core.DB) lecture.Repository {
	return &lectureRepository{db: db}
}

func (repo *lectureRepository) CreateLecture(ctx context.Context, l lecture.LiveLecture) (lecture.LiveLecture, error) {
	query := psql.Insert("live_lectures").
		Columns("id", "course_id", "title", "description", "scheduled_at", "duration_minutes", "meeting_url",
			"status", "recording_url", "instructor_id", "created_at").
		Values(l.ID, l.CourseID, l.Title, l.Description, l.ScheduledAt.UTC(), l.DurationMinutes, l.MeetingURL,
			l.Status, null.StringFromPtr(l.RecordingURL), l.InstructorID, l.CreatedAt.UTC()).
		Suffix("RETURNING " + lectureColumns)

	var row lectureRow
	if err := getOne(ctx, repo.db, &row, query); err != nil {
		if database.IsForeignKeyViolation(err, "live_lectures_course_id_fkey") {
			return lecture.LiveLecture{}, course.ErrNotFound
		}
		return lecture.LiveLecture{}, errors.Wrap(err, "inserting live lecture")
	}
	return row.lecture(), nil
}

func (repo *lectureRepository) GetLecture(ctx context.Context, id string) (lecture.LiveLecture, error) {
	var row lectureRow
	if err := getOne(ctx, repo.db, &row, psql.Select(lectureColumns).From("live_lectures").Where(sq.Eq{"id": id})); err != nil {
		return lecture.LiveLecture{}, trapNoRows(err, lecture.ErrNotFound, "getting live lecture")
	}
	return row.lecture(), nil
}

func (repo *lectureRepository) list(ctx context.Context, where sq.Sqlizer) ([]lecture.LiveLecture, error) {
	query := psql.Select(lectureColumns).From("live_lectures").Where(where).OrderBy("scheduled_at")

	var rows []lectureRow
	if err := selectAll(ctx, repo.db, &rows, query); err != nil {
		return nil, errors.Wrap(err, "listing live lectures")
	}
	lectures := make([]lecture.LiveLecture, 0, len(rows))
	for _, r := range rows {
		lectures = append(lectures, r.lecture())
	}
	return lectures, nil
}

func (repo *lectureRepository) ListLectures(ctx context.Context, courseID string) ([]lecture.LiveLecture, error) {
	return repo.list(ctx, sq.Eq{"course_id": courseID})
}

func (repo *lectureRepository) ListUpcomingLectures(ctx context.Context, from time.Time) ([]lecture.LiveLecture, error) {
	return repo.list(ctx, sq.And{sq.Eq{"status": lecture.StatusScheduled}, sq.GtOrEq{"scheduled_at": from.UTC()}})
}

func (repo *lectureRepository) UpdateLecture(ctx context.Context, l lecture.LiveLecture) (lecture.LiveLecture, error) {
	query := psql.Update("live_lectures").
		SetMap(map[string]interface{}{
			"title":            l.Title,
			"description":      l.Description,
			"scheduled_at":     l.ScheduledAt.UTC(),
			"duration_minutes": l.DurationMinutes,
			"meeting_url":      l.MeetingURL,
			"status":           l.Status,
			"recording_url":    null.StringFromPtr(l.RecordingURL),
		}).
		Where(sq.Eq{"id": l.ID}).
		Suffix("RETURNING " + lectureColumns)

	var row lectureRow
	if err := getOne(ctx, repo.db, &row, query); err != nil {
		return lecture.LiveLecture{}, trapNoRows(err, lecture.ErrNotFound, "updating live lecture")
	}
	return row.lecture(), nil
}

func (repo *lectureRepository) DeleteLecture(ctx context.Context, id string) error {
	err := execOne(ctx, repo.db, psql.Delete("live_lectures").Where(sq.Eq{"id": id}), lecture.ErrNotFound)
	if err != nil && err != lecture.ErrNotFound {
		return errors.Wrap(err, "deleting live lecture")
	}
	return err
}
