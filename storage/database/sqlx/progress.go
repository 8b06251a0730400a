package sqlxrepos

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/careercompass/core"
	"github.com/trezcool/careercompass/core/progress"
	"github.com/trezcool/careercompass/storage/database"
)

const progressColumns = "id, user_id, lesson_id, completed, completed_at"

type progressRow struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	LessonID    string    `db:"lesson_id"`
	Completed   bool      `db:"completed"`
	CompletedAt null.Time `db:"completed_at"`
}

func (r progressRow) progress() progress.Progress {
	p := progress.Progress{
		ID:        r.ID,
		UserID:    r.UserID,
		LessonID:  r.LessonID,
		Completed: r.Completed,
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time.UTC()
		p.CompletedAt = &t
	}
	return p
}

type progressRepository struct {
	db core.DB
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(db core.DB) progress.Repository {
	return &progressRepository{db: db}
}

func (repo *progressRepository) GetProgress(ctx context.Context, userID, lessonID string) (progress.Progress, error) {
	query := psql.Select(progressColumns).From("progress").Where(sq.Eq{"user_id": userID, "lesson_id": lessonID})

	var row progressRow
	if err := getOne(ctx, repo.db, &row, query); err != nil {
		return progress.Progress{}, trapNoRows(err, progress.ErrNotFound, "getting progress")
	}
	return row.progress(), nil
}

func (repo *progressRepository) ListProgress(ctx context.Context, userID string, lessonIDs []string) ([]progress.Progress, error) {
	if len(lessonIDs) == 0 {
		return []progress.Progress{}, nil
	}
	query := psql.Select(progressColumns).From("progress").Where(sq.Eq{"user_id": userID, "lesson_id": lessonIDs})

	var rows []progressRow
	if err := selectAll(ctx, repo.db, &rows, query); err != nil {
		return nil, errors.Wrap(err, "listing progress")
	}
	list := make([]progress.Progress, 0, len(rows))
	for _, r := range rows {
		list = append(list, r.progress())
	}
	return list, nil
}

// UpsertProgress relies on the (user_id, lesson_id) unique constraint: an insert losing the race
// gets no row back from ON CONFLICT DO NOTHING, then locks the winner's row before updating it.
// newlyCompleted is therefore true for at most one of concurrent completions of the same pair.
func (repo *progressRepository) UpsertProgress(ctx context.Context, p progress.Progress) (progress.Progress, bool, error) {
	completedAt := null.TimeFromPtr(p.CompletedAt)
	if !p.Completed {
		completedAt = null.Time{}
	}

	var (
		saved          progress.Progress
		newlyCompleted bool
	)
	err := database.WithTx(ctx, repo.db, func(tx core.DBTransactor) error {
		insert := psql.Insert("progress").
			Columns("id", "user_id", "lesson_id", "completed", "completed_at").
			Values(p.ID, p.UserID, p.LessonID, p.Completed, completedAt).
			Suffix("ON CONFLICT (user_id, lesson_id) DO NOTHING RETURNING " + progressColumns)

		var row progressRow
		err := getOne(ctx, tx, &row, insert)
		switch {
		case err == nil:
			saved, newlyCompleted = row.progress(), p.Completed
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return errors.Wrap(err, "inserting progress")
		}

		var prev progressRow
		lock := psql.Select(progressColumns).From("progress").
			Where(sq.Eq{"user_id": p.UserID, "lesson_id": p.LessonID}).
			Suffix("FOR UPDATE")
		if err = getOne(ctx, tx, &prev, lock); err != nil {
			return errors.Wrap(err, "locking progress")
		}
		if p.Completed && prev.Completed && prev.CompletedAt.Valid {
			completedAt = prev.CompletedAt
		}

		update := psql.Update("progress").
			Set("completed", p.Completed).
			Set("completed_at", completedAt).
			Where(sq.Eq{"id": prev.ID}).
			Suffix("RETURNING " + progressColumns)
		if err = getOne(ctx, tx, &row, update); err != nil {
			return errors.Wrap(err, "updating progress")
		}
		saved, newlyCompleted = row.progress(), p.Completed && !prev.Completed
		return nil
	})
	if err != nil {
		return progress.Progress{}, false, err
	}
	return saved, newlyCompleted, nil
}
