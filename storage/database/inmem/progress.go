package inmemdb

import (
	"context"

	"github.com/trezcool/careercompass/core/progress"
)

type progressRepository struct {
	db *DB
}

var _ progress.Repository = (*progressRepository)(nil)

func NewProgressRepository(db *DB) progress.Repository {
	return &progressRepository{db: db}
}

func (repo *progressRepository) find(userID, lessonID string) (progress.Progress, bool) {
	for _, p := range repo.db.progress {
		if p.UserID == userID && p.LessonID == lessonID {
			return p, true
		}
	}
	return progress.Progress{}, false
}

func (repo *progressRepository) GetProgress(_ context.Context, userID, lessonID string) (progress.Progress, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if p, ok := repo.find(userID, lessonID); ok {
		return p, nil
	}
	return progress.Progress{}, progress.ErrNotFound
}

func (repo *progressRepository) ListProgress(_ context.Context, userID string, lessonIDs []string) ([]progress.Progress, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	wanted := make(map[string]struct{}, len(lessonIDs))
	for _, id := range lessonIDs {
		wanted[id] = struct{}{}
	}

	rows := make([]progress.Progress, 0)
	for _, p := range repo.db.progress {
		if _, ok := wanted[p.LessonID]; ok && p.UserID == userID {
			rows = append(rows, p)
		}
	}
	return rows, nil
}

func (repo *progressRepository) UpsertProgress(_ context.Context, p progress.Progress) (progress.Progress, bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var wasCompleted bool
	if existing, ok := repo.find(p.UserID, p.LessonID); ok {
		p.ID = existing.ID
		wasCompleted = existing.Completed
		if p.Completed && existing.Completed && existing.CompletedAt != nil {
			p.CompletedAt = existing.CompletedAt
		}
	}
	if !p.Completed {
		p.CompletedAt = nil
	}
	repo.db.progress[p.ID] = p
	return p, p.Completed && !wasCompleted, nil
}
