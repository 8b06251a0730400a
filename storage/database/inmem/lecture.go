package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/careercompass/core/course"
	"github.com/trezcool/careercompass/core/lecture"
)

type lectureRepository struct {
	db *DB
}

var _ lecture.Repository = (*lectureRepository)(nil)

func NewLectureRepository(db *DB) lecture.Repository {
	return &lectureRepository{db: db}
}

func (repo *lectureRepository) CreateLecture(_ context.Context, l lecture.LiveLecture) (lecture.LiveLecture, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.courses[l.CourseID]; !ok {
		return lecture.LiveLecture{}, course.ErrNotFound
	}
	repo.db.lectures[l.ID] = l
	return l, nil
}

func (repo *lectureRepository) GetLecture(_ context.Context, id string) (lecture.LiveLecture, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if l, ok := repo.db.lectures[id]; ok {
		return l, nil
	}
	return lecture.LiveLecture{}, lecture.ErrNotFound
}

func (repo *lectureRepository) ListLectures(_ context.Context, courseID string) ([]lecture.LiveLecture, error) {
	return repo.list(func(l lecture.LiveLecture) bool { return l.CourseID == courseID }), nil
}

func (repo *lectureRepository) ListUpcomingLectures(_ context.Context, from time.Time) ([]lecture.LiveLecture, error) {
	return repo.list(func(l lecture.LiveLecture) bool {
		return l.Status == lecture.StatusScheduled && !l.ScheduledAt.Before(from)
	}), nil
}

func (repo *lectureRepository) list(keep func(lecture.LiveLecture) bool) []lecture.LiveLecture {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	lectures := make([]lecture.LiveLecture, 0)
	for _, l := range repo.db.lectures {
		if keep(l) {
			lectures = append(lectures, l)
		}
	}
	sort.Slice(lectures, func(i, j int) bool { return lectures[i].ScheduledAt.Before(lectures[j].ScheduledAt) })
	return lectures
}

func (repo *lectureRepository) UpdateLecture(_ context.Context, l lecture.LiveLecture) (lecture.LiveLecture, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	existing, ok := repo.db.lectures[l.ID]
	if !ok {
		return lecture.LiveLecture{}, lecture.ErrNotFound
	}
	l.CourseID = existing.CourseID
	l.CreatedAt = existing.CreatedAt
	repo.db.lectures[l.ID] = l
	return l, nil
}

func (repo *lectureRepository) DeleteLecture(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.lectures[id]; !ok {
		return lecture.ErrNotFound
	}
	delete(repo.db.lectures, id)
	return nil
}
