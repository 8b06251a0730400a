package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/careercompass/core/course"
	"github.com/trezcool/careercompass/core/enrollment"
)

type enrollmentRepository struct {
	db *DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil)

func NewEnrollmentRepository(db *DB) enrollment.Repository {
	return &enrollmentRepository{db: db}
}

func (repo *enrollmentRepository) find(userID, courseID string) (enrollment.Enrollment, bool) {
	for _, e := range repo.db.enrollments {
		if e.UserID == userID && e.CourseID == courseID {
			return e, true
		}
	}
	return enrollment.Enrollment{}, false
}

func (repo *enrollmentRepository) GetEnrollment(_ context.Context, userID, courseID string) (enrollment.Enrollment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if e, ok := repo.find(userID, courseID); ok {
		return e, nil
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}

func (repo *enrollmentRepository) ListEnrollments(_ context.Context, userID string) ([]enrollment.Enrollment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	enrollments := make([]enrollment.Enrollment, 0)
	for _, e := range repo.db.enrollments {
		if e.UserID == userID {
			enrollments = append(enrollments, e)
		}
	}
	sort.Slice(enrollments, func(i, j int) bool {
		return enrollments[i].PurchasedAt.After(enrollments[j].PurchasedAt)
	})
	return enrollments, nil
}

func (repo *enrollmentRepository) InsertEnrollment(_ context.Context, e enrollment.Enrollment) (enrollment.Enrollment, enrollment.InsertOutcome, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	c, ok := repo.db.courses[e.CourseID]
	if !ok {
		return enrollment.Enrollment{}, 0, course.ErrNotFound
	}
	if existing, ok := repo.find(e.UserID, e.CourseID); ok {
		return existing, enrollment.AlreadyExists, nil
	}

	repo.db.enrollments[e.ID] = e
	c.EnrollmentCount++
	repo.db.courses[c.ID] = c
	return e, enrollment.Created, nil
}
