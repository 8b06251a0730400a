// Package inmemdb is an in-memory implementation of every repository.
// It enforces the same uniqueness & cascade rules as the SQL schema and is safe for concurrent use.
package inmemdb

import (
	"sync"

	"github.com/trezcool/careercompass/core/course"
	"github.com/trezcool/careercompass/core/enrollment"
	"github.com/trezcool/careercompass/core/lecture"
	"github.com/trezcool/careercompass/core/progress"
	"github.com/trezcool/careercompass/core/user"
)

// DB holds all tables behind one lock, so multi-table writes are atomic.
type DB struct {
	mu          sync.RWMutex
	users       map[string]user.User
	courses     map[string]course.Course
	lessons     map[string]course.Lesson
	enrollments map[string]enrollment.Enrollment
	progress    map[string]progress.Progress
	lectures    map[string]lecture.LiveLecture
}

func NewDB() *DB {
	db := &DB{}
	db.Reset()
	return db
}

// Reset empties all tables.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.users = make(map[string]user.User)
	db.courses = make(map[string]course.Course)
	db.lessons = make(map[string]course.Lesson)
	db.enrollments = make(map[string]enrollment.Enrollment)
	db.progress = make(map[string]progress.Progress)
	db.lectures = make(map[string]lecture.LiveLecture)
}

// CountEnrollments returns the number of enrollment rows for the course.
func (db *DB) CountEnrollments(courseID string) int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.countEnrollments(courseID)
}

// CountProgress returns the number of progress rows for the (user, lesson) pair.
func (db *DB) CountProgress(userID, lessonID string) int {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var n int
	for _, p := range db.progress {
		if p.UserID == userID && p.LessonID == lessonID {
			n++
		}
	}
	return n
}

// SetEnrollmentCount overwrites the denormalized count of a course (drift simulation in tests).
func (db *DB) SetEnrollmentCount(courseID string, count int64) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if c, ok := db.courses[courseID]; ok {
		c.EnrollmentCount = count
		db.courses[courseID] = c
	}
}

func (db *DB) countEnrollments(courseID string) int {
	var n int
	for _, e := range db.enrollments {
		if e.CourseID == courseID {
			n++
		}
	}
	return n
}

// deleteCourse removes a course & everything referencing it. Caller holds the lock.
func (db *DB) deleteCourse(id string) {
	for lid, l := range db.lessons {
		if l.CourseID == id {
			db.deleteLesson(lid)
		}
	}
	for eid, e := range db.enrollments {
		if e.CourseID == id {
			delete(db.enrollments, eid)
		}
	}
	for lid, l := range db.lectures {
		if l.CourseID == id {
			delete(db.lectures, lid)
		}
	}
	delete(db.courses, id)
}

// deleteLesson removes a lesson & its progress rows. Caller holds the lock.
func (db *DB) deleteLesson(id string) {
	for pid, p := range db.progress {
		if p.LessonID == id {
			delete(db.progress, pid)
		}
	}
	delete(db.lessons, id)
}
