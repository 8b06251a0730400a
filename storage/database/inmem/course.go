package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/careercompass/core"
	"github.com/trezcool/careercompass/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, existing := range repo.db.courses {
		if existing.Slug == c.Slug {
			return course.Course{}, course.ErrSlugExists
		}
	}
	c.EnrollmentCount = 0
	repo.db.courses[c.ID] = c
	return c, nil
}

func (repo *courseRepository) GetCourse(_ context.Context, filter course.GetFilter) (course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if c, ok := repo.db.courses[filter.ID]; ok {
			return c, nil
		}
		return course.Course{}, course.ErrNotFound
	}
	if filter.Slug != "" {
		for _, c := range repo.db.courses {
			if c.Slug == filter.Slug {
				return c, nil
			}
		}
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) QueryCourses(_ context.Context, filter *course.QueryFilter, ordering []core.DBOrdering) ([]course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	courses := make([]course.Course, 0, len(repo.db.courses))
	search := strings.ToLower(filter.Search)
	for _, c := range repo.db.courses {
		if filter.PublishedOnly && !c.Published {
			continue
		}
		if filter.Category != "" && !strings.EqualFold(c.Category, filter.Category) {
			continue
		}
		if filter.InstructorID != "" && c.InstructorID != filter.InstructorID {
			continue
		}
		if search != "" &&
			!(strings.Contains(strings.ToLower(c.Title), search) || strings.Contains(strings.ToLower(c.Description), search)) {
			continue
		}
		courses = append(courses, c)
	}

	ordering = append(core.CleanOrderings(ordering, CourseOrderingFields), core.DBOrdering{Field: "created_at"})
	sort.SliceStable(courses, func(i, j int) bool {
		for _, ord := range ordering {
			if c := compareCourses(courses[i], courses[j], ord.Field); c != 0 {
				return (c < 0) == ord.Ascending
			}
		}
		return false
	})
	return courses, nil
}

func (repo *courseRepository) UpdateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	existing, ok := repo.db.courses[c.ID]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	for _, other := range repo.db.courses {
		if other.ID != c.ID && other.Slug == c.Slug {
			return course.Course{}, course.ErrSlugExists
		}
	}
	c.EnrollmentCount = existing.EnrollmentCount
	c.CreatedAt = existing.CreatedAt
	repo.db.courses[c.ID] = c
	return c, nil
}

func (repo *courseRepository) DeleteCourse(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.courses[id]; !ok {
		return course.ErrNotFound
	}
	repo.db.deleteCourse(id)
	return nil
}

func (repo *courseRepository) ReconcileEnrollmentCounts(_ context.Context) (int64, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var fixed int64
	for id, c := range repo.db.courses {
		if n := int64(repo.db.countEnrollments(id)); c.EnrollmentCount != n {
			c.EnrollmentCount = n
			repo.db.courses[id] = c
			fixed++
		}
	}
	return fixed, nil
}

// Lessons

func (repo *courseRepository) checkLessonOrder(l course.Lesson) error {
	for _, other := range repo.db.lessons {
		if other.ID != l.ID && other.CourseID == l.CourseID && other.OrderIndex == l.OrderIndex {
			return course.ErrLessonOrderTaken
		}
	}
	return nil
}

func (repo *courseRepository) CreateLesson(_ context.Context, l course.Lesson) (course.Lesson, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.courses[l.CourseID]; !ok {
		return course.Lesson{}, course.ErrNotFound
	}
	if err := repo.checkLessonOrder(l); err != nil {
		return course.Lesson{}, err
	}
	repo.db.lessons[l.ID] = l
	return l, nil
}

func (repo *courseRepository) GetLesson(_ context.Context, id string) (course.Lesson, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if l, ok := repo.db.lessons[id]; ok {
		return l, nil
	}
	return course.Lesson{}, course.ErrLessonNotFound
}

func (repo *courseRepository) ListLessons(_ context.Context, courseID string) ([]course.Lesson, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	lessons := make([]course.Lesson, 0)
	for _, l := range repo.db.lessons {
		if l.CourseID == courseID {
			lessons = append(lessons, l)
		}
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].OrderIndex < lessons[j].OrderIndex })
	return lessons, nil
}

func (repo *courseRepository) UpdateLesson(_ context.Context, l course.Lesson) (course.Lesson, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	existing, ok := repo.db.lessons[l.ID]
	if !ok {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	l.CourseID = existing.CourseID
	l.CreatedAt = existing.CreatedAt
	if err := repo.checkLessonOrder(l); err != nil {
		return course.Lesson{}, err
	}
	repo.db.lessons[l.ID] = l
	return l, nil
}

func (repo *courseRepository) DeleteLesson(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.lessons[id]; !ok {
		return course.ErrLessonNotFound
	}
	repo.db.deleteLesson(id)
	return nil
}

// CourseOrderingFields maps the allowed `ordering` values to their columns.
var CourseOrderingFields = map[string]string{
	"title":            "title",
	"price":            "price_in_cents",
	"rating":           "rating",
	"enrollment_count": "enrollment_count",
	"created_at":       "created_at",
}

func compareCourses(a, b course.Course, field string) int {
	switch field {
	case "title":
		return strings.Compare(a.Title, b.Title)
	case "price_in_cents":
		return compareInts(a.PriceInCents, b.PriceInCents)
	case "rating":
		return compareInts(int64(a.Rating), int64(b.Rating))
	case "enrollment_count":
		return compareInts(a.EnrollmentCount, b.EnrollmentCount)
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	}
	return 0
}

func compareInts(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}
