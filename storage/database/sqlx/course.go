package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/trezcool/careercompass/core"
	"github.com/trezcool/careercompass/core/course"
	"github.com/trezcool/careercompass/storage/database"
)

const (
	courseColumns = "id, title, slug, description, category, price_in_cents, thumbnail, instructor_id, " +
		"published, rating, enrollment_count, duration, created_at, updated_at"
	lessonColumns = "id, course_id, title, video_url, order_index, duration, type, description, created_at"
)

type courseRow struct {
	ID              string    `db:"id"`
	Title           string    `db:"title"`
	Slug            string    `db:"slug"`
	Description     string    `db:"description"`
	Category        string    `db:"category"`
	PriceInCents    int64     `db:"price_in_cents"`
	Thumbnail       string    `db:"thumbnail"`
	InstructorID    string    `db:"instructor_id"`
	Published       bool      `db:"published"`
	Rating          int       `db:"rating"`
	EnrollmentCount int64     `db:"enrollment_count"`
	Duration        string    `db:"duration"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r courseRow) course() course.Course {
	return course.Course{
		ID:              r.ID,
		Title:           r.Title,
		Slug:            r.Slug,
		Description:     r.Description,
		Category:        r.Category,
		PriceInCents:    r.PriceInCents,
		Thumbnail:       r.Thumbnail,
		InstructorID:    r.InstructorID,
		Published:       r.Published,
		Rating:          r.Rating,
		EnrollmentCount: r.EnrollmentCount,
		Duration:        r.Duration,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

type lessonRow struct {
	ID          string    `db:"id"`
	CourseID    string    `db:"course_id"`
	Title       string    `db:"title"`
	VideoURL    string    `db:"video_url"`
	OrderIndex  int       `db:"order_index"`
	Duration    string    `db:"duration"`
	Type        string    `db:"type"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r lessonRow) lesson() course.Lesson {
	return course.Lesson{
		ID:          r.ID,
		CourseID:    r.CourseID,
		Title:       r.Title,
		VideoURL:    r.VideoURL,
		OrderIndex:  r.OrderIndex,
		Duration:    r.Duration,
		Type:        r.Type,
		Description: r.Description,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type courseRepository struct {
	db core.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db core.DB) course.Repository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	query := psql.Insert("courses").
		Columns("id", "title", "slug", "description", "category", "price_in_cents", "thumbnail",
			"instructor_id", "published", "rating", "enrollment_count", "duration", "created_at", "updated_at").
		Values(c.ID, c.Title, c.Slug, c.Description, c.Category, c.PriceInCents, c.Thumbnail,
			c.InstructorID, c.Published, c.Rating, 0, c.Duration, c.CreatedAt.UTC(), c.UpdatedAt.UTC()).
		Suffix("RETURNING " + courseColumns)

	var row courseRow
	if err := getOne(ctx, repo.db, &row, query); err != nil {
		if database.IsUniqueViolation(err, "courses_slug_key") {
			return course.Course{}, course.ErrSlugExists
		}
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return row.course(), nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, filter course.GetFilter) (course.Course, error) {
	query := psql.Select(courseColumns).From("courses")
	switch {
	case filter.ID != "":
		query = query.Where(sq.Eq{"id": filter.ID})
	case filter.Slug != "":
		query = query.Where(sq.Eq{"slug": filter.Slug})
	default:
		return course.Course{}, course.ErrNotFound
	}

	var row courseRow
	if err := getOne(ctx, repo.db, &row, query); err != nil {
		return course.Course{}, trapNoRows(err, course.ErrNotFound, "getting course")
	}
	return row.course(), nil
}

var courseOrderingFields = map[string]string{
	"title":            "title",
	"price":            "price_in_cents",
	"rating":           "rating",
	"enrollment_count": "enrollment_count",
	"created_at":       "created_at",
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering) ([]course.Course, error) {
	query := psql.Select(courseColumns).From("courses")
	if filter != nil {
		if filter.PublishedOnly {
			query = query.Where(sq.Eq{"published": true})
		}
		if filter.Category != "" {
			query = query.Where(sq.ILike{"category": filter.Category})
		}
		if filter.InstructorID != "" {
			query = query.Where(sq.Eq{"instructor_id": filter.InstructorID})
		}
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			query = query.Where(sq.Or{sq.ILike{"title": val}, sq.ILike{"description": val}})
		}
	}
	query = orderBy(query, ordering, courseOrderingFields, "created_at DESC")

	var rows []courseRow
	if err := selectAll(ctx, repo.db, &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, r := range rows {
		courses = append(courses, r.course())
	}
	return courses, nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	query := psql.Update("courses").
		SetMap(map[string]interface{}{
			"title":          c.Title,
			"slug":           c.Slug,
			"description":    c.Description,
			"category":       c.Category,
			"price_in_cents": c.PriceInCents,
			"thumbnail":      c.Thumbnail,
			"published":      c.Published,
			"rating":         c.Rating,
			"duration":       c.Duration,
			"updated_at":     c.UpdatedAt.UTC(),
		}).
		Where(sq.Eq{"id": c.ID}).
		Suffix("RETURNING " + courseColumns)

	var row courseRow
	if err := getOne(ctx, repo.db, &row, query); err != nil {
		if database.IsUniqueViolation(err, "courses_slug_key") {
			return course.Course{}, course.ErrSlugExists
		}
		return course.Course{}, trapNoRows(err, course.ErrNotFound, "updating course")
	}
	return row.course(), nil
}

func (repo *courseRepository) DeleteCourse(ctx context.Context, id string) error {
	err := execOne(ctx, repo.db, psql.Delete("courses").Where(sq.Eq{"id": id}), course.ErrNotFound)
	if err != nil && err != course.ErrNotFound {
		return errors.Wrap(err, "deleting course")
	}
	return err
}

// ReconcileEnrollmentCounts locks every course row before counting: an enrollment insert that
// already bumped its course's counter is committed (& counted) by then, and one that has not yet
// bumped it waits for the reconciliation to commit before incrementing.
func (repo *courseRepository) ReconcileEnrollmentCounts(ctx context.Context) (int64, error) {
	var fixed int64
	err := database.WithTx(ctx, repo.db, func(tx core.DBTransactor) error {
		if _, err := tx.ExecContext(ctx, "SELECT id FROM courses ORDER BY id FOR UPDATE"); err != nil {
			return errors.Wrap(err, "locking courses")
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE courses c SET enrollment_count = counts.n
			FROM (
				SELECT c2.id, COUNT(e.id) AS n
				FROM courses c2 LEFT JOIN enrollments e ON e.course_id = c2.id
				GROUP BY c2.id
			) counts
			WHERE c.id = counts.id AND c.enrollment_count <> counts.n`)
		if err != nil {
			return errors.Wrap(err, "reconciling enrollment counts")
		}
		if fixed, err = res.RowsAffected(); err != nil {
			return errors.Wrap(err, "reading affected rows")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return fixed, nil
}

// Lessons

func (repo *courseRepository) trapLessonErr(err error, msg string) error {
	switch {
	case database.IsUniqueViolation(err, "lessons_course_id_order_index_key"):
		return course.ErrLessonOrderTaken
	case database.IsForeignKeyViolation(err, "lessons_course_id_fkey"):
		return course.ErrNotFound
	}
	return trapNoRows(err, course.ErrLessonNotFound, msg)
}

func (repo *courseRepository) CreateLesson(ctx context.Context, l course.Lesson) (course.Lesson, error) {
	query := psql.Insert("lessons").
		Columns("id", "course_id", "title", "video_url", "order_index", "duration", "type", "description", "created_at").
		Values(l.ID, l.CourseID, l.Title, l.VideoURL, l.OrderIndex, l.Duration, l.Type, l.Description, l.CreatedAt.UTC()).
		Suffix("RETURNING " + lessonColumns)

	var row lessonRow
	if err := getOne(ctx, repo.db, &row, query); err != nil {
		return course.Lesson{}, repo.trapLessonErr(err, "inserting lesson")
	}
	return row.lesson(), nil
}

func (repo *courseRepository) GetLesson(ctx context.Context, id string) (course.Lesson, error) {
	var row lessonRow
	if err := getOne(ctx, repo.db, &row, psql.Select(lessonColumns).From("lessons").Where(sq.Eq{"id": id})); err != nil {
		return course.Lesson{}, trapNoRows(err, course.ErrLessonNotFound, "getting lesson")
	}
	return row.lesson(), nil
}

func (repo *courseRepository) ListLessons(ctx context.Context, courseID string) ([]course.Lesson, error) {
	query := psql.Select(lessonColumns).From("lessons").Where(sq.Eq{"course_id": courseID}).OrderBy("order_index")

	var rows []lessonRow
	if err := selectAll(ctx, repo.db, &rows, query); err != nil {
		return nil, errors.Wrap(err, "listing lessons")
	}
	lessons := make([]course.Lesson, 0, len(rows))
	for _, r := range rows {
		lessons = append(lessons, r.lesson())
	}
	return lessons, nil
}

func (repo *courseRepository) UpdateLesson(ctx context.Context, l course.Lesson) (course.Lesson, error) {
	query := psql.Update("lessons").
		SetMap(map[string]interface{}{
			"title":       l.Title,
			"video_url":   l.VideoURL,
			"order_index": l.OrderIndex,
			"duration":    l.Duration,
			"type":        l.Type,
			"description": l.Description,
		}).
		Where(sq.Eq{"id": l.ID}).
		Suffix("RETURNING " + lessonColumns)

	var row lessonRow
	if err := getOne(ctx, repo.db, &row, query); err != nil {
		return course.Lesson{}, repo.trapLessonErr(err, "updating lesson")
	}
	return row.lesson(), nil
}

func (repo *courseRepository) DeleteLesson(ctx context.Context, id string) error {
	err := execOne(ctx, repo.db, psql.Delete("lessons").Where(sq.Eq{"id": id}), course.ErrLessonNotFound)
	if err != nil && err != course.ErrLessonNotFound {
		return errors.Wrap(err, "deleting lesson")
	}
	return err
}
