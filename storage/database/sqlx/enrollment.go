package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/careercompass/core"
	"github.com/trezcool/careercompass/core/course"
	"github.com/trezcool/careercompass/core/enrollment"
	"github.com/trezcool/careercompass/storage/database"
)

const enrollmentColumns = "id, user_id, course_id, purchased_at, payment_reference"

type enrollmentRow struct {
	ID               string      `db:"id"`
	UserID           string      `db:"user_id"`
	CourseID         string      `db:"course_id"`
	PurchasedAt      time.Time   `db:"purchased_at"`
	PaymentReference null.String `db:"payment_reference"`
}

func (r enrollmentRow) enrollment() enrollment.Enrollment {
	return enrollment.Enrollment{
		ID:               r.ID,
		UserID:           r.UserID,
		CourseID:         r.CourseID,
		PurchasedAt:      r.PurchasedAt.UTC(),
		PaymentReference: r.PaymentReference.Ptr(),
	}
}

type enrollmentRepository struct {
	db core.DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db core.DB) enrollment.Repository {
	return &enrollmentRepository{db: db}
}

func (repo *enrollmentRepository) get(ctx context.Context, exec core.DBExecutor, userID, courseID string) (enrollment.Enrollment, error) {
	query := psql.Select(enrollmentColumns).From("enrollments").
		Where(sq.Eq{"user_id": userID, "course_id": courseID})

	var row enrollmentRow
	if err := getOne(ctx, exec, &row, query); err != nil {
		return enrollment.Enrollment{}, trapNoRows(err, enrollment.ErrNotFound, "getting enrollment")
	}
	return row.enrollment(), nil
}

func (repo *enrollmentRepository) GetEnrollment(ctx context.Context, userID, courseID string) (enrollment.Enrollment, error) {
	return repo.get(ctx, repo.db, userID, courseID)
}

func (repo *enrollmentRepository) ListEnrollments(ctx context.Context, userID string) ([]enrollment.Enrollment, error) {
	query := psql.Select(enrollmentColumns).From("enrollments").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("purchased_at DESC")

	var rows []enrollmentRow
	if err := selectAll(ctx, repo.db, &rows, query); err != nil {
		return nil, errors.Wrap(err, "listing enrollments")
	}
	enrollments := make([]enrollment.Enrollment, 0, len(rows))
	for _, r := range rows {
		enrollments = append(enrollments, r.enrollment())
	}
	return enrollments, nil
}

// InsertEnrollment relies on the (user_id, course_id) unique constraint: the losing side of a
// concurrent insert gets no row back from ON CONFLICT DO NOTHING and reads the winner's row instead.
func (repo *enrollmentRepository) InsertEnrollment(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, enrollment.InsertOutcome, error) {
	var (
		result  enrollment.Enrollment
		outcome enrollment.InsertOutcome
	)

	err := database.WithTx(ctx, repo.db, func(tx core.DBTransactor) error {
		insert := psql.Insert("enrollments").
			Columns("id", "user_id", "course_id", "purchased_at", "payment_reference").
			Values(e.ID, e.UserID, e.CourseID, e.PurchasedAt.UTC(), null.StringFromPtr(e.PaymentReference)).
			Suffix("ON CONFLICT (user_id, course_id) DO NOTHING RETURNING " + enrollmentColumns)

		var row enrollmentRow
		err := getOne(ctx, tx, &row, insert)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			existing, err := repo.get(ctx, tx, e.UserID, e.CourseID)
			if err != nil {
				return err
			}
			result, outcome = existing, enrollment.AlreadyExists
			return nil
		case database.IsForeignKeyViolation(err, "enrollments_course_id_fkey"):
			return course.ErrNotFound
		case err != nil:
			return errors.Wrap(err, "inserting enrollment")
		}

		update := psql.Update("courses").
			Set("enrollment_count", sq.Expr("enrollment_count + 1")).
			Where(sq.Eq{"id": e.CourseID})
		if err = execOne(ctx, tx, update, course.ErrNotFound); err != nil {
			return err
		}
		result, outcome = row.enrollment(), enrollment.Created
		return nil
	})
	if err != nil {
		return enrollment.Enrollment{}, 0, err
	}
	return result, outcome, nil
}
