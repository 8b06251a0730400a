package progress_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/careercompass/core/course"
	"github.com/trezcool/careercompass/core/enrollment"
	"github.com/trezcool/careercompass/core/progress"
	"github.com/trezcool/careercompass/core/user"
	emailsvc "github.com/trezcool/careercompass/services/email"
	inmemdb "github.com/trezcool/careercompass/storage/database/inmem"
	"github.com/trezcool/careercompass/tests"
)

var (
	db         *inmemdb.DB
	courseRepo course.Repository
	enrRepo    enrollment.Repository
	student    user.User
	instructor user.User
)

func setup(t *testing.T) *progress.Aggregator {
	conf := testutil.NewConfig()
	logger := &testutil.Logger{}
	db = inmemdb.NewDB()
	usrRepo := inmemdb.NewUserRepository(db)
	courseRepo = inmemdb.NewCourseRepository(db)
	enrRepo = inmemdb.NewEnrollmentRepository(db)
	emailsvc.ClearSentMessages()

	courseSvc := course.NewService(courseRepo)
	usrSvc := user.NewService(usrRepo, nil, conf)
	engine := enrollment.NewEngine(enrollment.EngineDeps{
		Repo:    enrRepo,
		Courses: courseSvc,
		Users:   usrSvc,
		Logger:  logger,
		Conf:    conf,
	})

	student = testutil.CreateUser(t, usrRepo, "Student", "student@test.cd", "", user.RoleStudent, true)
	instructor = testutil.CreateUser(t, usrRepo, "Prof", "prof@test.cd", "", user.RoleInstructor, true)

	return progress.NewAggregator(progress.AggregatorDeps{
		Repo:        inmemdb.NewProgressRepository(db),
		Catalog:     courseSvc,
		Enrollments: engine,
		Users:       usrSvc,
		MailSvc:     emailsvc.NewConsoleServiceMock(conf, logger),
		Logger:      logger,
	})
}

func enroll(t *testing.T, userID, courseID string, purchasedAt time.Time) {
	_, _, err := enrRepo.InsertEnrollment(context.Background(), enrollment.Enrollment{
		ID:          uuid.NewString(),
		UserID:      userID,
		CourseID:    courseID,
		PurchasedAt: purchasedAt.UTC(),
	})
	require.NoError(t, err)
}

func courseWithLessons(t *testing.T, title string, n int) (course.Course, []course.Lesson) {
	crs := testutil.CreateCourse(t, courseRepo, instructor.ID, title, 0, true)
	lessons := make([]course.Lesson, n)
	for i := range lessons {
		lessons[i] = testutil.CreateLesson(t, courseRepo, crs.ID, "Lesson", i+1)
	}
	return crs, lessons
}

func TestNewSummary(t *testing.T) {
	tests := []struct {
		completed, total int
		want             int
		wantComplete     bool
	}{
		{0, 0, 0, false},
		{0, 4, 0, false},
		{1, 3, 33, false},
		{2, 3, 67, false},
		{2, 4, 50, false},
		{4, 4, 100, true},
	}
	for _, tt := range tests {
		s := progress.NewSummary(tt.completed, tt.total)
		assert.Equal(t, tt.want, s.Percentage, "%d/%d", tt.completed, tt.total)
		assert.Equal(t, tt.wantComplete, s.IsComplete(), "%d/%d", tt.completed, tt.total)
	}
}

func TestAggregator_ComputeProgress(t *testing.T) {
	agg := setup(t)
	ctx := context.Background()

	empty, _ := courseWithLessons(t, "Empty", 0)
	enroll(t, student.ID, empty.ID, time.Now())
	got, err := agg.ComputeProgress(ctx, student.ID, empty.ID)
	require.NoError(t, err)
	assert.Equal(t, progress.Summary{}, got)

	crs, lessons := courseWithLessons(t, "Go 101", 4)
	enroll(t, student.ID, crs.ID, time.Now())
	for _, l := range lessons[:2] {
		_, err = agg.MarkLessonComplete(ctx, student.ID, l.ID, true)
		require.NoError(t, err)
	}
	got, err = agg.ComputeProgress(ctx, student.ID, crs.ID)
	require.NoError(t, err)
	assert.Equal(t, progress.Summary{Percentage: 50, CompletedLessons: 2, TotalLessons: 4}, got)
	assert.Empty(t, emailsvc.SentMessages())

	// an uncompleted row does not count
	_, err = agg.MarkLessonComplete(ctx, student.ID, lessons[1].ID, false)
	require.NoError(t, err)
	got, err = agg.ComputeProgress(ctx, student.ID, crs.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, got.Percentage)

	for _, l := range lessons {
		_, err = agg.MarkLessonComplete(ctx, student.ID, l.ID, true)
		require.NoError(t, err)
	}
	got, err = agg.ComputeProgress(ctx, student.ID, crs.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Percentage)
	assert.True(t, got.IsComplete())

	msgs := emailsvc.SentMessages()
	if assert.Len(t, msgs, 1) {
		assert.Contains(t, msgs[0].Subject, "Go 101")
	}

	// completing a lesson again sends no second email
	_, err = agg.MarkLessonComplete(ctx, student.ID, lessons[0].ID, true)
	require.NoError(t, err)
	assert.Len(t, emailsvc.SentMessages(), 1)
}

func TestAggregator_MarkLessonComplete(t *testing.T) {
	agg := setup(t)
	ctx := context.Background()
	crs, lessons := courseWithLessons(t, "Go 101", 2)

	_, err := agg.MarkLessonComplete(ctx, student.ID, uuid.NewString(), true)
	assert.Equal(t, progress.ErrLessonNotFound, err)

	_, err = agg.MarkLessonComplete(ctx, student.ID, lessons[0].ID, true)
	assert.Equal(t, progress.ErrNotEnrolled, err)

	enroll(t, student.ID, crs.ID, time.Now())

	first, err := agg.MarkLessonComplete(ctx, student.ID, lessons[0].ID, true)
	require.NoError(t, err)
	require.NotNil(t, first.CompletedAt)
	assert.True(t, first.Completed)

	again, err := agg.MarkLessonComplete(ctx, student.ID, lessons[0].ID, true)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, first.CompletedAt.Equal(*again.CompletedAt), "completed_at must not move")

	undone, err := agg.MarkLessonComplete(ctx, student.ID, lessons[0].ID, false)
	require.NoError(t, err)
	assert.False(t, undone.Completed)
	assert.Nil(t, undone.CompletedAt)
	assert.Equal(t, 1, db.CountProgress(student.ID, lessons[0].ID))

	rows, err := agg.ListLessonProgress(ctx, student.ID, crs.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestAggregator_MarkLessonComplete_concurrent(t *testing.T) {
	const n = 20
	agg := setup(t)
	ctx := context.Background()
	crs, lessons := courseWithLessons(t, "Go 101", 3)
	enroll(t, student.ID, crs.ID, time.Now())

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = agg.MarkLessonComplete(ctx, student.ID, lessons[0].ID, true)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, db.CountProgress(student.ID, lessons[0].ID))
}

func TestAggregator_ListEnrollments(t *testing.T) {
	agg := setup(t)
	ctx := context.Background()
	now := time.Now()

	older, olderLessons := courseWithLessons(t, "Older", 2)
	newer, _ := courseWithLessons(t, "Newer", 3)
	enroll(t, student.ID, older.ID, now.Add(-time.Hour))
	enroll(t, student.ID, newer.ID, now)
	_, err := agg.MarkLessonComplete(ctx, student.ID, olderLessons[0].ID, true)
	require.NoError(t, err)

	got, err := agg.ListEnrollments(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.ID, got[0].Course.ID)
	assert.Equal(t, 0, got[0].Summary.Percentage)
	assert.Equal(t, older.ID, got[1].Course.ID)
	assert.Equal(t, progress.Summary{Percentage: 50, CompletedLessons: 1, TotalLessons: 2}, got[1].Summary)

	none, err := agg.ListEnrollments(ctx, instructor.ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAggregator_MarkLessonComplete_concurrentLastLesson(t *testing.T) {
	const n = 20
	agg := setup(t)
	ctx := context.Background()
	crs, lessons := courseWithLessons(t, "Go 101", 2)
	enroll(t, student.ID, crs.ID, time.Now())

	_, err := agg.MarkLessonComplete(ctx, student.ID, lessons[0].ID, true)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = agg.MarkLessonComplete(ctx, student.ID, lessons[1].ID, true)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	msgs := emailsvc.SentMessages()
	if assert.Len(t, msgs, 1, "one completion email") {
		assert.Contains(t, msgs[0].Subject, "Go 101")
	}
}
