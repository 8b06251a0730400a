package lecture_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/careercompass/core/course"
	"github.com/trezcool/careercompass/core/lecture"
	"github.com/trezcool/careercompass/core/user"
	inmemdb "github.com/trezcool/careercompass/storage/database/inmem"
	"github.com/trezcool/careercompass/tests"
)

func TestCanTransition(t *testing.T) {
	statuses := []string{lecture.StatusScheduled, lecture.StatusLive, lecture.StatusCompleted, lecture.StatusCancelled}
	allowed := map[[2]string]bool{
		{lecture.StatusScheduled, lecture.StatusLive}:      true,
		{lecture.StatusScheduled, lecture.StatusCancelled}: true,
		{lecture.StatusLive, lecture.StatusCompleted}:      true,
	}
	for _, from := range statuses {
		for _, to := range statuses {
			assert.Equal(t, allowed[[2]string{from, to}], lecture.CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.False(t, lecture.CanTransition(lecture.StatusScheduled, "paused"))
}

func setup(t *testing.T) (*lecture.Service, course.Course, user.User) {
	db := inmemdb.NewDB()
	prof := testutil.CreateUser(t, inmemdb.NewUserRepository(db), "Prof", "prof@test.cd", "", user.RoleInstructor, true)
	crs := testutil.CreateCourse(t, inmemdb.NewCourseRepository(db), prof.ID, "Go 101", 0, true)
	return lecture.NewService(inmemdb.NewLectureRepository(db)), crs, prof
}

func TestService_lifecycle(t *testing.T) {
	svc, crs, prof := setup(t)
	ctx := context.Background()
	startsAt := time.Now().Add(48 * time.Hour)

	l, err := svc.Create(ctx, prof.ID, lecture.NewLiveLecture{
		CourseID:        crs.ID,
		Title:           "Concurrency Q&A",
		ScheduledAt:     startsAt.In(time.FixedZone("WAT", 3600)),
		DurationMinutes: 90,
	})
	require.NoError(t, err)
	assert.Equal(t, lecture.StatusScheduled, l.Status)
	assert.Equal(t, prof.ID, l.InstructorID)
	assert.Equal(t, time.UTC, l.ScheduledAt.Location())
	assert.Nil(t, l.RecordingURL)

	status := func(s string) *string { return &s }

	_, err = svc.Update(ctx, l, lecture.UpdateLiveLecture{Status: status(lecture.StatusCompleted)})
	assert.True(t, errors.Is(err, lecture.ErrInvalidTransition))

	l, err = svc.Update(ctx, l, lecture.UpdateLiveLecture{Status: status(lecture.StatusLive)})
	require.NoError(t, err)
	assert.Equal(t, lecture.StatusLive, l.Status)

	// same status is a no-op transition
	l, err = svc.Update(ctx, l, lecture.UpdateLiveLecture{Status: status(lecture.StatusLive), Title: status("Concurrency AMA")})
	require.NoError(t, err)
	assert.Equal(t, "Concurrency AMA", l.Title)

	_, err = svc.Update(ctx, l, lecture.UpdateLiveLecture{Status: status(lecture.StatusCancelled)})
	assert.True(t, errors.Is(err, lecture.ErrInvalidTransition))

	l, err = svc.Update(ctx, l, lecture.UpdateLiveLecture{
		Status:       status(lecture.StatusCompleted),
		RecordingURL: status("https://videos.test/rec.mp4"),
	})
	require.NoError(t, err)
	assert.Equal(t, lecture.StatusCompleted, l.Status)
	require.NotNil(t, l.RecordingURL)
	assert.Equal(t, "https://videos.test/rec.mp4", *l.RecordingURL)

	// completed is terminal
	_, err = svc.Update(ctx, l, lecture.UpdateLiveLecture{Status: status(lecture.StatusScheduled)})
	assert.True(t, errors.Is(err, lecture.ErrInvalidTransition))

	got, err := svc.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, lecture.StatusCompleted, got.Status)

	require.NoError(t, svc.Delete(ctx, l.ID))
	_, err = svc.Get(ctx, l.ID)
	assert.Equal(t, lecture.ErrNotFound, err)
}

func TestService_lists(t *testing.T) {
	svc, crs, prof := setup(t)
	ctx := context.Background()
	now := time.Now()

	nl := func(title string, at time.Time) lecture.NewLiveLecture {
		return lecture.NewLiveLecture{CourseID: crs.ID, Title: title, ScheduledAt: at, DurationMinutes: 30}
	}
	later, err := svc.Create(ctx, prof.ID, nl("later", now.Add(72*time.Hour)))
	require.NoError(t, err)
	sooner, err := svc.Create(ctx, prof.ID, nl("sooner", now.Add(24*time.Hour)))
	require.NoError(t, err)
	past, err := svc.Create(ctx, prof.ID, nl("past", now.Add(-24*time.Hour)))
	require.NoError(t, err)
	cancelled, err := svc.Create(ctx, prof.ID, nl("cancelled", now.Add(48*time.Hour)))
	require.NoError(t, err)
	st := lecture.StatusCancelled
	_, err = svc.Update(ctx, cancelled, lecture.UpdateLiveLecture{Status: &st})
	require.NoError(t, err)

	upcoming, err := svc.ListUpcoming(ctx, now)
	require.NoError(t, err)
	if assert.Len(t, upcoming, 2) {
		assert.Equal(t, sooner.ID, upcoming[0].ID)
		assert.Equal(t, later.ID, upcoming[1].ID)
	}

	all, err := svc.ListByCourse(ctx, crs.ID)
	require.NoError(t, err)
	if assert.Len(t, all, 4) {
		assert.Equal(t, past.ID, all[0].ID)
		assert.Equal(t, later.ID, all[3].ID)
	}

	_, err = svc.Create(ctx, prof.ID, lecture.NewLiveLecture{CourseID: "7b1d3f0e-9c1a-4d7e-8f2a-0c3b4d5e6f70", Title: "x", ScheduledAt: now, DurationMinutes: 30})
	assert.Equal(t, course.ErrNotFound, err)
}
