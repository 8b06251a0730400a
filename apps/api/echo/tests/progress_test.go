package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/careercompass/apps/api/echo"
	"github.com/trezcool/careercompass/core/course"
	"github.com/trezcool/careercompass/core/enrollment"
	"github.com/trezcool/careercompass/core/progress"
	"github.com/trezcool/careercompass/core/user"
	emailsvc "github.com/trezcool/careercompass/services/email"
	testutil "github.com/trezcool/careercompass/tests"
)

func markLesson(t *testing.T, lessonID string, completed ...bool) []byte {
	req := map[string]interface{}{"lesson_id": lessonID}
	if len(completed) > 0 {
		req["completed"] = completed[0]
	}
	return marshalObj(t, req)
}

func Test_progressApi_markLesson(t *testing.T) {
	app := setup(t)
	prof := testutil.CreateUser(t, usrRepo, "Prof", "prof@test.cd", "", user.RoleInstructor, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero@test.cd", "", user.RoleStudent, true)
	outsider := testutil.CreateUser(t, usrRepo, "Outsider", "outsider@test.cd", "", user.RoleStudent, true)
	crs := testutil.CreateCourse(t, courseRepo, prof.ID, "Intro to Go", 0, true)
	l1 := testutil.CreateLesson(t, courseRepo, crs.ID, "Hello", 1)
	l2 := testutil.CreateLesson(t, courseRepo, crs.ID, "World", 2)

	token := getToken(t, student)
	_, _, err := enrRepo.InsertEnrollment(context.Background(), enrollment.Enrollment{
		ID: "2b1e4c8a-0d7f-4c3e-9a51-7f6d2e8b9c10", UserID: student.ID, CourseID: crs.ID,
	})
	require.NoError(t, err)

	tests := []httpTest{
		{name: "auth required", body: markLesson(t, l1.ID), wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{
			name: "invalid lesson id", token: token, body: markLesson(t, "lol"), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"lesson_id": "must be a valid ID"}),
		},
		{
			name: "unknown lesson", token: token, body: markLesson(t, "6f0a0c1e-3b9a-4f3e-8d6e-2b7f0f9c1d2e"), wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: course.ErrLessonNotFound.Error()}),
		},
		{
			name: "not enrolled", token: getToken(t, outsider), body: markLesson(t, l1.ID), wantCode: http.StatusForbidden,
			wantData: marshalObj(t, httpErr{Error: progress.ErrNotEnrolled.Error()}),
		},
	}
	runHTTPTests(t, app, http.MethodPost, "/api/progress", tests)

	mark := func(body []byte) progress.Progress {
		rec := serve(app, httpTest{method: http.MethodPost, path: "/api/progress", token: token, body: body})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var p progress.Progress
		unmarshal(t, rec, &p)
		return p
	}

	emailsvc.ClearSentMessages()
	first := mark(markLesson(t, l1.ID))
	assert.True(t, first.Completed)
	require.NotNil(t, first.CompletedAt)

	t.Run("completing again keeps the completion time", func(t *testing.T) {
		again := mark(markLesson(t, l1.ID, true))
		assert.Equal(t, first.ID, again.ID)
		require.NotNil(t, again.CompletedAt)
		assert.True(t, first.CompletedAt.Equal(*again.CompletedAt))
		assert.Equal(t, 1, db.CountProgress(student.ID, l1.ID))
	})

	t.Run("uncompleting clears the completion time", func(t *testing.T) {
		p := mark(markLesson(t, l1.ID, false))
		assert.False(t, p.Completed)
		assert.Nil(t, p.CompletedAt)
	})

	t.Run("course completion email", func(t *testing.T) {
		assert.Empty(t, emailsvc.SentMessages(), "course not completed yet")

		mark(markLesson(t, l1.ID))
		mark(markLesson(t, l2.ID))
		msgs := emailsvc.SentMessages()
		require.Len(t, msgs, 1)
		assert.Equal(t, student.Email, msgs[0].To[0].Address)
		assert.Contains(t, msgs[0].Subject, crs.Title)

		// no new mail for an already completed lesson
		mark(markLesson(t, l2.ID))
		assert.Len(t, emailsvc.SentMessages(), 1)
	})
}

func Test_progressApi_courseProgress(t *testing.T) {
	app := setup(t)
	prof := testutil.CreateUser(t, usrRepo, "Prof", "prof@test.cd", "", user.RoleInstructor, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero@test.cd", "", user.RoleStudent, true)
	outsider := testutil.CreateUser(t, usrRepo, "Outsider", "outsider@test.cd", "", user.RoleStudent, true)
	crs := testutil.CreateCourse(t, courseRepo, prof.ID, "Intro to Go", 0, true)
	empty := testutil.CreateCourse(t, courseRepo, prof.ID, "Coming soon", 0, true)
	l1 := testutil.CreateLesson(t, courseRepo, crs.ID, "Hello", 1)
	testutil.CreateLesson(t, courseRepo, crs.ID, "World", 2)

	token := getToken(t, student)
	for _, c := range []course.Course{crs, empty} {
		rec := serve(app, httpTest{method: http.MethodPost, path: "/api/enrollments", token: token, body: enroll(t, c.ID)})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec := serve(app, httpTest{method: http.MethodPost, path: "/api/progress", token: token, body: markLesson(t, l1.ID)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	tests := []httpTest{
		{name: "auth required", path: "/api/courses/" + crs.ID + "/progress", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{
			name: "unknown course", path: "/api/courses/lol/progress", token: token, wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: course.ErrNotFound.Error()}),
		},
		{
			name: "not enrolled", path: "/api/courses/" + crs.ID + "/progress", token: getToken(t, outsider), wantCode: http.StatusForbidden,
			wantData: marshalObj(t, httpErr{Error: progress.ErrNotEnrolled.Error()}),
		},
		{
			name: "course without lessons", path: "/api/courses/" + empty.Slug + "/progress", token: token,
			wantData: marshalObj(t, echoapi.CourseProgressResponse{CourseID: empty.ID, Summary: progress.NewSummary(0, 0), Lessons: []progress.Progress{}}),
		},
	}
	runHTTPTests(t, app, http.MethodGet, "", tests)

	t.Run("half way", func(t *testing.T) {
		rec := serve(app, httpTest{method: http.MethodGet, path: "/api/courses/" + crs.Slug + "/progress", token: token})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp echoapi.CourseProgressResponse
		unmarshal(t, rec, &resp)
		assert.Equal(t, crs.ID, resp.CourseID)
		assert.Equal(t, 50, resp.Percentage)
		assert.Equal(t, 1, resp.CompletedLessons)
		assert.Equal(t, 2, resp.TotalLessons)
		require.Len(t, resp.Lessons, 1)
		assert.Equal(t, l1.ID, resp.Lessons[0].LessonID)
	})
}
