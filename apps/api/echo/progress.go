package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/careercompass/core"
	"github.com/trezcool/careercompass/core/course"
	"github.com/trezcool/careercompass/core/enrollment"
	"github.com/trezcool/careercompass/core/progress"
	"github.com/trezcool/careercompass/core/user"
)

type progressApi struct {
	aggregator *progress.Aggregator
	engine     *enrollment.Engine
	courseSvc  *course.Service
	userSvc    *user.Service
	validate   *validator.Validate
}

func registerProgressAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := progressApi{
		aggregator: deps.Progress,
		engine:     deps.Enrollments,
		courseSvc:  deps.CourseSvc,
		userSvc:    deps.UserSvc,
		validate:   deps.Validate,
	}
	authed := authedMiddleware(api.userSvc)

	g.POST("/progress", api.markLesson, jwt, authed)
	g.GET("/courses/:id/progress", api.courseProgress, jwt, authed)
}

// Handlers

func (api *progressApi) markLesson(ctx echo.Context) error {
	var data MarkLessonRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkLessonRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	completed := true
	if data.Completed != nil {
		completed = *data.Completed
	}

	p, err := api.aggregator.MarkLessonComplete(ctx.Request().Context(), usr.ID, data.LessonID, completed)
	if err != nil {
		return errors.Wrap(err, "marking lesson")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *progressApi) courseProgress(ctx echo.Context) error {
	crs, err := api.courseSvc.Get(ctx.Request().Context(), courseFilter(ctx.Param("id")))
	if err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	if _, err = api.engine.Get(ctx.Request().Context(), usr.ID, crs.ID); err != nil {
		if errors.Cause(err) == enrollment.ErrNotFound {
			return progress.ErrNotEnrolled
		}
		return errors.Wrap(err, "checking enrollment")
	}

	summary, err := api.aggregator.ComputeProgress(ctx.Request().Context(), usr.ID, crs.ID)
	if err != nil {
		return errors.Wrap(err, "computing progress")
	}
	lessons, err := api.aggregator.ListLessonProgress(ctx.Request().Context(), usr.ID, crs.ID)
	if err != nil {
		return errors.Wrap(err, "listing lesson progress")
	}
	return ctx.JSON(http.StatusOK, CourseProgressResponse{CourseID: crs.ID, Summary: summary, Lessons: lessons})
}

type (
	// MarkLessonRequest marks a lesson as completed unless `completed` is explicitly false.
	MarkLessonRequest struct {
		LessonID  string `json:"lesson_id" validate:"required,uuid"`
		Completed *bool  `json:"completed"`
	}

	CourseProgressResponse struct {
		CourseID string `json:"course_id"`
		progress.Summary
		Lessons []progress.Progress `json:"lessons"`
	}
)

func (mr *MarkLessonRequest) Validate(validate *validator.Validate) error {
	mr.LessonID = core.CleanString(mr.LessonID, true /* lower */)
	return validate.Struct(mr)
}
