package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/careercompass/core/course"
	"github.com/trezcool/careercompass/core/user"
)

type courseApi struct {
	svc      *course.Service
	userSvc  *user.Service
	validate *validator.Validate
}

func registerCourseAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := courseApi{
		svc:      deps.CourseSvc,
		userSvc:  deps.UserSvc,
		validate: deps.Validate,
	}
	canManage := capabilityMiddleware(api.userSvc, user.CapManageCourses)

	cg := g.Group("/courses")
	cg.GET("", api.query)
	cg.GET("/:id", api.retrieve)
	cg.GET("/:id/lessons", api.listLessons)
	cg.POST("", api.create, jwt, canManage)
	cg.PUT("/:id", api.update, jwt, canManage)
	cg.DELETE("/:id", api.destroy, jwt, canManage)

	lg := g.Group("/lessons", jwt, canManage)
	lg.POST("", api.createLesson)
	lg.PUT("/:id", api.updateLesson)
	lg.DELETE("/:id", api.destroyLesson)
}

// getCourse resolves the `:id` param, which is either a course ID or its slug.
func (api *courseApi) getCourse(ctx echo.Context) (course.Course, error) {
	return api.svc.Get(ctx.Request().Context(), courseFilter(ctx.Param("id")))
}

// getManagedCourse returns the course only if the authenticated user may manage it.
func (api *courseApi) getManagedCourse(ctx echo.Context, courseID string) (course.Course, error) {
	var (
		crs course.Course
		err error
	)
	if courseID == "" {
		crs, err = api.getCourse(ctx)
	} else {
		crs, err = api.svc.GetByID(ctx.Request().Context(), courseID)
	}
	if err != nil {
		return course.Course{}, err
	}

	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return course.Course{}, err
	}
	if !course.CanManage(usr, crs) {
		return course.Course{}, course.ErrNotOwner
	}
	return crs, nil
}

// getManagedLesson resolves the `:id` lesson param & checks its course may be managed.
func (api *courseApi) getManagedLesson(ctx echo.Context) (course.Lesson, error) {
	if !isUUID(ctx.Param("id")) {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	lesson, err := api.svc.GetLesson(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return course.Lesson{}, err
	}
	if _, err = api.getManagedCourse(ctx, lesson.CourseID); err != nil {
		return course.Lesson{}, err
	}
	return lesson, nil
}

// Handlers

func (api *courseApi) query(ctx echo.Context) error {
	filter := new(course.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []CourseResponse{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	courses, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	return ctx.JSON(http.StatusOK, newCourseResponses(courses))
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	crs, err := api.getCourse(ctx)
	if err != nil {
		return err
	}
	lessons, err := api.svc.ListLessons(ctx.Request().Context(), crs.ID)
	if err != nil {
		return errors.Wrap(err, "listing lessons")
	}
	return ctx.JSON(http.StatusOK, CourseDetailResponse{CourseResponse: newCourseResponse(crs), Lessons: lessons})
}

func (api *courseApi) listLessons(ctx echo.Context) error {
	crs, err := api.getCourse(ctx)
	if err != nil {
		return err
	}
	lessons, err := api.svc.ListLessons(ctx.Request().Context(), crs.ID)
	if err != nil {
		return errors.Wrap(err, "listing lessons")
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	crs, err := api.svc.Create(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, newCourseResponse(crs))
}

func (api *courseApi) update(ctx echo.Context) error {
	crs, err := api.getManagedCourse(ctx, "")
	if err != nil {
		return err
	}

	var data course.UpdateCourse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	crs, err = api.svc.Update(ctx.Request().Context(), crs, data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, newCourseResponse(crs))
}

func (api *courseApi) destroy(ctx echo.Context) error {
	crs, err := api.getManagedCourse(ctx, "")
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), crs.ID); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) createLesson(ctx echo.Context) error {
	var data course.NewLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLesson")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if _, err := api.getManagedCourse(ctx, data.CourseID); err != nil {
		return err
	}

	lesson, err := api.svc.CreateLesson(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating lesson")
	}
	return ctx.JSON(http.StatusCreated, lesson)
}

func (api *courseApi) updateLesson(ctx echo.Context) error {
	lesson, err := api.getManagedLesson(ctx)
	if err != nil {
		return err
	}

	var data course.UpdateLesson
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateLesson")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	lesson, err = api.svc.UpdateLesson(ctx.Request().Context(), lesson, data)
	if err != nil {
		return errors.Wrap(err, "updating lesson")
	}
	return ctx.JSON(http.StatusOK, lesson)
}

func (api *courseApi) destroyLesson(ctx echo.Context) error {
	lesson, err := api.getManagedLesson(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteLesson(ctx.Request().Context(), lesson.ID); err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type (
	// CourseResponse exposes the price in major units & the rating out of 10 next to the stored values.
	CourseResponse struct {
		course.Course
		Price  float64 `json:"price"`
		Rating float64 `json:"rating"`
	}

	CourseDetailResponse struct {
		CourseResponse
		Lessons []course.Lesson `json:"lessons"`
	}
)

func newCourseResponse(c course.Course) CourseResponse {
	return CourseResponse{Course: c, Price: c.Price(), Rating: c.DisplayRating()}
}

func newCourseResponses(courses []course.Course) []CourseResponse {
	res := make([]CourseResponse, 0, len(courses))
	for _, c := range courses {
		res = append(res, newCourseResponse(c))
	}
	return res
}
