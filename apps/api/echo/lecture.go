package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/careercompass/core/course"
	"github.com/trezcool/careercompass/core/lecture"
	"github.com/trezcool/careercompass/core/user"
)

type lectureApi struct {
	svc       *lecture.Service
	courseSvc *course.Service
	userSvc   *user.Service
	validate  *validator.Validate
}

func registerLectureAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := lectureApi{
		svc:       deps.LectureSvc,
		courseSvc: deps.CourseSvc,
		userSvc:   deps.UserSvc,
		validate:  deps.Validate,
	}
	canManage := capabilityMiddleware(api.userSvc, user.CapManageLectures)

	lg := g.Group("/live-lectures")
	lg.GET("/upcoming", api.listUpcoming)
	lg.GET("/course/:id", api.listByCourse)
	lg.GET("/:id", api.retrieve)
	lg.POST("", api.create, jwt, canManage)
	lg.PUT("/:id", api.update, jwt, canManage)
	lg.DELETE("/:id", api.destroy, jwt, canManage)
}

// checkCourseOwnership fails unless the authenticated user may manage the course.
func (api *lectureApi) checkCourseOwnership(ctx echo.Context, courseID string) error {
	crs, err := api.courseSvc.GetByID(ctx.Request().Context(), courseID)
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	if !course.CanManage(usr, crs) {
		return course.ErrNotOwner
	}
	return nil
}

func (api *lectureApi) getLecture(ctx echo.Context) (lecture.LiveLecture, error) {
	if !isUUID(ctx.Param("id")) {
		return lecture.LiveLecture{}, lecture.ErrNotFound
	}
	return api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
}

func (api *lectureApi) getManagedLecture(ctx echo.Context) (lecture.LiveLecture, error) {
	l, err := api.getLecture(ctx)
	if err != nil {
		return lecture.LiveLecture{}, err
	}
	if err = api.checkCourseOwnership(ctx, l.CourseID); err != nil {
		return lecture.LiveLecture{}, err
	}
	return l, nil
}

// Handlers

func (api *lectureApi) listUpcoming(ctx echo.Context) error {
	lectures, err := api.svc.ListUpcoming(ctx.Request().Context(), time.Now())
	if err != nil {
		return errors.Wrap(err, "listing upcoming lectures")
	}
	return ctx.JSON(http.StatusOK, lectures)
}

func (api *lectureApi) listByCourse(ctx echo.Context) error {
	crs, err := api.courseSvc.Get(ctx.Request().Context(), courseFilter(ctx.Param("id")))
	if err != nil {
		return err
	}

	lectures, err := api.svc.ListByCourse(ctx.Request().Context(), crs.ID)
	if err != nil {
		return errors.Wrap(err, "listing course lectures")
	}
	return ctx.JSON(http.StatusOK, lectures)
}

func (api *lectureApi) retrieve(ctx echo.Context) error {
	l, err := api.getLecture(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *lectureApi) create(ctx echo.Context) error {
	var data lecture.NewLiveLecture
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLiveLecture")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := api.checkCourseOwnership(ctx, data.CourseID); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	l, err := api.svc.Create(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating lecture")
	}
	return ctx.JSON(http.StatusCreated, l)
}

func (api *lectureApi) update(ctx echo.Context) error {
	l, err := api.getManagedLecture(ctx)
	if err != nil {
		return err
	}

	var data lecture.UpdateLiveLecture
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateLiveLecture")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	l, err = api.svc.Update(ctx.Request().Context(), l, data)
	if err != nil {
		return errors.Wrap(err, "updating lecture")
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *lectureApi) destroy(ctx echo.Context) error {
	l, err := api.getManagedLecture(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), l.ID); err != nil {
		return errors.Wrap(err, "deleting lecture")
	}
	return ctx.NoContent(http.StatusNoContent)
}
