package echoapi

import (
	"io/ioutil"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/careercompass/core"
	"github.com/trezcool/careercompass/core/enrollment"
	"github.com/trezcool/careercompass/core/progress"
	"github.com/trezcool/careercompass/core/user"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	maxWebhookBodyBytes   = 64 << 10
)

type enrollmentApi struct {
	engine     *enrollment.Engine
	aggregator *progress.Aggregator
	userSvc    *user.Service
	logger     core.Logger
	validate   *validator.Validate
}

func registerEnrollmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := enrollmentApi{
		engine:     deps.Enrollments,
		aggregator: deps.Progress,
		userSvc:    deps.UserSvc,
		logger:     deps.Logger,
		validate:   deps.Validate,
	}

	eg := g.Group("/enrollments", jwt, authedMiddleware(api.userSvc))
	eg.POST("", api.enroll)
	eg.GET("/my", api.listMine)

	// called by the payment gateway, authenticated by the payload signature
	g.POST("/payments/webhook", api.webhook)
}

// Handlers

func (api *enrollmentApi) enroll(ctx echo.Context) error {
	var data EnrollRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EnrollRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	res, err := api.engine.RequestEnrollment(ctx.Request().Context(), usr.ID, data.CourseID)
	if err != nil {
		return errors.Wrap(err, "requesting enrollment")
	}

	return ctx.JSON(http.StatusOK, res)
}

func (api *enrollmentApi) listMine(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}
	enrs, err := api.aggregator.ListEnrollments(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "listing enrollments")
	}

	res := make([]EnrollmentResponse, 0, len(enrs))
	for _, ep := range enrs {
		res = append(res, EnrollmentResponse{
			ID:               ep.Enrollment.ID,
			Course:           newCourseResponse(ep.Course),
			PurchasedAt:      ep.Enrollment.PurchasedAt,
			PaymentReference: ep.Enrollment.PaymentReference,
			Summary:          ep.Summary,
		})
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *enrollmentApi) webhook(ctx echo.Context) error {
	// the signature is computed over the raw body
	payload, err := ioutil.ReadAll(http.MaxBytesReader(ctx.Response(), ctx.Request().Body, maxWebhookBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "payload too large")
		}
		return echo.NewHTTPError(http.StatusBadRequest, "could not read payload")
	}

	outcome, err := api.engine.ApplyPaymentConfirmation(
		ctx.Request().Context(), payload, ctx.Request().Header.Get(stripeSignatureHeader),
	)
	if err != nil {
		return errors.Wrap(err, "applying payment confirmation")
	}
	return ctx.JSON(http.StatusOK, WebhookResponse{Received: true, Outcome: outcome})
}

type (
	EnrollRequest struct {
		CourseID string `json:"course_id" validate:"required,uuid"`
	}

	// EnrollmentResponse is an enrollment as shown on the student dashboard.
	EnrollmentResponse struct {
		ID               string         `json:"id"`
		Course           CourseResponse `json:"course"`
		PurchasedAt      time.Time      `json:"purchased_at"`
		PaymentReference *string        `json:"payment_reference"`
		progress.Summary
	}

	WebhookResponse struct {
		Received bool               `json:"received"`
		Outcome  enrollment.Outcome `json:"outcome"`
	}
)

func (er *EnrollRequest) Validate(validate *validator.Validate) error {
	er.CourseID = core.CleanString(er.CourseID, true /* lower */)
	return validate.Struct(er)
}
