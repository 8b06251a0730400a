package enrollment

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/careercompass/core"
	"github.com/trezcool/careercompass/core/course"
	"github.com/trezcool/careercompass/core/user"
)

var (
	// errors
	ErrNotFound                  = errors.New("enrollment not found")
	ErrAlreadyEnrolled           = errors.New("you are already enrolled in this course")
	ErrCourseNotFound            = course.ErrNotFound
	ErrPaymentGatewayUnavailable = errors.New("payment gateway unavailable, please try again later")
	ErrInvalidSignature          = errors.New("invalid webhook signature")
)

type (
	CourseFinder interface {
		GetByID(ctx context.Context, id string) (course.Course, error)
	}

	UserFinder interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	EngineDeps struct {
		Repo    Repository
		Courses CourseFinder
		Users   UserFinder
		Gateway PaymentGateway // nil when payments are not configured
		MailSvc core.EmailService
		Logger  core.Logger
		Conf    *core.Config
	}

	// Engine decides how an enrollment is fulfilled: instantly for free courses,
	// or once the payment gateway confirms the payment for paid courses.
	Engine struct {
		repo    Repository
		courses CourseFinder
		users   UserFinder
		gateway PaymentGateway
		mailSvc core.EmailService
		logger  core.Logger
		conf    *core.Config
	}
)

func NewEngine(deps EngineDeps) *Engine {
	return &Engine{
		repo:    deps.Repo,
		courses: deps.Courses,
		users:   deps.Users,
		gateway: deps.Gateway,
		mailSvc: deps.MailSvc,
		logger:  deps.Logger,
		conf:    deps.Conf,
	}
}

func (e *Engine) Get(ctx context.Context, userID, courseID string) (Enrollment, error) {
	return e.repo.GetEnrollment(ctx, userID, courseID)
}

func (e *Engine) ListByUser(ctx context.Context, userID string) ([]Enrollment, error) {
	return e.repo.ListEnrollments(ctx, userID)
}

// RequestEnrollment enrolls the user right away in a free course, or starts a checkout
// session for a paid one. No enrollment exists for a paid course until its payment is confirmed.
func (e *Engine) RequestEnrollment(ctx context.Context, userID, courseID string) (Result, error) {
	// advisory: concurrent requests are settled by InsertEnrollment
	if _, err := e.repo.GetEnrollment(ctx, userID, courseID); err == nil {
		return Result{}, ErrAlreadyEnrolled
	} else if errors.Cause(err) != ErrNotFound {
		return Result{}, errors.Wrap(err, "checking existing enrollment")
	}

	crs, err := e.courses.GetByID(ctx, courseID)
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return Result{}, ErrCourseNotFound
		}
		return Result{}, errors.Wrap(err, "getting course")
	}
	usr, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return Result{}, errors.Wrap(err, "getting user")
	}

	if crs.IsFree() {
		enr, err := e.enrollFree(ctx, usr, crs)
		if err != nil {
			return Result{}, err
		}
		return Result{Enrollment: &enr}, nil
	}

	url, err := e.startCheckout(ctx, usr, crs)
	if err != nil {
		return Result{}, err
	}
	return Result{CheckoutURL: url}, nil
}

func (e *Engine) enrollFree(ctx context.Context, usr user.User, crs course.Course) (Enrollment, error) {
	enr, outcome, err := e.repo.InsertEnrollment(ctx, Enrollment{
		ID:          uuid.NewString(),
		UserID:      usr.ID,
		CourseID:    crs.ID,
		PurchasedAt: time.Now().UTC(),
	})
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return Enrollment{}, ErrCourseNotFound
		}
		return Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	if outcome == AlreadyExists {
		return Enrollment{}, ErrAlreadyEnrolled
	}

	e.notifyEnrolled(usr, crs, enr)
	return enr, nil
}

func (e *Engine) startCheckout(ctx context.Context, usr user.User, crs course.Course) (string, error) {
	if e.gateway == nil {
		return "", ErrPaymentGatewayUnavailable
	}

	if e.conf.Stripe.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.conf.Stripe.Timeout)
		defer cancel()
	}

	courseURL := e.courseURL(crs)
	url, err := e.gateway.CreateCheckoutSession(ctx, CheckoutRequest{
		UserID:       usr.ID,
		UserEmail:    usr.Email,
		CourseID:     crs.ID,
		CourseTitle:  crs.Title,
		PriceInCents: crs.PriceInCents,
		SuccessURL:   courseURL + "?payment=success",
		CancelURL:    courseURL + "?payment=cancelled",
	})
	if err != nil {
		e.logger.Error(fmt.Sprintf("creating checkout session: %v", err), err, usr)
		return "", errors.Wrap(ErrPaymentGatewayUnavailable, "creating checkout session")
	}
	if url == "" {
		return "", errors.Wrap(ErrPaymentGatewayUnavailable, "checkout session has no URL")
	}
	return url, nil
}

// ApplyPaymentConfirmation verifies & applies a payment webhook event.
// It is safe to apply the same event any number of times: only the first confirmation
// for a (user, course) pair creates an enrollment, later ones are acknowledged as duplicates.
// Events that can never be applied are acknowledged as ignored so the gateway stops
// redelivering them.
func (e *Engine) ApplyPaymentConfirmation(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	if e.gateway == nil {
		return "", ErrPaymentGatewayUnavailable
	}

	evt, err := e.gateway.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Cause(err) == ErrInvalidSignature {
			e.logger.Warn("payment webhook rejected: invalid signature (possible tampering)", err)
			return "", ErrInvalidSignature
		}
		return "", errors.Wrap(err, "parsing payment webhook")
	}

	details := map[string]interface{}{
		"event_id":  evt.ID,
		"type":      evt.Type,
		"user_id":   evt.UserID,
		"course_id": evt.CourseID,
	}

	switch evt.Type {
	case EventCheckoutCompleted:
		return e.confirmPayment(ctx, evt, details)
	case EventPaymentFailed:
		e.logger.Info("payment failed", details)
		return Ignored, nil
	default:
		return Ignored, nil
	}
}

func (e *Engine) confirmPayment(ctx context.Context, evt PaymentEvent, details map[string]interface{}) (Outcome, error) {
	if evt.UserID == "" || evt.CourseID == "" {
		e.logger.Warn("payment confirmation without user/course metadata", details)
		return Ignored, nil
	}

	crs, err := e.courses.GetByID(ctx, evt.CourseID)
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			e.logger.Warn("payment confirmation for unknown course", details)
			return Ignored, nil
		}
		return "", errors.Wrap(err, "getting course")
	}
	usr, err := e.users.GetByID(ctx, evt.UserID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			e.logger.Warn("payment confirmation for unknown user", details)
			return Ignored, nil
		}
		return "", errors.Wrap(err, "getting user")
	}

	ref := evt.PaymentReference
	if ref == "" {
		ref = evt.ID
	}
	enr, outcome, err := e.repo.InsertEnrollment(ctx, Enrollment{
		ID:               uuid.NewString(),
		UserID:           usr.ID,
		CourseID:         crs.ID,
		PurchasedAt:      time.Now().UTC(),
		PaymentReference: core.StringPtr(ref),
	})
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			e.logger.Warn("payment confirmation for deleted course", details)
			return Ignored, nil
		}
		return "", errors.Wrap(err, "inserting enrollment")
	}
	if outcome == AlreadyExists {
		e.logger.Info("duplicate payment confirmation", details)
		return Duplicate, nil
	}

	e.logger.Info("payment confirmed", details)
	e.notifyEnrolled(usr, crs, enr)
	return Applied, nil
}

func (e *Engine) courseURL(crs course.Course) string {
	return fmt.Sprintf("%s/courses/%s", e.conf.FrontendBaseURL, crs.Slug)
}

// notifyEnrolled sends the enrollment confirmation. Delivery failures never reach the caller.
func (e *Engine) notifyEnrolled(usr user.User, crs course.Course, enr Enrollment) {
	if e.mailSvc == nil {
		return
	}
	e.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      fmt.Sprintf("Welcome to %s!", crs.Title),
		TemplateName: "enrollment_confirmation",
		TemplateData: struct {
			Name        string
			CourseTitle string
			CourseURL   string
			IsPaid      bool
			Amount      string
		}{
			Name:        usr.Name,
			CourseTitle: crs.Title,
			CourseURL:   e.courseURL(crs),
			IsPaid:      enr.IsPaid(),
			Amount:      fmt.Sprintf("%.2f", crs.Price()),
		},
	})
}
