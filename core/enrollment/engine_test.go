package enrollment_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/careercompass/core"
	"github.com/trezcool/careercompass/core/course"
	"github.com/trezcool/careercompass/core/enrollment"
	"github.com/trezcool/careercompass/core/user"
	emailsvc "github.com/trezcool/careercompass/services/email"
	inmemdb "github.com/trezcool/careercompass/storage/database/inmem"
	"github.com/trezcool/careercompass/tests"
)

type fixture struct {
	db         *inmemdb.DB
	usrRepo    user.Repository
	courseRepo course.Repository
	gateway    *testutil.Gateway
	logger     *testutil.Logger
	deps       enrollment.EngineDeps
	engine     *enrollment.Engine
	student    user.User
	instructor user.User
}

// setup builds an engine over in-memory storage. A nil gateway leaves payments unconfigured.
func setup(t *testing.T, gateway *testutil.Gateway) *fixture {
	conf := testutil.NewConfig()
	f := &fixture{db: inmemdb.NewDB(), gateway: gateway, logger: &testutil.Logger{}}
	f.usrRepo = inmemdb.NewUserRepository(f.db)
	f.courseRepo = inmemdb.NewCourseRepository(f.db)
	emailsvc.ClearSentMessages()

	deps := enrollment.EngineDeps{
		Repo:    inmemdb.NewEnrollmentRepository(f.db),
		Courses: course.NewService(f.courseRepo),
		Users:   user.NewService(f.usrRepo, nil, conf),
		MailSvc: emailsvc.NewConsoleServiceMock(conf, f.logger),
		Logger:  f.logger,
		Conf:    conf,
	}
	if gateway != nil {
		deps.Gateway = gateway
	}
	f.deps = deps
	f.engine = enrollment.NewEngine(deps)

	f.student = testutil.CreateUser(t, f.usrRepo, "Student", "student@test.cd", "", user.RoleStudent, true)
	f.instructor = testutil.CreateUser(t, f.usrRepo, "Prof", "prof@test.cd", "", user.RoleInstructor, true)
	return f
}

func (f *fixture) enrollmentCount(t *testing.T, courseID string) int64 {
	c, err := f.courseRepo.GetCourse(context.Background(), course.GetFilter{ID: courseID})
	require.NoError(t, err)
	return c.EnrollmentCount
}

func TestEngine_RequestEnrollment_free(t *testing.T) {
	f := setup(t, testutil.NewGateway())
	ctx := context.Background()
	crs := testutil.CreateCourse(t, f.courseRepo, f.instructor.ID, "Go 101", 0, true)

	res, err := f.engine.RequestEnrollment(ctx, f.student.ID, crs.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Enrollment)
	assert.Empty(t, res.CheckoutURL)
	assert.Equal(t, f.student.ID, res.Enrollment.UserID)
	assert.Equal(t, crs.ID, res.Enrollment.CourseID)
	assert.False(t, res.Enrollment.IsPaid())
	assert.EqualValues(t, 1, f.enrollmentCount(t, crs.ID))
	assert.Empty(t, f.gateway.CheckoutRequests())

	msgs := emailsvc.SentMessages()
	if assert.Len(t, msgs, 1) {
		assert.Equal(t, "student@test.cd", msgs[0].To[0].Address)
		assert.Contains(t, msgs[0].Subject, "Go 101")
	}

	_, err = f.engine.RequestEnrollment(ctx, f.student.ID, crs.ID)
	assert.Equal(t, enrollment.ErrAlreadyEnrolled, err)
	assert.EqualValues(t, 1, f.enrollmentCount(t, crs.ID))
}

// unreachableMailer fails every delivery & logs it, the way the real delivery services do.
type unreachableMailer struct {
	logger *testutil.Logger
}

func (m unreachableMailer) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		err := errors.New("dial tcp: connection refused")
		m.logger.Error(fmt.Sprintf("sending email %q: %v", msg.Subject, err), err)
	}
}

func TestEngine_notificationFailure(t *testing.T) {
	f := setup(t, testutil.NewGateway())
	ctx := context.Background()
	deps := f.deps
	deps.MailSvc = unreachableMailer{logger: f.logger}
	engine := enrollment.NewEngine(deps)

	t.Run("free enrollment", func(t *testing.T) {
		f.logger.Reset()
		crs := testutil.CreateCourse(t, f.courseRepo, f.instructor.ID, "Go 101", 0, true)

		res, err := engine.RequestEnrollment(ctx, f.student.ID, crs.ID)
		require.NoError(t, err)
		require.NotNil(t, res.Enrollment)
		assert.EqualValues(t, 1, f.enrollmentCount(t, crs.ID))
		assert.Len(t, f.logger.Entries("error"), 1)
		assert.Empty(t, emailsvc.SentMessages())
	})

	t.Run("payment confirmation", func(t *testing.T) {
		f.logger.Reset()
		crs := testutil.CreateCourse(t, f.courseRepo, f.instructor.ID, "Advanced Go", 4900, true)
		payload := testutil.WebhookPayload(t, testutil.PaidEvent(f.student.ID, crs.ID, "pi_123"))

		outcome, err := engine.ApplyPaymentConfirmation(ctx, payload, f.gateway.Signature)
		require.NoError(t, err)
		assert.Equal(t, enrollment.Applied, outcome)
		assert.EqualValues(t, 1, f.enrollmentCount(t, crs.ID))
		assert.Len(t, f.logger.Entries("error"), 1)
	})
}

func TestEngine_RequestEnrollment_paid(t *testing.T) {
	ctx := context.Background()

	t.Run("one cent starts a checkout", func(t *testing.T) {
		f := setup(t, testutil.NewGateway())
		crs := testutil.CreateCourse(t, f.courseRepo, f.instructor.ID, "Go 201", 1, true)

		res, err := f.engine.RequestEnrollment(ctx, f.student.ID, crs.ID)
		require.NoError(t, err)
		assert.Nil(t, res.Enrollment)
		assert.Equal(t, "https://checkout.test/session/"+crs.ID, res.CheckoutURL)

		reqs := f.gateway.CheckoutRequests()
		if assert.Len(t, reqs, 1) {
			assert.Equal(t, f.student.ID, reqs[0].UserID)
			assert.Equal(t, "student@test.cd", reqs[0].UserEmail)
			assert.EqualValues(t, 1, reqs[0].PriceInCents)
			assert.Contains(t, reqs[0].SuccessURL, crs.Slug)
		}

		_, err = f.engine.Get(ctx, f.student.ID, crs.ID)
		assert.Equal(t, enrollment.ErrNotFound, err)
		assert.EqualValues(t, 0, f.enrollmentCount(t, crs.ID))
		assert.Empty(t, emailsvc.SentMessages())
	})

	t.Run("gateway error", func(t *testing.T) {
		gw := testutil.NewGateway()
		gw.Err = errors.New("boom")
		f := setup(t, gw)
		crs := testutil.CreateCourse(t, f.courseRepo, f.instructor.ID, "Go 201", 4999, true)

		_, err := f.engine.RequestEnrollment(ctx, f.student.ID, crs.ID)
		assert.True(t, errors.Is(err, enrollment.ErrPaymentGatewayUnavailable))
		assert.NotEmpty(t, f.logger.Entries("error"))
	})

	t.Run("no gateway", func(t *testing.T) {
		f := setup(t, nil)
		crs := testutil.CreateCourse(t, f.courseRepo, f.instructor.ID, "Go 201", 4999, true)

		_, err := f.engine.RequestEnrollment(ctx, f.student.ID, crs.ID)
		assert.Equal(t, enrollment.ErrPaymentGatewayUnavailable, err)
	})

	t.Run("unknown course", func(t *testing.T) {
		f := setup(t, testutil.NewGateway())

		_, err := f.engine.RequestEnrollment(ctx, f.student.ID, "7b1d3f0e-9c1a-4d7e-8f2a-0c3b4d5e6f70")
		assert.Equal(t, enrollment.ErrCourseNotFound, err)
	})
}

func TestEngine_ApplyPaymentConfirmation(t *testing.T) {
	ctx := context.Background()
	f := setup(t, testutil.NewGateway())
	crs := testutil.CreateCourse(t, f.courseRepo, f.instructor.ID, "Go 301", 4999, true)

	paid := testutil.PaidEvent(f.student.ID, crs.ID, "pi_123")
	failed := paid
	failed.Type = enrollment.EventPaymentFailed
	noMeta := paid
	noMeta.UserID = ""
	unknownUser := testutil.PaidEvent("7b1d3f0e-9c1a-4d7e-8f2a-0c3b4d5e6f70", crs.ID, "pi_456")

	tests := []struct {
		name      string
		evt       enrollment.PaymentEvent
		signature string
		want      enrollment.Outcome
		wantErr   error
		wantCount int64
	}{
		{name: "invalid signature", evt: paid, signature: "forged", wantErr: enrollment.ErrInvalidSignature},
		{name: "payment failed", evt: failed, want: enrollment.Ignored},
		{name: "missing metadata", evt: noMeta, want: enrollment.Ignored},
		{name: "unknown user", evt: unknownUser, want: enrollment.Ignored},
		{name: "applied", evt: paid, want: enrollment.Applied, wantCount: 1},
		{name: "duplicate delivery", evt: paid, want: enrollment.Duplicate, wantCount: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := tt.signature
			if sig == "" {
				sig = f.gateway.Signature
			}
			got, err := f.engine.ApplyPaymentConfirmation(ctx, testutil.WebhookPayload(t, tt.evt), sig)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCount, f.enrollmentCount(t, crs.ID))
		})
	}

	enr, err := f.engine.Get(ctx, f.student.ID, crs.ID)
	require.NoError(t, err)
	require.True(t, enr.IsPaid())
	assert.Equal(t, "pi_123", *enr.PaymentReference)
	assert.Len(t, emailsvc.SentMessages(), 1)
	assert.NotEmpty(t, f.logger.Entries("warn"))

	// already enrolled: no new checkout
	_, err = f.engine.RequestEnrollment(ctx, f.student.ID, crs.ID)
	assert.Equal(t, enrollment.ErrAlreadyEnrolled, err)
}

func TestEngine_ApplyPaymentConfirmation_noGateway(t *testing.T) {
	f := setup(t, nil)

	_, err := f.engine.ApplyPaymentConfirmation(context.Background(), []byte("{}"), "sig")
	assert.Equal(t, enrollment.ErrPaymentGatewayUnavailable, err)
}

func TestEngine_ApplyPaymentConfirmation_concurrent(t *testing.T) {
	const n = 20
	ctx := context.Background()
	f := setup(t, testutil.NewGateway())
	crs := testutil.CreateCourse(t, f.courseRepo, f.instructor.ID, "Go 401", 9900, true)
	payload := testutil.WebhookPayload(t, testutil.PaidEvent(f.student.ID, crs.ID, "pi_concurrent"))

	var wg sync.WaitGroup
	outcomes := make([]enrollment.Outcome, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = f.engine.ApplyPaymentConfirmation(ctx, payload, f.gateway.Signature)
		}(i)
	}
	wg.Wait()

	counts := make(map[enrollment.Outcome]int)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		counts[outcomes[i]]++
	}
	assert.Equal(t, 1, counts[enrollment.Applied])
	assert.Equal(t, n-1, counts[enrollment.Duplicate])
	assert.EqualValues(t, 1, f.enrollmentCount(t, crs.ID))
	assert.Equal(t, 1, f.db.CountEnrollments(crs.ID))
	assert.Len(t, emailsvc.SentMessages(), 1)
}

func TestEngine_RequestEnrollment_concurrentFree(t *testing.T) {
	const n = 20
	ctx := context.Background()
	f := setup(t, nil)
	crs := testutil.CreateCourse(t, f.courseRepo, f.instructor.ID, "Go 001", 0, true)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.RequestEnrollment(ctx, f.student.ID, crs.ID)
		}(i)
	}
	wg.Wait()

	var created int
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.Equal(t, enrollment.ErrAlreadyEnrolled, err)
	}
	assert.Equal(t, 1, created)
	assert.EqualValues(t, 1, f.enrollmentCount(t, crs.ID))
}
