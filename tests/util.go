// Package testutil holds fixtures shared by the test suites.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/mail"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/careercompass/core"
	"github.com/trezcool/careercompass/core/course"
	"github.com/trezcool/careercompass/core/enrollment"
	"github.com/trezcool/careercompass/core/lecture"
	"github.com/trezcool/careercompass/core/user"
	"github.com/trezcool/careercompass/storage/database"
)

// NewConfig returns a config suitable for tests: in-memory storage, no external services.
func NewConfig() *core.Config {
	return &core.Config{
		Env:                       "TEST",
		Build:                     "test",
		TestMode:                  true,
		AppName:                   "CareerCompass",
		SecretKey:                 "test-secret-key",
		FrontendBaseURL:           "http://front.test",
		DefaultFromEmail:          mail.Address{Name: "CareerCompass", Address: "noreply@careercompass.test"},
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		ReconcileSchedule:         "@every 1h",
		WorkDir:                   core.Getwd(),
		Server: core.ServerConfig{
			Host:                      "127.0.0.1:0",
			DebugHost:                 "127.0.0.1:0",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 30 * time.Minute,
		},
		Database: core.DatabaseConfig{
			Engine:        "memory",
			Host:          "localhost",
			Port:          "5432",
			Name:          "careercompass_test",
			User:          "careercompass",
			Password:      "careercompass",
			AdminUser:     "postgres",
			AdminPassword: "postgres",
			DisableTLS:    true,
		},
		Stripe: core.StripeConfig{
			WebhookSecret: "whsec_test",
			Currency:      "usd",
			Timeout:       time.Second,
		},
		Email: core.EmailConfig{Timeout: time.Second},
	}
}

// LogEntry is one call recorded by Logger.
type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// Logger records log calls instead of printing them.
type Logger struct {
	mu      sync.Mutex
	entries []LogEntry
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: args})
	l.mu.Unlock()
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("fatal", msg, args) }

// Entries returns the recorded calls of the given level ("" for all).
func (l *Logger) Entries(level string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]LogEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if level == "" || e.Level == level {
			entries = append(entries, e)
		}
	}
	return entries
}

func (l *Logger) Reset() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if role == "" {
		role = user.RoleStudent
	}
	usr := user.User{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd == "" {
		pwd = uuid.NewString()
	}
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateCourse(t *testing.T, repo course.Repository, instructorID, title string, priceInCents int64, published bool) course.Course {
	t.Helper()

	now := time.Now().UTC()
	c, err := repo.CreateCourse(context.Background(), course.Course{
		ID:           uuid.NewString(),
		Title:        title,
		Slug:         fmt.Sprintf("course-%s", uuid.NewString()[:8]),
		Description:  title + " description",
		Category:     "Programming",
		PriceInCents: priceInCents,
		InstructorID: instructorID,
		Published:    published,
		Rating:       45,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return c
}

func CreateLesson(t *testing.T, repo course.Repository, courseID, title string, orderIndex int) course.Lesson {
	t.Helper()

	l, err := repo.CreateLesson(context.Background(), course.Lesson{
		ID:         uuid.NewString(),
		CourseID:   courseID,
		Title:      title,
		OrderIndex: orderIndex,
		Type:       course.LessonVideo,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateLesson() failed: %v", err)
	}
	return l
}

func CreateLecture(t *testing.T, repo lecture.Repository, courseID, instructorID, status string, scheduledAt time.Time) lecture.LiveLecture {
	t.Helper()

	l, err := repo.CreateLecture(context.Background(), lecture.LiveLecture{
		ID:              uuid.NewString(),
		CourseID:        courseID,
		Title:           "Live Q&A",
		ScheduledAt:     scheduledAt.UTC(),
		DurationMinutes: 60,
		Status:          status,
		InstructorID:    instructorID,
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateLecture() failed: %v", err)
	}
	return l
}

// PrepareDB connects to the test Postgres database, migrates it & empties its tables.
// The test is skipped when no database is reachable.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping Postgres tests in short mode")
	}
	conf := core.NewConfig()
	conf.Database.Engine = "postgres"
	conf.Database.Name = "careercompass_test"

	conn, err := net.DialTimeout("tcp", conf.Database.Address(), time.Second)
	if err != nil {
		t.Skipf("no Postgres at %s: %v", conf.Database.Address(), err)
	}
	_ = conn.Close()

	if err = database.CreateIfNotExist(conf); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	ResetDB(t, db)
	return db
}

func ResetDB(t *testing.T, db *sqlx.DB) {
	t.Helper()

	if _, err := db.Exec("TRUNCATE users, courses, lessons, enrollments, progress, live_lectures CASCADE"); err != nil {
		t.Fatalf("ResetDB() failed: %v", err)
	}
}

// Gateway is a fake payment gateway. Its webhook payloads are JSON encoded enrollment.PaymentEvent
// values, authenticated when the signature equals Signature.
type Gateway struct {
	Signature   string
	CheckoutURL string
	Err         error // returned by CreateCheckoutSession when set

	mu       sync.Mutex
	requests []enrollment.CheckoutRequest
}

var _ enrollment.PaymentGateway = (*Gateway)(nil)

func NewGateway() *Gateway {
	return &Gateway{Signature: "valid-signature", CheckoutURL: "https://checkout.test/session"}
}

func (g *Gateway) CreateCheckoutSession(_ context.Context, req enrollment.CheckoutRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.requests = append(g.requests, req)
	if g.Err != nil {
		return "", g.Err
	}
	return g.CheckoutURL + "/" + req.CourseID, nil
}

func (g *Gateway) ParseWebhook(payload []byte, signature string) (enrollment.PaymentEvent, error) {
	if signature != g.Signature {
		return enrollment.PaymentEvent{}, enrollment.ErrInvalidSignature
	}
	var evt enrollment.PaymentEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return enrollment.PaymentEvent{}, enrollment.ErrInvalidSignature
	}
	return evt, nil
}

// CheckoutRequests returns the checkout sessions requested so far.
func (g *Gateway) CheckoutRequests() []enrollment.CheckoutRequest {
	g.mu.Lock()
	defer g.mu.Unlock()

	reqs := make([]enrollment.CheckoutRequest, len(g.requests))
	copy(reqs, g.requests)
	return reqs
}

// WebhookPayload encodes a payment event the way Gateway expects it.
func WebhookPayload(t *testing.T, evt enrollment.PaymentEvent) []byte {
	t.Helper()

	payload, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("WebhookPayload() failed: %v", err)
	}
	return payload
}

// PaidEvent returns a checkout completion event for the (user, course) pair.
func PaidEvent(userID, courseID, ref string) enrollment.PaymentEvent {
	return enrollment.PaymentEvent{
		ID:               "evt_" + uuid.NewString()[:8],
		Type:             enrollment.EventCheckoutCompleted,
		UserID:           userID,
		CourseID:         courseID,
		PaymentReference: ref,
	}
}
