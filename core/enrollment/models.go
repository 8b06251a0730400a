package enrollment

import (
	"context"
	"time"
)

// Enrollment grants a User access to a Course.
// PaymentReference is set iff the course was paid & the payment was confirmed.
type Enrollment struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	CourseID         string    `json:"course_id"`
	PurchasedAt      time.Time `json:"purchased_at"` // UTC
	PaymentReference *string   `json:"payment_reference"`
}

func (e Enrollment) IsPaid() bool { return e.PaymentReference != nil }

// InsertOutcome tells whether an insert created the row or lost to an existing one.
type InsertOutcome int

const (
	Created InsertOutcome = iota + 1
	AlreadyExists
)

func (o InsertOutcome) String() string {
	switch o {
	case Created:
		return "created"
	case AlreadyExists:
		return "already exists"
	default:
		return "unknown"
	}
}

type Repository interface {
	// GetEnrollment returns ErrNotFound when the user is not enrolled in the course.
	GetEnrollment(ctx context.Context, userID, courseID string) (Enrollment, error)
	// ListEnrollments returns the user's enrollments, most recent first.
	ListEnrollments(ctx context.Context, userID string) ([]Enrollment, error)
	// InsertEnrollment inserts the enrollment & increments the course's enrollment count
	// in one atomic unit. When an enrollment already exists for the (user, course) pair,
	// including one created by a concurrent insert, nothing is written and the existing
	// enrollment is returned with AlreadyExists.
	// Returns course.ErrNotFound when the course does not exist.
	InsertEnrollment(ctx context.Context, e Enrollment) (Enrollment, InsertOutcome, error)
}

// Result is the outcome of an enrollment request: either the enrollment (free course)
// or the URL of the checkout page to redirect the user to (paid course).
type Result struct {
	Enrollment  *Enrollment `json:"enrollment,omitempty"`
	CheckoutURL string      `json:"checkout_url,omitempty"`
}

// Outcome is the result of applying a payment webhook event.
type Outcome string

const (
	Applied   Outcome = "applied"
	Duplicate Outcome = "duplicate"
	Ignored   Outcome = "ignored"
)
