package course

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/careercompass/core"
)

// Lesson types
const (
	LessonVideo    = "video"
	LessonExercise = "exercise"
	LessonLive     = "live"
	LessonProject  = "project"
)

// MaxRating is the highest stored rating, in tenths of a star.
const MaxRating = 50

var LessonTypes = []string{LessonVideo, LessonExercise, LessonLive, LessonProject}

type Course struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Slug            string    `json:"slug"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	PriceInCents    int64     `json:"price_in_cents"`
	Thumbnail       string    `json:"thumbnail"`
	InstructorID    string    `json:"instructor_id"`
	Published       bool      `json:"published"`
	Rating          int       `json:"-"` // 0-50
	EnrollmentCount int64     `json:"enrollment_count"`
	Duration        string    `json:"duration"`
	CreatedAt       time.Time `json:"created_at"` // UTC
	UpdatedAt       time.Time `json:"updated_at"` // UTC
}

// IsFree reports whether enrolling requires no payment.
func (c Course) IsFree() bool { return c.PriceInCents == 0 }

// Price is the price in major currency units, for display only.
func (c Course) Price() float64 { return float64(c.PriceInCents) / 100 }

// DisplayRating is the rating in stars, from 0 to 5.
func (c Course) DisplayRating() float64 { return float64(c.Rating) / 10 }

type Lesson struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"course_id"`
	Title       string    `json:"title"`
	VideoURL    string    `json:"video_url"`
	OrderIndex  int       `json:"order_index"`
	Duration    string    `json:"duration"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title        string  `json:"title" validate:"required,max=200"`
	Description  string  `json:"description" validate:"max=5000"`
	Category     string  `json:"category" validate:"omitempty,max=100"`
	PriceInCents int64   `json:"price_in_cents" validate:"min=0"`
	Thumbnail    string  `json:"thumbnail" validate:"omitempty,url"`
	Published    bool    `json:"published"`
	Rating       float64 `json:"rating" validate:"min=0,max=5"`
	Duration     string  `json:"duration" validate:"max=50"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	nc.Category = core.CleanString(nc.Category)
	nc.Thumbnail = core.CleanString(nc.Thumbnail)
	nc.Duration = core.CleanString(nc.Duration)
	return validate.Struct(nc)
}

// UpdateCourse defines what information may be provided to modify an existing Course.
// EnrollmentCount is not updatable: it only changes with enrollments.
type UpdateCourse struct {
	Title        *string  `json:"title" validate:"omitempty,min=1,max=200"`
	Description  *string  `json:"description" validate:"omitempty,max=5000"`
	Category     *string  `json:"category" validate:"omitempty,max=100"`
	PriceInCents *int64   `json:"price_in_cents" validate:"omitempty,min=0"`
	Thumbnail    *string  `json:"thumbnail" validate:"omitempty,url"`
	Published    *bool    `json:"published"`
	Rating       *float64 `json:"rating" validate:"omitempty,min=0,max=5"`
	Duration     *string  `json:"duration" validate:"omitempty,max=50"`
}

func (uc *UpdateCourse) Validate(validate *validator.Validate) error {
	for _, s := range []*string{uc.Title, uc.Description, uc.Category, uc.Thumbnail, uc.Duration} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	return validate.Struct(uc)
}

// NewLesson contains information needed to add a Lesson to a Course.
type NewLesson struct {
	CourseID    string `json:"course_id" validate:"required,uuid"`
	Title       string `json:"title" validate:"required,max=200"`
	VideoURL    string `json:"video_url" validate:"omitempty,url"`
	OrderIndex  int    `json:"order_index" validate:"min=0"`
	Duration    string `json:"duration" validate:"max=50"`
	Type        string `json:"type" validate:"omitempty,lessontype"`
	Description string `json:"description" validate:"max=5000"`
}

func (nl *NewLesson) Validate(validate *validator.Validate) error {
	nl.Title = core.CleanString(nl.Title)
	nl.VideoURL = core.CleanString(nl.VideoURL)
	nl.Type = core.CleanString(nl.Type, true /* lower */)
	nl.Description = core.CleanString(nl.Description)
	if nl.Type == "" {
		nl.Type = LessonVideo
	}
	return validate.Struct(nl)
}

type UpdateLesson struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=200"`
	VideoURL    *string `json:"video_url" validate:"omitempty,url"`
	OrderIndex  *int    `json:"order_index" validate:"omitempty,min=0"`
	Duration    *string `json:"duration" validate:"omitempty,max=50"`
	Type        *string `json:"type" validate:"omitempty,lessontype"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
}

func (ul *UpdateLesson) Validate(validate *validator.Validate) error {
	for _, s := range []*string{ul.Title, ul.VideoURL, ul.Duration, ul.Description} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	if ul.Type != nil {
		*ul.Type = strings.ToLower(core.CleanString(*ul.Type))
	}
	return validate.Struct(ul)
}

type GetFilter struct {
	ID   string
	Slug string
}

type QueryFilter struct {
	PublishedOnly bool   `query:"published"`
	Category      string `query:"category"`
	Search        string `query:"search"`
	InstructorID  string `query:"instructor"`
}

func (qf *QueryFilter) Clean() {
	qf.Category = core.CleanString(qf.Category)
	qf.Search = core.CleanString(qf.Search)
	qf.InstructorID = core.CleanString(qf.InstructorID)
}
