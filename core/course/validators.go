package course

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/careercompass/core"
)

var (
	lessonTypeTag  = "lessontype"
	lessonTypeText = "must be one of video, exercise, live or project"
)

// InitValidators registers the course validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(lessonTypeTag, lessonTypeValidation)
	core.RegisterCustomTranslation(validate, translator, lessonTypeTag, lessonTypeText)
}

func lessonTypeValidation(fl validator.FieldLevel) bool {
	typ := fl.Field().String()
	for _, t := range LessonTypes {
		if typ == t {
			return true
		}
	}
	return false
}
