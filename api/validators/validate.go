package validators

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/angelmondragon/offers-backend/pkg/errors"
)

// codePattern matches offer and store codes as they appear in the ledger and
// the feature configuration document.
var codePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

var validate = newValidator()

// newValidator reports fields by their query name and registers the "code" tag.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name, _, _ := strings.Cut(f.Tag.Get("query"), ","); name != "" {
			return name
		}
		return f.Name
	})
	if err := v.RegisterValidation("code", func(fl validator.FieldLevel) bool {
		return codePattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

func formatValidationErrors(err error) *pkgerrors.Error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(fieldErrs))
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := validationMessage(fe)
		details[fe.Field()] = msg
		problems = append(problems, fe.Field()+" "+msg)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid query: "+strings.Join(problems, ", ")).WithDetails(details)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return "must be one of " + fe.Param()
	case "uuid":
		return "must be a uuid"
	case "code":
		return "may only contain letters, digits, '.', '_' and '-'"
	default:
		return "is invalid"
	}
}
