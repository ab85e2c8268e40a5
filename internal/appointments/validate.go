package appointments

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateIntake checks the submitted form and returns a *ValidationError
// naming every missing required field before any other problem.
func ValidateIntake(in *Intake) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Message: "invalid appointment request"}
	}

	var missing, invalid []string
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			missing = append(missing, fe.Field())
		case "oneof":
			invalid = append(invalid, fe.Field()+" must be one of "+strings.Join(splitOneOf(fe.Param()), ", "))
		default:
			invalid = append(invalid, fe.Field()+" is invalid")
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Message: "missing required fields: " + strings.Join(missing, ", ")}
	}
	return &ValidationError{Message: strings.Join(invalid, "; ")}
}

// splitOneOf splits a oneof parameter, keeping single-quoted values whole.
func splitOneOf(param string) []string {
	var out []string
	for param != "" {
		param = strings.TrimLeft(param, " ")
		if param == "" {
			break
		}
		if param[0] == '\'' {
			end := strings.IndexByte(param[1:], '\'')
			if end < 0 {
				out = append(out, param[1:])
				break
			}
			out = append(out, param[1:end+1])
			param = param[end+2:]
			continue
		}
		next := strings.IndexByte(param, ' ')
		if next < 0 {
			out = append(out, param)
			break
		}
		out = append(out, param[:next])
		param = param[next:]
	}
	return out
}
