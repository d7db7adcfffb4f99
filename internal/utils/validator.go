package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// ValidationErrorDetail describes one rejected field.
type ValidationErrorDetail struct {
	Field    string      `json:"field"`
	Message  string      `json:"message"`
	Expected string      `json:"expected"`
	Received interface{} `json:"received"`
}

// ValidationErrorData is the data field of a 400 binding response.
type ValidationErrorData struct {
	Errors        []ValidationErrorDetail `json:"errors"`
	Documentation string                  `json:"documentation"`
}

const DocumentationLink = "/api/v1/docs"

// BindAndValidate binds the JSON body into obj. On failure it writes a 400
// listing every rejected field and returns false.
func BindAndValidate(c *gin.Context, obj interface{}) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}

	c.JSON(http.StatusBadRequest, Response{
		Status:  http.StatusBadRequest,
		Message: "Invalid request parameters",
		Detail:  "Invalid request parameters",
		Data: ValidationErrorData{
			Errors:        describeBindError(err),
			Documentation: DocumentationLink,
		},
	})
	return false
}

func describeBindError(err error) []ValidationErrorDetail {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		out := make([]ValidationErrorDetail, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			out = append(out, describeFieldError(fe))
		}
		return out
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return []ValidationErrorDetail{{
			Field:    typeErr.Field,
			Message:  fmt.Sprintf("Field '%s' has invalid type", typeErr.Field),
			Expected: typeErr.Type.String(),
			Received: typeErr.Value,
		}}
	}

	return []ValidationErrorDetail{{
		Field:    "body",
		Message:  "Malformed JSON or invalid request body",
		Expected: "valid JSON",
		Received: "invalid",
	}}
}

func describeFieldError(fe validator.FieldError) ValidationErrorDetail {
	field, param := fe.Field(), fe.Param()
	d := ValidationErrorDetail{
		Field:    field,
		Message:  fmt.Sprintf("Field validation for '%s' failed on the '%s' tag", field, fe.Tag()),
		Expected: param,
		Received: fe.Value(),
	}
	if d.Expected == "" {
		d.Expected = fe.Tag()
	}

	switch fe.Tag() {
	case "required":
		d.Message = fmt.Sprintf("Field '%s' is required", field)
		d.Expected = "not null"
	case "email":
		d.Message = fmt.Sprintf("Field '%s' must be a valid email address", field)
		d.Expected = "email format"
	case "min":
		d.Message = fmt.Sprintf("Field '%s' must be at least %s characters long", field, param)
		d.Expected = "min length " + param
	case "max":
		d.Message = fmt.Sprintf("Field '%s' must be at most %s characters long", field, param)
		d.Expected = "max length " + param
	case "oneof":
		d.Message = fmt.Sprintf("Field '%s' must be one of: %s", field, param)
		d.Expected = "one of " + param
	}
	return d
}
