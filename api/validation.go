package api

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationDetail names one rejected request field.
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names so clients see the field they sent.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest checks struct tags and writes a 400 on failure. It reports
// whether the request may proceed.
func validateRequest(w http.ResponseWriter, req any) bool {
	err := validate.Struct(req)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeError(w, http.StatusBadRequest, "Request validation failed", err)
		return false
	}
	details := make([]ValidationDetail, 0, len(verrs))
	for _, e := range verrs {
		details = append(details, ValidationDetail{Field: e.Field(), Message: validationMessage(e)})
	}
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Request validation failed", Details: details})
	return false
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "max":
		return "Must be at most " + e.Param() + " characters"
	case "datetime":
		return "Must match layout " + e.Param()
	default:
		return "Invalid value"
	}
}
