package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"

	"catcharity/internal/auth"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

var requestValidator = newRequestValidator()

var textPolicy = bluemonday.StrictPolicy()

func newRequestValidator() *validator.Validate {
	v := validator.New()
	// max counts runes; bcrypt limits the encoded byte length.
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= auth.MaxPasswordBytes
	})
	return v
}

func decodeAndValidate(body io.Reader, dst any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body")
	}

	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body")
	}

	return validateStruct(dst)
}

func validateStruct(dst any) error {
	if err := requestValidator.Struct(dst); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok && len(validationErrors) > 0 {
			first := validationErrors[0]
			field := strings.ToLower(first.Field())
			switch first.Tag() {
			case "required":
				return fmt.Errorf("%s is required", field)
			case "email":
				return fmt.Errorf("invalid email format")
			case "min", "max", "password":
				return fmt.Errorf("%s is out of range", field)
			case "alphanum":
				return fmt.Errorf("%s must contain only letters and digits", field)
			default:
				return fmt.Errorf("invalid %s", field)
			}
		}

		return fmt.Errorf("invalid request payload")
	}

	return nil
}

// sanitizeText strips all markup from user supplied text. The result is
// stored as plain text, so escaped entities are decoded again.
func sanitizeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}
