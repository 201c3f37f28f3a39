// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package httpapi

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/samber/oops"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report JSON names in field errors.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// fieldErrors carries per-field validation messages to writeError.
type fieldErrors map[string]string

func (f fieldErrors) Error() string { return "validation failed" }

func asFieldErrors(err error) (map[string]string, bool) {
	var fe fieldErrors
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// decode reads a JSON body into dst and validates it. The body is read in
// full first so a MaxBytesReader limit surfaces as BODY_TOO_LARGE.
func decode(r *http.Request, dst any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return oops.Code("BODY_TOO_LARGE").With("limit", tooLarge.Limit).Wrap(err)
		}
		return oops.Code("INVALID_JSON").Wrapf(err, "read body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return oops.Code("INVALID_JSON").Errorf("request body is empty")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return oops.Code("INVALID_JSON").Wrap(err)
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return oops.Code("VALIDATION_FAILED").Wrap(err)
	}
	fields := make(fieldErrors, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describe(fe)
	}
	return oops.Code("VALIDATION_FAILED").Wrap(fields)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "numeric":
		return "must contain only digits"
	case "ulid":
		return "must be a valid identifier"
	default:
		return "is invalid"
	}
}
