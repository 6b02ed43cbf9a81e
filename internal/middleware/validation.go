package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "diveops/internal/errors"
)

// DefaultMaxBodySize caps request bodies accepted by the JSON API
const DefaultMaxBodySize = 1 << 20

// Validator decodes JSON request bodies and checks their struct tags.
// Errors name fields by their json tag.
type Validator struct {
	validate    *validator.Validate
	maxBodySize int64
}

// NewValidator creates a Validator
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v, maxBodySize: DefaultMaxBodySize}
}

// Struct validates v
func (m *Validator) Struct(v interface{}) error {
	return m.validate.Struct(v)
}

// DecodeJSON reads the request body into v and validates it. An empty
// body decodes as the zero value so tag validation reports what is missing.
func (m *Validator) DecodeJSON(r *http.Request, v interface{}) error {
	if r.Body != nil && r.ContentLength != 0 {
		r.Body = http.MaxBytesReader(nil, r.Body, m.maxBodySize)
		if err := render.DecodeJSON(r.Body, v); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return apierrors.NewWithDetails(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
					"Request body exceeds maximum allowed size", map[string]int64{"max_size": tooLarge.Limit})
			}
			return apierrors.InvalidRequestWithError(err)
		}
	}
	if err := m.Struct(v); err != nil {
		return fmt.Errorf("validate request: %w", err)
	}
	return nil
}

// BodyLimit rejects requests that declare a body larger than max
func BodyLimit(max int64, handler *apierrors.ErrorHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > max {
				handler.HandleError(w, r, apierrors.NewWithDetails(
					http.StatusRequestEntityTooLarge,
					"PAYLOAD_TOO_LARGE",
					"Request body exceeds maximum allowed size",
					map[string]int64{"max_size": max, "size": r.ContentLength},
				))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ContentTypeJSON requires a JSON content type on requests with a body
func ContentTypeJSON(handler *apierrors.ErrorHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength == 0 || r.Method == http.MethodGet || r.Method == http.MethodDelete {
				next.ServeHTTP(w, r)
				return
			}
			if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
				handler.HandleError(w, r, apierrors.NewWithDetails(
					http.StatusUnsupportedMediaType,
					"UNSUPPORTED_MEDIA_TYPE",
					"Content-Type must be application/json",
					map[string]string{"content_type": ct},
				))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
