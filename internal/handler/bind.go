package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	appErrors "github.com/noah-isme/clinic-announcements-api/pkg/errors"
	"github.com/noah-isme/clinic-announcements-api/pkg/response"
)

// timestampFields are the body fields decoded into time.Time, in report order.
var timestampFields = []string{"publish_date", "expiry_date", "created_at", "updated_at"}

// pageQuery binds plain paging parameters.
type pageQuery struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}

// bindJSON decodes the body into dest. On failure it writes a validation error naming the
// malformed field when one can be identified and reports false.
func bindJSON(c *gin.Context, dest interface{}) bool {
	err := c.ShouldBindBodyWith(dest, binding.JSON)
	if err == nil {
		return true
	}
	response.Error(c, bodyError(c, err))
	return false
}

func bodyError(c *gin.Context, err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return appErrors.Validation(typeErr.Field, "must be "+jsonKind(typeErr.Type))
	}
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		if raw, ok := c.Get(gin.BodyBytesKey); ok {
			if body, ok := raw.([]byte); ok {
				if field := malformedTimestamp(body); field != "" {
					return appErrors.Validation(field, fmt.Sprintf("must be an RFC 3339 timestamp such as %q", time.RFC3339))
				}
			}
		}
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body")
}

// malformedTimestamp returns the first timestamp field in body that does not decode.
func malformedTimestamp(body []byte) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}
	for _, name := range timestampFields {
		value, ok := fields[name]
		if !ok || string(value) == "null" {
			continue
		}
		var ts time.Time
		if err := json.Unmarshal(value, &ts); err != nil {
			return name
		}
	}
	return ""
}

func jsonKind(t reflect.Type) string {
	if t == nil {
		return "a valid value"
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "a boolean"
	case reflect.Slice, reflect.Array:
		return "an array"
	case reflect.Struct, reflect.Map:
		return "an object"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "a number"
	default:
		return "a valid value"
	}
}
