package handler // handler defines http handlers

import (
	"errors"
	"log"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/museum-checkout/internal/middleware"
	"github.com/iliyamo/museum-checkout/internal/service"
)

// maxIdempotencyKey matches transactions.idempotency_key.
const maxIdempotencyKey = 128

// RequestValidator plugs go-playground/validator into echo (e.Validator).
// Field names in errors follow the json tags.
type RequestValidator struct {
	v *validator.Validate
}

// NewValidator returns a RequestValidator.
func NewValidator() *RequestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{v: v}
}

// Validate implements echo.Validator.  The first failing field is reported
// as a *service.ValidationError.
func (rv *RequestValidator) Validate(i interface{}) error {
	err := rv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	msg := "failed " + fe.Tag()
	if fe.Param() != "" {
		msg += "=" + fe.Param()
	}
	return &service.ValidationError{Field: field, Message: msg}
}

// actorFrom reads the principal stored by middleware.JWTAuth.  Guests get
// the zero Actor.
func actorFrom(c echo.Context) service.Actor {
	id, _ := c.Get(middleware.CtxUserID).(uint64)
	role, _ := c.Get(middleware.CtxRole).(string)
	return service.Actor{UserID: id, Role: role}
}

// bindAndValidate decodes the JSON body into dst and runs the validator.
func bindAndValidate(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return &service.ValidationError{Field: "body", Message: "malformed JSON body"}
	}
	if c.Echo().Validator == nil {
		return nil
	}
	return c.Validate(dst)
}

// idempotencyKey reads the optional Idempotency-Key header.
func idempotencyKey(c echo.Context) (string, error) {
	key := strings.TrimSpace(c.Request().Header.Get("Idempotency-Key"))
	if len(key) > maxIdempotencyKey {
		return "", &service.ValidationError{Field: "Idempotency-Key", Message: "at most 128 characters"}
	}
	return key, nil
}

func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, &service.ValidationError{Field: name, Message: "must be a positive integer"}
	}
	return id, nil
}

// writeError maps the service error taxonomy onto a status code and a
// JSON body {error, code, ...}.  Unclassified errors are logged and
// reported as 500 without detail.
func writeError(c echo.Context, err error) error {
	var (
		ve  *service.ValidationError
		ins *service.InsufficientError
		te  *service.TransientError
	)
	code := service.Code(err)
	body := echo.Map{"error": err.Error(), "code": code}
	status := http.StatusInternalServerError

	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
		body["field"] = ve.Field
	case errors.As(err, &ins):
		status = http.StatusConflict
		body["resource"] = ins.Resource
		body["id"] = ins.ID
		body["requested"] = ins.Requested
		body["remaining"] = ins.Remaining
		if ins.Resource == "event" {
			body["remaining_spots"] = ins.Remaining
		}
	case errors.As(err, &te):
		status = http.StatusServiceUnavailable
		body["error"] = "temporary store failure, retry with the same Idempotency-Key"
		c.Response().Header().Set("Retry-After", "1")
	case code == service.CodeIntegrity:
		status = http.StatusConflict
		body["error"] = "conflicting write, nothing was saved"
	case code == service.CodeForbidden, code == service.CodeMembershipRequired:
		status = http.StatusForbidden
	case code == service.CodeNotFound:
		status = http.StatusNotFound
	case code == service.CodeUnavailable, code == service.CodePriceMismatch, code == service.CodeIdempotencyConflict:
		status = http.StatusConflict
	default:
		log.Printf("handler: %s %s: %v", c.Request().Method, c.Path(), err)
		body = echo.Map{"error": "internal error", "code": "internal"}
	}
	return c.JSON(status, body)
}
