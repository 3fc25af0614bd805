package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/goliatone/go-settings/pkg/guard"
)

// errorBody is the envelope for every failed request.
type errorBody struct {
	Code     guard.Code `json:"code"`
	Message  string     `json:"message"`
	Expected int64      `json:"expected,omitempty"`
	Current  int64      `json:"current,omitempty"`
}

// StatusFor maps a guard code to its HTTP status. Both conflict kinds are 409;
// clients tell them apart by code.
func StatusFor(code guard.Code) int {
	switch code {
	case guard.CodeValidation:
		return http.StatusUnprocessableEntity
	case guard.CodeNotFound:
		return http.StatusNotFound
	case guard.CodeVersionConflict, guard.CodeBusinessConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	code := guard.CodeOf(err)
	body := errorBody{Code: code}
	var guardErr *guard.Error
	if errors.As(err, &guardErr) {
		body.Message = guardErr.Message
		body.Expected = guardErr.Expected
		body.Current = guardErr.Current
	}
	if code == guard.CodeInternal {
		s.logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		body.Message = "internal error"
	} else if body.Message == "" {
		body.Message = err.Error()
	}
	c.AbortWithStatusJSON(StatusFor(code), body)
}

// invalid reports a malformed request body.
func (s *Server) invalid(c *gin.Context, err error) {
	s.fail(c, guard.Validation("request", "", "%s", describeBindError(err)))
}

func describeBindError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Sprintf("invalid request body: %v", err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
