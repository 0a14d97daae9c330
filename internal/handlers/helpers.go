package handlers

import (
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"intake/internal/services"
	"intake/internal/validator"
)

var requests = validator.New()

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// errorStatus maps a service error onto an HTTP status and a client safe message.
func errorStatus(err error) (int, string) {
	kind := services.KindOf(err)
	switch kind {
	case services.KindValidation:
		return http.StatusBadRequest, err.Error()
	case services.KindNotFound:
		return http.StatusNotFound, err.Error()
	case services.KindConflict:
		return http.StatusConflict, err.Error()
	case services.KindCollision:
		if errors.Is(err, services.ErrIdentifierExhausted) {
			return http.StatusServiceUnavailable, "could not allocate a session, try again"
		}
		return http.StatusConflict, err.Error()
	case services.KindRateLimited:
		return http.StatusTooManyRequests, rootMessage(err)
	case services.KindExpired:
		return http.StatusGone, "code expired, please request a new one"
	case services.KindAttemptsExhausted:
		return http.StatusLocked, "too many attempts, please start verification again"
	case services.KindDependency:
		return http.StatusServiceUnavailable, "temporarily unavailable, try again"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func respondError(c *gin.Context, op string, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[http][%s] path=%s status=%d err=%v", op, c.FullPath(), status, err)
	}
	setRetryAfter(c, err)
	c.JSON(status, ErrorResponse{Error: msg, Code: services.KindOf(err).String()})
}

func setRetryAfter(c *gin.Context, err error) {
	wait, ok := services.RetryAfter(err)
	if !ok {
		if !errors.Is(err, services.ErrIdentifierExhausted) {
			return
		}
		wait = time.Second
	}
	secs := int(math.Ceil(wait.Seconds()))
	c.Header("Retry-After", strconv.Itoa(max(secs, 1)))
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: services.KindValidation.String()})
}

// bindJSON decodes the body into req and checks its validate tags. On failure
// it has already answered 400.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, err)
		return false
	}
	if err := requests.Struct(req); err != nil {
		badRequest(c, err)
		return false
	}
	return true
}
