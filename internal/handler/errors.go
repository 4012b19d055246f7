package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/response"
	"github.com/stemsi/examcore/internal/service"
)

// codes maps specific domain errors to their API code. Order matters only
// in that the first match wins.
var codes = []struct {
	err  error
	code response.ErrCode
}{
	{service.ErrExamNotFound, response.ErrExamNotFound},
	{service.ErrQuestionNotFound, response.ErrQuestionNotFound},
	{service.ErrAttemptNotFound, response.ErrAttemptNotFound},
	{service.ErrActiveAttemptExists, response.ErrAttemptExists},
	{service.ErrExamNotAvailable, response.ErrExamNotAvailable},
	{service.ErrDeadlinePassed, response.ErrDeadlinePassed},
	{service.ErrAttemptNotInProgress, response.ErrAttemptNotInProgress},
	{service.ErrAttemptInProgress, response.ErrAttemptInProgress},
	{service.ErrTimeLimitExceeded, response.ErrTimeLimitExceeded},
	{service.ErrAttemptLimitReached, response.ErrAttemptLimitReached},
	{service.ErrAttemptNotGraded, response.ErrAttemptNotGraded},
	{service.ErrNotExamOwner, response.ErrNotExamOwner},
	{service.ErrNotAttemptOwner, response.ErrNotAttemptOwner},
	{service.ErrNotEnrolled, response.ErrNotEnrolled},
	{service.ErrQuestionNotInExam, response.ErrQuestionNotInExam},
	{service.ErrInvalidAnswer, response.ErrInvalidAnswer},
	{service.ErrInvalidQuestion, response.ErrInvalidQuestion},
	{service.ErrInvalidCredentials, response.ErrInvalidCredentials},
	{service.ErrSessionInvalidated, response.ErrSessionInvalidated},
}

// kinds maps error kinds to HTTP status and a fallback code.
var kinds = []struct {
	err    error
	status int
	code   response.ErrCode
}{
	{service.ErrNotFound, http.StatusNotFound, response.ErrNotFound},
	{service.ErrConflict, http.StatusConflict, response.ErrConflict},
	{service.ErrInvalidState, http.StatusConflict, response.ErrInvalidState},
	{service.ErrForbidden, http.StatusForbidden, response.ErrForbidden},
	{service.ErrValidation, http.StatusUnprocessableEntity, response.ErrValidation},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, response.ErrInvalidCredentials},
	{service.ErrSessionInvalidated, http.StatusUnauthorized, response.ErrSessionInvalidated},
}

// classify returns the HTTP status and code for err. Unknown errors are
// internal.
func classify(err error) (int, response.ErrCode) {
	status, code := http.StatusInternalServerError, response.ErrInternal
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			status, code = k.status, k.code
			break
		}
	}
	if status == http.StatusInternalServerError {
		return status, code
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return status, c.code
		}
	}
	return status, code
}

// writeError sends the error envelope for err. Internal errors are logged
// and their text is never sent to the client.
func writeError(c *gin.Context, log zerolog.Logger, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Msg("Request failed")
		response.Fail(c, status, code)
		return
	}

	// Validation details (which option, which field) help clients fix input.
	if status == http.StatusUnprocessableEntity {
		response.FailWithMessage(c, status, code, err.Error())
		return
	}
	response.Fail(c, status, code)
}

// pathUUID parses a uuid path parameter, answering 400 when it is malformed.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// pageQuery reads ?page=&per_page=.
func pageQuery(c *gin.Context) service.Page {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	return service.Page{Page: page, PerPage: perPage}.Normalize()
}
