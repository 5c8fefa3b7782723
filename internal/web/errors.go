package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/playback"
	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/remote"
	"github.com/jhighllight/MusicGeneration-SeochoAI/internal/task"
)

// statusFor maps a controller error to an HTTP status and the text shown
// to the user.
func statusFor(err error) (int, string) {
	var (
		subErr    *task.SubmitError
		streamErr *playback.StreamError
		apiErr    *remote.APIError
	)
	switch {
	case errors.Is(err, task.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, task.ErrBusy), errors.Is(err, task.ErrCanceled):
		return http.StatusConflict, err.Error()
	case errors.Is(err, playback.ErrNotLoaded):
		return http.StatusConflict, err.Error()
	case errors.Is(err, task.ErrClosed), errors.Is(err, playback.ErrDisposed):
		return http.StatusServiceUnavailable, err.Error()
	case errors.As(err, &subErr):
		if errors.As(err, &apiErr) && apiErr.Validation() {
			return http.StatusUnprocessableEntity, subErr.Message
		}
		return http.StatusBadGateway, subErr.Message
	case errors.As(err, &streamErr):
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, playback.ErrAssetNotFound), errors.Is(err, remote.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, err.Error()
	}
	return http.StatusInternalServerError, "internal error"
}

func writeError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
