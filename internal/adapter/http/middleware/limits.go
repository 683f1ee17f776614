package middleware

import (
	"errors"
	"net/http"

	"bank-ledger/pkg/apperror"
	"bank-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"
)

// MaxBodySize returns middleware that limits the request body size.
// Once the limit is exceeded the reader returns an error and binding fails.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// IsBodyTooLarge reports whether err came from a body cut off by MaxBodySize.
func IsBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// MaxInFlight sheds load once n requests are being served: further requests
// get 503 immediately instead of queueing on row locks. n <= 0 disables it.
func MaxInFlight(n int64) gin.HandlerFunc {
	if n <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	sem := semaphore.NewWeighted(n)
	return func(c *gin.Context) {
		if !sem.TryAcquire(1) {
			c.Header("Retry-After", "1")
			response.Error(c, apperror.ErrServerBusy())
			c.Abort()
			return
		}
		defer sem.Release(1)
		c.Next()
	}
}
