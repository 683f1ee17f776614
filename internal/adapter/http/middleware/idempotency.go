package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"bank-ledger/internal/core/ports"
	"bank-ledger/pkg/apperror"
	"bank-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	HeaderIdempotentReplay = "Idempotent-Replayed"

	maxIdempotencyKeyLen = 128
	claimTTL             = 30 * time.Second
)

// cachedResponse is what gets stored per idempotency key.
type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// bodyCapture tees the response body so it can be cached after the handler runs.
type bodyCapture struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyCapture) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyCapture) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response of a mutating request that repeats
// an Idempotency-Key. Keys are scoped per caller, method and path. Responses
// below 500 are stored for ttl; a concurrent duplicate gets 409 while the
// first is in flight. When the cache is unavailable the request runs
// without replay protection. Must run after JWTAuth.
func Idempotency(cache ports.IdempotencyCache, ttl time.Duration, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderIdempotencyKey)
		if raw == "" || (c.Request.Method != http.MethodPost && c.Request.Method != http.MethodDelete) {
			c.Next()
			return
		}
		if len(raw) > maxIdempotencyKeyLen {
			response.Error(c, apperror.Validation("Idempotency-Key is too long"))
			c.Abort()
			return
		}

		key := extractIdentifier(c) + ":" + c.Request.Method + ":" + c.Request.URL.Path + ":" + raw
		ctx := c.Request.Context()

		cached, err := cache.Get(ctx, key)
		if err != nil {
			log.Warn().Err(err).Msg("idempotency lookup failed, serving without replay protection")
			c.Next()
			return
		}
		if replay(c, cached, raw, log) {
			return
		}

		claimed, err := cache.Claim(ctx, key, claimTTL)
		if err != nil {
			log.Warn().Err(err).Msg("idempotency claim failed, serving without replay protection")
			c.Next()
			return
		}
		if !claimed {
			response.Error(c, apperror.ErrRequestInProgress())
			c.Abort()
			return
		}
		defer func() {
			if err := cache.Release(context.WithoutCancel(ctx), key); err != nil {
				log.Warn().Err(err).Msg("idempotency release failed")
			}
		}()

		// The first request may have stored its response and released the
		// claim between the lookup above and this claim.
		cached, err = cache.Get(ctx, key)
		if err != nil {
			log.Warn().Err(err).Msg("idempotency lookup failed, serving without replay protection")
		} else if replay(c, cached, raw, log) {
			return
		}

		capture := &bodyCapture{ResponseWriter: c.Writer}
		c.Writer = capture
		c.Next()

		status := c.Writer.Status()
		if status >= http.StatusInternalServerError {
			return
		}

		payload, err := json.Marshal(cachedResponse{
			Status:      status,
			ContentType: c.Writer.Header().Get("Content-Type"),
			Body:        capture.buf.Bytes(),
		})
		if err != nil {
			return
		}
		if err := cache.Set(context.WithoutCancel(ctx), key, payload, ttl); err != nil {
			log.Warn().Err(err).Msg("idempotency store failed")
		}
	}
}

// replay writes a stored response and aborts the chain. It reports false
// when nothing usable is stored.
func replay(c *gin.Context, cached []byte, raw string, log zerolog.Logger) bool {
	if cached == nil {
		return false
	}
	var resp cachedResponse
	if err := json.Unmarshal(cached, &resp); err != nil {
		log.Warn().Str("key", raw).Msg("discarding unreadable idempotency entry")
		return false
	}
	c.Header(HeaderIdempotentReplay, "true")
	c.Data(resp.Status, resp.ContentType, resp.Body)
	c.Abort()
	return true
}
