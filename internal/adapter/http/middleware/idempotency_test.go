package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bank-ledger/internal/core/domain"
	"bank-ledger/internal/core/ports/mocks"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const depositKey = "user:alice:POST:/deposit:k1"

func idempotentRouter(cache *mocks.MockIdempotencyCache, calls *int) *gin.Engine {
	router := gin.New()
	router.POST("/deposit",
		withActor(domain.Actor{Username: "alice"}),
		Idempotency(cache, time.Hour, zerolog.Nop()),
		func(c *gin.Context) {
			*calls++
			c.JSON(http.StatusOK, gin.H{"balance": "10.00"})
		})
	return router
}

func postDeposit(router *gin.Engine, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/deposit", nil)
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIdempotency_FirstRequestIsStored(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockIdempotencyCache(ctrl)
	calls := 0

	cache.EXPECT().Get(gomock.Any(), depositKey).Return(nil, nil).Times(2)
	cache.EXPECT().Claim(gomock.Any(), depositKey, claimTTL).Return(true, nil)
	cache.EXPECT().Set(gomock.Any(), depositKey, gomock.Any(), time.Hour).DoAndReturn(
		func(_ context.Context, _ string, value []byte, _ time.Duration) error {
			var stored cachedResponse
			require.NoError(t, json.Unmarshal(value, &stored))
			assert.Equal(t, http.StatusOK, stored.Status)
			assert.JSONEq(t, `{"balance":"10.00"}`, string(stored.Body))
			return nil
		})
	cache.EXPECT().Release(gomock.Any(), depositKey).Return(nil)

	w := postDeposit(idempotentRouter(cache, &calls), "k1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, calls)
	assert.Empty(t, w.Header().Get(HeaderIdempotentReplay))
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockIdempotencyCache(ctrl)
	calls := 0

	stored, _ := json.Marshal(cachedResponse{Status: http.StatusOK, ContentType: "application/json", Body: []byte(`{"balance":"10.00"}`)})
	cache.EXPECT().Get(gomock.Any(), depositKey).Return(stored, nil)

	w := postDeposit(idempotentRouter(cache, &calls), "k1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, calls, "handler must not run on replay")
	assert.Equal(t, "true", w.Header().Get(HeaderIdempotentReplay))
	assert.JSONEq(t, `{"balance":"10.00"}`, w.Body.String())
}

func TestIdempotency_ReplaysResponseStoredBeforeClaim(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockIdempotencyCache(ctrl)
	calls := 0

	stored, _ := json.Marshal(cachedResponse{Status: http.StatusOK, ContentType: "application/json", Body: []byte(`{"balance":"10.00"}`)})
	gomock.InOrder(
		cache.EXPECT().Get(gomock.Any(), depositKey).Return(nil, nil),
		cache.EXPECT().Claim(gomock.Any(), depositKey, claimTTL).Return(true, nil),
		cache.EXPECT().Get(gomock.Any(), depositKey).Return(stored, nil),
		cache.EXPECT().Release(gomock.Any(), depositKey).Return(nil),
	)

	w := postDeposit(idempotentRouter(cache, &calls), "k1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, calls)
	assert.Equal(t, "true", w.Header().Get(HeaderIdempotentReplay))
}

// stallingCache is an in-process IdempotencyCache whose first Get blocks,
// after answering, until resume is closed.
type stallingCache struct {
	mu     sync.Mutex
	values map[string][]byte
	claims map[string]bool

	once    sync.Once
	stalled chan struct{}
	resume  chan struct{}
}

func newStallingCache() *stallingCache {
	return &stallingCache{
		values:  make(map[string][]byte),
		claims:  make(map[string]bool),
		stalled: make(chan struct{}),
		resume:  make(chan struct{}),
	}
}

func (c *stallingCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	v := c.values[key]
	c.mu.Unlock()

	first := false
	c.once.Do(func() { first = true })
	if first {
		close(c.stalled)
		<-c.resume
	}
	return v, nil
}

func (c *stallingCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *stallingCache) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claims[key] {
		return false, nil
	}
	c.claims[key] = true
	return true, nil
}

func (c *stallingCache) Release(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.claims, key)
	return nil
}

func TestIdempotency_RetryOverlappingCompletedRequestRunsOnce(t *testing.T) {
	cache := newStallingCache()
	var calls atomic.Int32

	router := gin.New()
	router.POST("/deposit",
		withActor(domain.Actor{Username: "alice"}),
		Idempotency(cache, time.Hour, zerolog.Nop()),
		func(c *gin.Context) {
			calls.Add(1)
			c.JSON(http.StatusOK, gin.H{"balance": "10.00"})
		})

	retry := make(chan *httptest.ResponseRecorder, 1)
	go func() { retry <- postDeposit(router, "k1") }()

	// The retry has looked the key up and found nothing; the original
	// request now runs to completion.
	<-cache.stalled
	first := postDeposit(router, "k1")
	require.Equal(t, http.StatusOK, first.Code)

	close(cache.resume)
	second := <-retry

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get(HeaderIdempotentReplay))
	assert.JSONEq(t, `{"balance":"10.00"}`, second.Body.String())
}

func TestIdempotency_ConcurrentDuplicateConflicts(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockIdempotencyCache(ctrl)
	calls := 0

	cache.EXPECT().Get(gomock.Any(), depositKey).Return(nil, nil)
	cache.EXPECT().Claim(gomock.Any(), depositKey, claimTTL).Return(false, nil)

	w := postDeposit(idempotentRouter(cache, &calls), "k1")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "IDEM_001")
	assert.Equal(t, 0, calls)
}

func TestIdempotency_CacheDownRunsHandler(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockIdempotencyCache(ctrl)
	calls := 0

	cache.EXPECT().Get(gomock.Any(), depositKey).Return(nil, errors.New("circuit breaker is open"))

	w := postDeposit(idempotentRouter(cache, &calls), "k1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, calls)
}

func TestIdempotency_NoHeaderPassesThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockIdempotencyCache(ctrl)
	calls := 0

	w := postDeposit(idempotentRouter(cache, &calls), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, calls)
}

func TestIdempotency_KeyTooLong(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockIdempotencyCache(ctrl)
	calls := 0

	w := postDeposit(idempotentRouter(cache, &calls), strings.Repeat("k", maxIdempotencyKeyLen+1))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
