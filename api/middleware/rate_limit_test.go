package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/numberpool/internal/identity"
	"github.com/angelmondragon/numberpool/pkg/enums"
	pkgerrors "github.com/angelmondragon/numberpool/pkg/errors"
)

type fakeWindowStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeWindowStore() *fakeWindowStore {
	return &fakeWindowStore{counts: make(map[string]int64)}
}

func (f *fakeWindowStore) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if f.err != nil {
		return false, 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestClientRateLimitBlocksAfterBurst(t *testing.T) {
	t.Parallel()

	handler := ClientRateLimit(0.001, 2, nil)(okHandler())
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products/1/numbers/3", nil)
		req.RemoteAddr = "1.2.3.4:5678"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		switch {
		case i < 2 && rec.Code != http.StatusOK:
			t.Fatalf("expected success within burst, got %d", rec.Code)
		case i == 2:
			if rec.Code != http.StatusTooManyRequests {
				t.Fatalf("expected 429, got %d", rec.Code)
			}
			if code := errorCode(t, rec); code != string(pkgerrors.CodeRateLimit) {
				t.Fatalf("unexpected code: %s", code)
			}
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/1/numbers/3", nil)
	req.RemoteAddr = "5.6.7.8:5678"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("other clients keep their own bucket, got %d", rec.Code)
	}
}

func TestClientLimitersForgetIdleClients(t *testing.T) {
	t.Parallel()

	limiters := newClientLimiters(1, 1)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	limiters.allow("1.1.1.1", now)
	limiters.allow("2.2.2.2", now.Add(clientLimiterIdle+time.Second))
	limiters.allow("2.2.2.2", now.Add(2*clientLimiterIdle+2*time.Second))

	if _, ok := limiters.clients["1.1.1.1"]; ok {
		t.Fatalf("expected idle client to be evicted")
	}
}

func TestActorRateLimitUsesActorScope(t *testing.T) {
	t.Parallel()

	store := newFakeWindowStore()
	handler := ActorRateLimit(store, 1, time.Minute, nil)(okHandler())
	actor := identity.Actor{ID: "guest_abc", Kind: enums.ActorKindGuest, SessionKey: "guest:abc"}

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/lines", nil)
		req = req.WithContext(identity.WithActor(req.Context(), actor))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("request %d: expected %d, got %d", i, want, rec.Code)
		}
	}
	if store.counts["actor:guest_abc"] != 2 {
		t.Fatalf("expected actor scoped counter, got %+v", store.counts)
	}
}

func TestActorRateLimitSurfacesStoreFailure(t *testing.T) {
	t.Parallel()

	store := newFakeWindowStore()
	store.err = errors.New("redis down")
	handler := ActorRateLimit(store, 5, time.Minute, nil)(okHandler())
	actor := identity.Actor{ID: "42", Kind: enums.ActorKindAccount, SessionKey: "account:42"}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/lines", nil)
	req = req.WithContext(identity.WithActor(req.Context(), actor))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if code := errorCode(t, rec); code != string(pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %s", code)
	}
}

func TestActorRateLimitPassesAnonymousRequests(t *testing.T) {
	t.Parallel()

	handler := ActorRateLimit(newFakeWindowStore(), 1, time.Minute, nil)(okHandler())
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected pass-through, got %d", rec.Code)
		}
	}
}
