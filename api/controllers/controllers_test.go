package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/numberpool/api/middleware"
	"github.com/angelmondragon/numberpool/internal/availability"
	"github.com/angelmondragon/numberpool/internal/cart"
	"github.com/angelmondragon/numberpool/internal/identity"
	"github.com/angelmondragon/numberpool/internal/notices"
	"github.com/angelmondragon/numberpool/internal/timer"
	"github.com/angelmondragon/numberpool/pkg/config"
	"github.com/angelmondragon/numberpool/pkg/enums"
)

var (
	guest   = identity.Actor{ID: "guest_abc", Kind: enums.ActorKindGuest, SessionKey: "guest:tab"}
	account = identity.Actor{ID: "42", Kind: enums.ActorKindAccount, SessionKey: "account:42"}
)

type stubAvailability struct {
	verdict   availability.Verdict
	batch     availability.CheckInput
	snapshot  availability.Snapshot
	excluding string
	product   int64
	number    int
}

func (s *stubAvailability) Check(ctx context.Context, parentProductID int64, number int, actor identity.Actor, excludingCartKey string) (availability.Verdict, error) {
	s.product, s.number, s.excluding = parentProductID, number, excludingCartKey
	return s.verdict, nil
}

func (s *stubAvailability) CheckNumbers(ctx context.Context, in availability.CheckInput) ([]availability.Verdict, error) {
	s.batch = in
	out := make([]availability.Verdict, 0, len(in.Numbers))
	for _, n := range in.Numbers {
		v := s.verdict
		v.Number = n
		out = append(out, v)
	}
	return out, nil
}

func (s *stubAvailability) Snapshot(ctx context.Context, parentProductID int64, actor identity.Actor) (availability.Snapshot, error) {
	s.product = parentProductID
	return s.snapshot, nil
}

type stubTimer struct {
	status timer.Status
}

func (s *stubTimer) Status(ctx context.Context, actor identity.Actor) (timer.Status, error) {
	return s.status, nil
}

type stubGuestResolver struct {
	remote, session string
}

func (s *stubGuestResolver) Guest(remoteAddr, sessionID string) (identity.Actor, error) {
	s.remote, s.session = remoteAddr, sessionID
	return guest, nil
}

type stubMigrator struct {
	result       identity.MergeResult
	guest, owner identity.Actor
}

func (s *stubMigrator) Migrate(ctx context.Context, g, a identity.Actor) (identity.MergeResult, error) {
	s.guest, s.owner = g, a
	return s.result, nil
}

type stubCartSession struct {
	reconciled []string
	logout     cart.LogoutResult
}

func (s *stubCartSession) Reconcile(ctx context.Context, actor identity.Actor) error {
	s.reconciled = append(s.reconciled, actor.ID)
	return nil
}

func (s *stubCartSession) Logout(ctx context.Context, actor identity.Actor) (cart.LogoutResult, error) {
	return s.logout, nil
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(ctx context.Context) error { return s.err }

func request(method, target string, actor *identity.Actor, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	ctx = notices.WithCollector(ctx, notices.NewCollector())
	if actor != nil {
		ctx = identity.WithActor(ctx, *actor)
		if !actor.IsGuest() {
			ctx = middleware.WithAccountID(ctx, actor.ID)
		}
	}
	return req.WithContext(ctx)
}

type envelope struct {
	Data    json.RawMessage  `json:"data"`
	Notices []notices.Notice `json:"notices"`
}

func decode(t *testing.T, resp *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return env
}

func TestAvailabilityCheckAddsNoticeWhenUnavailable(t *testing.T) {
	t.Parallel()

	svc := &stubAvailability{verdict: availability.Verdict{Number: 3, Status: enums.AvailabilitySold}}
	req := request(http.MethodGet, "/api/v1/products/500/numbers/3?excludingCartKey=k1", &guest, map[string]string{"productId": "500", "number": "3"})
	resp := httptest.NewRecorder()
	AvailabilityCheck(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.product != 500 || svc.number != 3 || svc.excluding != "k1" {
		t.Fatalf("unexpected call %+v", svc)
	}
	env := decode(t, resp)
	if len(env.Notices) != 1 || env.Notices[0].Severity != enums.NoticeError {
		t.Fatalf("expected one error notice, got %+v", env.Notices)
	}
}

func TestAvailabilityCheckRejectsBadProduct(t *testing.T) {
	t.Parallel()

	req := request(http.MethodGet, "/api/v1/products/x/numbers/3", &guest, map[string]string{"productId": "x", "number": "3"})
	resp := httptest.NewRecorder()
	AvailabilityCheck(&stubAvailability{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAvailabilityBatchChecksEveryNumber(t *testing.T) {
	t.Parallel()

	svc := &stubAvailability{verdict: availability.Verdict{Status: enums.AvailabilityInOtherCart}}
	req := request(http.MethodGet, "/api/v1/products/500/numbers?numbers=3,4&excludingCartKey=k1", &guest, map[string]string{"productId": "500"})
	resp := httptest.NewRecorder()
	AvailabilityBatch(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.batch.ParentProductID != 500 || len(svc.batch.Numbers) != 2 || svc.batch.ExcludingCartKey != "k1" || svc.batch.Actor.ID != guest.ID {
		t.Fatalf("unexpected batch %+v", svc.batch)
	}
	if env := decode(t, resp); len(env.Notices) != 2 {
		t.Fatalf("expected a notice per unavailable number, got %+v", env.Notices)
	}
}

func TestAvailabilityBatchRejectsRepeats(t *testing.T) {
	t.Parallel()

	req := request(http.MethodGet, "/api/v1/products/500/numbers?numbers=3,3", &guest, map[string]string{"productId": "500"})
	resp := httptest.NewRecorder()
	AvailabilityBatch(&stubAvailability{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAvailabilitySnapshot(t *testing.T) {
	t.Parallel()

	svc := &stubAvailability{snapshot: availability.Snapshot{ParentProductID: 500, Free: []int{1, 2}}}
	req := request(http.MethodGet, "/api/v1/products/500/availability", &guest, map[string]string{"productId": "500"})
	resp := httptest.NewRecorder()
	AvailabilitySnapshot(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var snap availability.Snapshot
	if err := json.Unmarshal(decode(t, resp).Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Free) != 2 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestTimerStatusNotifiesOnExpiry(t *testing.T) {
	t.Parallel()

	svc := &stubTimer{status: timer.Status{State: enums.TimerStateExpired, ReleasedNumbers: 2}}
	resp := httptest.NewRecorder()
	TimerStatus(svc, nil).ServeHTTP(resp, request(http.MethodGet, "/api/v1/timer", &guest, nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if env := decode(t, resp); len(env.Notices) != 1 {
		t.Fatalf("expected expiry notice, got %+v", env.Notices)
	}
}

func TestIdentityLoginMergesGuestIntoAccount(t *testing.T) {
	t.Parallel()

	resolver := &stubGuestResolver{}
	migrator := &stubMigrator{result: identity.MergeResult{Outcome: identity.MergeDiscarded, Released: 2}}
	carts := &stubCartSession{}

	req := request(http.MethodPost, "/api/v1/identity/login", &account, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set(middleware.SessionHeader, "tab")
	resp := httptest.NewRecorder()
	IdentityLogin(resolver, migrator, carts, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if resolver.remote != "10.0.0.1" || resolver.session != "tab" {
		t.Fatalf("guest resolved from %q/%q", resolver.remote, resolver.session)
	}
	if migrator.guest.ID != guest.ID || migrator.owner.ID != account.ID {
		t.Fatalf("unexpected merge %s -> %s", migrator.guest.ID, migrator.owner.ID)
	}
	if len(carts.reconciled) != 1 || carts.reconciled[0] != account.ID {
		t.Fatalf("expected account cart reconciled, got %v", carts.reconciled)
	}
	if env := decode(t, resp); len(env.Notices) != 1 {
		t.Fatalf("expected discard notice, got %+v", env.Notices)
	}
}

func TestIdentityLoginRequiresAccount(t *testing.T) {
	t.Parallel()

	resp := httptest.NewRecorder()
	IdentityLogin(&stubGuestResolver{}, &stubMigrator{}, &stubCartSession{}, nil).
		ServeHTTP(resp, request(http.MethodPost, "/api/v1/identity/login", &guest, nil))

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestIdentityLogoutReturnsPolicyResult(t *testing.T) {
	t.Parallel()

	carts := &stubCartSession{logout: cart.LogoutResult{Cleared: true, RemovedLines: 2, ReleasedNumbers: 3}}
	resp := httptest.NewRecorder()
	IdentityLogout(carts, nil).ServeHTTP(resp, request(http.MethodPost, "/api/v1/identity/logout", &account, nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var result cart.LogoutResult
	if err := json.Unmarshal(decode(t, resp).Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Cleared || result.ReleasedNumbers != 3 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestHealthReadyReportsFailingDependency(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	resp := httptest.NewRecorder()
	HealthReady(cfg, nil, stubPinger{}, stubPinger{err: errors.New("down")}).
		ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	HealthReady(cfg, nil, stubPinger{}, stubPinger{}).
		ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}
