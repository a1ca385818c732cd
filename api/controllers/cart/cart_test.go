package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	cartsvc "github.com/angelmondragon/numberpool/internal/cart"
	"github.com/angelmondragon/numberpool/internal/events"
	"github.com/angelmondragon/numberpool/internal/identity"
	dbtypes "github.com/angelmondragon/numberpool/pkg/db/types"
	"github.com/angelmondragon/numberpool/pkg/enums"
	pkgerrors "github.com/angelmondragon/numberpool/pkg/errors"
)

type stubCartService struct {
	view        *cartsvc.View
	err         error
	lastAdd     cartsvc.AddLineInput
	lastDec     cartsvc.DecreaseInput
	lastKey     string
	lastNumbers dbtypes.NumberList
}

func (s *stubCartService) View(ctx context.Context, actor identity.Actor) (*cartsvc.View, error) {
	return s.view, s.err
}

func (s *stubCartService) AddLine(ctx context.Context, actor identity.Actor, input cartsvc.AddLineInput) (*cartsvc.View, error) {
	s.lastAdd = input
	return s.view, s.err
}

func (s *stubCartService) SetNumbers(ctx context.Context, actor identity.Actor, cartKey string, numbers dbtypes.NumberList) (*cartsvc.View, error) {
	s.lastKey, s.lastNumbers = cartKey, numbers
	return s.view, s.err
}

func (s *stubCartService) IncreaseQuantity(ctx context.Context, actor identity.Actor, cartKey string) (*cartsvc.View, error) {
	s.lastKey = cartKey
	return s.view, s.err
}

func (s *stubCartService) DecreaseQuantity(ctx context.Context, actor identity.Actor, cartKey string, input cartsvc.DecreaseInput) (*cartsvc.View, error) {
	s.lastKey, s.lastDec = cartKey, input
	return s.view, s.err
}

func (s *stubCartService) RemoveLine(ctx context.Context, actor identity.Actor, cartKey string) (*cartsvc.View, error) {
	s.lastKey = cartKey
	return s.view, s.err
}

func (s *stubCartService) Empty(ctx context.Context, actor identity.Actor) (*cartsvc.View, error) {
	return s.view, s.err
}

func (s *stubCartService) Logout(ctx context.Context, actor identity.Actor) (cartsvc.LogoutResult, error) {
	return cartsvc.LogoutResult{}, s.err
}

func (s *stubCartService) Reconcile(ctx context.Context, actor identity.Actor) error {
	return s.err
}

func (s *stubCartService) HandleTimerExpired(ctx context.Context, event events.TimerExpired) error {
	return nil
}

func (s *stubCartService) HandleOrderStatusChanged(ctx context.Context, event events.OrderStatusChanged) error {
	return nil
}

var shopper = identity.Actor{ID: "guest_abc", Kind: enums.ActorKindGuest, SessionKey: "guest:abc"}

func newRequest(method, target, body string, params map[string]string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	return req.WithContext(identity.WithActor(ctx, shopper))
}

func sampleView() *cartsvc.View {
	return &cartsvc.View{Lines: []cartsvc.Line{{CartKey: "k1", ParentProductID: 500, ProductID: 500, Quantity: 2, Numbers: []int{3}, EmptySlots: 1}}}
}

func TestCartFetchSuccess(t *testing.T) {
	t.Parallel()

	handler := CartFetch(&stubCartService{view: sampleView()}, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, newRequest(http.MethodGet, "/api/v1/cart", "", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data cartsvc.View `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Lines) != 1 || envelope.Data.Lines[0].CartKey != "k1" {
		t.Fatalf("unexpected lines %+v", envelope.Data.Lines)
	}
}

func TestCartFetchRequiresActor(t *testing.T) {
	t.Parallel()

	handler := CartFetch(&stubCartService{view: sampleView()}, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestCartAddLineDefaultsProductToParent(t *testing.T) {
	t.Parallel()

	svc := &stubCartService{view: sampleView()}
	resp := httptest.NewRecorder()
	CartAddLine(svc, nil).ServeHTTP(resp, newRequest(http.MethodPost, "/api/v1/cart/lines", `{"parentProductId":500,"quantity":2,"numbers":[3]}`, nil))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastAdd.ProductID != 500 || svc.lastAdd.Quantity != 2 || len(svc.lastAdd.Numbers) != 1 {
		t.Fatalf("unexpected input %+v", svc.lastAdd)
	}
}

func TestCartAddLineRejectsDuplicateNumbers(t *testing.T) {
	t.Parallel()

	svc := &stubCartService{view: sampleView()}
	resp := httptest.NewRecorder()
	CartAddLine(svc, nil).ServeHTTP(resp, newRequest(http.MethodPost, "/api/v1/cart/lines", `{"parentProductId":500,"quantity":2,"numbers":[3,3]}`, nil))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCartAddLineMapsConflict(t *testing.T) {
	t.Parallel()

	svc := &stubCartService{err: pkgerrors.New(pkgerrors.CodeConflict, "Number 3 is reserved in another cart.")}
	resp := httptest.NewRecorder()
	CartAddLine(svc, nil).ServeHTTP(resp, newRequest(http.MethodPost, "/api/v1/cart/lines", `{"parentProductId":500,"quantity":1,"numbers":[3]}`, nil))

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestCartSetNumbersPassesPathKey(t *testing.T) {
	t.Parallel()

	svc := &stubCartService{view: sampleView()}
	resp := httptest.NewRecorder()
	req := newRequest(http.MethodPut, "/api/v1/cart/lines/k1/numbers", `{"numbers":[4,5]}`, map[string]string{"cartKey": "k1"})
	CartSetNumbers(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.lastKey != "k1" || len(svc.lastNumbers) != 2 {
		t.Fatalf("unexpected call key=%s numbers=%v", svc.lastKey, svc.lastNumbers)
	}
}

func TestCartDecreaseDefaultsToOneUnit(t *testing.T) {
	t.Parallel()

	svc := &stubCartService{view: sampleView()}
	resp := httptest.NewRecorder()
	CartDecrease(svc, nil).ServeHTTP(resp, newRequest(http.MethodPost, "/api/v1/cart/lines/k1/decrease", "", map[string]string{"cartKey": "k1"}))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.lastDec.Quantity != 1 || len(svc.lastDec.Release) != 0 {
		t.Fatalf("unexpected decrease %+v", svc.lastDec)
	}
}

func TestCartDecreaseWithRelease(t *testing.T) {
	t.Parallel()

	svc := &stubCartService{view: sampleView()}
	resp := httptest.NewRecorder()
	req := newRequest(http.MethodPost, "/api/v1/cart/lines/k1/decrease", `{"quantity":1,"release":[3]}`, map[string]string{"cartKey": "k1"})
	CartDecrease(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if len(svc.lastDec.Release) != 1 || svc.lastDec.Release[0] != 3 {
		t.Fatalf("unexpected release %v", svc.lastDec.Release)
	}
}

func TestCartRemoveLineRequiresKey(t *testing.T) {
	t.Parallel()

	svc := &stubCartService{view: sampleView()}
	resp := httptest.NewRecorder()
	CartRemoveLine(svc, nil).ServeHTTP(resp, newRequest(http.MethodDelete, "/api/v1/cart/lines/", "", map[string]string{"cartKey": ""}))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
