package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/angelmondragon/numberpool/internal/orders"
	"github.com/angelmondragon/numberpool/pkg/enums"
	pkgerrors "github.com/angelmondragon/numberpool/pkg/errors"
)

type stubOrderService struct {
	last   orders.StatusChange
	result orders.StatusChangeResult
	err    error
	calls  int
}

func (s *stubOrderService) ApplyStatus(ctx context.Context, in orders.StatusChange) (orders.StatusChangeResult, error) {
	s.calls++
	s.last = in
	return s.result, s.err
}

func TestOrderWebhookAppliesStatus(t *testing.T) {
	t.Parallel()

	svc := &stubOrderService{result: orders.StatusChangeResult{OrderID: 9001, NewStatus: enums.OrderStatusProcessing, Changed: true}}
	body := `{"orderId":9001,"actorId":"42","status":"processing","items":[{"id":1,"cartKey":"abc","parentProductId":500,"numbers":[3,4]}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/orders", strings.NewReader(body))
	resp := httptest.NewRecorder()

	OrderWebhook(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.last.OrderID != 9001 || svc.last.Status != enums.OrderStatusProcessing {
		t.Fatalf("unexpected change %+v", svc.last)
	}
	if len(svc.last.Items) != 1 || svc.last.Items[0].CartKey != "abc" || len(svc.last.Items[0].Numbers) != 2 {
		t.Fatalf("unexpected items %+v", svc.last.Items)
	}

	var envelope struct {
		Data orders.StatusChangeResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !envelope.Data.Changed {
		t.Fatalf("expected changed result, got %+v", envelope.Data)
	}
}

func TestOrderWebhookRejectsInvalidBody(t *testing.T) {
	t.Parallel()

	svc := &stubOrderService{}
	cases := []string{
		`{"status":"processing"}`,
		`{"orderId":1}`,
		`{"orderId":1,"status":"processing","items":[{"id":0,"parentProductId":5}]}`,
		`not json`,
	}
	for _, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/orders", strings.NewReader(body))
		resp := httptest.NewRecorder()
		OrderWebhook(svc, nil).ServeHTTP(resp, req)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400 got %d", body, resp.Code)
		}
	}
	if svc.calls != 0 {
		t.Fatalf("service must not be called for invalid bodies")
	}
}

func TestOrderWebhookSurfacesServiceErrors(t *testing.T) {
	t.Parallel()

	svc := &stubOrderService{err: pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/orders", strings.NewReader(`{"orderId":1,"status":"shipped"}`))
	resp := httptest.NewRecorder()

	OrderWebhook(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
