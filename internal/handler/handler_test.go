package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/shop/internal/domain/auth"
	"github.com/xenking/shop/internal/domain/item"
	"github.com/xenking/shop/internal/domain/member"
	"github.com/xenking/shop/internal/domain/order"
	"github.com/xenking/shop/internal/storage/memory"
)

const testPepper = "test-pepper"

type testServer struct {
	t     *testing.T
	mux   *http.ServeMux
	store *memory.Store
}

func newTestServer(t *testing.T, secure bool) *testServer {
	t.Helper()
	store := memory.New()

	orders, err := order.NewService(store, store.Orders(), nil,
		tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider(),
	)
	require.NoError(t, err)

	var security *SecurityHandler
	if secure {
		security = NewSecurityHandler(store.APIKeys(), []byte(testPepper))
	}
	h := NewHandler(
		member.NewService(store.Members()),
		item.NewService(store.Items(), store),
		orders,
		security,
	)
	mux := http.NewServeMux()
	h.Register(mux)
	return &testServer{t: t, mux: mux, store: store}
}

func (s *testServer) do(method, path, body string, header ...string) *httptest.ResponseRecorder {
	s.t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		r.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type itemBody struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	StockQuantity int     `json:"stockQuantity"`
}

type orderBody struct {
	ID         string  `json:"id"`
	MemberID   string  `json:"memberId"`
	Status     string  `json:"status"`
	TotalPrice float64 `json:"totalPrice"`
	Delivery   struct {
		Status  string `json:"status"`
		Address struct {
			City string `json:"city"`
		} `json:"address"`
	} `json:"delivery"`
	Items []struct {
		ItemID     string  `json:"itemId"`
		OrderPrice float64 `json:"orderPrice"`
		Count      int     `json:"count"`
		Cancelled  bool    `json:"cancelled"`
	} `json:"items"`
}

func (s *testServer) registerMember(name string) string {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/members",
		`{"name":"`+name+`","address":{"city":"Seoul","street":"Teheran-ro 1","zipcode":"06000"}}`)
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[struct{ ID string }](s.t, w).ID
}

func (s *testServer) createItem(name, price string, stock int) itemBody {
	s.t.Helper()
	body := `{"name":"` + name + `","price":` + price + `,"stockQuantity":` + itoa(stock) + `}`
	w := s.do(http.MethodPost, "/api/items", body)
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[itemBody](s.t, w)
}

func (s *testServer) stockOf(id string) int {
	s.t.Helper()
	w := s.do(http.MethodGet, "/api/items/"+id, "")
	require.Equal(s.t, http.StatusOK, w.Code)
	return decode[itemBody](s.t, w).StockQuantity
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestHandler_Members(t *testing.T) {
	s := newTestServer(t, false)
	id := s.registerMember("kim")

	t.Run("Duplicate", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/members", `{"name":"kim"}`)
		assert.Equal(t, http.StatusConflict, w.Code)
		body := decode[errorBody](t, w)
		assert.Equal(t, http.StatusConflict, body.Code)
		assert.Contains(t, body.Message, "kim")
	})

	t.Run("EmptyName", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/members", `{"name":"  "}`)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/members", `{"name":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("List", func(t *testing.T) {
		s.registerMember("lee")
		w := s.do(http.MethodGet, "/api/members", "")
		require.Equal(t, http.StatusOK, w.Code)
		body := decode[struct {
			Count int `json:"count"`
			Data  []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"data"`
		}](t, w)
		assert.Equal(t, 2, body.Count)
		assert.Equal(t, "kim", body.Data[0].Name)

		w = s.do(http.MethodGet, "/api/members?name=lee", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"count":1`)

		w = s.do(http.MethodGet, "/api/members?name=%20lee%20", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"count":1`)
	})

	t.Run("Get", func(t *testing.T) {
		w := s.do(http.MethodGet, "/api/members/"+id, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"city":"Seoul"`)

		w = s.do(http.MethodGet, "/api/members/missing", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Rename", func(t *testing.T) {
		w := s.do(http.MethodPut, "/api/members/"+id, `{"name":"lee"}`)
		assert.Equal(t, http.StatusConflict, w.Code)

		w = s.do(http.MethodPut, "/api/members/"+id, `{"name":"park"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"id":"`+id+`","name":"park"}`, w.Body.String())
	})
}

func TestHandler_OrderLifecycle(t *testing.T) {
	s := newTestServer(t, false)
	memberID := s.registerMember("kim")
	jpa := s.createItem("JPA1 BOOK", "10000", 100)
	spring := s.createItem("JPA2 BOOK", "20000", 100)

	w := s.do(http.MethodPost, "/api/orders", `{"memberId":"`+memberID+`","items":[
		{"itemId":"`+jpa.ID+`","count":1},
		{"itemId":"`+spring.ID+`","count":2}
	]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	placed := decode[orderBody](t, w)
	assert.Equal(t, "PLACED", placed.Status)
	assert.Equal(t, memberID, placed.MemberID)
	assert.InDelta(t, 50000, placed.TotalPrice, 0.001)
	assert.Equal(t, "PREPARING", placed.Delivery.Status)
	assert.Equal(t, "Seoul", placed.Delivery.Address.City)
	require.Len(t, placed.Items, 2)
	assert.Equal(t, 99, s.stockOf(jpa.ID))
	assert.Equal(t, 98, s.stockOf(spring.ID))

	w = s.do(http.MethodGet, "/api/members/"+memberID+"/orders", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]orderBody](t, w), 1)

	w = s.do(http.MethodPut, "/api/orders/"+placed.ID+"/delivery", `{"status":"SHIPPED"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "SHIPPED", decode[orderBody](t, w).Delivery.Status)

	w = s.do(http.MethodPut, "/api/orders/"+placed.ID+"/delivery", `{"status":"PREPARING"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPut, "/api/orders/"+placed.ID+"/delivery", `{"status":"LOST"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(http.MethodPost, "/api/orders/"+placed.ID+"/cancel", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cancelled := decode[orderBody](t, w)
	assert.Equal(t, "CANCELLED", cancelled.Status)
	for _, line := range cancelled.Items {
		assert.True(t, line.Cancelled)
	}
	assert.Equal(t, 100, s.stockOf(jpa.ID))
	assert.Equal(t, 100, s.stockOf(spring.ID))

	w = s.do(http.MethodPost, "/api/orders/"+placed.ID+"/cancel", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 100, s.stockOf(jpa.ID))

	w = s.do(http.MethodGet, "/api/orders?status=CANCELLED", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]orderBody](t, w), 1)

	w = s.do(http.MethodGet, "/api/orders?status=PLACED", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]orderBody](t, w))
}

func TestHandler_CancelCompletedOrder(t *testing.T) {
	s := newTestServer(t, false)
	memberID := s.registerMember("kim")
	book := s.createItem("JPA BOOK", "10000", 10)

	w := s.do(http.MethodPost, "/api/orders",
		`{"memberId":"`+memberID+`","items":[{"itemId":"`+book.ID+`","count":2}]}`)
	require.Equal(t, http.StatusCreated, w.Code)
	placed := decode[orderBody](t, w)

	w = s.do(http.MethodPut, "/api/orders/"+placed.ID+"/delivery", `{"status":"COMPLETED"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/api/orders/"+placed.ID+"/cancel", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, decode[errorBody](t, w).Message, "delivered")
	assert.Equal(t, 8, s.stockOf(book.ID))
}

func TestHandler_PlaceOrderErrors(t *testing.T) {
	s := newTestServer(t, false)
	memberID := s.registerMember("kim")
	book := s.createItem("JPA BOOK", "10000", 10)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{
			name:   "InsufficientStock",
			body:   `{"memberId":"` + memberID + `","items":[{"itemId":"` + book.ID + `","count":11}]}`,
			status: http.StatusConflict,
		},
		{
			name:   "UnknownItem",
			body:   `{"memberId":"` + memberID + `","items":[{"itemId":"missing","count":1}]}`,
			status: http.StatusNotFound,
		},
		{
			name:   "UnknownMember",
			body:   `{"memberId":"missing","items":[{"itemId":"` + book.ID + `","count":1}]}`,
			status: http.StatusNotFound,
		},
		{
			name:   "EmptyItems",
			body:   `{"memberId":"` + memberID + `","items":[]}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "ZeroCount",
			body:   `{"memberId":"` + memberID + `","items":[{"itemId":"` + book.ID + `","count":0}]}`,
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "MissingMember",
			body:   `{"items":[{"itemId":"` + book.ID + `","count":1}]}`,
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "Malformed",
			body:   `{"memberId":`,
			status: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/orders", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.status, decode[errorBody](t, w).Code)
			assert.Equal(t, 10, s.stockOf(book.ID))
		})
	}

	t.Run("UnknownOrder", func(t *testing.T) {
		w := s.do(http.MethodGet, "/api/orders/missing", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("InvalidLimit", func(t *testing.T) {
		w := s.do(http.MethodGet, "/api/orders?limit=abc", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_Items(t *testing.T) {
	s := newTestServer(t, false)
	book := s.createItem("JPA BOOK", `"12.50"`, 3)
	assert.InDelta(t, 12.5, book.Price, 0.001)

	w := s.do(http.MethodPost, "/api/items/"+book.ID+"/stock", `{"quantity":7}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, decode[itemBody](t, w).StockQuantity)

	w = s.do(http.MethodPost, "/api/items/"+book.ID+"/stock", `{"quantity":0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(http.MethodPost, "/api/items/missing/stock", `{"quantity":1}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/api/items/"+book.ID+"/stock", `{"quantity":9223372036854775807}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 10, s.stockOf(book.ID))

	w = s.do(http.MethodPost, "/api/items/"+book.ID+"/stock", `{"quantity":2147483638}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2147483647, decode[itemBody](t, w).StockQuantity)

	w = s.do(http.MethodPost, "/api/items/"+book.ID+"/stock", `{"quantity":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 2147483647, s.stockOf(book.ID))

	w = s.do(http.MethodPost, "/api/items", `{"name":"bad","price":-1,"stockQuantity":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(http.MethodPost, "/api/items", `{"name":"free","stockQuantity":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(http.MethodPost, "/api/items", `{"name":"huge","price":1,"stockQuantity":2147483648}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(http.MethodGet, "/api/items", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]itemBody](t, w), 1)
}

func TestHandler_ItemPrice(t *testing.T) {
	s := newTestServer(t, false)
	tests := []struct {
		name   string
		price  string
		status int
	}{
		{name: "Cents", price: `"0.99"`, status: http.StatusCreated},
		{name: "Largest", price: `"9999999999.99"`, status: http.StatusCreated},
		{name: "SubCent", price: `"0.005"`, status: http.StatusUnprocessableEntity},
		{name: "SubCentNumber", price: `0.005`, status: http.StatusUnprocessableEntity},
		{name: "TooLarge", price: `"10000000000"`, status: http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/items", `{"name":"pen","price":`+tt.price+`,"stockQuantity":3}`)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestHandler_Security(t *testing.T) {
	s := newTestServer(t, true)
	ctx := context.Background()
	require.NoError(t, s.store.APIKeys().Upsert(ctx, auth.APIKeyInfo{
		ID:      "admin",
		KeyHash: auth.Hash([]byte(testPepper), "admin-key"),
		Name:    "admin",
		Scopes:  auth.AllScopes,
	}))
	require.NoError(t, s.store.APIKeys().Upsert(ctx, auth.APIKeyInfo{
		ID:      "reader",
		KeyHash: auth.Hash([]byte(testPepper), "items-key"),
		Name:    "items only",
		Scopes:  []string{auth.ScopeItems},
	}))

	body := `{"name":"kim"}`
	tests := []struct {
		name   string
		key    string
		status int
	}{
		{name: "MissingKey", status: http.StatusUnauthorized},
		{name: "UnknownKey", key: "nope", status: http.StatusUnauthorized},
		{name: "MissingScope", key: "items-key", status: http.StatusForbidden},
		{name: "Granted", key: "admin-key", status: http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w *httptest.ResponseRecorder
			if tt.key == "" {
				w = s.do(http.MethodPost, "/api/members", body)
			} else {
				w = s.do(http.MethodPost, "/api/members", body, HeaderAPIKey, tt.key)
			}
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	t.Run("ReadsArePublic", func(t *testing.T) {
		w := s.do(http.MethodGet, "/api/members", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
