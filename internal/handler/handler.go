// Package handler exposes the shop services over a JSON REST API.
package handler

import (
	"net/http"

	"github.com/xenking/shop/internal/domain/auth"
	"github.com/xenking/shop/internal/domain/item"
	"github.com/xenking/shop/internal/domain/member"
	"github.com/xenking/shop/internal/domain/order"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// Handler translates HTTP requests into service calls.
type Handler struct {
	members  *member.Service
	items    *item.Service
	orders   *order.Service
	security *SecurityHandler
}

// NewHandler constructs a Handler. A nil security handler leaves mutating
// endpoints unauthenticated.
func NewHandler(
	members *member.Service,
	items *item.Service,
	orders *order.Service,
	security *SecurityHandler,
) *Handler {
	return &Handler{
		members:  members,
		items:    items,
		orders:   orders,
		security: security,
	}
}

// Register adds every API route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /api/members", h.protect(auth.ScopeMembers, h.registerMember))
	mux.HandleFunc("GET /api/members", h.listMembers)
	mux.HandleFunc("GET /api/members/{id}", h.getMember)
	mux.Handle("PUT /api/members/{id}", h.protect(auth.ScopeMembers, h.updateMember))
	mux.HandleFunc("GET /api/members/{id}/orders", h.listMemberOrders)

	mux.Handle("POST /api/items", h.protect(auth.ScopeItems, h.createItem))
	mux.HandleFunc("GET /api/items", h.listItems)
	mux.HandleFunc("GET /api/items/{id}", h.getItem)
	mux.Handle("POST /api/items/{id}/stock", h.protect(auth.ScopeItems, h.restockItem))

	mux.Handle("POST /api/orders", h.protect(auth.ScopeOrders, h.placeOrder))
	mux.HandleFunc("GET /api/orders", h.searchOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	mux.Handle("POST /api/orders/{id}/cancel", h.protect(auth.ScopeOrders, h.cancelOrder))
	mux.Handle("PUT /api/orders/{id}/delivery", h.protect(auth.ScopeOrders, h.updateDelivery))
}

func (h *Handler) protect(scope string, fn http.HandlerFunc) http.Handler {
	if h.security == nil {
		return fn
	}
	return h.security.Require(scope, fn)
}
