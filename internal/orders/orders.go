//go:generate mockgen -source ./orders.go -destination=./mocks/orders.go -package=mock_orders
package orders

import (
	"context"

	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/domain"
)

type Gateway interface {
	CreateOrder(ctx context.Context, req domain.OrderRequest, sess domain.Session) (*domain.OrderRecord, error)
	ListOrders(ctx context.Context, sess domain.Session) ([]domain.OrderRecord, error)
}

// SessionGate is the part of the session lifecycle the workflows depend on.
type SessionGate interface {
	Require() (domain.Session, error)
	Expire(sess domain.Session) bool
	Active(sess domain.Session) bool
}

// Route is where the operator should be taken after a workflow finishes.
type Route int

const (
	RouteStay Route = iota
	RouteDashboard
	RouteLogin
)

func (r Route) String() string {
	switch r {
	case RouteDashboard:
		return "dashboard"
	case RouteLogin:
		return "login"
	default:
		return "stay"
	}
}

var (
	NoticeNoToken = domain.Notice{Title: "Error", Message: "No authentication token found."}
	NoticeExpired = domain.Notice{Title: "Session Expired", Message: "Your session has expired. Please log in again."}
	NoticeCreated = domain.Notice{Title: "Order Created", Message: "Your truck request has been submitted."}
	NoticeOffline = domain.Notice{Title: "Order Failed", Message: "Could not reach the dispatch service. Please try again."}
	NoticeFailed  = domain.Notice{Title: "Order Failed", Message: "Something went wrong. Please try again."}
	NoticeFetch   = domain.Notice{Title: "Error", Message: "Failed to fetch orders. Please try again."}
)

// EmptyText is shown on the dashboard when the operator has no orders.
const EmptyText = "No orders available"

func orderFailed(msg string) domain.Notice {
	return domain.Notice{Title: "Order Failed", Message: msg}
}
