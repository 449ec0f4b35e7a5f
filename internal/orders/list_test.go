package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zaptest"

	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/domain"
	mock_orders "gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/orders/mocks"
)

func newListView(t *testing.T) (*ListView, *mock_orders.MockGateway, *mock_orders.MockSessionGate) {
	t.Helper()
	ctrl := gomock.NewController(t)
	gateway := mock_orders.NewMockGateway(ctrl)
	gate := mock_orders.NewMockSessionGate(ctrl)
	return NewListView(gateway, gate, zaptest.NewLogger(t)), gateway, gate
}

func TestListView_Load(t *testing.T) {
	t.Run("orders in server order", func(t *testing.T) {
		view, gateway, _ := newListView(t)
		gateway.EXPECT().ListOrders(gomock.Any(), testSession).Return([]domain.OrderRecord{
			{ID: "3", Status: "pending"},
			{ID: "1", Status: "delivered"},
		}, nil)

		snap := view.Load(context.Background(), testSession)

		assert.False(t, snap.Loading)
		assert.True(t, snap.Loaded)
		assert.False(t, snap.Empty)
		assert.True(t, snap.Notice.IsZero())
		assert.Equal(t, domain.RecordID("3"), snap.Orders[0].ID)
		assert.Equal(t, domain.RecordID("1"), snap.Orders[1].ID)
	})

	t.Run("empty is not an error", func(t *testing.T) {
		view, gateway, _ := newListView(t)
		gateway.EXPECT().ListOrders(gomock.Any(), testSession).Return([]domain.OrderRecord{}, nil)

		snap := view.Load(context.Background(), testSession)

		assert.True(t, snap.Empty)
		assert.True(t, snap.Notice.IsZero())
		assert.False(t, snap.Loading)
	})

	t.Run("loading while in flight", func(t *testing.T) {
		view, gateway, _ := newListView(t)
		gateway.EXPECT().ListOrders(gomock.Any(), testSession).
			DoAndReturn(func(context.Context, domain.Session) ([]domain.OrderRecord, error) {
				assert.True(t, view.Snapshot().Loading)
				return nil, nil
			})

		snap := view.Load(context.Background(), testSession)
		assert.False(t, snap.Loading)
	})

	t.Run("does not refetch for the same token", func(t *testing.T) {
		view, gateway, _ := newListView(t)
		gateway.EXPECT().ListOrders(gomock.Any(), testSession).Return([]domain.OrderRecord{{ID: "1"}}, nil).Times(1)

		view.Load(context.Background(), testSession)
		snap := view.Load(context.Background(), testSession)
		assert.Len(t, snap.Orders, 1)
	})

	t.Run("refetches when the token changes", func(t *testing.T) {
		view, gateway, _ := newListView(t)
		other := domain.Session{Token: "other"}
		gateway.EXPECT().ListOrders(gomock.Any(), testSession).Return([]domain.OrderRecord{{ID: "1"}}, nil)
		gateway.EXPECT().ListOrders(gomock.Any(), other).Return([]domain.OrderRecord{{ID: "2"}, {ID: "3"}}, nil)

		view.Load(context.Background(), testSession)
		snap := view.Load(context.Background(), other)
		assert.Len(t, snap.Orders, 2)
	})

	t.Run("expired token", func(t *testing.T) {
		view, gateway, gate := newListView(t)
		gateway.EXPECT().ListOrders(gomock.Any(), testSession).Return(nil, &domain.AuthError{Status: 401})
		gate.EXPECT().Active(testSession).Return(true)
		gate.EXPECT().Expire(testSession).Return(true)

		snap := view.Load(context.Background(), testSession)

		assert.Equal(t, NoticeExpired, snap.Notice)
		assert.True(t, snap.Loaded)
		assert.True(t, snap.Empty)
		assert.Empty(t, snap.Orders)
	})

	t.Run("network failure", func(t *testing.T) {
		view, gateway, gate := newListView(t)
		gateway.EXPECT().ListOrders(gomock.Any(), testSession).
			Return(nil, &domain.NetworkError{Op: "list_orders", Err: errors.New("connection refused")})
		gate.EXPECT().Active(testSession).Return(true)

		snap := view.Load(context.Background(), testSession)

		assert.Equal(t, NoticeFetch, snap.Notice)
		assert.True(t, snap.Empty)
		assert.False(t, snap.Loading)
	})

	t.Run("failure after logout is ignored", func(t *testing.T) {
		view, gateway, gate := newListView(t)
		gateway.EXPECT().ListOrders(gomock.Any(), testSession).Return(nil, &domain.AuthError{Status: 401})
		gate.EXPECT().Active(testSession).Return(false)

		snap := view.Load(context.Background(), testSession)

		assert.True(t, snap.Notice.IsZero())
		assert.False(t, snap.Loading)
	})

	t.Run("no session means no request", func(t *testing.T) {
		view, _, _ := newListView(t)

		snap := view.Load(context.Background(), domain.Session{})

		assert.Equal(t, NoticeNoToken, snap.Notice)
		assert.True(t, snap.Empty)
	})
}
