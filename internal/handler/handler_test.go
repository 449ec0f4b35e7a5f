package handler

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/domain"
	mock_handler "gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/handler/mocks"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/kafka"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/lifecycle"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/orders"
)

type fixture struct {
	out      *bytes.Buffer
	gateway  *mock_handler.MockGateway
	sessions *mock_handler.MockSessions
	audit    *mock_handler.MockAuditor
	handler  *Handler
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	f := &fixture{
		out:      &bytes.Buffer{},
		gateway:  mock_handler.NewMockGateway(ctrl),
		sessions: mock_handler.NewMockSessions(ctrl),
		audit:    mock_handler.NewMockAuditor(ctrl),
	}
	f.handler = New(f.out, f.gateway, f.sessions, f.audit, zap.NewNop())
	f.handler.timeNow = func() time.Time {
		return time.Date(2024, 3, 1, 9, 30, 0, 0, time.Local)
	}
	return f
}

func (f *fixture) expectAudit(t *testing.T, action kafka.Action, outcome string) {
	f.audit.EXPECT().Publish(gomock.Any(), gomock.Any()).Do(func(_ context.Context, e kafka.Event) {
		assert.Equal(t, action, e.Action)
		assert.Equal(t, outcome, e.Outcome)
	})
}

func TestHandleRegister(t *testing.T) {
	args := []string{
		"--name", "Op", "--email", "op@example.com", "--password", "secret1",
		"--phone", "+7 700", "--address", "Almaty",
	}

	tests := []struct {
		name       string
		err        error
		outcome    string
		wantOutput string
	}{
		{
			name:       "registered",
			outcome:    "ok",
			wantOutput: "Registration Successful: You can now log in.\n",
		},
		{
			name:       "email taken",
			err:        &domain.ValidationError{Status: 422, Message: "The email has already been taken."},
			outcome:    "failed",
			wantOutput: "Registration Failed: The email has already been taken.\n",
		},
		{
			name:       "offline",
			err:        &domain.NetworkError{Op: "register", Err: errors.New("connection refused")},
			outcome:    "failed",
			wantOutput: "Registration Failed: Could not reach the dispatch service. Please try again.\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.gateway.EXPECT().Register(gomock.Any(), domain.Profile{
				Name:                 "Op",
				Email:                "op@example.com",
				Password:             "secret1",
				PasswordConfirmation: "secret1",
				PhoneNumber:          "+7 700",
				Address:              "Almaty",
			}).Return(tc.err)
			f.expectAudit(t, kafka.ActionRegister, tc.outcome)

			f.handler.HandleRegister(context.Background(), args)

			assert.Equal(t, tc.wantOutput, f.out.String())
		})
	}
}

func TestHandleRegister_UnknownFlag(t *testing.T) {
	f := newFixture(t)

	f.handler.HandleRegister(context.Background(), []string{"--nickname", "op"})

	assert.Contains(t, f.out.String(), "Usage: register")
}

func TestHandleLogin_Failure(t *testing.T) {
	f := newFixture(t)
	f.sessions.EXPECT().Login(gomock.Any(), domain.Credentials{Email: "op@example.com", Password: "bad"}).
		Return(&domain.AuthError{Status: 401, Message: "Invalid credentials"})
	f.expectAudit(t, kafka.ActionLogin, "failed")

	f.handler.HandleLogin(context.Background(), []string{"op@example.com", "bad"})

	assert.Equal(t, "Login Failed: Invalid credentials\n", f.out.String())
}

func TestHandleLogin_Usage(t *testing.T) {
	f := newFixture(t)

	f.handler.HandleLogin(context.Background(), []string{"op@example.com"})

	assert.Equal(t, "Usage: login <email> <password>\n", f.out.String())
}

func TestScreensRequireLogin(t *testing.T) {
	tests := []struct {
		name string
		run  func(h *Handler)
	}{
		{name: "request-truck", run: func(h *Handler) { h.HandleRequestTruck(context.Background(), nil) }},
		{name: "orders", run: func(h *Handler) { h.HandleOrders(context.Background(), nil) }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.sessions.EXPECT().State().Return(lifecycle.Unauthenticated)

			tc.run(f.handler)

			assert.Equal(t, "Error: Please log in first.\n", f.out.String())
		})
	}
}

func TestHandleRequestTruck_DefaultsTimesToNow(t *testing.T) {
	f := newFixture(t)
	sess := domain.Session{Token: "tok"}

	f.sessions.EXPECT().State().Return(lifecycle.Authenticated)
	f.sessions.EXPECT().Require().Return(sess, nil).Times(2)
	f.gateway.EXPECT().CreateOrder(gomock.Any(), gomock.Any(), sess).
		DoAndReturn(func(_ context.Context, req domain.OrderRequest, _ domain.Session) (*domain.OrderRecord, error) {
			assert.Equal(t, "2024-03-01 09:30:00", req.PickupTime.String())
			assert.Equal(t, "2024-03-01 09:30:00", req.DeliveryTime.String())
			return &domain.OrderRecord{ID: "12", OrderRequest: req, Status: "pending"}, nil
		})
	f.audit.EXPECT().Publish(gomock.Any(), gomock.Any()).Do(func(_ context.Context, e kafka.Event) {
		assert.Equal(t, kafka.ActionOrderSubmitted, e.Action)
		assert.Equal(t, "12", e.OrderID)
	})
	f.gateway.EXPECT().ListOrders(gomock.Any(), sess).Return(nil, nil)

	f.handler.HandleRequestTruck(context.Background(), []string{
		"--location", "Almaty", "--destination", "Astana", "--trucks", "1", "--cargo-type", "grain",
	})

	assert.Equal(t, "Order Created: Your truck request has been submitted.\n"+orders.EmptyText+"\n", f.out.String())
}

func TestHandleRequestTruck_Expired(t *testing.T) {
	f := newFixture(t)
	sess := domain.Session{Token: "tok"}

	f.sessions.EXPECT().State().Return(lifecycle.Authenticated)
	f.sessions.EXPECT().Require().Return(sess, nil)
	f.gateway.EXPECT().CreateOrder(gomock.Any(), gomock.Any(), sess).Return(nil, &domain.AuthError{Status: 401})
	f.sessions.EXPECT().Active(sess).Return(true)
	f.sessions.EXPECT().Expire(sess).Return(true)
	f.expectAudit(t, kafka.ActionOrderSubmitted, "failed")

	f.handler.HandleRequestTruck(context.Background(), []string{
		"--location", "Almaty", "--destination", "Astana", "--trucks", "1", "--cargo-type", "grain",
	})

	assert.Equal(t, orders.NoticeExpired.String()+"\nPlease log in again.\n", f.out.String())
}

func TestHandleOrders_ReusesActivation(t *testing.T) {
	f := newFixture(t)
	sess := domain.Session{Token: "tok"}
	records := []domain.OrderRecord{{ID: "1", OrderRequest: domain.OrderRequest{Location: "Almaty", NoOfTrucks: 1}}}

	f.sessions.EXPECT().State().Return(lifecycle.Authenticated).Times(3)
	f.sessions.EXPECT().Require().Return(sess, nil).Times(3)
	f.gateway.EXPECT().ListOrders(gomock.Any(), sess).Return(records, nil).Times(2)

	f.handler.HandleOrders(context.Background(), nil)
	f.handler.HandleOrders(context.Background(), nil)
	f.handler.HandleOrders(context.Background(), []string{"--refresh"})

	assert.Equal(t, 3, bytes.Count(f.out.Bytes(), []byte("Your orders:")))
}

func TestHandleLogout(t *testing.T) {
	f := newFixture(t)
	f.sessions.EXPECT().Logout(gomock.Any()).Return(nil)

	f.handler.HandleLogout(context.Background())

	assert.Equal(t, "Logout Successful: You have been logged out.\n", f.out.String())
}

func TestAuditTransitions(t *testing.T) {
	ctrl := gomock.NewController(t)
	audit := mock_handler.NewMockAuditor(ctrl)
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	var got []kafka.Event
	audit.EXPECT().Publish(gomock.Any(), gomock.Any()).Do(func(_ context.Context, e kafka.Event) {
		got = append(got, e)
	}).Times(2)

	observe := AuditTransitions(audit)
	observe(lifecycle.Transition{From: lifecycle.Unauthenticated, To: lifecycle.Authenticated, Reason: lifecycle.ReasonLogin, At: at})
	observe(lifecycle.Transition{From: lifecycle.Authenticated, To: lifecycle.Unauthenticated, Reason: lifecycle.ReasonExpired, At: at})
	observe(lifecycle.Transition{Reason: lifecycle.Reason("unknown"), At: at})

	require.Len(t, got, 2)
	assert.Equal(t, kafka.ActionLogin, got[0].Action)
	assert.Equal(t, "unauthenticated->authenticated", got[0].Detail)
	assert.Equal(t, kafka.ActionSessionExpired, got[1].Action)
	assert.Equal(t, at, got[1].Timestamp)
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		line    string
		want    []string
		wantErr bool
	}{
		{line: "", want: nil},
		{line: "  orders   --refresh ", want: []string{"orders", "--refresh"}},
		{line: `request-truck --pickup "2024-03-01 10:00"`, want: []string{"request-truck", "--pickup", "2024-03-01 10:00"}},
		{line: `register --name 'Ann Lee' --address ""`, want: []string{"register", "--name", "Ann Lee", "--address", ""}},
		{line: `login a\ b pw`, want: []string{"login", "a b", "pw"}},
		{line: `login "unterminated`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			got, err := splitArgs(tc.line)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRenderDashboard(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var out bytes.Buffer
		renderDashboard(&out, orders.Snapshot{Loaded: true, Empty: true})
		assert.Equal(t, "No orders available\n", out.String())
	})

	t.Run("missing fields", func(t *testing.T) {
		var out bytes.Buffer
		renderDashboard(&out, orders.Snapshot{Loaded: true, Orders: []domain.OrderRecord{{
			ID:           "3",
			OrderRequest: domain.OrderRequest{Location: "Almaty", Destination: "Astana", NoOfTrucks: 2, CargoWeight: domain.NewWeight(1500.5)},
		}}})

		assert.Contains(t, out.String(), "1500.5")
		assert.Equal(t, 6, bytes.Count(out.Bytes(), []byte(notAvailable)))
	})

	t.Run("notice only", func(t *testing.T) {
		var out bytes.Buffer
		renderDashboard(&out, orders.Snapshot{Loaded: true, Empty: true, Notice: orders.NoticeFetch})
		assert.Equal(t, orders.NoticeFetch.String()+"\n", out.String())
	})
}

func TestExecute(t *testing.T) {
	f := newFixture(t)
	f.sessions.EXPECT().State().Return(lifecycle.Authenticated)

	assert.True(t, f.handler.Execute(context.Background(), "status"))
	assert.True(t, f.handler.Execute(context.Background(), "fly away"))
	assert.False(t, f.handler.Execute(context.Background(), "exit"))

	assert.Equal(t, "Session: authenticated\nUnknown command \"fly\". Type 'help' for the list of commands.\nBye.\n", f.out.String())
}
