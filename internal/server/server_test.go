package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/domain"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/server"
	mock_server "gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/server/mocks"
)

const testSecret = "test-secret"

func newHandler(t *testing.T, storage server.Storage) (http.Handler, *server.TokenIssuer) {
	t.Helper()
	tokens := server.NewTokenIssuer(testSecret, time.Hour)
	srv := server.New(storage, tokens, zaptest.NewLogger(t), server.WithBcryptCost(bcrypt.MinCost))
	return srv.Handler(), tokens
}

func do(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func validOrder() map[string]interface{} {
	return map[string]interface{}{
		"location":      "Almaty",
		"destination":   "Astana",
		"no_of_trucks":  2,
		"cargo_type":    "grain",
		"cargo_weight":  1500.5,
		"pickup_time":   "2024-03-01 10:00:00",
		"delivery_time": "2024-03-02 10:00:00",
	}
}

func TestHandleRegister(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStorage := mock_server.NewMockStorage(ctrl)
	handler, _ := newHandler(t, mockStorage)

	profile := map[string]interface{}{
		"name":                  "Op",
		"email":                 "op@example.com",
		"password":              "secret1",
		"password_confirmation": "secret1",
		"phone_number":          "+7 700 000 0000",
		"address":               "Almaty",
	}

	tests := []struct {
		name           string
		mutate         func(body map[string]interface{})
		setupMocks     func()
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "registered",
			setupMocks: func() {
				mockStorage.EXPECT().CreateUser(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, u server.User) (server.User, error) {
						assert.Equal(t, "op@example.com", u.Email)
						assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("secret1")))
						u.ID = 1
						return u, nil
					})
			},
			expectedStatus: http.StatusCreated,
			expectedBody: `{"message":"User registered successfully","user":{"id":1,"name":"Op","email":"op@example.com",
				"phone_number":"+7 700 000 0000","address":"Almaty"}}`,
		},
		{
			name:           "confirmation mismatch",
			mutate:         func(b map[string]interface{}) { b["password_confirmation"] = "other" },
			setupMocks:     func() {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody: `{"message":"The password field confirmation does not match.",
				"errors":{"password":["The password field confirmation does not match."]}}`,
		},
		{
			name:           "missing phone",
			mutate:         func(b map[string]interface{}) { delete(b, "phone_number") },
			setupMocks:     func() {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody: `{"message":"The phone number field is required.",
				"errors":{"phone_number":["The phone number field is required."]}}`,
		},
		{
			name: "email taken",
			setupMocks: func() {
				mockStorage.EXPECT().CreateUser(gomock.Any(), gomock.Any()).Return(server.User{}, server.ErrEmailTaken)
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody: `{"message":"The email has already been taken.",
				"errors":{"email":["The email has already been taken."]}}`,
		},
		{
			name: "storage error",
			setupMocks: func() {
				mockStorage.EXPECT().CreateUser(gomock.Any(), gomock.Any()).Return(server.User{}, errors.New("boom"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"message":"Server Error"}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMocks()

			body := make(map[string]interface{}, len(profile))
			for k, v := range profile {
				body[k] = v
			}
			if tc.mutate != nil {
				tc.mutate(body)
			}

			rr := do(t, handler, http.MethodPost, "/api/register", "", body)

			assert.Equal(t, tc.expectedStatus, rr.Code)
			assert.JSONEq(t, tc.expectedBody, rr.Body.String())
		})
	}
}

func TestHandleLogin(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStorage := mock_server.NewMockStorage(ctrl)
	handler, tokens := newHandler(t, mockStorage)

	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)
	user := server.User{ID: 7, Email: "op@example.com", PasswordHash: string(hash)}

	t.Run("issues a token", func(t *testing.T) {
		mockStorage.EXPECT().UserByEmail(gomock.Any(), "op@example.com").Return(user, nil)

		rr := do(t, handler, http.MethodPost, "/api/login", "", map[string]string{"email": "op@example.com", "password": "secret1"})
		require.Equal(t, http.StatusOK, rr.Code)

		var body struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		claims, err := tokens.Parse(body.Token)
		require.NoError(t, err)
		assert.Equal(t, "7", claims.Subject)
		assert.NotEmpty(t, claims.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		mockStorage.EXPECT().UserByEmail(gomock.Any(), "op@example.com").Return(user, nil)

		rr := do(t, handler, http.MethodPost, "/api/login", "", map[string]string{"email": "op@example.com", "password": "nope"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.JSONEq(t, `{"message":"Invalid credentials"}`, rr.Body.String())
	})

	t.Run("unknown user", func(t *testing.T) {
		mockStorage.EXPECT().UserByEmail(gomock.Any(), "ghost@example.com").Return(server.User{}, server.ErrUserNotFound)

		rr := do(t, handler, http.MethodPost, "/api/login", "", map[string]string{"email": "ghost@example.com", "password": "x"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewBufferString("{"))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestOrdersRequireBearerToken(t *testing.T) {
	handler, tokens := newHandler(t, server.NewMemoryStorage())

	expired := server.NewTokenIssuer(testSecret, -time.Minute)
	expiredToken, err := expired.Issue(1)
	require.NoError(t, err)

	forged, err := server.NewTokenIssuer("other-secret", time.Hour).Issue(1)
	require.NoError(t, err)

	valid, err := tokens.Issue(1)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{name: "no token", token: "", want: http.StatusUnauthorized},
		{name: "garbage", token: "not-a-jwt", want: http.StatusUnauthorized},
		{name: "expired", token: expiredToken, want: http.StatusUnauthorized},
		{name: "wrong secret", token: forged, want: http.StatusUnauthorized},
		{name: "valid", token: valid, want: http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, handler, http.MethodGet, "/api/orders", tc.token, nil)
			assert.Equal(t, tc.want, rr.Code)
			if tc.want == http.StatusUnauthorized {
				assert.JSONEq(t, `{"message":"Unauthenticated."}`, rr.Body.String())
			}
		})
	}
}

func TestHandleCreateOrder(t *testing.T) {
	handler, tokens := newHandler(t, server.NewMemoryStorage())
	token, err := tokens.Issue(1)
	require.NoError(t, err)

	t.Run("created", func(t *testing.T) {
		rr := do(t, handler, http.MethodPost, "/api/orders", token, validOrder())
		require.Equal(t, http.StatusCreated, rr.Code)

		var body struct {
			Data domain.OrderRecord `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.NotEmpty(t, body.Data.ID)
		assert.Equal(t, "pending", body.Data.Status)
		assert.Equal(t, "2024-03-01 10:00:00", body.Data.PickupTime.String())
		require.NotNil(t, body.Data.CargoWeight)
		assert.Equal(t, 1500.5, float64(*body.Data.CargoWeight))
	})

	t.Run("delivery before pickup", func(t *testing.T) {
		order := validOrder()
		order["delivery_time"] = "2024-02-28 10:00:00"

		rr := do(t, handler, http.MethodPost, "/api/orders", token, order)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Contains(t, rr.Body.String(), "The delivery time field must be a date after pickup time.")
	})

	t.Run("wrong date format", func(t *testing.T) {
		order := validOrder()
		order["pickup_time"] = "01.03.2024"

		rr := do(t, handler, http.MethodPost, "/api/orders", token, order)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Contains(t, rr.Body.String(), "The pickup time field must match the format Y-m-d H:i:s.")
	})
}

func TestListOrders_PerUser(t *testing.T) {
	handler, tokens := newHandler(t, server.NewMemoryStorage())
	alice, _ := tokens.Issue(1)
	bob, _ := tokens.Issue(2)

	require.Equal(t, http.StatusCreated, do(t, handler, http.MethodPost, "/api/orders", alice, validOrder()).Code)
	require.Equal(t, http.StatusCreated, do(t, handler, http.MethodPost, "/api/orders", alice, validOrder()).Code)

	rr := do(t, handler, http.MethodGet, "/api/orders", alice, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var aliceBody struct {
		Data []domain.OrderRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &aliceBody))
	require.Len(t, aliceBody.Data, 2)
	assert.Equal(t, domain.RecordID("1"), aliceBody.Data[0].ID)
	assert.Equal(t, domain.RecordID("2"), aliceBody.Data[1].ID)

	rr = do(t, handler, http.MethodGet, "/api/orders", bob, nil)
	assert.JSONEq(t, `{"data":[]}`, rr.Body.String())
}

func TestHandleLogout_RevokesToken(t *testing.T) {
	handler, tokens := newHandler(t, server.NewMemoryStorage())
	token, err := tokens.Issue(1)
	require.NoError(t, err)

	rr := do(t, handler, http.MethodPost, "/api/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())

	rr = do(t, handler, http.MethodGet, "/api/orders", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, handler, http.MethodPost, "/api/logout", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	handler, _ := newHandler(t, server.NewMemoryStorage())

	rr := do(t, handler, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "truckdispatch_stubapi_orders_stored")
}

func TestRequestIDEcho(t *testing.T) {
	handler, _ := newHandler(t, server.NewMemoryStorage())

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "req-123", rr.Header().Get("X-Request-ID"))
}
