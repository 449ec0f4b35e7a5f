//go:generate mockgen -source ./server.go -destination=./mocks/server.go -package=mock_server
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/domain"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/metrics"
)

const (
	orderStatusPending = "pending"
	maxRequestBody     = 1 << 20
)

type Storage interface {
	CreateUser(ctx context.Context, user User) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	AddOrder(ctx context.Context, userID int64, order domain.OrderRecord) (domain.OrderRecord, error)
	UserOrders(ctx context.Context, userID int64) ([]domain.OrderRecord, error)
	RevokeToken(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Server is an in-memory stand-in for the dispatch API used for local
// development and end-to-end tests.
type Server struct {
	storage    Storage
	tokens     *TokenIssuer
	logger     *zap.Logger
	validate   *validator.Validate
	bcryptCost int
	server     *http.Server
}

type Option func(*Server)

// WithBcryptCost lowers hashing cost, which keeps tests fast.
func WithBcryptCost(cost int) Option {
	return func(s *Server) {
		s.bcryptCost = cost
	}
}

func New(storage Storage, tokens *TokenIssuer, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		storage:    storage,
		tokens:     tokens,
		logger:     logger.With(zap.String("component", "stubapi")),
		validate:   newValidator(),
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Run(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.logger.Info("stub API listening", zap.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down stub API")
	return s.server.Shutdown(ctx)
}

func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.requestLogMiddleware, metrics.InstrumentRoutes)

	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(s.authMiddleware)
	authed.HandleFunc("/orders", s.handleListOrders).Methods(http.MethodGet)
	authed.HandleFunc("/orders", s.handleCreateOrder).Methods(http.MethodPost)
	authed.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "Not Found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	return router
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	if data == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"message": message})
}

func respondUnauthenticated(w http.ResponseWriter) {
	respondError(w, http.StatusUnauthorized, "Unauthenticated.")
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload registerPayload
	if !decodeBody(w, r, &payload) {
		return
	}

	verrs, err := s.validatePayload(payload)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Server Error")
		return
	}
	if !verrs.empty() {
		respondJSON(w, http.StatusUnprocessableEntity, verrs)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(payload.Password), s.bcryptCost)
	if err != nil {
		s.logger.Error("failed to hash password", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Server Error")
		return
	}

	user, err := s.storage.CreateUser(r.Context(), User{
		Name:         strings.TrimSpace(payload.Name),
		Email:        strings.TrimSpace(payload.Email),
		PhoneNumber:  payload.PhoneNumber,
		Address:      payload.Address,
		PasswordHash: string(hash),
	})
	if errors.Is(err, ErrEmailTaken) {
		taken := &validationErrors{}
		taken.add("email", "The email has already been taken.")
		respondJSON(w, http.StatusUnprocessableEntity, taken)
		return
	}
	if err != nil {
		s.logger.Error("failed to create user", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Server Error")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "User registered successfully",
		"user":    user,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload loginPayload
	if !decodeBody(w, r, &payload) {
		return
	}

	verrs, err := s.validatePayload(payload)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Server Error")
		return
	}
	if !verrs.empty() {
		respondJSON(w, http.StatusUnprocessableEntity, verrs)
		return
	}

	user, err := s.storage.UserByEmail(r.Context(), payload.Email)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		s.logger.Error("failed to look up user", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Server Error")
		return
	}
	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(payload.Password)) != nil {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.logger.Error("failed to issue token", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Server Error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Login successful",
		"token":   token,
		"user":    user,
	})
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var payload orderPayload
	if !decodeBody(w, r, &payload) {
		return
	}

	verrs, err := s.validatePayload(payload)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Server Error")
		return
	}

	var pickup, delivery domain.Timestamp
	if verrs.empty() {
		pickup, _ = domain.ParseTimestamp(payload.PickupTime)
		delivery, _ = domain.ParseTimestamp(payload.DeliveryTime)
		if !delivery.After(pickup.Time) {
			verrs.add("delivery_time", "The delivery time field must be a date after pickup time.")
		}
	}
	if !verrs.empty() {
		respondJSON(w, http.StatusUnprocessableEntity, verrs)
		return
	}

	order := domain.OrderRecord{
		OrderRequest: domain.OrderRequest{
			Location:     payload.Location,
			Destination:  payload.Destination,
			NoOfTrucks:   payload.NoOfTrucks,
			TypeOfTruck:  payload.TypeOfTruck,
			CompanyName:  payload.CompanyName,
			CargoType:    payload.CargoType,
			PickupTime:   pickup,
			DeliveryTime: delivery,
		},
		Status: orderStatusPending,
	}
	if payload.CargoWeight != nil {
		order.CargoWeight = domain.NewWeight(*payload.CargoWeight)
	}

	order, err = s.storage.AddOrder(r.Context(), userIDFrom(r.Context()), order)
	if err != nil {
		s.logger.Error("failed to store order", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Server Error")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Order created successfully",
		"data":    order,
	})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.storage.UserOrders(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.logger.Error("failed to list orders", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Server Error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"data": orders})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	if claims == nil {
		respondUnauthenticated(w)
		return
	}

	until := time.Now()
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	if err := s.storage.RevokeToken(r.Context(), claims.ID, until); err != nil {
		s.logger.Error("failed to revoke token", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Server Error")
		return
	}

	respondJSON(w, http.StatusNoContent, nil)
}
