//go:generate mockgen -source ./controller.go -destination=./mocks/controller.go -package=mock_lifecycle
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/domain"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/session"
)

type Gateway interface {
	Login(ctx context.Context, creds domain.Credentials) (domain.Session, error)
	Logout(ctx context.Context, sess domain.Session) error
}

type State int

const (
	Unauthenticated State = iota
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

type Reason string

const (
	ReasonRestore    Reason = "restore"
	ReasonLogin      Reason = "login"
	ReasonLogout     Reason = "logout"
	ReasonExpired    Reason = "expired"
	ReasonStoreEmpty Reason = "store_empty"
)

type Transition struct {
	From   State
	To     State
	Reason Reason
	At     time.Time
}

// Controller owns the session state machine. The store is written on login
// and cleared on logout and on any authentication failure.
type Controller struct {
	gateway Gateway
	store   session.Store
	logger  *zap.Logger
	timeNow func() time.Time

	mu        sync.Mutex
	state     State
	current   domain.Session
	observers []func(Transition)
}

func New(gateway Gateway, store session.Store, logger *zap.Logger) *Controller {
	return &Controller{
		gateway: gateway,
		store:   store,
		logger:  logger.With(zap.String("component", "lifecycle")),
		timeNow: time.Now,
	}
}

// Subscribe registers an observer called after every state change.
// Observers run on the goroutine that caused the change.
func (c *Controller) Subscribe(fn func(Transition)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active reports whether sess is still the session in force.
func (c *Controller) Active(sess domain.Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Authenticated && !sess.IsZero() && c.current.Same(sess)
}

// Restore adopts a token left in the store by a previous run.
func (c *Controller) Restore() (bool, error) {
	sess, ok, err := c.store.Load()
	if err != nil {
		return false, fmt.Errorf("failed to restore session: %w", err)
	}
	if !ok {
		return false, nil
	}

	c.setState(Authenticated, sess, ReasonRestore)
	c.logger.Info("session restored")
	return true, nil
}

// Login exchanges credentials for a token and persists it. On any failure the
// state is left as it was.
func (c *Controller) Login(ctx context.Context, creds domain.Credentials) error {
	sess, err := c.gateway.Login(ctx, creds)
	if err != nil {
		return err
	}
	if sess.IsZero() {
		return &domain.AuthError{Message: "login returned an empty token"}
	}

	if err := c.store.Save(sess); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	c.setState(Authenticated, sess, ReasonLogin)
	c.logger.Info("logged in")
	return nil
}

// Logout clears the local session first and then asks the server to revoke
// the token. Revocation failures are only logged.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	sess := c.current
	c.mu.Unlock()

	clearErr := c.store.Clear()
	c.setState(Unauthenticated, domain.Session{}, ReasonLogout)

	if !sess.IsZero() {
		if err := c.gateway.Logout(ctx, sess); err != nil {
			c.logger.Warn("server-side logout failed, local session cleared anyway", zap.Error(err))
		}
	}

	if clearErr != nil {
		return fmt.Errorf("failed to clear session: %w", clearErr)
	}
	return nil
}

// Expire handles an authentication failure observed with sess. It only acts
// when sess is still the current session; stale tokens are ignored.
func (c *Controller) Expire(sess domain.Session) bool {
	if !c.Active(sess) {
		return false
	}

	if err := c.store.Clear(); err != nil {
		c.logger.Error("failed to clear expired session", zap.Error(err))
	}
	c.setState(Unauthenticated, domain.Session{}, ReasonExpired)
	c.logger.Info("session expired")
	return true
}

// Require returns the session order operations must use. The store is
// consulted so that a token removed behind the controller's back is noticed.
func (c *Controller) Require() (domain.Session, error) {
	if c.State() != Authenticated {
		return domain.Session{}, domain.ErrSessionMissing
	}

	stored, ok, err := c.store.Load()
	if err != nil {
		c.logger.Warn("failed to read session store", zap.Error(err))
		return domain.Session{}, fmt.Errorf("%w: %v", domain.ErrSessionMissing, err)
	}
	if !ok {
		c.setState(Unauthenticated, domain.Session{}, ReasonStoreEmpty)
		return domain.Session{}, domain.ErrSessionMissing
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.current.Same(stored) {
		c.logger.Debug("session store holds a newer token, adopting it")
		c.current = stored
	}
	return c.current, nil
}

func (c *Controller) setState(to State, sess domain.Session, reason Reason) {
	c.mu.Lock()
	from := c.state
	changed := from != to || !c.current.Same(sess)
	c.state = to
	c.current = sess
	observers := append([]func(Transition){}, c.observers...)
	c.mu.Unlock()

	if !changed {
		return
	}
	metrics.SessionTransitionsTotal.WithLabelValues(to.String(), string(reason)).Inc()

	tr := Transition{From: from, To: to, Reason: reason, At: c.timeNow()}
	for _, fn := range observers {
		fn(tr)
	}
}
