//go:generate mockgen -source ./handler.go -destination=./mocks/handler.go -package=mock_handler
package handler

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/domain"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/kafka"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/lifecycle"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/orders"
)

type Gateway interface {
	Register(ctx context.Context, profile domain.Profile) error
	CreateOrder(ctx context.Context, req domain.OrderRequest, sess domain.Session) (*domain.OrderRecord, error)
	ListOrders(ctx context.Context, sess domain.Session) ([]domain.OrderRecord, error)
}

type Sessions interface {
	State() lifecycle.State
	Login(ctx context.Context, creds domain.Credentials) error
	Logout(ctx context.Context) error
	Require() (domain.Session, error)
	Expire(sess domain.Session) bool
	Active(sess domain.Session) bool
}

type Auditor interface {
	Publish(ctx context.Context, event kafka.Event)
}

var (
	NoticeLoginFirst = domain.Notice{Title: "Error", Message: "Please log in first."}
	NoticeRegistered = domain.Notice{Title: "Registration Successful", Message: "You can now log in."}
	NoticeLoggedOut  = domain.Notice{Title: "Logout Successful", Message: "You have been logged out."}
)

const unknownErrorText = "Something went wrong. Please try again."

// Handler drives the operator screens from typed commands. Output goes to out.
type Handler struct {
	out       io.Writer
	gateway   Gateway
	sessions  Sessions
	submitter *orders.Submitter
	audit     Auditor
	logger    *zap.Logger
	timeNow   func() time.Time

	mu        sync.Mutex
	dashboard *orders.ListView
}

func New(out io.Writer, gateway Gateway, sessions Sessions, audit Auditor, logger *zap.Logger) *Handler {
	return &Handler{
		out:       out,
		gateway:   gateway,
		sessions:  sessions,
		submitter: orders.NewSubmitter(gateway, sessions, logger),
		audit:     audit,
		logger:    logger.With(zap.String("component", "handler")),
		timeNow:   time.Now,
	}
}

func (h *Handler) HandleHelp() {
	fmt.Fprintln(h.out, `Available commands:
	register --name N --email E --password P [--password-confirmation P] --phone PH --address A - Create an account
	login <email> <password> - Log in and open the dashboard
	request-truck --location L --destination D --trucks N --cargo-type C [--truck-type T] [--company C] [--weight W] [--pickup "YYYY-MM-DD HH:mm"] [--delivery "YYYY-MM-DD HH:mm"] - Submit a truck request
	orders [--refresh] - Show the dashboard
	logout - Log out
	status - Show the session state
	help - Show this help
	exit - Exit program`)
}

func (h *Handler) HandleRegister(ctx context.Context, args []string) {
	fs := newFlagSet("register")
	var profile domain.Profile
	fs.StringVar(&profile.Name, "name", "", "full name")
	fs.StringVar(&profile.Email, "email", "", "email address")
	fs.StringVar(&profile.Password, "password", "", "password")
	fs.StringVar(&profile.PasswordConfirmation, "password-confirmation", "", "password again, defaults to --password")
	fs.StringVar(&profile.PhoneNumber, "phone", "", "phone number")
	fs.StringVar(&profile.Address, "address", "", "postal address")
	if !h.parseFlags(fs, args, "Usage: register --name N --email E --password P --phone PH --address A") {
		return
	}
	if profile.PasswordConfirmation == "" {
		profile.PasswordConfirmation = profile.Password
	}

	err := h.gateway.Register(ctx, profile)
	h.publish(ctx, kafka.ActionRegister, err, "")
	if err != nil {
		h.logger.Info("registration rejected", zap.Error(err))
		h.printNotice(domain.Notice{Title: "Registration Failed", Message: errorMessage(err)})
		return
	}
	h.printNotice(NoticeRegistered)
}

func (h *Handler) HandleLogin(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(h.out, "Usage: login <email> <password>")
		return
	}

	err := h.sessions.Login(ctx, domain.Credentials{Email: args[0], Password: args[1]})
	if err != nil {
		// Successful logins are audited from the session transition.
		h.publish(ctx, kafka.ActionLogin, err, "")
		h.printNotice(domain.Notice{Title: "Login Failed", Message: errorMessage(err)})
		return
	}

	fmt.Fprintln(h.out, "Logged in.")
	h.showDashboard(ctx, true)
}

func (h *Handler) HandleRequestTruck(ctx context.Context, args []string) {
	if h.sessions.State() != lifecycle.Authenticated {
		h.printNotice(NoticeLoginFirst)
		return
	}

	now := h.timeNow().Format(orders.InputLayout)
	fs := newFlagSet("request-truck")
	var form orders.Form
	fs.StringVar(&form.Location, "location", "", "pickup location")
	fs.StringVar(&form.Destination, "destination", "", "delivery destination")
	fs.StringVar(&form.NoOfTrucks, "trucks", "", "number of trucks")
	fs.StringVar(&form.TypeOfTruck, "truck-type", "", "type of truck")
	fs.StringVar(&form.CompanyName, "company", "", "company name")
	fs.StringVar(&form.CargoType, "cargo-type", "", "cargo type")
	fs.StringVar(&form.CargoWeight, "weight", "", "cargo weight")
	fs.StringVar(&form.PickupTime, "pickup", now, "pickup time")
	fs.StringVar(&form.DeliveryTime, "delivery", now, "delivery time")
	if !h.parseFlags(fs, args, "Usage: request-truck --location L --destination D --trucks N --cargo-type C [options]") {
		return
	}

	res := h.submitter.Submit(ctx, form)
	if res.Ignored {
		return
	}

	orderID := ""
	if res.Record != nil {
		orderID = res.Record.ID.String()
	}
	h.publish(ctx, kafka.ActionOrderSubmitted, res.Err, orderID)
	h.printNotice(res.Notice)

	switch res.Next {
	case orders.RouteDashboard:
		h.showDashboard(ctx, true)
	case orders.RouteLogin:
		h.resetDashboard()
		fmt.Fprintln(h.out, "Please log in again.")
	}
}

func (h *Handler) HandleOrders(ctx context.Context, args []string) {
	fs := newFlagSet("orders")
	refresh := fs.Bool("refresh", false, "fetch the list again")
	if !h.parseFlags(fs, args, "Usage: orders [--refresh]") {
		return
	}
	if h.sessions.State() != lifecycle.Authenticated {
		h.printNotice(NoticeLoginFirst)
		return
	}
	h.showDashboard(ctx, *refresh)
}

func (h *Handler) HandleLogout(ctx context.Context) {
	h.resetDashboard()
	if err := h.sessions.Logout(ctx); err != nil {
		metrics.OperationErrorsTotal.WithLabelValues(string(kafka.ActionLogout)).Inc()
		h.logger.Error("logout failed", zap.Error(err))
		fmt.Fprintln(h.out, "Error:", err)
		return
	}
	h.printNotice(NoticeLoggedOut)
}

func (h *Handler) HandleStatus() {
	fmt.Fprintf(h.out, "Session: %s\n", h.sessions.State())
}

// showDashboard renders the current dashboard activation. A fresh activation
// always fetches; an existing one refetches only when the token changed.
func (h *Handler) showDashboard(ctx context.Context, fresh bool) {
	h.mu.Lock()
	if fresh || h.dashboard == nil {
		h.dashboard = orders.NewListView(h.gateway, h.sessions, h.logger)
	}
	view := h.dashboard
	h.mu.Unlock()

	sess, err := h.sessions.Require()
	if err != nil && !errors.Is(err, domain.ErrSessionMissing) {
		h.logger.Warn("unexpected session error", zap.Error(err))
	}

	snap := view.Load(ctx, sess)
	renderDashboard(h.out, snap)
	if snap.Notice == orders.NoticeExpired {
		h.resetDashboard()
		fmt.Fprintln(h.out, "Please log in again.")
	}
}

func (h *Handler) resetDashboard() {
	h.mu.Lock()
	h.dashboard = nil
	h.mu.Unlock()
}

func (h *Handler) printNotice(n domain.Notice) {
	if n.IsZero() {
		return
	}
	fmt.Fprintln(h.out, n.String())
}

func (h *Handler) parseFlags(fs *flag.FlagSet, args []string, usage string) bool {
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(h.out, err)
		fmt.Fprintln(h.out, usage)
		return false
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(h.out, "Unexpected argument %q\n", fs.Arg(0))
		fmt.Fprintln(h.out, usage)
		return false
	}
	return true
}

func (h *Handler) publish(ctx context.Context, action kafka.Action, err error, orderID string) {
	if err != nil {
		metrics.OperationErrorsTotal.WithLabelValues(string(action)).Inc()
	}
	if h.audit == nil {
		return
	}
	event := kafka.Event{Action: action, Outcome: "ok", OrderID: orderID}
	if err != nil {
		event.Outcome = "failed"
		event.Detail = errorKind(err)
	}
	h.audit.Publish(ctx, event)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// errorMessage is what the operator sees for a failed account operation.
func errorMessage(err error) string {
	var (
		verr *domain.ValidationError
		aerr *domain.AuthError
	)
	switch {
	case errors.As(err, &verr) && verr.Message != "":
		return verr.Message
	case errors.As(err, &aerr) && aerr.Message != "":
		return aerr.Message
	case domain.IsNetwork(err):
		return "Could not reach the dispatch service. Please try again."
	default:
		return unknownErrorText
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrSessionMissing):
		return "session_missing"
	case domain.IsAuth(err):
		return "auth"
	case domain.IsValidation(err):
		return "validation"
	case domain.IsNetwork(err):
		return "network"
	default:
		return "error"
	}
}

// AuditTransitions turns session state changes into audit events.
func AuditTransitions(audit Auditor) func(lifecycle.Transition) {
	return func(t lifecycle.Transition) {
		var action kafka.Action
		switch t.Reason {
		case lifecycle.ReasonLogin:
			action = kafka.ActionLogin
		case lifecycle.ReasonLogout:
			action = kafka.ActionLogout
		case lifecycle.ReasonRestore:
			action = kafka.ActionSessionRestore
		case lifecycle.ReasonExpired, lifecycle.ReasonStoreEmpty:
			action = kafka.ActionSessionExpired
		default:
			return
		}
		audit.Publish(context.Background(), kafka.Event{
			Timestamp: t.At.UTC(),
			Action:    action,
			Outcome:   "ok",
			Detail:    t.From.String() + "->" + t.To.String(),
		})
	}
}
