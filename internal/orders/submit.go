package orders

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/domain"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/metrics"
)

// Result is the outcome of one submission. Notice is zero when Ignored is set.
type Result struct {
	Record  *domain.OrderRecord
	Notice  domain.Notice
	Err     error
	Next    Route
	Ignored bool
}

type Submitter struct {
	gateway Gateway
	gate    SessionGate
	logger  *zap.Logger
}

func NewSubmitter(gateway Gateway, gate SessionGate, logger *zap.Logger) *Submitter {
	return &Submitter{
		gateway: gateway,
		gate:    gate,
		logger:  logger.With(zap.String("component", "submitter")),
	}
}

// Submit sends a truck request on behalf of the current session. It makes a
// single attempt and converts every failure into a notice.
func (s *Submitter) Submit(ctx context.Context, form Form) Result {
	res := s.submit(ctx, form)
	metrics.WorkflowOutcomesTotal.WithLabelValues("submit", resultOutcome(res)).Inc()
	return res
}

func (s *Submitter) submit(ctx context.Context, form Form) Result {
	sess, err := s.gate.Require()
	if err != nil {
		return Result{Err: err, Notice: NoticeNoToken}
	}

	req, err := form.Request()
	if err != nil {
		return Result{Err: err, Notice: failureNotice(err)}
	}

	rec, err := s.gateway.CreateOrder(ctx, req, sess)
	if err == nil {
		metrics.OrdersCreatedTotal.Inc()
		s.logger.Info("order submitted", zap.Stringer("order_id", rec.ID))
		return Result{Record: rec, Notice: NoticeCreated, Next: RouteDashboard}
	}

	if !s.gate.Active(sess) {
		s.logger.Debug("dropping failure for a session that is no longer active", zap.Error(err))
		return Result{Err: err, Ignored: true}
	}

	if domain.IsAuth(err) {
		s.gate.Expire(sess)
		return Result{Err: err, Notice: NoticeExpired, Next: RouteLogin}
	}

	s.logger.Warn("order submission failed", zap.Error(err))
	return Result{Err: err, Notice: failureNotice(err)}
}

func failureNotice(err error) domain.Notice {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return orderFailed(verr.Message)
	case errors.Is(err, domain.ErrSessionMissing):
		return NoticeNoToken
	case domain.IsNetwork(err):
		return NoticeOffline
	default:
		return NoticeFailed
	}
}

func resultOutcome(res Result) string {
	switch {
	case res.Ignored:
		return "ignored"
	case res.Err == nil:
		return "ok"
	case errors.Is(res.Err, domain.ErrSessionMissing):
		return "session_missing"
	case domain.IsAuth(res.Err):
		return "expired"
	case domain.IsValidation(res.Err):
		return "validation"
	case domain.IsNetwork(res.Err):
		return "network"
	default:
		return "error"
	}
}
