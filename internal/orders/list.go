package orders

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/domain"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/metrics"
)

// Snapshot is what the dashboard shows at a point in time.
type Snapshot struct {
	Loading bool
	Loaded  bool
	Orders  []domain.OrderRecord
	Empty   bool
	Notice  domain.Notice
}

// ListView is one activation of the dashboard. It fetches on the first Load
// and again only when the session token changes. It never polls.
type ListView struct {
	gateway Gateway
	gate    SessionGate
	logger  *zap.Logger

	mu      sync.Mutex
	snap    Snapshot
	fetched bool
	sess    domain.Session
}

func NewListView(gateway Gateway, gate SessionGate, logger *zap.Logger) *ListView {
	return &ListView{
		gateway: gateway,
		gate:    gate,
		logger:  logger.With(zap.String("component", "list_view")),
	}
}

func (v *ListView) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *ListView) snapshotLocked() Snapshot {
	snap := v.snap
	snap.Orders = append([]domain.OrderRecord(nil), v.snap.Orders...)
	return snap
}

func (v *ListView) Load(ctx context.Context, sess domain.Session) Snapshot {
	v.mu.Lock()
	if v.fetched && v.sess.Same(sess) {
		defer v.mu.Unlock()
		return v.snapshotLocked()
	}
	v.fetched = true
	v.sess = sess

	if sess.IsZero() {
		v.snap = Snapshot{Loaded: true, Empty: true, Notice: NoticeNoToken}
		v.mu.Unlock()
		metrics.WorkflowOutcomesTotal.WithLabelValues("list", "session_missing").Inc()
		return v.Snapshot()
	}

	v.snap = Snapshot{Loading: true}
	v.mu.Unlock()

	v.fetch(ctx, sess)
	return v.Snapshot()
}

func (v *ListView) fetch(ctx context.Context, sess domain.Session) {
	defer v.finish(sess)

	orders, err := v.gateway.ListOrders(ctx, sess)

	var notice domain.Notice
	outcome := "ok"
	if err != nil {
		notice, outcome = v.failure(sess, err)
	}
	metrics.WorkflowOutcomesTotal.WithLabelValues("list", outcome).Inc()

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.sess.Same(sess) {
		// A newer activation owns the snapshot.
		return
	}
	v.snap.Orders = orders
	v.snap.Empty = len(orders) == 0
	v.snap.Notice = notice
}

// finish retires the loading flag whatever the fetch returned.
func (v *ListView) finish(sess domain.Session) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.sess.Same(sess) {
		return
	}
	v.snap.Loading = false
	v.snap.Loaded = true
}

func (v *ListView) failure(sess domain.Session, err error) (domain.Notice, string) {
	switch {
	case !v.gate.Active(sess):
		v.logger.Debug("dropping failure for a session that is no longer active", zap.Error(err))
		return domain.Notice{}, "ignored"
	case domain.IsAuth(err):
		v.gate.Expire(sess)
		return NoticeExpired, "expired"
	case errors.Is(err, domain.ErrSessionMissing):
		return NoticeNoToken, "session_missing"
	default:
		v.logger.Warn("failed to fetch orders", zap.Error(err))
		return NoticeFetch, "error"
	}
}
