package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"basewar/server/internal/geo"
	"basewar/server/internal/income"
	"basewar/server/internal/net/proto"
	"basewar/server/internal/notify"
	"basewar/server/internal/persist"
	"basewar/server/internal/proximity"
	"basewar/server/internal/registry"
	"basewar/server/internal/sim"
	"basewar/server/internal/store"
	"basewar/server/internal/telemetry"
	"basewar/server/logging"
	loggingEconomy "basewar/server/logging/economy"
	loggingLifecycle "basewar/server/logging/lifecycle"
	loggingSimulation "basewar/server/logging/simulation"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrUnknownUser    = errors.New("unknown user")
)

// Conn is the outbound half of a client connection.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

type HubConfig struct {
	BaseRange float64
	Income    income.Settings
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		BaseRange: DefaultBaseRange,
		Income: income.Settings{
			BaseIncome:                    10,
			IncomeIncreasePerInvestment:   2,
			IncomeMultiplierPerActiveUser: 0.5,
		},
	}
}

// Hub owns every session, the tracked users behind them and the set of bases
// that were active during the last tick. One mutex guards all three; store
// calls are never made while holding it.
type Hub struct {
	store   store.Store
	cfg     HubConfig
	logger  telemetry.Logger
	metrics telemetry.Metrics
	pub     logging.Publisher
	flusher *persist.Flusher

	tickMu sync.Mutex

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
	users    *registry.Registry
	active   map[string]activeBase
	// stale is set while the active set is carried over from an aborted tick.
	stale    bool
	lastTick uint64
	closed   bool
}

type session struct {
	handle uuid.UUID
	conn   Conn
	opened time.Time
	mu     sync.Mutex
}

type activeBase struct {
	base        store.Base
	investments int
	income      float64
	handles     []uuid.UUID
}

type outbound struct {
	sess *session
	data []byte
}

func NewHub(st store.Store, cfg HubConfig) *Hub {
	if cfg.BaseRange < 0 {
		cfg.BaseRange = DefaultBaseRange
	}
	h := &Hub{
		store:    st,
		cfg:      cfg,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		pub:      cfg.Publisher,
		sessions: make(map[uuid.UUID]*session),
		users:    registry.New(),
		active:   make(map[string]activeBase),
	}
	if h.logger == nil {
		h.logger = telemetry.WrapLogger(log.Default())
	}
	if h.metrics == nil {
		h.metrics = telemetry.NopMetrics()
	}
	if h.pub == nil {
		h.pub = logging.NopPublisher()
	}
	h.flusher = persist.NewFlusher(st, persist.Config{Logger: h.logger, Metrics: h.metrics, Publisher: h.pub})
	return h
}

// Connect registers conn and returns the handle that identifies it from now on.
func (h *Hub) Connect(conn Conn) uuid.UUID {
	handle := uuid.New()
	sess := &session{handle: handle, conn: conn, opened: time.Now()}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return handle
	}
	h.sessions[handle] = sess
	count := len(h.sessions)
	h.mu.Unlock()

	h.metrics.Store(telemetry.MetricSessions, uint64(count))
	loggingLifecycle.SessionOpened(context.Background(), h.pub, logging.ConnectionRef(handle.String()), nil)
	return handle
}

// UpdateLocation moves the user tracked for handle, or starts tracking userID
// there once the store has confirmed it exists.
func (h *Hub) UpdateLocation(ctx context.Context, handle uuid.UUID, userID string, location geo.Point) error {
	h.mu.Lock()
	sess, ok := h.sessions[handle]
	if !ok {
		h.mu.Unlock()
		return ErrUnknownSession
	}
	if h.users.UpdateLocation(handle, location) {
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	actor := logging.ConnectionRef(handle.String())
	user, err := h.store.UserByID(ctx, userID)
	if err != nil {
		reason := ErrorUserNotFound
		if !errors.Is(err, store.ErrNotFound) {
			reason = ErrorUserLookupFailed
			h.logger.Printf("failed to load user %s for %s: %v", userID, handle, err)
		}
		loggingLifecycle.UnknownUser(ctx, h.pub, actor, loggingLifecycle.UnknownUserPayload{UserID: userID, Reason: err.Error()}, nil)
		h.sendError(sess, reason)
		return fmt.Errorf("%w %s: %v", ErrUnknownUser, userID, err)
	}

	h.mu.Lock()
	if _, ok := h.sessions[handle]; !ok {
		// Disconnected while the lookup was in flight.
		h.mu.Unlock()
		return nil
	}
	entry := h.users.Insert(handle, user.ID, user.Money, location)
	money := entry.Money
	tracked := h.users.Len()
	h.mu.Unlock()

	h.metrics.Store(telemetry.MetricTrackedUsers, uint64(tracked))
	loggingLifecycle.UserTracked(ctx, h.pub, actor, loggingLifecycle.UserTrackedPayload{UserID: user.ID, Money: money}, nil)
	return nil
}

// Disconnect forgets handle, closes its connection and persists the cached
// balance in the background. Repeated calls are no-ops.
func (h *Hub) Disconnect(handle uuid.UUID, reason string) {
	h.mu.Lock()
	sess, hadSession := h.sessions[handle]
	if hadSession {
		delete(h.sessions, handle)
	}
	user, tracked := h.users.Remove(handle)
	if tracked {
		h.dropFromActiveLocked(handle)
	}
	sessions, users := len(h.sessions), h.users.Len()
	h.mu.Unlock()

	if !hadSession && !tracked {
		return
	}
	if hadSession {
		sess.conn.Close()
	}
	h.metrics.Store(telemetry.MetricSessions, uint64(sessions))
	h.metrics.Store(telemetry.MetricTrackedUsers, uint64(users))

	payload := loggingLifecycle.SessionClosedPayload{Reason: reason}
	if tracked {
		payload.UserID = user.UserID
		h.flusher.Flush(user.UserID, user.Money)
	}
	loggingLifecycle.SessionClosed(context.Background(), h.pub, logging.ConnectionRef(handle.String()), payload, nil)
}

// Tick recomputes the active bases, credits income and notifies owners.
func (h *Hub) Tick(ctx context.Context, tick uint64) sim.TickResult {
	h.tickMu.Lock()
	defer h.tickMu.Unlock()

	result := sim.TickResult{Tick: tick}

	bases, err := h.store.ListBases(ctx)
	if err != nil {
		return h.abortTick(ctx, tick, err)
	}
	result.Bases = len(bases)

	h.mu.Lock()
	tracked := h.users.All()
	positions := make([]proximity.Position, 0, len(tracked))
	for _, user := range tracked {
		positions = append(positions, proximity.Position{Handle: user.Handle, Location: user.Location})
	}
	h.mu.Unlock()

	matches := proximity.Compute(bases, positions, h.cfg.BaseRange)

	counts := make([]int, len(matches))
	countErrs := make([]error, len(matches))
	var wg sync.WaitGroup
	for i, match := range matches {
		wg.Add(1)
		go func(i int, baseID string) {
			defer wg.Done()
			counts[i], countErrs[i] = h.store.CountInvestments(ctx, baseID)
		}(i, match.Base.ID)
	}
	wg.Wait()

	type failedBase struct {
		base     store.Base
		err      error
		affected int
	}
	var (
		messages   []outbound
		failed     []failedBase
		candidates []notify.Candidate
		credited   = make(map[uuid.UUID]float64)
		order      []uuid.UUID
		totalMoney float64
	)

	h.mu.Lock()
	active := make(map[string]activeBase, len(matches))
	for i, match := range matches {
		visitors := make([]*registry.ConnectedUser, 0, len(match.Handles))
		handles := make([]uuid.UUID, 0, len(match.Handles))
		for _, handle := range match.Handles {
			if user, ok := h.users.Get(handle); ok {
				visitors = append(visitors, user)
				handles = append(handles, handle)
			}
		}
		if len(visitors) == 0 {
			continue
		}
		if countErrs[i] != nil {
			failed = append(failed, failedBase{base: match.Base, err: countErrs[i], affected: len(handles)})
			msg := fmt.Sprintf(ErrorIncomeFailed, match.Base.Name)
			for _, handle := range handles {
				if sess, ok := h.sessions[handle]; ok {
					messages = h.appendError(messages, sess, msg)
				}
			}
			continue
		}

		amount := h.cfg.Income.Compute(counts[i], len(visitors))
		active[match.Base.ID] = activeBase{base: match.Base, investments: counts[i], income: amount, handles: handles}
		for _, handle := range handles {
			if _, seen := credited[handle]; !seen {
				order = append(order, handle)
			}
			credited[handle] += amount
			h.users.Credit(handle, amount)
			totalMoney += amount
		}
		candidates = append(candidates, notify.Candidate{
			BaseID:   match.Base.ID,
			BaseName: match.Base.Name,
			OwnerID:  match.Base.OwnerID,
			Visitors: visitors,
		})
	}

	for _, handle := range order {
		user, ok := h.users.Get(handle)
		sess, open := h.sessions[handle]
		if !ok || !open {
			continue
		}
		data, err := proto.EncodeUpdateUser(user.Money, credited[handle])
		if err != nil {
			h.logger.Printf("failed to encode update for %s: %v", handle, err)
			continue
		}
		messages = append(messages, outbound{sess: sess, data: data})
	}

	notifications := notify.Dispatch(candidates)
	delivered := make([]bool, len(notifications))
	sentTo := make(map[string]bool)
	for i, n := range notifications {
		owner, ok := h.users.FindByUserID(n.OwnerID)
		if !ok {
			continue
		}
		sess, open := h.sessions[owner.Handle]
		if !open {
			continue
		}
		delivered[i] = true
		// Visitors arriving together produce one message per base.
		key := owner.Handle.String() + "/" + n.BaseID
		if sentTo[key] {
			continue
		}
		sentTo[key] = true
		data, err := proto.EncodeNotification(n.Message)
		if err != nil {
			h.logger.Printf("failed to encode notification for %s: %v", n.OwnerID, err)
			continue
		}
		messages = append(messages, outbound{sess: sess, data: data})
	}

	h.active = active
	h.stale = false
	h.lastTick = tick
	result.ActiveBases = len(active)
	result.TrackedUsers = h.users.Len()
	result.FailedBases = len(failed)
	h.mu.Unlock()

	h.send(messages)

	h.metrics.Store(telemetry.MetricActiveBases, uint64(result.ActiveBases))
	h.metrics.Store(telemetry.MetricTrackedUsers, uint64(result.TrackedUsers))
	if totalMoney > 0 {
		h.metrics.Add(telemetry.MetricMoneyCredited, uint64(math.Round(totalMoney)))
	}
	if len(failed) > 0 {
		h.metrics.Add(telemetry.MetricStoreFailures, uint64(len(failed)))
	}
	if sent := len(sentTo); sent > 0 {
		h.metrics.Add(telemetry.MetricNotifications, uint64(sent))
	}

	for _, f := range failed {
		h.logger.Printf("tick %d: failed to count investments for base %s: %v", tick, f.base.ID, f.err)
		loggingSimulation.StoreFailure(ctx, h.pub, tick, logging.BaseRef(f.base.ID), loggingSimulation.StoreFailurePayload{
			Operation:     "countInvestments",
			Error:         f.err.Error(),
			AffectedUsers: f.affected,
		}, nil)
	}
	for _, ab := range sortedActive(active) {
		targets := make([]logging.EntityRef, 0, len(ab.handles))
		for _, handle := range ab.handles {
			targets = append(targets, logging.ConnectionRef(handle.String()))
		}
		loggingEconomy.IncomeCredited(ctx, h.pub, tick, logging.BaseRef(ab.base.ID), targets, loggingEconomy.IncomeCreditedPayload{
			Income:          ab.income,
			Investments:     ab.investments,
			ActiveUserCount: len(ab.handles),
		}, nil)
	}
	for i, n := range notifications {
		loggingSimulation.OwnerNotified(ctx, h.pub, tick, logging.UserRef(n.OwnerID), loggingSimulation.OwnerNotifiedPayload{
			BaseName:  n.BaseName,
			VisitorID: n.VisitorID,
			Delivered: delivered[i],
		}, nil)
	}

	return result
}

// dropFromActiveLocked removes handle from every active base and forgets bases
// left without users. Callers hold h.mu.
func (h *Hub) dropFromActiveLocked(handle uuid.UUID) {
	for id, ab := range h.active {
		kept := ab.handles[:0:0]
		for _, other := range ab.handles {
			if other != handle {
				kept = append(kept, other)
			}
		}
		if len(kept) == 0 {
			delete(h.active, id)
			continue
		}
		ab.handles = kept
		h.active[id] = ab
	}
}

// abortTick reports a failed base listing to every tracked user. The previous
// active set is kept but marked stale.
func (h *Hub) abortTick(ctx context.Context, tick uint64, err error) sim.TickResult {
	h.logger.Printf("tick %d: failed to list bases: %v", tick, err)

	h.mu.Lock()
	var messages []outbound
	for _, user := range h.users.All() {
		if sess, ok := h.sessions[user.Handle]; ok {
			messages = h.appendError(messages, sess, ErrorBasesUnavailable)
		}
	}
	h.stale = true
	h.lastTick = tick
	tracked := h.users.Len()
	activeCount := len(h.active)
	h.mu.Unlock()

	h.send(messages)
	h.metrics.Add(telemetry.MetricStoreFailures, 1)
	loggingSimulation.StoreFailure(ctx, h.pub, tick, logging.EntityRef{ID: "bases", Kind: logging.EntityKindWorld}, loggingSimulation.StoreFailurePayload{
		Operation:     "listBases",
		Error:         err.Error(),
		AffectedUsers: len(messages),
	}, nil)
	return sim.TickResult{Tick: tick, ActiveBases: activeCount, TrackedUsers: tracked, Aborted: true}
}

func (h *Hub) appendError(messages []outbound, sess *session, text string) []outbound {
	data, err := proto.EncodeError(text)
	if err != nil {
		h.logger.Printf("failed to encode error for %s: %v", sess.handle, err)
		return messages
	}
	return append(messages, outbound{sess: sess, data: data})
}

func (h *Hub) sendError(sess *session, text string) {
	h.send(h.appendError(nil, sess, text))
}

// send writes every message outside the hub lock. A connection that cannot be
// written to is disconnected.
func (h *Hub) send(messages []outbound) {
	failed := make(map[uuid.UUID]bool)
	for _, msg := range messages {
		if failed[msg.sess.handle] {
			continue
		}
		if err := msg.sess.write(msg.data); err != nil {
			h.logger.Printf("failed to send message to %s: %v", msg.sess.handle, err)
			failed[msg.sess.handle] = true
			h.Disconnect(msg.sess.handle, "write failed")
		}
	}
}

func (s *session) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.conn.(writeDeadliner); ok {
		d.SetWriteDeadline(time.Now().Add(writeWait))
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close stops accepting connections, closes every session and flushes every
// tracked balance before returning.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	sessions := make([]*session, 0, len(h.sessions))
	for _, sess := range h.sessions {
		sessions = append(sessions, sess)
	}
	users := h.users.All()
	h.sessions = make(map[uuid.UUID]*session)
	h.users = registry.New()
	h.active = make(map[string]activeBase)
	h.mu.Unlock()

	for _, sess := range sessions {
		sess.conn.Close()
	}

	var errs []error
	for _, user := range users {
		if err := h.flusher.FlushSync(ctx, user.UserID, user.Money); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", user.UserID, err))
		}
	}
	h.flusher.Wait()
	return errors.Join(errs...)
}

func sortedActive(active map[string]activeBase) []activeBase {
	out := make([]activeBase, 0, len(active))
	for _, ab := range active {
		out = append(out, ab)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].base.ID < out[j].base.ID })
	return out
}
