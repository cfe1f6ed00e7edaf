package service

import (
	"context"
	"log"
	"time"

	"helpdesk-backend/internal/metrics"
	"helpdesk-backend/internal/model"
	"helpdesk-backend/internal/notify"
)

// Default targets per priority, used when the conversation's department has
// no override.
var defaultTargets = map[model.Priority]model.SLATargets{
	model.PriorityUrgent: {FirstResponse: 5 * time.Minute, Resolution: 60 * time.Minute},
	model.PriorityHigh:   {FirstResponse: 10 * time.Minute, Resolution: 120 * time.Minute},
	model.PriorityNormal: {FirstResponse: 15 * time.Minute, Resolution: 240 * time.Minute},
	model.PriorityLow:    {FirstResponse: 30 * time.Minute, Resolution: 480 * time.Minute},
}

// TargetsFor picks the SLA commitments for a priority, letting a department
// override take precedence over the defaults.
func TargetsFor(priority model.Priority, dept *model.Department) model.SLATargets {
	if t, ok := dept.TargetsFor(priority); ok {
		return t
	}
	if t, ok := defaultTargets[priority]; ok {
		return t
	}
	return defaultTargets[model.PriorityNormal]
}

// SLAResult is the observable outcome of one calculation: the four fields
// the monitor persists and diffs.
type SLAResult struct {
	FirstResponseStatus    model.SLAStatus
	FirstResponseRemaining time.Duration
	ResolutionStatus       model.SLAStatus
	ResolutionRemaining    time.Duration
}

// CalculateSLA recomputes both commitments for a conversation at the given
// instant. Pure: the conversation is not touched.
func CalculateSLA(c *model.Conversation, now time.Time) SLAResult {
	var r SLAResult

	r.FirstResponseStatus, r.FirstResponseRemaining = commitment(
		c.FirstResponseTarget, c.CreatedAt, c.FirstResponseAt, now)
	r.ResolutionStatus, r.ResolutionRemaining = commitment(
		c.ResolutionTarget, c.CreatedAt, c.ResolvedAt, now)
	return r
}

// commitment scores one target. Once the milestone happened the verdict is
// final (met or breached by the milestone's own timestamp); until then the
// clock keeps running against now.
func commitment(target time.Duration, createdAt time.Time, milestone *time.Time, now time.Time) (model.SLAStatus, time.Duration) {
	if milestone != nil {
		elapsed := milestone.Sub(createdAt)
		remaining := target - elapsed
		if elapsed <= target {
			return model.SLAMet, remaining
		}
		return model.SLABreached, remaining
	}
	remaining := target - now.Sub(createdAt)
	if remaining < 0 {
		return model.SLABreached, remaining
	}
	return model.SLAPending, remaining
}

// apply copies a result onto the conversation and reports whether any of
// the four observable fields changed.
func (r SLAResult) apply(c *model.Conversation) bool {
	changed := c.FirstResponseStatus != r.FirstResponseStatus ||
		c.FirstResponseRemaining != r.FirstResponseRemaining ||
		c.ResolutionStatus != r.ResolutionStatus ||
		c.ResolutionRemaining != r.ResolutionRemaining
	c.FirstResponseStatus = r.FirstResponseStatus
	c.FirstResponseRemaining = r.FirstResponseRemaining
	c.ResolutionStatus = r.ResolutionStatus
	c.ResolutionRemaining = r.ResolutionRemaining
	return changed
}

// SLAMonitor periodically recomputes every non-terminal conversation and
// emits breach events on status transitions. Polling bounds worst-case
// notification latency to one sweep period.
type SLAMonitor struct {
	convs    ConversationStore
	hub      Broadcaster
	bus      notify.Publisher
	metrics  *metrics.Metrics
	interval time.Duration
	now      func() time.Time
	done     chan struct{}
}

func NewSLAMonitor(convs ConversationStore, hub Broadcaster, bus notify.Publisher, m *metrics.Metrics, interval time.Duration) *SLAMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &SLAMonitor{
		convs:    convs,
		hub:      hub,
		bus:      bus,
		metrics:  m,
		interval: interval,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

func (m *SLAMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	log.Printf("[SLA] monitor running (interval %s)", m.interval)
	for {
		select {
		case <-ticker.C:
			m.SweepOnce(ctx)
		case <-m.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (m *SLAMonitor) Shutdown() {
	close(m.done)
}

// SweepOnce recomputes every live conversation. A failed persist on one
// conversation is logged and does not abort the rest of the sweep.
func (m *SLAMonitor) SweepOnce(ctx context.Context) {
	start := m.now()

	convs, err := m.convs.ListNonTerminal(ctx)
	if err != nil {
		log.Printf("[SLA] sweep: list failed: %v", err)
		return
	}

	for _, c := range convs {
		m.sweepConversation(ctx, c)
	}

	if m.metrics != nil {
		m.metrics.SweepConversations.Set(float64(len(convs)))
		m.metrics.SweepDuration.Observe(m.now().Sub(start).Seconds())
	}
}

func (m *SLAMonitor) sweepConversation(ctx context.Context, c *model.Conversation) {
	prevFirst := c.FirstResponseStatus
	prevResolution := c.ResolutionStatus

	result := CalculateSLA(c, m.now())
	if !result.apply(c) {
		return
	}

	if err := m.convs.UpdateSLA(ctx, c); err != nil {
		log.Printf("[SLA] persist failed for conversation %s: %v", c.ID, err)
		return
	}

	// Breaches are edge-triggered: only the sweep that observed the status
	// flip emits, so a later sweep never re-announces the same breach.
	if prevFirst != model.SLABreached && c.FirstResponseStatus == model.SLABreached {
		m.emitBreach(ctx, c, "first-response", notify.KeyBreachFirstResponse, c.FirstResponseTarget-c.FirstResponseRemaining)
	}
	if prevResolution != model.SLABreached && c.ResolutionStatus == model.SLABreached {
		m.emitBreach(ctx, c, "resolution", notify.KeyBreachResolution, c.ResolutionTarget-c.ResolutionRemaining)
	}

	m.hub.ToRoom(SiteRoom(c.SiteID), model.NewEvent(model.EvConversationUpdate, model.ConversationEventPayload{Conversation: c}))
}

func (m *SLAMonitor) emitBreach(ctx context.Context, c *model.Conversation, kind, routingKey string, elapsed time.Duration) {
	log.Printf("[SLA] breach: conversation=%s kind=%s priority=%s elapsed=%s", c.ID, kind, c.Priority, elapsed)

	payload := model.SLABreachPayload{
		ConversationID: c.ID,
		SiteID:         c.SiteID,
		Kind:           kind,
		Priority:       string(c.Priority),
		ElapsedSeconds: int64(elapsed / time.Second),
	}
	event := model.NewEvent(model.EvSLABreach, payload)
	m.hub.ToRoom(SiteRoom(c.SiteID), event)
	m.hub.ToAgents(event)

	if m.metrics != nil {
		m.metrics.SLABreaches.WithLabelValues(kind).Inc()
	}
	if err := m.bus.Publish(ctx, routingKey, notify.NewEnvelope(model.EvSLABreach, c.SiteID, payload)); err != nil {
		log.Printf("[SLA] bus publish failed for conversation %s: %v", c.ID, err)
	}
}
