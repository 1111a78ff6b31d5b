package scheduler

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/TechSnatchers/classpulse2-sub000/internal/broadcast"
	"github.com/TechSnatchers/classpulse2-sub000/internal/metrics"
	"github.com/TechSnatchers/classpulse2-sub000/pkg/interfaces"
	"github.com/TechSnatchers/classpulse2-sub000/pkg/types"
)

// Scheduler runs at most one cancellable automation loop per session key.
// Each loop periodically selects an unseen question from the tiered pool and
// hands it to the broadcast engine. Starting a schedule for a key that is
// already running stops and awaits the old loop first, so two loops never
// race on the same sent-set.
type Scheduler struct {
	engine *broadcast.Engine
	source interfaces.QuestionSource

	// replaceMu serializes whole Start calls per scheduler. Stop-and-await
	// followed by install must be one atomic replacement, or two concurrent
	// Starts for the same key could both pass the stop phase and leave an
	// orphaned loop running outside the table.
	replaceMu sync.Mutex

	mu        sync.Mutex
	schedules map[string]*schedule
}

// schedule is one activation cycle of a session's automation.
type schedule struct {
	sessionKey   string
	aliasKey     string
	firstDelay   time.Duration
	interval     time.Duration
	maxQuestions int
	startedAt    time.Time

	cancel     context.CancelFunc
	done       chan struct{}
	finishOnce sync.Once

	mu      sync.Mutex
	sent    map[string]bool // question IDs sent in this activation
	count   int
	enabled bool
}

func (s *schedule) info() types.ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.ScheduleInfo{
		SessionKey:    s.sessionKey,
		AliasKey:      s.aliasKey,
		FirstDelay:    s.firstDelay,
		Interval:      s.interval,
		MaxQuestions:  s.maxQuestions,
		QuestionsSent: s.count,
		Enabled:       s.enabled,
		StartedAt:     s.startedAt,
	}
}

func (s *schedule) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// NewScheduler creates a scheduler over the given engine and question source.
func NewScheduler(engine *broadcast.Engine, source interfaces.QuestionSource) *Scheduler {
	return &Scheduler{
		engine:    engine,
		source:    source,
		schedules: make(map[string]*schedule),
	}
}

// Start activates automation for a session, replacing (stop-and-await) any
// schedule already running for the key. maxQuestions <= 0 means unlimited.
func (s *Scheduler) Start(sessionKey, aliasKey string, firstDelay, interval time.Duration, maxQuestions int) (types.ScheduleInfo, error) {
	if !types.IsValidSessionKey(sessionKey) {
		return types.ScheduleInfo{}, ErrInvalidSessionKey
	}
	if aliasKey != "" && !types.IsValidSessionKey(aliasKey) {
		return types.ScheduleInfo{}, ErrInvalidAliasKey
	}
	if interval <= 0 {
		return types.ScheduleInfo{}, ErrInvalidInterval
	}
	if firstDelay < 0 {
		return types.ScheduleInfo{}, ErrInvalidFirstDelay
	}

	s.replaceMu.Lock()
	defer s.replaceMu.Unlock()

	// Replacement is not an error: the prior loop is cancelled and awaited
	// before the new one exists, so at most one loop runs per key.
	if replaced := s.Stop(sessionKey); replaced > 0 {
		log.Printf("scheduler: replaced schedule session=%s after %d questions", sessionKey, replaced)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sched := &schedule{
		sessionKey:   sessionKey,
		aliasKey:     aliasKey,
		firstDelay:   firstDelay,
		interval:     interval,
		maxQuestions: maxQuestions,
		startedAt:    time.Now(),
		cancel:       cancel,
		done:         make(chan struct{}),
		sent:         make(map[string]bool),
		enabled:      true,
	}

	s.mu.Lock()
	s.schedules[sessionKey] = sched
	s.mu.Unlock()
	metrics.ActiveSchedules.Inc()

	started := &types.SessionStarted{
		Kind:       types.KindSessionStarted,
		SessionKey: sessionKey,
		AliasKey:   aliasKey,
		Timestamp:  time.Now(),
	}
	s.engine.Broadcast(ctx, sessionKey, started)
	if aliasKey != "" && aliasKey != sessionKey {
		s.engine.Broadcast(ctx, aliasKey, started)
	}

	go s.run(ctx, sched)

	log.Printf("scheduler: started session=%s alias=%s first_delay=%s interval=%s max=%d",
		sessionKey, aliasKey, firstDelay, interval, maxQuestions)
	return sched.info(), nil
}

// Stop cancels a session's automation, awaits loop termination, removes the
// schedule, and returns the number of questions it sent. Returns 0, not an
// error, when nothing was running.
func (s *Scheduler) Stop(sessionKey string) int {
	s.mu.Lock()
	sched, ok := s.schedules[sessionKey]
	if ok {
		delete(s.schedules, sessionKey)
	}
	s.mu.Unlock()

	if !ok {
		return 0
	}

	sched.cancel()
	<-sched.done
	sched.finish()

	count := sched.sentCount()
	log.Printf("scheduler: stopped session=%s questions_sent=%d", sessionKey, count)
	return count
}

// Info returns the schedule for a session key, if one is registered.
func (s *Scheduler) Info(sessionKey string) (types.ScheduleInfo, bool) {
	s.mu.Lock()
	sched, ok := s.schedules[sessionKey]
	s.mu.Unlock()
	if !ok {
		return types.ScheduleInfo{}, false
	}
	return sched.info(), true
}

// List returns all registered schedules.
func (s *Scheduler) List() []types.ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]types.ScheduleInfo, 0, len(s.schedules))
	for _, sched := range s.schedules {
		infos = append(infos, sched.info())
	}
	return infos
}

// StopAll stops every schedule; used during shutdown.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	keys := make([]string, 0, len(s.schedules))
	for key := range s.schedules {
		keys = append(keys, key)
	}
	s.mu.Unlock()

	for _, key := range keys {
		s.Stop(key)
	}
}

// run is the automation loop. A failed cycle (no questions, source error) is
// logged and skipped; the loop only exits on cancellation or when the
// max-questions limit is reached.
func (s *Scheduler) run(ctx context.Context, sched *schedule) {
	defer close(sched.done)

	if !sleepCtx(ctx, sched.firstDelay) {
		return
	}

	for {
		if sched.maxQuestions > 0 && sched.sentCount() >= sched.maxQuestions {
			s.complete(sched)
			return
		}

		if err := s.cycle(ctx, sched); err != nil {
			metrics.SchedulerCycles.WithLabelValues("skipped").Inc()
			log.Printf("scheduler: cycle skipped session=%s: %v", sched.sessionKey, err)
		} else {
			metrics.SchedulerCycles.WithLabelValues("sent").Inc()
		}

		if sched.maxQuestions > 0 && sched.sentCount() >= sched.maxQuestions {
			s.complete(sched)
			return
		}

		if !sleepCtx(ctx, sched.interval) {
			return
		}
	}
}

// cycle selects one unseen question and broadcasts it to the primary key and
// the alias. When the whole pool has been seen, the sent-set resets and the
// pool is reused, keeping a long-running session's automation alive.
func (s *Scheduler) cycle(ctx context.Context, sched *schedule) error {
	pool, err := s.source.PoolFor(ctx, sched.sessionKey)
	if err != nil {
		return err
	}
	if len(pool) == 0 {
		return interfaces.ErrNoQuestions
	}

	sched.mu.Lock()
	candidates := unseen(pool, sched.sent)
	if len(candidates) == 0 {
		sched.sent = make(map[string]bool)
		candidates = pool
	}
	sched.mu.Unlock()

	question := candidates[rand.Intn(len(candidates))]

	s.engine.Broadcast(ctx, sched.sessionKey, types.NewQuizMessage(sched.sessionKey, question, true))
	if sched.aliasKey != "" && sched.aliasKey != sched.sessionKey {
		// Participants connected under the alias receive the same question
		// addressed to their key; the question ID lets clients de-duplicate.
		s.engine.Broadcast(ctx, sched.aliasKey, types.NewQuizMessage(sched.aliasKey, question, true))
	}

	sched.mu.Lock()
	sched.sent[question.ID] = true
	sched.count++
	sent := sched.count
	sched.mu.Unlock()

	log.Printf("scheduler: sent question=%s session=%s total=%d", question.ID, sched.sessionKey, sent)
	return nil
}

// complete transitions a finished schedule back to idle and removes it from
// the table, unless a replacement already took its slot.
func (s *Scheduler) complete(sched *schedule) {
	s.mu.Lock()
	if current, ok := s.schedules[sched.sessionKey]; ok && current == sched {
		delete(s.schedules, sched.sessionKey)
	}
	s.mu.Unlock()

	sched.finish()
	log.Printf("scheduler: completed session=%s questions_sent=%d", sched.sessionKey, sched.sentCount())
}

func (s *schedule) finish() {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		s.enabled = false
		s.mu.Unlock()
		metrics.ActiveSchedules.Dec()
	})
}

func unseen(pool []*types.Question, sent map[string]bool) []*types.Question {
	var out []*types.Question
	for _, q := range pool {
		if !sent[q.ID] {
			out = append(out, q)
		}
	}
	return out
}

// sleepCtx sleeps for d unless the context is cancelled first. Cancellation
// interrupts the sleep immediately, which is what keeps Stop responsive
// mid-interval.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
