package service

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"subfeed/internal/catalog"
	"subfeed/internal/persist"
	"subfeed/internal/reconcile"
	"subfeed/internal/session"
	"subfeed/pkg/errors"
	"subfeed/pkg/logger"
)

// FeedConfig wires a FeedService
type FeedConfig struct {
	Store   persist.Store
	Catalog catalog.Factory
	Session session.Options
	// BootstrapAPIKey seeds the first snapshot when storage is empty
	BootstrapAPIKey string
	// RefreshSchedule is a cron spec for periodic refresh; empty disables
	RefreshSchedule string
}

type request struct {
	msg   session.Msg
	reply chan error
}

// FeedService runs the session. One goroutine owns the session and applies
// messages in order; catalog calls run in their own goroutines and post
// their results back as messages; one writer goroutine saves snapshots.
type FeedService struct {
	cfg    FeedConfig
	logger *logger.Logger

	mu        sync.RWMutex
	current   session.Session
	isRunning bool
	stopped   bool

	// owned by the loop goroutine
	sess    session.Session
	catalog catalog.Catalog
	timers  map[uint64]*time.Timer

	requests chan request
	saves    chan []byte
	done     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	cron     *cron.Cron

	loopWG    sync.WaitGroup
	writerWG  sync.WaitGroup
	effectsWG sync.WaitGroup
}

// NewFeedService creates a stopped service
func NewFeedService(cfg FeedConfig, log *logger.Logger) *FeedService {
	if log == nil {
		log = logger.NewNop()
	}
	return &FeedService{
		cfg:      cfg,
		logger:   log.Named("feed"),
		timers:   make(map[uint64]*time.Timer),
		requests: make(chan request),
		saves:    make(chan []byte, 1),
		done:     make(chan struct{}),
	}
}

// Start loads the snapshot, starts the loop and issues the initial fetches
func (s *FeedService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}
	if s.stopped {
		return errors.NewInvalidStateError("Feed service cannot be restarted")
	}

	s.logger.Info("Starting feed service...")
	s.ctx, s.cancel = context.WithCancel(context.Background())

	sess, effects := s.load(ctx)
	s.sess = sess
	s.current = sess

	if _, ok := sess.State(); ok {
		cat, err := s.cfg.Catalog(ctx, sess.APIKey())
		if err != nil {
			s.logger.WithError(err).Error("Failed to create catalog client")
			s.sess = session.Failed(errors.FromError(err))
			s.current = s.sess
			effects = nil
		} else {
			s.catalog = cat
		}
	}

	if err := s.startRefresh(); err != nil {
		s.cancel()
		return err
	}

	s.writerWG.Add(1)
	go s.writer()

	// fetch goroutines block in post until the loop is running
	s.run(effects)
	s.logger.WithField("mode", modeName(s.sess)).Info("Feed service started")

	s.loopWG.Add(1)
	go s.loop()

	s.isRunning = true
	return nil
}

// load reads storage, seeding a snapshot from the bootstrap key when
// nothing is stored yet
func (s *FeedService) load(ctx context.Context) (session.Session, []reconcile.Effect) {
	data, err := s.cfg.Store.Load(ctx)
	switch {
	case stderrors.Is(err, persist.ErrNoSnapshot):
		data = nil
		if s.cfg.BootstrapAPIKey != "" {
			seeded, encErr := persist.EncodeSnapshot(persist.Snapshot{APIKey: s.cfg.BootstrapAPIKey})
			if encErr == nil {
				if saveErr := s.cfg.Store.Save(ctx, seeded); saveErr != nil {
					s.logger.WithError(saveErr).Warn("Failed to store bootstrap snapshot")
				}
				data = seeded
				s.logger.Info("Seeded empty storage with the configured API key")
			}
		}
	case err != nil:
		s.logger.WithError(err).Error("Failed to read snapshot")
		return session.Failed(errors.NewStorageError("Stored subscriptions could not be read", err)), nil
	}

	sess, effects := session.Load(data, s.cfg.Session)
	if mode, ok := sess.Mode.(session.Irrecoverable); ok {
		s.logger.WithField("error_type", mode.Problem.Type).WithError(mode.Problem).Error("Session is irrecoverable")
	}
	return sess, effects
}

func (s *FeedService) startRefresh() error {
	if s.cfg.RefreshSchedule == "" {
		return nil
	}
	if _, ok := s.sess.State(); !ok {
		return nil
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.cfg.RefreshSchedule, func() {
		s.logger.Debug("Scheduled refresh")
		s.post(session.Refresh{})
	}); err != nil {
		return errors.NewValidationError("Invalid refresh schedule", map[string]interface{}{
			"schedule": s.cfg.RefreshSchedule,
			"error":    err.Error(),
		})
	}
	s.cron.Start()
	s.logger.WithField("schedule", s.cfg.RefreshSchedule).Info("Scheduled periodic refresh")
	return nil
}

// Stop halts the loop, waits for pending saves and cancels in-flight fetches
func (s *FeedService) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.stopped = true
	s.mu.Unlock()

	s.logger.Info("Stopping feed service...")

	if s.cron != nil {
		<-s.cron.Stop().Done()
	}

	close(s.done)
	s.loopWG.Wait()
	s.cancel()

	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}

	close(s.saves)
	finished := make(chan struct{})
	go func() {
		s.writerWG.Wait()
		s.effectsWG.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		s.logger.Info("Feed service stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Feed service stop timed out with work pending")
		return ctx.Err()
	}
}

// Dispatch applies a message and returns the resulting session
func (s *FeedService) Dispatch(ctx context.Context, msg session.Msg) (session.Session, error) {
	s.mu.RLock()
	running := s.isRunning
	s.mu.RUnlock()
	if !running {
		return session.Session{}, errors.NewInvalidStateError("Feed service is not running")
	}

	req := request{msg: msg, reply: make(chan error, 1)}
	select {
	case s.requests <- req:
	case <-s.done:
		return session.Session{}, errors.NewInvalidStateError("Feed service is not running")
	case <-ctx.Done():
		return session.Session{}, ctx.Err()
	}

	select {
	case err := <-req.reply:
		return s.View(), err
	case <-ctx.Done():
		return session.Session{}, ctx.Err()
	}
}

// View returns the latest session. Sessions are values and the state they
// hold is never mutated, so the result is safe to read concurrently.
func (s *FeedService) View() session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// post delivers a message from a background goroutine
func (s *FeedService) post(msg session.Msg) {
	select {
	case s.requests <- request{msg: msg}:
	case <-s.done:
	}
}

func (s *FeedService) loop() {
	defer s.loopWG.Done()
	for {
		select {
		case req := <-s.requests:
			err := s.handle(req.msg)
			if req.reply != nil {
				req.reply <- err
			}
		case <-s.done:
			return
		}
	}
}

func (s *FeedService) handle(msg session.Msg) error {
	if in, ok := msg.(session.Incoming); ok {
		s.logFailure(in.Event)
	}
	if exp, ok := msg.(session.ProblemExpired); ok {
		delete(s.timers, exp.ID)
	}

	next, effects, err := s.sess.Update(msg)
	if err != nil {
		s.logger.WithError(err).Debug("Message rejected")
		return err
	}

	before := problemOf(s.sess)
	s.sess = next
	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	if p := problemOf(next); p != nil && p != before {
		s.logger.WithFields(map[string]interface{}{
			"problem_id": p.ID,
			"error_type": p.Err.Type,
		}).Info(p.Err.Message)
	}

	s.run(effects)
	return nil
}

// logFailure records catalog failures; while the player is open they are
// not shown to the user, so the log is the only trace
func (s *FeedService) logFailure(ev reconcile.Event) {
	var err error
	fields := map[string]interface{}{"mode": modeName(s.sess)}
	switch ev := ev.(type) {
	case reconcile.HandleResolutionFailed:
		err, fields["handle"] = ev.Err, ev.Handle
	case reconcile.InfoFetchFailed:
		err, fields["channel_id"] = ev.Err, ev.ChannelID.Value()
	case reconcile.VideoFetchFailed:
		err, fields["channel_id"] = ev.Err, ev.ChannelID.Value()
	default:
		return
	}
	s.logger.WithFields(fields).WithError(err).Warn("Catalog request failed")
}

// run performs effects. Only the loop goroutine calls it.
func (s *FeedService) run(effects []reconcile.Effect) {
	for _, effect := range effects {
		switch e := effect.(type) {
		case reconcile.SearchChannel:
			s.spawn(func(ctx context.Context) session.Msg {
				id, err := s.catalog.SearchChannelByHandle(ctx, e.Handle)
				if err != nil {
					return session.Incoming{Event: reconcile.HandleResolutionFailed{Handle: e.Handle, Err: err}}
				}
				return session.Incoming{Event: reconcile.HandleResolved{Handle: e.Handle, ChannelID: id}}
			})

		case reconcile.FetchChannelInfo:
			s.spawn(func(ctx context.Context) session.Msg {
				ch, err := s.catalog.FetchChannelInfo(ctx, e.ChannelID)
				if err != nil {
					return session.Incoming{Event: reconcile.InfoFetchFailed{ChannelID: e.ChannelID, Err: err}}
				}
				return session.Incoming{Event: reconcile.ChannelResolved{Channel: ch}}
			})

		case reconcile.FetchRecentUploads:
			s.spawn(func(ctx context.Context) session.Msg {
				videos, err := s.catalog.FetchRecentUploads(ctx, e.PlaylistID, e.Limit)
				if err != nil {
					return session.Incoming{Event: reconcile.VideoFetchFailed{ChannelID: e.ChannelID, Err: err}}
				}
				return session.Incoming{Event: reconcile.VideosFetched{ChannelID: e.ChannelID, Videos: videos}}
			})

		case reconcile.Persist:
			s.persist()

		case reconcile.ClearProblem:
			id := e.ID
			s.timers[id] = time.AfterFunc(e.Delay, func() {
				s.post(session.ProblemExpired{ID: id})
			})
		}
	}
}

func (s *FeedService) spawn(call func(ctx context.Context) session.Msg) {
	if s.catalog == nil {
		return
	}
	s.effectsWG.Add(1)
	go func() {
		defer s.effectsWG.Done()
		msg := call(s.ctx)
		if s.ctx.Err() != nil {
			return
		}
		s.post(msg)
	}()
}

func (s *FeedService) persist() {
	state, ok := s.sess.State()
	if !ok {
		return
	}
	data, err := persist.Encode(s.sess.APIKey(), state)
	if err != nil {
		s.logger.WithError(err).Error("Failed to encode snapshot")
		return
	}

	// keep only the newest pending snapshot
	for {
		select {
		case s.saves <- data:
			return
		default:
			select {
			case <-s.saves:
			default:
			}
		}
	}
}

func (s *FeedService) writer() {
	defer s.writerWG.Done()
	for data := range s.saves {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := s.cfg.Store.Save(ctx, data)
		cancel()
		if err != nil {
			s.logger.WithError(err).Error("Failed to save snapshot")
			continue
		}
		s.logger.WithFields(map[string]interface{}{
			"bytes":    len(data),
			"duration": time.Since(start).String(),
		}).Debug("Snapshot saved")
	}
}

func problemOf(sess session.Session) *session.Problem {
	if o, ok := sess.Mode.(session.Overview); ok {
		return o.Problem
	}
	return nil
}

func modeName(sess session.Session) string {
	switch sess.Mode.(type) {
	case session.Overview:
		return "overview"
	case session.Watching:
		return "watching"
	case session.Irrecoverable:
		return "irrecoverable"
	}
	return "unknown"
}
