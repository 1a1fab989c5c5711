package app

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"quiz-lobby-service/internal/broadcast"
	"quiz-lobby-service/internal/domain"
	"quiz-lobby-service/internal/scoring"
	"quiz-lobby-service/internal/timer"
)

const inboxSize = 256

// archiveSink accepts finished sessions without blocking the caller.
type archiveSink interface {
	Submit(summary domain.SessionSummary)
}

type coordinatorDeps struct {
	cfg     GameConfig
	timers  *timer.Service
	archive archiveSink
	onClose func(code string)
	logger  zerolog.Logger
}

// Coordinator owns one lobby. Every state change (player commands, timer
// expiry, connection changes) goes through its inbox and is applied by a
// single goroutine, so lobby state needs no locking.
type Coordinator struct {
	code     string
	settings domain.Settings
	cfg      GameConfig
	clock    clockwork.Clock
	timers   *timer.Service
	archive  archiveSink
	onClose  func(code string)
	logger   zerolog.Logger

	inbox chan event
	done  chan struct{}

	// Owned by run.
	lobby      *domain.Lobby
	session    *session
	dispatcher *broadcast.Dispatcher
	grace      map[string]timer.Handle
	phase      timer.Handle
	phaseEnds  time.Time
	abandon    timer.Handle
	paused     bool
	pausedLeft time.Duration
	closed     bool
}

func newCoordinator(code, hostID string, profile domain.Profile, settings domain.Settings, deps coordinatorDeps) *Coordinator {
	c := buildCoordinator(code, hostID, profile, settings, deps)
	go c.run()
	return c
}

func buildCoordinator(code, hostID string, profile domain.Profile, settings domain.Settings, deps coordinatorDeps) *Coordinator {
	clock := deps.timers.Clock()
	now := clock.Now()
	c := &Coordinator{
		code:     code,
		settings: settings,
		cfg:      deps.cfg,
		clock:    clock,
		timers:   deps.timers,
		archive:  deps.archive,
		onClose:  deps.onClose,
		logger:   deps.logger.With().Str("lobby", code).Logger(),
		inbox:    make(chan event, inboxSize),
		done:     make(chan struct{}),
		lobby:    domain.NewLobby(code, domain.NewPlayer(hostID, profile, now), settings, now),
		grace:    make(map[string]timer.Handle),
	}
	c.dispatcher = broadcast.NewDispatcher(deps.cfg.SubscriberBuffer, c.snapshot, c.logger)
	return c
}

// Code returns the lobby code.
func (c *Coordinator) Code() string {
	return c.code
}

// Settings returns the settings the lobby was created with.
func (c *Coordinator) Settings() domain.Settings {
	return c.settings
}

// Done is closed once the lobby has been torn down.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Join adds a player, or refreshes and reconnects an existing member.
func (c *Coordinator) Join(ctx context.Context, playerID string, profile domain.Profile) (domain.LobbySnapshot, error) {
	reply := newReply()
	res, err := c.request(ctx, joinCmd{playerID: playerID, profile: profile, reply: reply}, reply)
	return res.snapshot, err
}

// Connect attaches a message stream for a member. The first message on the
// stream is a snapshot.
func (c *Coordinator) Connect(ctx context.Context, playerID string) (*broadcast.Subscription, error) {
	reply := newReply()
	res, err := c.request(ctx, connectCmd{playerID: playerID, reply: reply}, reply)
	return res.sub, err
}

// Disconnect reports a transport drop for the given stream.
func (c *Coordinator) Disconnect(ctx context.Context, playerID string, subID uint64) error {
	return c.submit(ctx, disconnectCmd{playerID: playerID, subID: subID})
}

// Leave removes a member.
func (c *Coordinator) Leave(ctx context.Context, playerID string) error {
	reply := newReply()
	_, err := c.request(ctx, leaveCmd{playerID: playerID, reply: reply}, reply)
	return err
}

// SetReady toggles a member's readiness while waiting.
func (c *Coordinator) SetReady(ctx context.Context, playerID string, ready bool) error {
	reply := newReply()
	_, err := c.request(ctx, readyCmd{playerID: playerID, ready: ready, reply: reply}, reply)
	return err
}

// Start begins the game with the given questions. Host only.
func (c *Coordinator) Start(ctx context.Context, playerID string, questions []domain.Question) error {
	reply := newReply()
	_, err := c.request(ctx, startCmd{playerID: playerID, questions: questions, reply: reply}, reply)
	return err
}

// SubmitAnswer records a player's answer to the current question. A negative
// questionIndex accepts whichever question is current.
func (c *Coordinator) SubmitAnswer(ctx context.Context, playerID string, questionIndex, choiceIndex int) error {
	reply := newReply()
	_, err := c.request(ctx, answerCmd{
		playerID:      playerID,
		questionIndex: questionIndex,
		choiceIndex:   choiceIndex,
		reply:         reply,
	}, reply)
	return err
}

// Close tears the lobby down. Host only.
func (c *Coordinator) Close(ctx context.Context, playerID string) error {
	reply := newReply()
	_, err := c.request(ctx, closeCmd{playerID: playerID, reply: reply}, reply)
	return err
}

// Snapshot returns the current state.
func (c *Coordinator) Snapshot(ctx context.Context) (domain.LobbySnapshot, error) {
	reply := newReply()
	res, err := c.request(ctx, snapshotCmd{reply: reply}, reply)
	return res.snapshot, err
}

// Shutdown tears the lobby down with the given reason.
func (c *Coordinator) Shutdown(ctx context.Context, reason string) error {
	reply := newReply()
	_, err := c.request(ctx, shutdownCmd{reason: reason, reply: reply}, reply)
	if err == domain.ErrLobbyClosed {
		return nil
	}
	return err
}

func (c *Coordinator) submit(ctx context.Context, ev event) error {
	select {
	case c.inbox <- ev:
		return nil
	case <-c.done:
		return domain.ErrLobbyClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) request(ctx context.Context, ev event, reply replyTo) (result, error) {
	if err := c.submit(ctx, ev); err != nil {
		return result{}, err
	}
	select {
	case res := <-reply:
		return res, res.err
	case <-c.done:
		// The command may have been answered right before teardown.
		select {
		case res := <-reply:
			return res, res.err
		default:
		}
		return result{}, domain.ErrLobbyClosed
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

func (c *Coordinator) run() {
	c.logger.Debug().Msg("lobby coordinator started")
	for !c.closed {
		c.handle(<-c.inbox)
	}
	c.logger.Debug().Msg("lobby coordinator stopped")
}

func (c *Coordinator) handle(ev event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Str("panic", fmt.Sprint(r)).
				Str("stack", string(debug.Stack())).
				Msg("lobby handler panicked, tearing lobby down")
			c.teardown("internal_error")
		}
	}()

	switch e := ev.(type) {
	case joinCmd:
		snap, err := c.handleJoin(e)
		e.reply.send(result{snapshot: snap, err: err})
	case connectCmd:
		sub, err := c.handleConnect(e)
		e.reply.send(result{sub: sub, err: err})
	case disconnectCmd:
		c.handleDisconnect(e)
	case leaveCmd:
		e.reply.send(result{err: c.handleLeave(e)})
	case readyCmd:
		e.reply.send(result{err: c.handleReady(e)})
	case startCmd:
		e.reply.send(result{err: c.handleStart(e)})
	case answerCmd:
		e.reply.send(result{err: c.handleAnswer(e)})
		c.maybeAdvance()
	case closeCmd:
		err := c.handleClose(e)
		e.reply.send(result{err: err})
		if err == nil {
			c.teardown("closed_by_host")
		}
	case snapshotCmd:
		e.reply.send(result{snapshot: c.snapshot()})
	case shutdownCmd:
		e.reply.send(result{})
		c.teardown(e.reason)
	case timerFired:
		c.handleTimer(e)
	default:
		c.logger.Warn().Str("event", fmt.Sprintf("%T", ev)).Msg("ignoring unknown event")
	}
}

func (c *Coordinator) handleJoin(e joinCmd) (domain.LobbySnapshot, error) {
	now := c.clock.Now()
	if p, _ := c.lobby.Member(e.playerID); p != nil {
		changed := applyProfile(p, e.profile)
		p.LastActivityAt = now
		if p.ConnectionState != domain.Connected {
			c.reconnect(p)
		} else if changed {
			c.dispatcher.Publish(domain.MsgPlayerUpdated, domain.PlayerUpdated{Player: p.View()})
		}
		return c.snapshot(), nil
	}

	if c.lobby.Status != domain.LobbyWaiting {
		return domain.LobbySnapshot{}, domain.ErrAlreadyStarted
	}
	p := domain.NewPlayer(e.playerID, e.profile, now)
	if err := c.lobby.Add(p); err != nil {
		return domain.LobbySnapshot{}, err
	}
	c.dispatcher.Publish(domain.MsgPlayerJoined, domain.PlayerJoined{Player: p.View()})
	c.logger.Info().Str("player_id", p.ID).Int("players", len(c.lobby.Players)).Msg("player joined")

	c.ensureConnectedHost()
	c.resume()
	return c.snapshot(), nil
}

func applyProfile(p *domain.Player, profile domain.Profile) bool {
	changed := false
	if profile.DisplayName != "" && profile.DisplayName != p.DisplayName {
		p.DisplayName = profile.DisplayName
		changed = true
	}
	if profile.Character != "" && profile.Character != p.Character {
		p.Character = profile.Character
		changed = true
	}
	return changed
}

func (c *Coordinator) handleLeave(e leaveCmd) error {
	if p, _ := c.lobby.Member(e.playerID); p == nil {
		return domain.ErrNotMember
	}
	c.removePlayer(e.playerID)
	return nil
}

func (c *Coordinator) handleReady(e readyCmd) error {
	p, _ := c.lobby.Member(e.playerID)
	if p == nil {
		return domain.ErrNotMember
	}
	if c.lobby.Status != domain.LobbyWaiting {
		return domain.ErrNotWaiting
	}
	p.IsReady = e.ready || p.IsHost
	p.LastActivityAt = c.clock.Now()
	c.dispatcher.Publish(domain.MsgPlayerUpdated, domain.PlayerUpdated{Player: p.View()})
	return nil
}

func (c *Coordinator) handleStart(e startCmd) error {
	p, _ := c.lobby.Member(e.playerID)
	if p == nil {
		return domain.ErrNotMember
	}
	if !p.IsHost {
		return domain.ErrNotHost
	}
	if c.lobby.Status != domain.LobbyWaiting {
		return domain.ErrAlreadyStarted
	}
	if len(c.lobby.Players) < 2 {
		return domain.ErrNotEnoughPlayers
	}
	for _, member := range c.lobby.Players {
		if !member.IsHost && !member.IsReady {
			return domain.ErrPlayersNotReady
		}
	}
	if len(e.questions) == 0 {
		return domain.ErrNoQuestions
	}

	now := c.clock.Now()
	c.session = newSession(uuid.NewString(), e.questions, now)
	c.lobby.Status = domain.LobbyPlaying
	c.schedulePhase(c.cfg.Countdown)
	c.dispatcher.Publish(domain.MsgSessionStarting, domain.SessionStarting{
		SessionID:        c.session.id,
		CountdownSeconds: c.cfg.Countdown.Seconds(),
		StartsAt:         c.phaseEnds,
		TotalQuestions:   len(e.questions),
	})
	c.logger.Info().
		Str("session_id", c.session.id).
		Int("questions", len(e.questions)).
		Int("players", len(c.lobby.Players)).
		Msg("session starting")
	return nil
}

func (c *Coordinator) handleAnswer(e answerCmd) error {
	p, _ := c.lobby.Member(e.playerID)
	if p == nil {
		return domain.ErrNotMember
	}
	if p.Spectator {
		return domain.ErrSpectator
	}
	s := c.session
	if s == nil || s.phase != domain.PhaseQuestionActive {
		return domain.ErrNoActiveQuestion
	}
	if e.questionIndex >= 0 && e.questionIndex != s.index {
		return domain.ErrStaleQuestion
	}
	now := c.clock.Now()
	// The deadline itself is still inside the window.
	if now.After(s.deadline) {
		return domain.ErrDeadlinePassed
	}
	if _, dup := s.answers[p.ID]; dup {
		return domain.ErrDuplicateAnswer
	}
	q := s.current()
	if e.choiceIndex < 0 || e.choiceIndex >= len(q.Choices) {
		return domain.ErrInvalidChoice
	}

	choice := e.choiceIndex
	out := c.cfg.Rules.Score(scoring.Input{
		Question:              q,
		Choice:                &choice,
		TimeRemainingFraction: scoring.RemainingFraction(s.deadline.Sub(now).Seconds(), s.window.Seconds()),
		Multiplier:            p.Multiplier,
		Streak:                p.Streak,
	})
	s.answers[p.ID] = domain.AnswerRecord{
		PlayerID:      p.ID,
		QuestionIndex: s.index,
		ChoiceIndex:   choice,
		SubmittedAt:   now,
		IsCorrect:     out.Correct,
		PointsAwarded: out.Points,
	}
	s.outcomes[p.ID] = out
	p.LastActivityAt = now

	c.dispatcher.Send(p.ID, domain.MsgAnswerReceived, domain.AnswerReceived{
		QuestionIndex: s.index,
		ChoiceIndex:   choice,
		SubmittedAt:   now,
	})
	c.publishProgress()
	return nil
}

func (c *Coordinator) handleClose(e closeCmd) error {
	p, _ := c.lobby.Member(e.playerID)
	if p == nil {
		return domain.ErrNotMember
	}
	if !p.IsHost {
		return domain.ErrNotHost
	}
	return nil
}

func (c *Coordinator) handleTimer(e timerFired) {
	switch e.kind {
	case phaseTimer:
		if e.handle != c.phase {
			c.logger.Debug().Str("kind", e.kind.String()).Uint64("timer", uint64(e.handle)).Msg("ignoring stale timer")
			return
		}
		c.advancePhase()
	case graceTimer:
		c.graceExpired(e.playerID, e.handle)
	case abandonTimer:
		if e.handle != c.abandon {
			c.logger.Debug().Str("kind", e.kind.String()).Uint64("timer", uint64(e.handle)).Msg("ignoring stale timer")
			return
		}
		c.abandon = 0
		c.logger.Info().Msg("no connected players left, closing lobby")
		c.teardown("abandoned")
	}
}

func (c *Coordinator) advancePhase() {
	s := c.session
	if s == nil {
		return
	}
	switch s.phase {
	case domain.PhaseStarting:
		c.beginQuestion(0)
	case domain.PhaseQuestionActive:
		c.endQuestion()
	case domain.PhaseQuestionResults:
		if s.hasNext() {
			c.beginQuestion(s.index + 1)
		} else {
			c.finish()
		}
	}
}

func (c *Coordinator) beginQuestion(i int) {
	s := c.session
	q := s.questions[i]
	limit := q.TimeLimitSeconds
	if limit <= 0 {
		limit = c.settings.QuestionTimeLimitSeconds
	}
	window := time.Duration(limit) * time.Second
	c.schedulePhase(window)
	s.openQuestion(i, window, c.phaseEnds)

	_, expected, _ := c.quorum()
	c.dispatcher.Publish(domain.MsgQuestionStarted, domain.QuestionStarted{
		Index:            i,
		Total:            len(s.questions),
		Question:         q.Public(),
		Deadline:         s.deadline,
		TimeLimitSeconds: limit,
		Expected:         expected,
	})
}

// quorum counts answers among roster players. Expected covers everyone who
// either answered or can still answer; complete is true once every connected
// non-spectator has answered and at least one answer exists.
func (c *Coordinator) quorum() (answered, expected int, complete bool) {
	s := c.session
	if s == nil || s.phase != domain.PhaseQuestionActive {
		return 0, 0, false
	}
	eligible, eligibleAnswered := 0, 0
	for _, p := range c.lobby.Players {
		_, ok := s.answers[p.ID]
		canAnswer := p.ConnectionState == domain.Connected && !p.Spectator
		if ok {
			answered++
		}
		if ok || canAnswer {
			expected++
		}
		if canAnswer {
			eligible++
			if ok {
				eligibleAnswered++
			}
		}
	}
	complete = eligible > 0 && eligibleAnswered == eligible && answered > 0
	return answered, expected, complete
}

func (c *Coordinator) publishProgress() {
	s := c.session
	if s == nil || s.phase != domain.PhaseQuestionActive {
		return
	}
	answered, expected, _ := c.quorum()
	c.dispatcher.Publish(domain.MsgProgressUpdate, domain.ProgressUpdate{
		QuestionIndex: s.index,
		Answered:      answered,
		Expected:      expected,
	})
}

// maybeAdvance closes the answer window early once everyone eligible answered.
func (c *Coordinator) maybeAdvance() {
	if c.closed || c.paused {
		return
	}
	if _, _, complete := c.quorum(); complete {
		c.logger.Debug().Int("question", c.session.index).Msg("all connected players answered")
		c.endQuestion()
	}
}

func (c *Coordinator) endQuestion() {
	s := c.session
	c.timers.Cancel(c.phase)
	c.phase = 0

	q := s.current()
	results := make([]domain.PlayerResult, 0, len(c.lobby.Players))
	for _, p := range c.lobby.Players {
		res := domain.PlayerResult{PlayerID: p.ID}
		if rec, ok := s.answers[p.ID]; ok {
			out := s.outcomes[p.ID]
			p.Score += out.Points
			p.Streak = out.Streak
			p.Multiplier = out.Multiplier
			res.Answered = true
			res.Correct = out.Correct
			res.PointsAwarded = out.Points
			s.history = append(s.history, rec)
		} else if p.ConnectionState == domain.Connected && !p.Spectator {
			out := c.cfg.Rules.Score(scoring.Input{Question: q, Multiplier: p.Multiplier, Streak: p.Streak})
			p.Streak = out.Streak
			p.Multiplier = out.Multiplier
		}
		res.Score = p.Score
		res.Streak = p.Streak
		res.Multiplier = p.Multiplier
		results = append(results, res)
	}

	s.phase = domain.PhaseQuestionResults
	s.deadline = time.Time{}
	ended := domain.QuestionEnded{
		Index:              s.index,
		CorrectChoiceIndex: q.CorrectChoiceIndex,
		Results:            results,
	}
	s.lastResults = &ended
	c.schedulePhase(c.cfg.ResultsPause)
	c.dispatcher.Publish(domain.MsgQuestionEnded, ended)
}

func (c *Coordinator) finish() {
	s := c.session
	now := c.clock.Now()
	c.timers.Cancel(c.phase)
	c.phase = 0
	s.phase = domain.PhaseFinished
	s.finishedAt = now
	c.lobby.Status = domain.LobbyFinished
	s.standings = computeStandings(c.lobby.Players, s.history)
	c.dispatcher.Publish(domain.MsgSessionFinished, domain.SessionFinished{Standings: s.standings})
	c.logger.Info().Str("session_id", s.id).Msg("session finished")

	if c.archive != nil {
		c.archive.Submit(domain.SessionSummary{
			SessionID:      s.id,
			LobbyCode:      c.code,
			QuestionSetID:  c.settings.QuestionSetID,
			TotalQuestions: len(s.questions),
			StartedAt:      s.startedAt,
			FinishedAt:     now,
			Standings:      s.standings,
			Answers:        s.history,
		})
	}
}

func (c *Coordinator) schedulePhase(d time.Duration) {
	c.timers.Cancel(c.phase)
	c.phase = c.startTimer(phaseTimer, d, "")
	c.phaseEnds = c.clock.Now().Add(d)
}

func (c *Coordinator) startTimer(kind timerKind, d time.Duration, playerID string) timer.Handle {
	return c.timers.Start(d, func(h timer.Handle) {
		select {
		case c.inbox <- timerFired{handle: h, kind: kind, playerID: playerID}:
		case <-c.done:
		}
	})
}

func (c *Coordinator) snapshot() domain.LobbySnapshot {
	snap := domain.LobbySnapshot{
		Seq:       c.dispatcher.Seq(),
		Code:      c.lobby.Code,
		HostID:    c.lobby.HostID,
		Status:    c.lobby.Status,
		Settings:  c.lobby.Settings,
		CreatedAt: c.lobby.CreatedAt,
		Players:   c.lobby.PlayerViews(),
	}
	s := c.session
	if s == nil {
		return snap
	}
	view := &domain.SessionView{
		ID:                   s.id,
		Phase:                s.phase,
		CurrentQuestionIndex: s.index,
		TotalQuestions:       len(s.questions),
		Paused:               c.paused,
		LastResults:          s.lastResults,
		Standings:            s.standings,
	}
	if s.phase == domain.PhaseQuestionActive {
		q := s.current().Public()
		deadline := s.deadline
		view.Question = &q
		view.Deadline = &deadline
		view.Answered, view.Expected, _ = c.quorum()
	}
	snap.Session = view
	return snap
}

func (c *Coordinator) teardown(reason string) {
	if c.closed {
		return
	}
	c.closed = true
	c.timers.Cancel(c.phase)
	c.timers.Cancel(c.abandon)
	for id, h := range c.grace {
		c.timers.Cancel(h)
		delete(c.grace, id)
	}
	c.dispatcher.Publish(domain.MsgLobbyClosed, domain.LobbyClosed{Reason: reason})
	c.dispatcher.CloseAll()
	close(c.done)
	if c.onClose != nil {
		c.onClose(c.code)
	}
	c.logger.Info().Str("reason", reason).Msg("lobby closed")
}
