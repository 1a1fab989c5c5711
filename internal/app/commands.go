package app

import (
	"quiz-lobby-service/internal/broadcast"
	"quiz-lobby-service/internal/domain"
	"quiz-lobby-service/internal/timer"
)

// event is the closed set of inputs a coordinator consumes, one at a time.
type event interface {
	isEvent()
}

type result struct {
	snapshot domain.LobbySnapshot
	sub      *broadcast.Subscription
	err      error
}

// replyTo is buffered so the coordinator never blocks answering.
type replyTo chan result

func newReply() replyTo {
	return make(replyTo, 1)
}

func (r replyTo) send(res result) {
	if r != nil {
		r <- res
	}
}

type joinCmd struct {
	playerID string
	profile  domain.Profile
	reply    replyTo
}

type connectCmd struct {
	playerID string
	reply    replyTo
}

type disconnectCmd struct {
	playerID string
	subID    uint64
}

type leaveCmd struct {
	playerID string
	reply    replyTo
}

type readyCmd struct {
	playerID string
	ready    bool
	reply    replyTo
}

type startCmd struct {
	playerID  string
	questions []domain.Question
	reply     replyTo
}

type answerCmd struct {
	playerID string
	// questionIndex is -1 when the client did not name a question.
	questionIndex int
	choiceIndex   int
	reply         replyTo
}

type closeCmd struct {
	playerID string
	reply    replyTo
}

type snapshotCmd struct {
	reply replyTo
}

type shutdownCmd struct {
	reason string
	reply  replyTo
}

type timerKind int

const (
	phaseTimer timerKind = iota
	graceTimer
	abandonTimer
)

func (k timerKind) String() string {
	switch k {
	case phaseTimer:
		return "phase"
	case graceTimer:
		return "grace"
	case abandonTimer:
		return "abandon"
	}
	return "unknown"
}

type timerFired struct {
	handle   timer.Handle
	kind     timerKind
	playerID string
}

func (joinCmd) isEvent()       {}
func (connectCmd) isEvent()    {}
func (disconnectCmd) isEvent() {}
func (leaveCmd) isEvent()      {}
func (readyCmd) isEvent()      {}
func (startCmd) isEvent()      {}
func (answerCmd) isEvent()     {}
func (closeCmd) isEvent()      {}
func (snapshotCmd) isEvent()   {}
func (shutdownCmd) isEvent()   {}
func (timerFired) isEvent()    {}
