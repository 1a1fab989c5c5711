package domain

import (
	"errors"
	"fmt"
)

// ErrSequenceGap is returned by Apply when a delta was skipped.
var ErrSequenceGap = errors.New("delta sequence gap")

// Apply folds a message into the snapshot, mirroring how the server mutates
// its own state. Snapshot messages replace the state wholesale, deltas that
// are already included are ignored and private messages are skipped.
func (s *LobbySnapshot) Apply(m Message) error {
	if m.Type == MsgSnapshot {
		snap, ok := m.Payload.(LobbySnapshot)
		if !ok {
			return fmt.Errorf("snapshot payload: unexpected %T", m.Payload)
		}
		*s = snap
		return nil
	}
	if m.Seq == 0 {
		return nil
	}
	if m.Seq <= s.Seq {
		return nil
	}
	if m.Seq != s.Seq+1 {
		return fmt.Errorf("%w: have %d, got %d", ErrSequenceGap, s.Seq, m.Seq)
	}
	s.Seq = m.Seq

	switch p := m.Payload.(type) {
	case PlayerJoined:
		s.Players = append(s.Players, p.Player)
	case PlayerLeft:
		for i := range s.Players {
			if s.Players[i].ID == p.PlayerID {
				s.Players = append(s.Players[:i], s.Players[i+1:]...)
				break
			}
		}
	case PlayerUpdated:
		if v := s.player(p.Player.ID); v != nil {
			*v = p.Player
		}
	case HostChanged:
		s.HostID = p.HostID
		for i := range s.Players {
			s.Players[i].IsHost = s.Players[i].ID == p.HostID
			if s.Players[i].IsHost {
				s.Players[i].IsReady = true
			}
		}
	case SessionStarting:
		s.Status = LobbyPlaying
		s.Session = &SessionView{
			ID:             p.SessionID,
			Phase:          PhaseStarting,
			TotalQuestions: p.TotalQuestions,
		}
	case QuestionStarted:
		if s.Session == nil {
			return fmt.Errorf("question started without session")
		}
		q := p.Question
		deadline := p.Deadline
		s.Session.Phase = PhaseQuestionActive
		s.Session.CurrentQuestionIndex = p.Index
		s.Session.Question = &q
		s.Session.Deadline = &deadline
		s.Session.Answered = 0
		s.Session.Expected = p.Expected
	case ProgressUpdate:
		if s.Session != nil {
			s.Session.Answered = p.Answered
			s.Session.Expected = p.Expected
		}
	case QuestionEnded:
		if s.Session == nil {
			return fmt.Errorf("question ended without session")
		}
		ended := p
		s.Session.Phase = PhaseQuestionResults
		s.Session.Question = nil
		s.Session.Deadline = nil
		s.Session.Answered = 0
		s.Session.Expected = 0
		s.Session.LastResults = &ended
		for _, r := range p.Results {
			if v := s.player(r.PlayerID); v != nil {
				v.Score = r.Score
				v.Streak = r.Streak
				v.Multiplier = r.Multiplier
			}
		}
	case SessionFinished:
		s.Status = LobbyFinished
		if s.Session != nil {
			s.Session.Phase = PhaseFinished
			s.Session.Question = nil
			s.Session.Deadline = nil
			s.Session.Standings = p.Standings
		}
	case SessionPaused:
		if s.Session != nil {
			s.Session.Paused = true
		}
	case SessionResumed:
		if s.Session != nil {
			s.Session.Paused = false
			if p.Deadline != nil {
				d := *p.Deadline
				s.Session.Deadline = &d
			}
		}
	case LobbyClosed:
	default:
		return fmt.Errorf("unknown delta payload %T", m.Payload)
	}
	return nil
}

func (s *LobbySnapshot) player(id string) *PlayerView {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i]
		}
	}
	return nil
}
