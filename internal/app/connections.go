package app

import (
	"time"

	"quiz-lobby-service/internal/broadcast"
	"quiz-lobby-service/internal/domain"
	"quiz-lobby-service/internal/timer"
)

// Connection lifecycle: connected -> grace_period on transport drop, back to
// connected on reconnect, and removed or disconnected once grace expires.

func (c *Coordinator) handleConnect(e connectCmd) (*broadcast.Subscription, error) {
	p, _ := c.lobby.Member(e.playerID)
	if p == nil {
		return nil, domain.ErrNotMember
	}
	if p.ConnectionState != domain.Connected {
		c.reconnect(p)
	}
	return c.dispatcher.Attach(p.ID), nil
}

func (c *Coordinator) handleDisconnect(e disconnectCmd) {
	p, _ := c.lobby.Member(e.playerID)
	if p == nil {
		return
	}
	if e.subID != 0 && !c.dispatcher.Attached(p.ID, e.subID) {
		c.logger.Debug().Str("player_id", p.ID).Uint64("sub", e.subID).Msg("ignoring disconnect from replaced stream")
		return
	}
	c.dispatcher.Detach(p.ID, e.subID)
	if p.ConnectionState != domain.Connected {
		return
	}

	p.ConnectionState = domain.GracePeriod
	c.grace[p.ID] = c.startTimer(graceTimer, c.cfg.GracePeriod, p.ID)
	c.dispatcher.Publish(domain.MsgPlayerUpdated, domain.PlayerUpdated{Player: p.View()})
	c.logger.Info().Str("player_id", p.ID).Dur("grace", c.cfg.GracePeriod).Msg("player disconnected")

	if p.IsHost {
		if hostID, changed := c.lobby.MigrateHost(); changed {
			c.dispatcher.Publish(domain.MsgHostChanged, domain.HostChanged{HostID: hostID})
		}
	}
	c.afterRosterChange()
}

func (c *Coordinator) reconnect(p *domain.Player) {
	if h, ok := c.grace[p.ID]; ok {
		c.timers.Cancel(h)
		delete(c.grace, p.ID)
	}
	p.ConnectionState = domain.Connected
	p.LastActivityAt = c.clock.Now()
	c.dispatcher.Publish(domain.MsgPlayerUpdated, domain.PlayerUpdated{Player: p.View()})
	c.logger.Info().Str("player_id", p.ID).Msg("player reconnected")

	c.ensureConnectedHost()
	c.resume()
	c.publishProgress()
}

func (c *Coordinator) graceExpired(playerID string, h timer.Handle) {
	if c.grace[playerID] != h {
		c.logger.Debug().Str("player_id", playerID).Msg("ignoring stale grace timer")
		return
	}
	delete(c.grace, playerID)
	p, _ := c.lobby.Member(playerID)
	if p == nil {
		return
	}

	if c.lobby.Status == domain.LobbyWaiting || c.cfg.ExpiredPolicy == domain.RemoveExpired {
		c.logger.Info().Str("player_id", playerID).Msg("grace period expired, removing player")
		c.removePlayer(playerID)
		return
	}
	p.ConnectionState = domain.Disconnected
	if c.lobby.Status == domain.LobbyPlaying {
		p.Spectator = true
	}
	c.dispatcher.Publish(domain.MsgPlayerUpdated, domain.PlayerUpdated{Player: p.View()})
	c.logger.Info().Str("player_id", playerID).Msg("grace period expired, player kept as spectator")
	c.afterRosterChange()
}

func (c *Coordinator) removePlayer(playerID string) {
	if h, ok := c.grace[playerID]; ok {
		c.timers.Cancel(h)
		delete(c.grace, playerID)
	}
	c.dispatcher.Detach(playerID, 0)
	wasHost := c.lobby.HostID == playerID
	c.lobby.Remove(playerID)
	c.dispatcher.Publish(domain.MsgPlayerLeft, domain.PlayerLeft{PlayerID: playerID})
	c.logger.Info().Str("player_id", playerID).Int("players", len(c.lobby.Players)).Msg("player left")

	if len(c.lobby.Players) == 0 {
		c.teardown("empty")
		return
	}
	if wasHost {
		c.dispatcher.Publish(domain.MsgHostChanged, domain.HostChanged{HostID: c.lobby.HostID})
	}
	c.afterRosterChange()
}

// ensureConnectedHost hands the host role to a connected player when the
// current host is not connected.
func (c *Coordinator) ensureConnectedHost() {
	host := c.lobby.Host()
	if host != nil && host.ConnectionState == domain.Connected {
		return
	}
	if hostID, changed := c.lobby.MigrateHost(); changed {
		c.dispatcher.Publish(domain.MsgHostChanged, domain.HostChanged{HostID: hostID})
	}
}

func (c *Coordinator) afterRosterChange() {
	c.publishProgress()
	c.maybeAdvance()
	c.pauseIfAbandoned()
}

// pauseIfAbandoned freezes the running phase once nobody is connected and
// arms the abandon timer.
func (c *Coordinator) pauseIfAbandoned() {
	if c.closed || c.lobby.ConnectedCount() > 0 {
		return
	}
	if c.abandon == 0 && c.cfg.AbandonAfter > 0 {
		c.abandon = c.startTimer(abandonTimer, c.cfg.AbandonAfter, "")
	}
	if c.paused || c.session == nil || c.phase == 0 {
		return
	}

	left := c.phaseEnds.Sub(c.clock.Now())
	if left < 0 {
		left = 0
	}
	c.timers.Cancel(c.phase)
	c.phase = 0
	c.paused = true
	c.pausedLeft = left
	c.dispatcher.Publish(domain.MsgSessionPaused, domain.SessionPaused{Phase: c.session.phase})
	c.logger.Info().Dur("remaining", left).Msg("session paused, nobody connected")
}

func (c *Coordinator) resume() {
	if c.abandon != 0 {
		c.timers.Cancel(c.abandon)
		c.abandon = 0
	}
	if !c.paused {
		return
	}
	c.paused = false
	c.schedulePhase(c.pausedLeft)

	s := c.session
	var deadline *time.Time
	if s.phase == domain.PhaseQuestionActive {
		s.deadline = c.phaseEnds
		d := s.deadline
		deadline = &d
	}
	c.dispatcher.Publish(domain.MsgSessionResumed, domain.SessionResumed{Phase: s.phase, Deadline: deadline})
	c.logger.Info().Dur("remaining", c.pausedLeft).Msg("session resumed")
}
