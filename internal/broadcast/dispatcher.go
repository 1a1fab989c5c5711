// Package broadcast fans lobby messages out to connected players.
package broadcast

import (
	"github.com/rs/zerolog"

	"quiz-lobby-service/internal/domain"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Subscription is one player's ordered message stream. The first message
// is always a snapshot.
type Subscription struct {
	ID       uint64
	PlayerID string
	C        <-chan domain.Message
}

type subscriber struct {
	id       uint64
	playerID string
	ch       chan domain.Message
}

// Dispatcher is owned by a single lobby coordinator and must only be used
// from that coordinator's goroutine. Subscribers read their channels from
// any goroutine.
type Dispatcher struct {
	seq      uint64
	nextID   uint64
	buffer   int
	subs     []*subscriber
	snapshot func() domain.LobbySnapshot
	logger   zerolog.Logger
}

// NewDispatcher creates a dispatcher. snapshot must return the complete
// current state; it is used for attach and for resynchronising slow readers.
func NewDispatcher(buffer int, snapshot func() domain.LobbySnapshot, logger zerolog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Dispatcher{buffer: buffer, snapshot: snapshot, logger: logger}
}

// Seq returns the sequence number of the last published delta.
func (d *Dispatcher) Seq() uint64 {
	return d.seq
}

// Publish assigns the next sequence number to a delta and delivers it to
// every subscriber in order.
func (d *Dispatcher) Publish(kind domain.MessageType, payload any) domain.Message {
	d.seq++
	msg := domain.Message{Seq: d.seq, Type: kind, Payload: payload}
	for _, s := range d.subs {
		d.deliver(s, msg)
	}
	return msg
}

// Send delivers a private, unsequenced message to one player.
func (d *Dispatcher) Send(playerID string, kind domain.MessageType, payload any) {
	msg := domain.Message{Type: kind, Payload: payload}
	for _, s := range d.subs {
		if s.playerID == playerID {
			d.deliver(s, msg)
		}
	}
}

// Attach registers a player's stream, replacing any previous stream for the
// same player, and queues a snapshot as its first message.
func (d *Dispatcher) Attach(playerID string) *Subscription {
	d.Detach(playerID, 0)
	d.nextID++
	s := &subscriber{id: d.nextID, playerID: playerID, ch: make(chan domain.Message, d.buffer)}
	d.subs = append(d.subs, s)
	s.ch <- d.snapshotMessage()
	return &Subscription{ID: s.id, PlayerID: playerID, C: s.ch}
}

// Detach closes a player's stream. A non-zero subID only detaches that exact
// stream, so a late disconnect from an old connection cannot drop a newer one.
func (d *Dispatcher) Detach(playerID string, subID uint64) bool {
	for i, s := range d.subs {
		if s.playerID != playerID {
			continue
		}
		if subID != 0 && s.id != subID {
			return false
		}
		close(s.ch)
		d.subs = append(d.subs[:i], d.subs[i+1:]...)
		return true
	}
	return false
}

// Attached reports whether subID is the player's live stream.
func (d *Dispatcher) Attached(playerID string, subID uint64) bool {
	for _, s := range d.subs {
		if s.playerID == playerID {
			return subID == 0 || s.id == subID
		}
	}
	return false
}

// Len returns the number of attached streams.
func (d *Dispatcher) Len() int {
	return len(d.subs)
}

// CloseAll closes every stream.
func (d *Dispatcher) CloseAll() {
	for _, s := range d.subs {
		close(s.ch)
	}
	d.subs = nil
}

func (d *Dispatcher) snapshotMessage() domain.Message {
	snap := d.snapshot()
	snap.Seq = d.seq
	return domain.Message{Type: domain.MsgSnapshot, Payload: snap}
}

// deliver never blocks. A full queue is flushed and replaced by a fresh
// snapshot, so the reader skips ahead instead of missing a delta.
func (d *Dispatcher) deliver(s *subscriber, msg domain.Message) {
	select {
	case s.ch <- msg:
		return
	default:
	}
	for {
		select {
		case <-s.ch:
			continue
		default:
		}
		break
	}
	d.logger.Debug().
		Str("player_id", s.playerID).
		Uint64("seq", d.seq).
		Msg("subscriber queue full, resyncing with snapshot")
	// The snapshot already reflects msg when msg is a delta.
	s.ch <- d.snapshotMessage()
	if msg.Seq == 0 {
		select {
		case s.ch <- msg:
		default:
		}
	}
}
