package app

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/domain"
)

// Relay forwards signaling events to room peers. It never inspects payloads.
type Relay struct {
	hub    *Hub
	policy Policy
	log    zerolog.Logger
}

func NewRelay(hub *Hub, policy Policy) *Relay {
	if policy == nil {
		policy = DropPolicy{}
	}
	return &Relay{
		hub:    hub,
		policy: policy,
		log:    log.With().Str("module", "app.relay").Logger(),
	}
}

func (r *Relay) Hub() *Hub { return r.hub }

// Join adds id to room and announces it to the members already there.
func (r *Relay) Join(id domain.ConnectionID, room domain.RoomID, conn core.SignalConnection) {
	if !r.hub.Join(id, room, conn) {
		r.log.Debug().Str("conn", string(id)).Str("room", string(room)).Msg("already in room")
	}
	r.publish(id, room, core.Message{Type: core.EventNewPeer, Payload: core.StringPayload(string(id))})
}

// Leave removes id from room and tells the rest of the room.
func (r *Relay) Leave(id domain.ConnectionID, room domain.RoomID) {
	if !r.hub.Leave(id, room) {
		r.log.Debug().Str("conn", string(id)).Str("room", string(room)).Msg("leave for a room not joined")
		return
	}
	r.publish(id, room, core.Message{Type: core.EventPeerLeft, Payload: core.StringPayload(string(id))})
}

// Forward sends kind with payload, untouched, to everyone in room but from.
// The sender does not have to be a member.
func (r *Relay) Forward(from domain.ConnectionID, kind string, room domain.RoomID, payload json.RawMessage) {
	r.publish(from, room, core.Message{Type: kind, Payload: payload})
}

// AnnounceDeparture removes id from all rooms and sends peer-disconnected to
// each of them, except the connection's own room.
func (r *Relay) AnnounceDeparture(id domain.ConnectionID) {
	msg := core.Message{Type: core.EventPeerDisconnected, Payload: core.StringPayload(string(id))}
	for _, room := range r.hub.LeaveAll(id) {
		if room == id.OwnRoom() {
			continue
		}
		r.publish(id, room, msg)
	}
}

func (r *Relay) publish(from domain.ConnectionID, room domain.RoomID, msg core.Message) {
	frame, err := msg.Encode()
	if err != nil {
		r.log.Error().Err(err).Str("type", msg.Type).Msg("cannot encode message")
		return
	}

	res := r.hub.Broadcast(from, room, frame)
	r.log.Debug().
		Str("type", msg.Type).
		Str("from", string(from)).
		Str("room", string(room)).
		Int("sent", res.SendTo).
		Int("dropped", len(res.Dropped)).
		Msg("broadcast")

	for _, d := range res.Dropped {
		r.handleDropped(room, d)
	}
}

func (r *Relay) handleDropped(room domain.RoomID, d core.DroppedMember) {
	logger := r.log.With().Str("room", string(room)).Str("member", string(d.ID)).Logger()
	if !errors.Is(d.Err, core.ErrBackpressure) {
		logger.Debug().Err(d.Err).Msg("member unreachable")
		return
	}

	action := r.policy.OnBackPressure(room, d.ID)
	switch action {
	case KickMember:
		logger.Warn().Msg("kicking slow member")
		d.Conn.Close()
	case DropFrame:
		logger.Warn().Msg("dropped frame for slow member")
	}
}
