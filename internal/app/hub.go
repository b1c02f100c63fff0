package app

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/domain"
)

// Hub is the room registry: which connections are in which rooms.
// Rooms exist while they have members.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[domain.RoomID]map[domain.ConnectionID]core.SignalConnection
	joined map[domain.ConnectionID]map[domain.RoomID]struct{}
}

func NewHub() *Hub {
	return &Hub{
		rooms:  make(map[domain.RoomID]map[domain.ConnectionID]core.SignalConnection),
		joined: make(map[domain.ConnectionID]map[domain.RoomID]struct{}),
	}
}

// Join adds id to room. It reports false when id was already a member.
func (h *Hub) Join(id domain.ConnectionID, room domain.RoomID, conn core.SignalConnection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[domain.ConnectionID]core.SignalConnection)
		h.rooms[room] = members
	}
	if _, exists := members[id]; exists {
		return false
	}
	members[id] = conn

	rooms, ok := h.joined[id]
	if !ok {
		rooms = make(map[domain.RoomID]struct{})
		h.joined[id] = rooms
	}
	rooms[room] = struct{}{}
	log.Debug().Str("module", "app.hub").Str("conn", string(id)).Str("room", string(room)).Int("members", len(members)).Msg("joined room")
	return true
}

// Leave removes id from room. It reports false when id was not a member.
func (h *Hub) Leave(id domain.ConnectionID, room domain.RoomID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveLocked(id, room)
}

// LeaveAll removes id from every room and returns those rooms, sorted.
func (h *Hub) LeaveAll(id domain.ConnectionID) []domain.RoomID {
	h.mu.Lock()
	defer h.mu.Unlock()

	left := make([]domain.RoomID, 0, len(h.joined[id]))
	for room := range h.joined[id] {
		left = append(left, room)
	}
	for _, room := range left {
		h.leaveLocked(id, room)
	}
	sortRooms(left)
	return left
}

func (h *Hub) leaveLocked(id domain.ConnectionID, room domain.RoomID) bool {
	members, ok := h.rooms[room]
	if !ok {
		return false
	}
	if _, ok := members[id]; !ok {
		return false
	}
	delete(members, id)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	if rooms, ok := h.joined[id]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(h.joined, id)
		}
	}
	log.Debug().Str("module", "app.hub").Str("conn", string(id)).Str("room", string(room)).Msg("left room")
	return true
}

func (h *Hub) RoomsOf(id domain.ConnectionID) []domain.RoomID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]domain.RoomID, 0, len(h.joined[id]))
	for room := range h.joined[id] {
		out = append(out, room)
	}
	sortRooms(out)
	return out
}

func (h *Hub) MemberCount(room domain.RoomID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) List() []core.RoomInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(h.rooms))
	for id, members := range h.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: len(members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Broadcast delivers frame to every member of room except from.
// Sends happen outside the lock; a member that leaves meanwhile may still get the frame.
func (h *Hub) Broadcast(from domain.ConnectionID, room domain.RoomID, frame core.Frame) core.PublishResult {
	h.mu.RLock()
	type target struct {
		id   domain.ConnectionID
		conn core.SignalConnection
	}
	targets := make([]target, 0, len(h.rooms[room]))
	for id, conn := range h.rooms[room] {
		if id == from {
			continue
		}
		targets = append(targets, target{id: id, conn: conn})
	}
	h.mu.RUnlock()

	var res core.PublishResult
	for _, t := range targets {
		if err := t.conn.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, core.DroppedMember{ID: t.id, Conn: t.conn, Err: err})
			continue
		}
		res.SendTo++
	}
	return res
}

func sortRooms(rooms []domain.RoomID) {
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
}
