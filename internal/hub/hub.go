// Package hub binds client connections to boards, applies their updates to
// the store and rebroadcasts the authoritative result to the other
// connections on the same board.
package hub

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"boardsync/internal/channel"
	"boardsync/internal/model"
	"boardsync/internal/store"
)

// DefaultSendBuffer is the outbound queue length of one connection.
const DefaultSendBuffer = 256

// State is the lifecycle stage of a connection.
type State int

const (
	StateConnected State = iota
	StateBound
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateBound:
		return "bound"
	case StateDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// group is the broadcast set of one board. Its lock is the serialisation
// point for every mutation of that board made through the hub. A group that
// became empty is dead and removed from the hub; lockGroup never returns one.
type group struct {
	mu    sync.Mutex
	conns map[*conn]struct{}
	dead  bool
}

// Hub mediates all access to the store.
type Hub struct {
	store      *store.Store
	sendBuffer int

	mu     sync.Mutex
	groups map[string]*group
}

// Option configures a Hub.
type Option func(*Hub)

// WithSendBuffer sets the per-connection outbound queue length. A connection
// whose queue is full is dropped.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// New creates a Hub over s.
func New(s *store.Store, opts ...Option) *Hub {
	h := &Hub{
		store:      s,
		sendBuffer: DefaultSendBuffer,
		groups:     make(map[string]*group),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) group(boardID string) *group {
	h.mu.Lock()
	defer h.mu.Unlock()

	g, ok := h.groups[boardID]
	if !ok {
		g = &group{conns: make(map[*conn]struct{})}
		h.groups[boardID] = g
	}
	return g
}

// lockGroup returns the live group of boardID with its lock held.
func (h *Hub) lockGroup(boardID string) *group {
	for {
		g := h.group(boardID)
		g.mu.Lock()
		if !g.dead {
			return g
		}
		g.mu.Unlock()
	}
}

// unlockGroup releases g, dropping it from the hub when nobody is bound to
// it. Lock order is g.mu before h.mu.
func (h *Hub) unlockGroup(boardID string, g *group) {
	if len(g.conns) == 0 && !g.dead {
		g.dead = true
		h.mu.Lock()
		if h.groups[boardID] == g {
			delete(h.groups, boardID)
		}
		h.mu.Unlock()
	}
	g.mu.Unlock()
}

// ConnectionCount returns how many connections are bound to boardID.
func (h *Hub) ConnectionCount(boardID string) int {
	h.mu.Lock()
	g, ok := h.groups[boardID]
	h.mu.Unlock()
	if !ok {
		return 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// Serve runs one connection until the channel fails or ctx is done. It
// always leaves the board untouched on return; disconnecting only removes
// the connection from its broadcast group.
func (h *Hub) Serve(ctx context.Context, ch channel.Channel) {
	c := &conn{
		id:    uuid.NewString()[:8],
		ch:    ch,
		send:  make(chan model.Message, h.sendBuffer),
		state: StateConnected,
	}
	log.Printf("[Hub] Connection %s opened", c.id)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()

	stop := context.AfterFunc(ctx, func() { ch.Close() })
	defer stop()

	for {
		msg, err := ch.Receive()
		if err != nil {
			log.Printf("[Hub] Connection %s closed: %v", c.id, err)
			break
		}
		h.dispatch(c, msg)
	}

	h.leave(c)
	c.state = StateDisconnected
	close(c.send)
	<-writerDone
	ch.Close()
}

func (h *Hub) dispatch(c *conn, msg model.Message) {
	switch msg.Event {
	case model.EventBoardListRequest:
		c.enqueue(model.Message{
			Event:     model.EventBoardList,
			RequestID: msg.RequestID,
			Boards:    h.store.ListBoards(),
		})
	case model.EventBoardDataRequest:
		h.join(c, msg)
	case model.EventBoardUpdate:
		h.update(c, msg)
	case model.EventBoxDelete:
		h.deleteBox(c, msg)
	default:
		h.fail(c, msg.RequestID, fmt.Errorf("%w: unknown event %q", model.ErrBadRequest, msg.Event))
	}
}

// join binds c to the requested board and sends it a snapshot. Snapshot and
// join happen under the group lock so no update falls between them.
func (h *Hub) join(c *conn, msg model.Message) {
	if !h.store.HasBoard(msg.BoardID) {
		h.fail(c, msg.RequestID, fmt.Errorf("%w: %s", model.ErrBoardNotFound, msg.BoardID))
		return
	}

	g := h.lockGroup(msg.BoardID)
	board, err := h.store.GetBoard(msg.BoardID)
	if err != nil {
		h.unlockGroup(msg.BoardID, g)
		h.fail(c, msg.RequestID, err)
		return
	}
	g.conns[c] = struct{}{}
	ok := c.enqueue(model.Message{
		Event:     model.EventBoardData,
		RequestID: msg.RequestID,
		BoardID:   board.ID,
		Board:     &board,
	})
	h.unlockGroup(msg.BoardID, g)

	prev := c.boardID
	c.boardID = board.ID
	c.state = StateBound
	if prev != "" && prev != board.ID {
		h.removeFrom(prev, c)
	}
	if !ok {
		c.ch.Close()
		return
	}

	log.Printf("[Hub] Connection %s bound to board %s (%d boxes)", c.id, board.ID, len(board.Boxes))
}

func (h *Hub) bound(c *conn, boardID string) error {
	if c.state != StateBound {
		return fmt.Errorf("%w: request board data first", model.ErrNotBound)
	}
	if boardID != c.boardID {
		return fmt.Errorf("%w: bound to %s, not %s", model.ErrNotBound, c.boardID, boardID)
	}
	return nil
}

// update applies a boardUpdate and broadcasts the stored result, not the
// request, to every other connection on the board. A new box goes out in
// full; otherwise only the fields the sender touched are sent, so peers
// keep their own edits of other fields that are still on the way.
//
// The sender gets boxCreated for a new box, carrying z and any field the
// server filled in, or updateApplied when the update carried a requestId.
func (h *Hub) update(c *conn, msg model.Message) {
	if msg.BoardID == "" {
		msg.BoardID = c.boardID
	}
	if err := h.bound(c, msg.BoardID); err != nil {
		h.fail(c, msg.RequestID, err)
		return
	}

	u, err := model.DecodeUpdate(msg)
	if err != nil {
		h.fail(c, msg.RequestID, err)
		return
	}

	g := h.lockGroup(u.BoardID)
	box, created, err := h.store.ApplyUpdate(u.BoardID, u.UUID, u.Type, u.State)
	if err != nil {
		h.unlockGroup(u.BoardID, g)
		h.fail(c, msg.RequestID, err)
		return
	}

	var slow []*conn
	touched := u.State.Fields()
	switch {
	case created:
		slow = fanoutLocked(g, c, model.UpdateFromBox(u.BoardID, box).Message())
	case touched != 0:
		note := model.BoardUpdate{BoardID: u.BoardID, UUID: box.UUID, State: box.State.Project(touched), Type: box.Type}
		slow = fanoutLocked(g, c, note.Message())
	}

	var ack model.Message
	switch {
	case created:
		filled := model.BoardUpdate{
			BoardID: u.BoardID,
			UUID:    box.UUID,
			State:   box.State.Project(model.AllFields&^touched | model.FieldZ),
			Type:    box.Type,
		}
		ack = filled.Message()
		ack.Event = model.EventBoxCreated
		ack.RequestID = msg.RequestID
	case msg.RequestID != "":
		ack = model.Message{Event: model.EventUpdateApplied, RequestID: msg.RequestID, BoardID: u.BoardID, UUID: box.UUID}
	}
	if ack.Event != "" && !c.enqueue(ack) {
		slow = append(slow, c)
	}
	h.unlockGroup(u.BoardID, g)

	if created {
		log.Printf("[Hub] ✅ Box %s (%s) created on board %s by %s, z=%d", box.UUID, box.Type, u.BoardID, c.id, box.State.Z)
	}
	dropSlow(slow)
}

func (h *Hub) deleteBox(c *conn, msg model.Message) {
	if msg.BoardID == "" {
		msg.BoardID = c.boardID
	}
	if err := h.bound(c, msg.BoardID); err != nil {
		h.fail(c, msg.RequestID, err)
		return
	}
	if err := h.removeBox(msg.BoardID, msg.UUID, c); err != nil {
		h.fail(c, msg.RequestID, err)
	}
}

// RemoveBox deletes a box on behalf of the server itself and notifies every
// connection bound to the board.
func (h *Hub) RemoveBox(boardID, boxID string) error {
	if !h.store.HasBoard(boardID) {
		return fmt.Errorf("%w: %s", model.ErrBoardNotFound, boardID)
	}
	return h.removeBox(boardID, boxID, nil)
}

func (h *Hub) removeBox(boardID, boxID string, origin *conn) error {
	g := h.lockGroup(boardID)
	if err := h.store.DeleteBox(boardID, boxID); err != nil {
		h.unlockGroup(boardID, g)
		return err
	}
	slow := fanoutLocked(g, origin, model.Message{
		Event:   model.EventBoxDeleted,
		BoardID: boardID,
		UUID:    boxID,
	})
	h.unlockGroup(boardID, g)

	log.Printf("[Hub] 📢 Box %s deleted on board %s", boxID, boardID)
	dropSlow(slow)
	return nil
}

func (h *Hub) leave(c *conn) {
	if c.boardID == "" {
		return
	}
	h.removeFrom(c.boardID, c)
	log.Printf("[Hub] Connection %s left board %s", c.id, c.boardID)
}

func (h *Hub) removeFrom(boardID string, c *conn) {
	g := h.lockGroup(boardID)
	delete(g.conns, c)
	h.unlockGroup(boardID, g)
}

func (h *Hub) fail(c *conn, requestID string, err error) {
	log.Printf("[Hub] ❌ Connection %s: %v", c.id, err)
	if !c.enqueue(model.ErrorMessage(requestID, err)) {
		c.ch.Close()
	}
}

// fanoutLocked queues msg for every member of g except origin and returns
// the members whose queue was full. Callers hold g.mu.
func fanoutLocked(g *group, origin *conn, msg model.Message) []*conn {
	var slow []*conn
	for peer := range g.conns {
		if peer == origin {
			continue
		}
		if !peer.enqueue(msg) {
			slow = append(slow, peer)
		}
	}
	return slow
}

func dropSlow(slow []*conn) {
	for _, c := range slow {
		log.Printf("[Hub] ❌ Connection %s send queue full, dropping", c.id)
		c.ch.Close()
	}
}
