// Package client is the client side of board synchronisation. An Agent
// applies local edits optimistically, pushes them to the server and merges
// the server's notifications into its local copy of the board.
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"

	"boardsync/internal/channel"
	"boardsync/internal/model"
)

// ErrConnection means the channel to the server is unavailable. The agent
// never reconnects on its own.
var ErrConnection = errors.New("connection error")

// Option configures an Agent.
type Option func(*Agent)

// WithLimits sets the box limits used for optimistic local edits. They
// should match the server's.
func WithLimits(lim model.Limits) Option {
	return func(a *Agent) { a.limits = lim }
}

// WithHeader sets headers sent when dialing, e.g. Origin.
func WithHeader(h http.Header) Option {
	return func(a *Agent) { a.header = h }
}

// Agent is safe for concurrent use.
type Agent struct {
	limits model.Limits
	header http.Header

	// sendMu keeps local apply order and wire order of updates the same.
	sendMu sync.Mutex

	mu       sync.Mutex
	ch       channel.Channel
	seq      uint64
	pending  map[string]pendingRequest
	inflight map[string]inflightUpdate
	held     map[string]map[model.Field]int
	boardID  string
	boxes    map[string]model.Box
	nextZ    int

	updateHandlers registry[func(model.BoardUpdate)]
	deleteHandlers registry[func(boardID, uuid string)]
	errorHandlers  registry[func(error)]
}

// pendingRequest waits for the reply to a request sent on ch.
type pendingRequest struct {
	ch    channel.Channel
	reply chan model.Message
}

// inflightUpdate is an update sent on ch that the server has not answered.
type inflightUpdate struct {
	ch     channel.Channel
	box    string
	fields model.Field
}

// New creates an unconnected Agent.
func New(opts ...Option) *Agent {
	a := &Agent{
		limits:  model.DefaultLimits(),
		pending:  make(map[string]pendingRequest),
		inflight: make(map[string]inflightUpdate),
		held:     make(map[string]map[model.Field]int),
		boxes:    make(map[string]model.Box),
		nextZ:    1,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Connect dials serverAddress (ws://host:port/ws). A failure is returned
// and also reported to OnError handlers; retrying is up to the caller.
func (a *Agent) Connect(ctx context.Context, serverAddress string) error {
	ws, err := channel.Dial(ctx, serverAddress, a.header)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrConnection, err)
		a.emitError(err)
		return err
	}
	a.Attach(ws)
	log.Printf("[Agent] Connected to %s", serverAddress)
	return nil
}

// Attach runs the agent over an already established channel, replacing any
// previous one.
func (a *Agent) Attach(ch channel.Channel) {
	a.mu.Lock()
	old := a.ch
	a.ch = ch
	a.mu.Unlock()

	if old != nil {
		old.Close()
	}
	go a.readLoop(ch)
}

// Close tears the agent down. Pending requests fail with ErrConnection.
func (a *Agent) Close() error {
	a.mu.Lock()
	ch := a.ch
	a.ch = nil
	a.mu.Unlock()

	if ch == nil {
		return nil
	}
	return ch.Close()
}

// OnRemoteUpdate registers fn for every boardUpdate notification, called in
// delivery order from a single goroutine. It is also called when the server
// confirms a box this agent created, since the server assigns its z.
func (a *Agent) OnRemoteUpdate(fn func(model.BoardUpdate)) (cancel func()) {
	return a.updateHandlers.add(fn)
}

// OnRemoteDelete registers fn for box deletions made elsewhere.
func (a *Agent) OnRemoteDelete(fn func(boardID, uuid string)) (cancel func()) {
	return a.deleteHandlers.add(fn)
}

// OnError registers fn for connection failures and for server rejections
// of fire-and-forget updates.
func (a *Agent) OnError(fn func(error)) (cancel func()) {
	return a.errorHandlers.add(fn)
}

func (a *Agent) emitError(err error) {
	for _, fn := range a.errorHandlers.snapshot() {
		fn(err)
	}
}

// RequestBoardList asks the server for every board. No timeout is applied
// beyond ctx.
func (a *Agent) RequestBoardList(ctx context.Context) ([]model.BoardSummary, error) {
	resp, err := a.request(ctx, model.Message{Event: model.EventBoardListRequest})
	if err != nil {
		return nil, err
	}
	if resp.Boards == nil {
		return []model.BoardSummary{}, nil
	}
	return resp.Boards, nil
}

// GetBoardList is RequestBoardList.
func (a *Agent) GetBoardList(ctx context.Context) ([]model.BoardSummary, error) {
	return a.RequestBoardList(ctx)
}

// RequestBoardData fetches a full snapshot of boardID, binds the agent to
// it and replaces the local view with it. A reconnecting client must call
// this again rather than assume it missed nothing.
func (a *Agent) RequestBoardData(ctx context.Context, boardID string) (model.Board, error) {
	resp, err := a.request(ctx, model.Message{Event: model.EventBoardDataRequest, BoardID: boardID})
	if err != nil {
		return model.Board{}, err
	}
	if resp.Board == nil {
		return model.Board{}, fmt.Errorf("%w: boardData without board", model.ErrBadRequest)
	}
	return *resp.Board, nil
}

// GetBoardData is RequestBoardData.
func (a *Agent) GetBoardData(ctx context.Context, boardID string) (model.Board, error) {
	return a.RequestBoardData(ctx, boardID)
}

func (a *Agent) request(ctx context.Context, msg model.Message) (model.Message, error) {
	a.mu.Lock()
	ch := a.ch
	if ch == nil {
		a.mu.Unlock()
		return model.Message{}, fmt.Errorf("%w: not connected", ErrConnection)
	}
	a.seq++
	id := strconv.FormatUint(a.seq, 10)
	reply := make(chan model.Message, 1)
	a.pending[id] = pendingRequest{ch: ch, reply: reply}
	a.mu.Unlock()

	msg.RequestID = id
	if err := ch.Send(msg); err != nil {
		a.dropPending(id)
		return model.Message{}, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	select {
	case resp, ok := <-reply:
		if !ok {
			return model.Message{}, fmt.Errorf("%w: disconnected before %s was answered", ErrConnection, msg.Event)
		}
		if resp.Event == model.EventError {
			return model.Message{}, model.ErrorFromCode(resp.Code, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		a.dropPending(id)
		return model.Message{}, ctx.Err()
	}
}

func (a *Agent) dropPending(id string) {
	a.mu.Lock()
	delete(a.pending, id)
	a.mu.Unlock()
}

// takePending removes and returns the waiter for id, if any.
func (a *Agent) takePending(id string) (chan model.Message, bool) {
	if id == "" {
		return nil, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pending[id]
	delete(a.pending, id)
	return p.reply, ok
}

// SendUpdate pushes a boardUpdate and returns without waiting for the
// server. The caller has already applied the change locally; until the
// server answers, remote values for the fields in state are not applied
// over it.
func (a *Agent) SendUpdate(boardID, uuid string, state model.Patch, typ model.BoxType) error {
	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	a.mu.Lock()
	ch, msg, err := a.trackLocked(model.BoardUpdate{BoardID: boardID, UUID: uuid, State: state, Type: typ})
	a.mu.Unlock()
	if err != nil {
		return err
	}
	return a.transmit(ch, msg)
}

// trackLocked tags u with a request id and holds its fields. Callers hold
// sendMu and mu, and call transmit after releasing mu.
func (a *Agent) trackLocked(u model.BoardUpdate) (channel.Channel, model.Message, error) {
	if a.ch == nil {
		return nil, model.Message{}, fmt.Errorf("%w: not connected", ErrConnection)
	}
	a.seq++
	msg := u.Message()
	msg.RequestID = "u" + strconv.FormatUint(a.seq, 10)

	fields := u.State.Fields()
	a.inflight[msg.RequestID] = inflightUpdate{ch: a.ch, box: u.UUID, fields: fields}
	a.holdLocked(u.UUID, fields, 1)
	return a.ch, msg, nil
}

func (a *Agent) transmit(ch channel.Channel, msg model.Message) error {
	if err := ch.Send(msg); err != nil {
		a.mu.Lock()
		a.settleLocked(msg.RequestID)
		a.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return nil
}

func (a *Agent) holdLocked(box string, fields model.Field, delta int) {
	counts := a.held[box]
	if counts == nil {
		if delta < 0 {
			return
		}
		counts = make(map[model.Field]int)
		a.held[box] = counts
	}
	fields.Each(func(f model.Field) {
		if n := counts[f] + delta; n > 0 {
			counts[f] = n
		} else {
			delete(counts, f)
		}
	})
	if len(counts) == 0 {
		delete(a.held, box)
	}
}

// heldLocked returns the fields of box with local edits still in flight.
func (a *Agent) heldLocked(box string) model.Field {
	var f model.Field
	for field := range a.held[box] {
		f |= field
	}
	return f
}

// settleLocked forgets an in-flight update once the server answered it or
// it can no longer be answered.
func (a *Agent) settleLocked(requestID string) bool {
	u, ok := a.inflight[requestID]
	if !ok {
		return false
	}
	delete(a.inflight, requestID)
	a.holdLocked(u.box, u.fields, -1)
	return true
}

func (a *Agent) settle(requestID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settleLocked(requestID)
}

func (a *Agent) send(msg model.Message) error {
	a.mu.Lock()
	ch := a.ch
	a.mu.Unlock()

	if ch == nil {
		return fmt.Errorf("%w: not connected", ErrConnection)
	}
	if err := ch.Send(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return nil
}

func (a *Agent) readLoop(ch channel.Channel) {
	for {
		msg, err := ch.Receive()
		if err != nil {
			a.disconnected(ch, err)
			return
		}
		a.handle(msg)
	}
}

// disconnected fails every request and update sent on ch. Work sent on a
// channel attached later is left alone.
func (a *Agent) disconnected(ch channel.Channel, err error) {
	a.mu.Lock()
	current := a.ch == ch
	if current {
		a.ch = nil
	}
	for id, p := range a.pending {
		if p.ch == ch {
			close(p.reply)
			delete(a.pending, id)
		}
	}
	for id, u := range a.inflight {
		if u.ch == ch {
			a.settleLocked(id)
		}
	}
	a.mu.Unlock()

	if current {
		log.Printf("[Agent] ❌ Disconnected: %v", err)
		a.emitError(fmt.Errorf("%w: %v", ErrConnection, err))
	}
}

func (a *Agent) handle(msg model.Message) {
	switch msg.Event {
	case model.EventBoardData:
		if msg.Board != nil {
			a.install(*msg.Board)
		}
		a.deliver(msg)
	case model.EventBoardList:
		a.deliver(msg)
	case model.EventError:
		if a.settle(msg.RequestID) || !a.deliver(msg) {
			err := model.ErrorFromCode(msg.Code, msg.Error)
			log.Printf("[Agent] ❌ Server rejected update: %v", err)
			a.emitError(err)
		}
	case model.EventUpdateApplied:
		a.settle(msg.RequestID)
	case model.EventBoardUpdate, model.EventBoxCreated:
		u, err := model.DecodeUpdate(msg)
		if err != nil {
			log.Printf("[Agent] ⚠️  Dropping malformed %s: %v", msg.Event, err)
			return
		}
		if msg.Event == model.EventBoxCreated {
			a.settle(msg.RequestID)
		}
		if u, ok := a.applyRemote(u); ok {
			for _, fn := range a.updateHandlers.snapshot() {
				fn(u)
			}
		}
	case model.EventBoxDeleted:
		if a.applyRemoteDelete(msg.BoardID, msg.UUID) {
			for _, fn := range a.deleteHandlers.snapshot() {
				fn(msg.BoardID, msg.UUID)
			}
		}
	default:
		log.Printf("[Agent] ⚠️  Ignoring unknown event %q", msg.Event)
	}
}

// deliver hands a response to the request waiting for it.
func (a *Agent) deliver(msg model.Message) bool {
	reply, ok := a.takePending(msg.RequestID)
	if !ok {
		return false
	}
	reply <- msg
	return true
}
