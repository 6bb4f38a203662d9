package client

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"boardsync/internal/model"
)

// Position of a new box in board-space, before the caller's pan offset.
const (
	newBoxX = 50
	newBoxY = 50
)

// fullState is what a notification for a box new to this agent carries.
const fullState = model.AllFields &^ model.FieldAspectRatio

// install replaces the local view with a board snapshot. It runs on the
// read goroutine so later notifications are applied on top of it.
func (a *Agent) install(b model.Board) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.boardID = b.ID
	a.boxes = make(map[string]model.Box, len(b.Boxes))
	a.nextZ = max(b.NextZ, 1)
	for id, box := range b.Boxes {
		a.boxes[id] = box.Clone()
		a.raiseZLocked(box.State.Z)
	}
}

func (a *Agent) raiseZLocked(z int) {
	if z >= a.nextZ {
		a.nextZ = z + 1
	}
}

// ApplyRemoteUpdate merges an authoritative update into the local view. The
// server sends stored values, so applying the same update again leaves the
// view unchanged. Updates for a board other than the bound one are ignored
// and reported as not applied, as are partial updates for a box the agent
// does not have (e.g. one it deleted itself).
func (a *Agent) ApplyRemoteUpdate(u model.BoardUpdate) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.applyLocked(u)
}

// applyRemote is ApplyRemoteUpdate for notifications off the wire. Fields
// this agent has edited and not yet seen answered keep their local value;
// the server applies those edits after u, so the local value is the one
// that wins there too. It returns u minus those fields.
func (a *Agent) applyRemote(u model.BoardUpdate) (model.BoardUpdate, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if held := a.heldLocked(u.UUID); held != 0 {
		sent := u.State.Fields()
		u.State = u.State.Without(held)
		if _, known := a.boxes[u.UUID]; known && sent != 0 && u.State.Fields() == 0 {
			return u, false
		}
	}
	return u, a.applyLocked(u)
}

func (a *Agent) applyLocked(u model.BoardUpdate) bool {
	if a.boardID == "" || u.BoardID != a.boardID {
		return false
	}

	cur, ok := a.boxes[u.UUID]
	if !ok {
		if u.State.Fields()&fullState != fullState {
			return false
		}
		cur = model.Box{UUID: u.UUID, Type: u.Type}
	}
	next := cur.Merge(u.State)
	a.boxes[u.UUID] = next
	a.raiseZLocked(next.State.Z)
	return true
}

func (a *Agent) applyRemoteDelete(boardID, id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if boardID != a.boardID {
		return false
	}
	delete(a.boxes, id)
	return true
}

// GenerateBox creates a box at the default position and returns its UUID.
func (a *Agent) GenerateBox(typ model.BoxType) (string, error) {
	return a.GenerateBoxAt(typ, newBoxX, newBoxY)
}

// GenerateBoxAt creates a box at board-space (x, y). The UUID is chosen
// here; the z shown locally is provisional until the server confirms it.
func (a *Agent) GenerateBoxAt(typ model.BoxType, x, y int) (string, error) {
	id := uuid.NewString()

	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	a.mu.Lock()
	boardID := a.boardID
	if boardID == "" {
		a.mu.Unlock()
		return "", fmt.Errorf("%w: request board data first", model.ErrNotBound)
	}
	box, err := model.NewBox(id, typ, model.Patch{X: &x, Y: &y}, a.limits)
	if err != nil {
		a.mu.Unlock()
		return "", err
	}
	box.State.Z = a.nextZ
	a.nextZ++
	a.boxes[id] = box
	ch, msg, err := a.trackLocked(model.BoardUpdate{BoardID: boardID, UUID: id, State: box.State.Patch(), Type: typ})
	a.mu.Unlock()
	if err != nil {
		return id, err
	}

	return id, a.transmit(ch, msg)
}

// UpdateBoardState applies p to the local box at once and sends only p to
// the server, so fields edited concurrently elsewhere are not overwritten.
func (a *Agent) UpdateBoardState(id string, p model.Patch) error {
	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	a.mu.Lock()
	cur, ok := a.boxes[id]
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", model.ErrBoxNotFound, id)
	}
	next, err := cur.Apply(p, a.limits)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	a.boxes[id] = next
	a.raiseZLocked(next.State.Z)
	ch, msg, err := a.trackLocked(model.BoardUpdate{BoardID: a.boardID, UUID: id, State: p, Type: cur.Type})
	a.mu.Unlock()
	if err != nil {
		return err
	}

	return a.transmit(ch, msg)
}

// BringToFront raises a box above every box the agent knows of.
func (a *Agent) BringToFront(id string) error {
	a.mu.Lock()
	z := a.nextZ
	a.mu.Unlock()
	return a.UpdateBoardState(id, model.Patch{Z: &z})
}

// DeleteBox removes a box locally and asks the server to delete it.
func (a *Agent) DeleteBox(id string) error {
	a.mu.Lock()
	if _, ok := a.boxes[id]; !ok {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", model.ErrBoxNotFound, id)
	}
	delete(a.boxes, id)
	boardID := a.boardID
	a.mu.Unlock()

	return a.send(model.Message{Event: model.EventBoxDelete, BoardID: boardID, UUID: id})
}

// BoardID returns the board the agent is bound to, or "".
func (a *Agent) BoardID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.boardID
}

// Box returns the local copy of a box.
func (a *Agent) Box(id string) (model.Box, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.boxes[id]
	return b.Clone(), ok
}

// Boxes returns every local box, bottom of the stack first.
func (a *Agent) Boxes() []model.Box {
	a.mu.Lock()
	out := make([]model.Box, 0, len(a.boxes))
	for _, b := range a.boxes {
		out = append(out, b.Clone())
	}
	a.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].State.Z != out[j].State.Z {
			return out[i].State.Z < out[j].State.Z
		}
		return out[i].UUID < out[j].UUID
	})
	return out
}
