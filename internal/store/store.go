// Package store holds the authoritative in-memory state of every board.
//
// Each board has its own lock. Mutations on one board are serialised through
// it; different boards never contend. No I/O happens while a board lock is
// held.
package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"boardsync/internal/model"
)

type boardEntry struct {
	mu    sync.Mutex
	board model.Board
}

// Store maps board ids to boards.
type Store struct {
	mu     sync.RWMutex
	boards map[string]*boardEntry
	limits model.Limits
}

// New creates an empty Store that enforces lim on every box.
func New(lim model.Limits) *Store {
	return &Store{
		boards: make(map[string]*boardEntry),
		limits: lim,
	}
}

// Limits returns the box limits the store enforces.
func (s *Store) Limits() model.Limits {
	return s.limits
}

func (s *Store) entry(boardID string) (*boardEntry, error) {
	s.mu.RLock()
	e, ok := s.boards[boardID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrBoardNotFound, boardID)
	}
	return e, nil
}

// HasBoard reports whether a board exists.
func (s *Store) HasBoard(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.boards[id]
	return ok
}

// CreateBoard adds an empty board.
func (s *Store) CreateBoard(id, name string) (model.Board, error) {
	if id == "" {
		return model.Board{}, fmt.Errorf("%w: board id is required", model.ErrInvalidField)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.boards[id]; exists {
		return model.Board{}, fmt.Errorf("%w: %s", model.ErrDuplicateBoard, id)
	}

	b := model.NewBoard(id, name)
	s.boards[id] = &boardEntry{board: b}
	return b.Clone(), nil
}

// GetBoard returns a snapshot of the board. The snapshot shares no memory
// with the store.
func (s *Store) GetBoard(id string) (model.Board, error) {
	e, err := s.entry(id)
	if err != nil {
		return model.Board{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.board.Clone(), nil
}

// ListBoards returns every board ordered by name, then id.
func (s *Store) ListBoards() []model.BoardSummary {
	s.mu.RLock()
	entries := make([]*boardEntry, 0, len(s.boards))
	for _, e := range s.boards {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	list := make([]model.BoardSummary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		list = append(list, e.board.Summary())
		e.mu.Unlock()
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// CreateBox adds a box with a fresh UUID. Its z is the board's next z.
func (s *Store) CreateBox(boardID string, typ model.BoxType, initial model.Patch) (model.Box, error) {
	e, err := s.entry(boardID)
	if err != nil {
		return model.Box{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return s.insertLocked(e, uuid.NewString(), typ, initial)
}

// UpdateBox merges p into the stored box. The merge always runs against the
// latest stored state.
func (s *Store) UpdateBox(boardID, boxID string, p model.Patch) (model.Box, error) {
	e, err := s.entry(boardID)
	if err != nil {
		return model.Box{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cur, ok := e.board.Boxes[boxID]
	if !ok {
		return model.Box{}, fmt.Errorf("%w: %s on board %s", model.ErrBoxNotFound, boxID, boardID)
	}
	return s.updateLocked(e, cur, p)
}

// ApplyUpdate creates the box if boxID has not been seen on the board,
// otherwise merges p into it. The client chooses the UUID; the store
// chooses z for new boxes.
func (s *Store) ApplyUpdate(boardID, boxID string, typ model.BoxType, p model.Patch) (model.Box, bool, error) {
	e, err := s.entry(boardID)
	if err != nil {
		return model.Box{}, false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cur, ok := e.board.Boxes[boxID]
	if !ok {
		if _, err := uuid.Parse(boxID); err != nil {
			return model.Box{}, false, fmt.Errorf("%w: box uuid %q: %v", model.ErrInvalidField, boxID, err)
		}
		box, err := s.insertLocked(e, boxID, typ, p)
		return box, err == nil, err
	}

	if typ != "" && typ != cur.Type {
		return model.Box{}, false, fmt.Errorf("%w: type of box %s is %s, cannot change to %s",
			model.ErrInvalidField, boxID, cur.Type, typ)
	}
	box, err := s.updateLocked(e, cur, p)
	return box, false, err
}

// DeleteBox removes a box from the board.
func (s *Store) DeleteBox(boardID, boxID string) error {
	e, err := s.entry(boardID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.board.Boxes[boxID]; !ok {
		return fmt.Errorf("%w: %s on board %s", model.ErrBoxNotFound, boxID, boardID)
	}
	delete(e.board.Boxes, boxID)
	return nil
}

func (s *Store) insertLocked(e *boardEntry, id string, typ model.BoxType, initial model.Patch) (model.Box, error) {
	box, err := model.NewBox(id, typ, initial, s.limits)
	if err != nil {
		return model.Box{}, err
	}
	box.State.Z = e.board.NextZ
	e.board.NextZ++
	e.board.Boxes[id] = box
	return box.Clone(), nil
}

func (s *Store) updateLocked(e *boardEntry, cur model.Box, p model.Patch) (model.Box, error) {
	next, err := cur.Apply(p, s.limits)
	if err != nil {
		return model.Box{}, err
	}
	if next.State.Z >= e.board.NextZ {
		e.board.NextZ = next.State.Z + 1
	}
	e.board.Boxes[next.UUID] = next
	return next.Clone(), nil
}
