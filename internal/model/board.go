package model

// Board is a named canvas of boxes. NextZ is the stacking order the next
// created box receives.
type Board struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Boxes map[string]Box `json:"boxes"`
	NextZ int            `json:"nextZ"`
}

// BoardSummary is the list form of a board.
type BoardSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NewBoard returns an empty board whose first box gets z = 1.
func NewBoard(id, name string) Board {
	return Board{
		ID:    id,
		Name:  name,
		Boxes: make(map[string]Box),
		NextZ: 1,
	}
}

// Clone returns a deep copy of b.
func (b Board) Clone() Board {
	out := b
	out.Boxes = make(map[string]Box, len(b.Boxes))
	for id, box := range b.Boxes {
		out.Boxes[id] = box.Clone()
	}
	return out
}

// Summary returns the list form of b.
func (b Board) Summary() BoardSummary {
	return BoardSummary{ID: b.ID, Name: b.Name}
}
