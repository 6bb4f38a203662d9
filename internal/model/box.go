package model

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// BoxType is the kind of content a box holds. It never changes after creation.
type BoxType string

const (
	TypeText  BoxType = "text"
	TypeImage BoxType = "image"
)

// Valid reports whether t is a known box type.
func (t BoxType) Valid() bool {
	return t == TypeText || t == TypeImage
}

// State is the authoritative geometry and content of a box. Coordinates are
// board-space, never viewport-space.
type State struct {
	X           int      `json:"x"`
	Y           int      `json:"y"`
	W           int      `json:"w"`
	H           int      `json:"h"`
	Z           int      `json:"z"`
	Color       string   `json:"color"`
	Text        string   `json:"text"`
	AspectRatio *float64 `json:"aspectRatio,omitempty"`
}

// Box is one positioned, resizable element on a board.
type Box struct {
	UUID  string  `json:"uuid"`
	Type  BoxType `json:"type"`
	State State   `json:"state"`
}

// Patch is a partial State. Nil fields are left untouched by Apply.
type Patch struct {
	X           *int     `json:"x,omitempty"`
	Y           *int     `json:"y,omitempty"`
	W           *int     `json:"w,omitempty"`
	H           *int     `json:"h,omitempty"`
	Z           *int     `json:"z,omitempty"`
	Color       *string  `json:"color,omitempty"`
	Text        *string  `json:"text,omitempty"`
	AspectRatio *float64 `json:"aspectRatio,omitempty"`
}

// MaxZ is the largest z a client may set. Larger values would let the
// board's next z overflow.
const MaxZ = math.MaxInt32

// Limits bounds box dimensions.
type Limits struct {
	MinWidth      int
	MinHeight     int
	DefaultWidth  int
	DefaultHeight int
}

// DefaultLimits matches a 200x200 box with 20px padding on each side.
func DefaultLimits() Limits {
	return Limits{
		MinWidth:      160,
		MinHeight:     160,
		DefaultWidth:  200,
		DefaultHeight: 200,
	}
}

var patchFields = map[string]bool{
	"x": true, "y": true, "w": true, "h": true, "z": true,
	"color": true, "text": true, "aspectRatio": true,
}

var immutableFields = map[string]bool{"id": true, "uuid": true, "type": true}

// DecodePatch parses the "state" object of an update message. Unknown keys
// and attempts to change id or type fail with ErrInvalidField.
func DecodePatch(raw json.RawMessage) (Patch, error) {
	var p Patch
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return p, nil
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return p, invalidField("state must be an object: %v", err)
	}

	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if immutableFields[k] {
			return p, invalidField("%s cannot be changed after creation", k)
		}
		if !patchFields[k] {
			return p, invalidField("unknown field %q", k)
		}
	}

	if err := json.Unmarshal(raw, &p); err != nil {
		return Patch{}, invalidField("%v", err)
	}
	return p, nil
}

// Encode returns the JSON form of p for the "state" field of a message.
func (p Patch) Encode() json.RawMessage {
	raw, _ := json.Marshal(p)
	return raw
}

// Patch returns a patch that sets every field of s.
func (s State) Patch() Patch {
	p := Patch{
		X:     intPtr(s.X),
		Y:     intPtr(s.Y),
		W:     intPtr(s.W),
		H:     intPtr(s.H),
		Z:     intPtr(s.Z),
		Color: strPtr(s.Color),
		Text:  strPtr(s.Text),
	}
	if s.AspectRatio != nil {
		ar := *s.AspectRatio
		p.AspectRatio = &ar
	}
	return p
}

func (s State) clone() State {
	out := s
	if s.AspectRatio != nil {
		ar := *s.AspectRatio
		out.AspectRatio = &ar
	}
	return out
}

// Clone returns a deep copy of b.
func (b Box) Clone() Box {
	b.State = b.State.clone()
	return b
}

// NewBox builds a box with default size and a random colour, then applies
// initial on top.
func NewBox(id string, typ BoxType, initial Patch, lim Limits) (Box, error) {
	if !typ.Valid() {
		return Box{}, invalidField("unknown box type %q", typ)
	}
	b := Box{
		UUID: id,
		Type: typ,
		State: State{
			W:     lim.DefaultWidth,
			H:     lim.DefaultHeight,
			Color: RandomColor(),
		},
	}
	return b.Apply(initial, lim)
}

// Apply validates p and merges it into a copy of b field by field. Either
// every field in p is applied or, on error, b is returned unchanged.
func (b Box) Apply(p Patch, lim Limits) (Box, error) {
	if p.Z != nil && (*p.Z < 0 || *p.Z > MaxZ) {
		return b, invalidField("z must be between 0 and %d", MaxZ)
	}
	if p.Color != nil {
		c, err := NormalizeColor(*p.Color)
		if err != nil {
			return b, err
		}
		p.Color = &c
	}
	if p.Text != nil && *p.Text != "" && b.Type != TypeText {
		return b, invalidField("text is only valid on text boxes")
	}
	if p.AspectRatio != nil {
		ar := *p.AspectRatio
		switch {
		case b.Type != TypeImage:
			return b, invalidField("aspectRatio is only valid on image boxes")
		case ar <= 0 || math.IsInf(ar, 0) || math.IsNaN(ar):
			return b, invalidField("aspectRatio must be positive")
		case b.State.AspectRatio != nil && *b.State.AspectRatio != ar:
			return b, invalidField("aspectRatio is already set")
		}
	}

	next := b.Merge(p)
	next.State.W = max(next.State.W, lim.MinWidth)
	next.State.H = max(next.State.H, lim.MinHeight)
	return next, nil
}

// Merge copies every present field of p onto a copy of b without
// validation. It is used for state that is already authoritative.
func (b Box) Merge(p Patch) Box {
	next := b.Clone()
	if p.X != nil {
		next.State.X = *p.X
	}
	if p.Y != nil {
		next.State.Y = *p.Y
	}
	if p.W != nil {
		next.State.W = *p.W
	}
	if p.H != nil {
		next.State.H = *p.H
	}
	if p.Z != nil {
		next.State.Z = *p.Z
	}
	if p.Color != nil {
		next.State.Color = *p.Color
	}
	if p.Text != nil {
		next.State.Text = *p.Text
	}
	if p.AspectRatio != nil {
		ar := *p.AspectRatio
		next.State.AspectRatio = &ar
	}
	return next
}

// NormalizeColor validates an RGB colour and returns it as #rrggbb.
func NormalizeColor(s string) (string, error) {
	c, err := colorful.Hex(s)
	if err != nil {
		return "", invalidField("color %q is not an RGB hex value", s)
	}
	return c.Hex(), nil
}

// RandomColor returns a bright, saturated colour for a new box.
func RandomColor() string {
	return colorful.FastHappyColor().Hex()
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
