package model

import "math/bits"

// Field is a set of State members, one bit each.
type Field uint8

const (
	FieldX Field = 1 << iota
	FieldY
	FieldW
	FieldH
	FieldZ
	FieldColor
	FieldText
	FieldAspectRatio

	AllFields = FieldX | FieldY | FieldW | FieldH | FieldZ | FieldColor | FieldText | FieldAspectRatio
)

// Each calls fn once per member of f, lowest bit first.
func (f Field) Each(fn func(Field)) {
	for f != 0 {
		bit := Field(1) << bits.TrailingZeros8(uint8(f))
		fn(bit)
		f &^= bit
	}
}

// Fields reports which members p sets.
func (p Patch) Fields() Field {
	var f Field
	if p.X != nil {
		f |= FieldX
	}
	if p.Y != nil {
		f |= FieldY
	}
	if p.W != nil {
		f |= FieldW
	}
	if p.H != nil {
		f |= FieldH
	}
	if p.Z != nil {
		f |= FieldZ
	}
	if p.Color != nil {
		f |= FieldColor
	}
	if p.Text != nil {
		f |= FieldText
	}
	if p.AspectRatio != nil {
		f |= FieldAspectRatio
	}
	return f
}

// Without returns p with the members in f cleared.
func (p Patch) Without(f Field) Patch {
	if f&FieldX != 0 {
		p.X = nil
	}
	if f&FieldY != 0 {
		p.Y = nil
	}
	if f&FieldW != 0 {
		p.W = nil
	}
	if f&FieldH != 0 {
		p.H = nil
	}
	if f&FieldZ != 0 {
		p.Z = nil
	}
	if f&FieldColor != 0 {
		p.Color = nil
	}
	if f&FieldText != 0 {
		p.Text = nil
	}
	if f&FieldAspectRatio != 0 {
		p.AspectRatio = nil
	}
	return p
}

// Project returns a patch carrying the members of s named by f. An unset
// aspectRatio stays absent.
func (s State) Project(f Field) Patch {
	return s.Patch().Without(AllFields &^ f)
}
