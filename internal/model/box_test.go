package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func newTextBox(t *testing.T) Box {
	t.Helper()
	b, err := NewBox("u1", TypeText, Patch{X: intPtr(50), Y: intPtr(50)}, DefaultLimits())
	if err != nil {
		t.Fatalf("NewBox failed: %v", err)
	}
	return b
}

// TestApply_PartialMerge 部分更新は指定されたフィールドのみを変更する
func TestApply_PartialMerge(t *testing.T) {
	lim := DefaultLimits()
	b := newTextBox(t)

	b, err := b.Apply(Patch{Text: strPtr("hi")}, lim)
	if err != nil {
		t.Fatalf("Apply text failed: %v", err)
	}
	b, err = b.Apply(Patch{X: intPtr(10)}, lim)
	if err != nil {
		t.Fatalf("Apply x failed: %v", err)
	}

	if b.State.Text != "hi" {
		t.Errorf("Expected text 'hi', got %q", b.State.Text)
	}
	if b.State.X != 10 {
		t.Errorf("Expected x 10, got %d", b.State.X)
	}
	if b.State.Y != 50 || b.State.W != 200 || b.State.H != 200 {
		t.Errorf("Untouched fields changed: %+v", b.State)
	}
}

func TestApply_DoesNotMutateReceiver(t *testing.T) {
	b := newTextBox(t)
	_, err := b.Apply(Patch{X: intPtr(999)}, DefaultLimits())
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if b.State.X != 50 {
		t.Errorf("Receiver was mutated: x=%d", b.State.X)
	}
}

// TestApply_ClampsToMinimum 最小サイズ未満は最小値に切り上げ
func TestApply_ClampsToMinimum(t *testing.T) {
	lim := DefaultLimits()
	b := newTextBox(t)

	b, err := b.Apply(Patch{W: intPtr(10), H: intPtr(-5)}, lim)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if b.State.W != lim.MinWidth || b.State.H != lim.MinHeight {
		t.Errorf("Expected %dx%d, got %dx%d", lim.MinWidth, lim.MinHeight, b.State.W, b.State.H)
	}
}

func TestApply_AllOrNothing(t *testing.T) {
	b := newTextBox(t)
	got, err := b.Apply(Patch{X: intPtr(1), Color: strPtr("not-a-colour")}, DefaultLimits())
	if !errors.Is(err, ErrInvalidField) {
		t.Fatalf("Expected ErrInvalidField, got %v", err)
	}
	if got.State.X != 50 {
		t.Errorf("Partial application on error: x=%d", got.State.X)
	}
}

func TestApply_NormalizesColor(t *testing.T) {
	b := newTextBox(t)
	b, err := b.Apply(Patch{Color: strPtr("#F00")}, DefaultLimits())
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if b.State.Color != "#ff0000" {
		t.Errorf("Expected #ff0000, got %q", b.State.Color)
	}
}

func TestApply_TextOnImageRejected(t *testing.T) {
	b, err := NewBox("u2", TypeImage, Patch{}, DefaultLimits())
	if err != nil {
		t.Fatalf("NewBox failed: %v", err)
	}
	if _, err := b.Apply(Patch{Text: strPtr("caption")}, DefaultLimits()); !errors.Is(err, ErrInvalidField) {
		t.Errorf("Expected ErrInvalidField, got %v", err)
	}
}

// TestApply_AspectRatioSetOnce アスペクト比は画像ボックスに一度だけ設定できる
func TestApply_AspectRatioSetOnce(t *testing.T) {
	lim := DefaultLimits()
	img, err := NewBox("u3", TypeImage, Patch{}, lim)
	if err != nil {
		t.Fatalf("NewBox failed: %v", err)
	}

	ar := 1.5
	img, err = img.Apply(Patch{AspectRatio: &ar}, lim)
	if err != nil {
		t.Fatalf("first aspectRatio failed: %v", err)
	}

	same := 1.5
	if _, err := img.Apply(Patch{AspectRatio: &same}, lim); err != nil {
		t.Errorf("re-sending the same aspectRatio should succeed: %v", err)
	}

	other := 2.0
	if _, err := img.Apply(Patch{AspectRatio: &other}, lim); !errors.Is(err, ErrInvalidField) {
		t.Errorf("Expected ErrInvalidField for a second aspectRatio, got %v", err)
	}

	txt := newTextBox(t)
	if _, err := txt.Apply(Patch{AspectRatio: &ar}, lim); !errors.Is(err, ErrInvalidField) {
		t.Errorf("Expected ErrInvalidField on text box, got %v", err)
	}
}

func TestNewBox_UnknownType(t *testing.T) {
	if _, err := NewBox("u4", BoxType("video"), Patch{}, DefaultLimits()); !errors.Is(err, ErrInvalidField) {
		t.Errorf("Expected ErrInvalidField, got %v", err)
	}
}

func TestDecodePatch(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"empty", ``, false},
		{"null", `null`, false},
		{"geometry", `{"x":1,"y":2,"w":300,"h":300}`, false},
		{"type change", `{"type":"image"}`, true},
		{"id change", `{"uuid":"other"}`, true},
		{"unknown field", `{"rotation":90}`, true},
		{"wrong type", `{"x":"left"}`, true},
		{"not an object", `[1,2]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePatch(json.RawMessage(tt.raw))
			if tt.wantErr && !errors.Is(err, ErrInvalidField) {
				t.Errorf("Expected ErrInvalidField, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestDecodePatch_OnlyPresentFields(t *testing.T) {
	p, err := DecodePatch(json.RawMessage(`{"text":"hello"}`))
	if err != nil {
		t.Fatalf("DecodePatch failed: %v", err)
	}
	if p.Text == nil || *p.Text != "hello" {
		t.Errorf("Expected text 'hello', got %v", p.Text)
	}
	if p.X != nil || p.W != nil || p.Z != nil || p.Color != nil {
		t.Errorf("Absent fields should stay nil: %+v", p)
	}
}

func TestErrorCodeRoundTrip(t *testing.T) {
	for _, sentinel := range []error{ErrBoardNotFound, ErrBoxNotFound, ErrDuplicateBoard, ErrInvalidField, ErrNotBound} {
		wrapped := invalidFieldOr(sentinel)
		got := ErrorFromCode(ErrorCode(wrapped), wrapped.Error())
		if !errors.Is(got, sentinel) {
			t.Errorf("%v did not survive the wire: got %v", sentinel, got)
		}
		if got.Error() != wrapped.Error() {
			t.Errorf("Expected message %q, got %q", wrapped.Error(), got.Error())
		}
	}
}

func invalidFieldOr(sentinel error) error {
	if sentinel == ErrInvalidField {
		return invalidField("x must be an integer")
	}
	return sentinel
}

// TestApply_ZOutOfRange 範囲外のzは拒否される
func TestApply_ZOutOfRange(t *testing.T) {
	lim := DefaultLimits()
	b := newTextBox(t)

	for _, z := range []int{-1, MaxZ + 1, int(^uint(0) >> 1)} {
		got, err := b.Apply(Patch{Z: intPtr(z)}, lim)
		if !errors.Is(err, ErrInvalidField) {
			t.Errorf("z=%d: expected ErrInvalidField, got %v", z, err)
		}
		if got.State.Z != b.State.Z {
			t.Errorf("z=%d: rejected patch changed z to %d", z, got.State.Z)
		}
	}

	if _, err := b.Apply(Patch{Z: intPtr(MaxZ)}, lim); err != nil {
		t.Errorf("z=MaxZ should be accepted: %v", err)
	}
}

func TestProject_OnlyNamedFields(t *testing.T) {
	b := newTextBox(t)
	b.State.Text = "hi"

	p := b.State.Project(FieldText | FieldW)
	if p.Fields() != FieldText|FieldW {
		t.Fatalf("Expected text and w, got %08b", p.Fields())
	}
	if *p.Text != "hi" || *p.W != 200 {
		t.Errorf("Unexpected values: text=%q w=%d", *p.Text, *p.W)
	}

	if b.State.Project(FieldAspectRatio).AspectRatio != nil {
		t.Error("Unset aspectRatio must stay absent")
	}
	if got := b.State.Project(AllFields).Fields(); got != AllFields&^FieldAspectRatio {
		t.Errorf("Expected every set field, got %08b", got)
	}
}

func TestPatchWithout(t *testing.T) {
	p := Patch{X: intPtr(1), Z: intPtr(2), Text: strPtr("a")}
	q := p.Without(FieldZ | FieldColor)
	if q.Fields() != FieldX|FieldText {
		t.Errorf("Expected x and text, got %08b", q.Fields())
	}
	if p.Z == nil {
		t.Error("Without modified its receiver")
	}

	var seen []Field
	(FieldX | FieldText | FieldZ).Each(func(f Field) { seen = append(seen, f) })
	if len(seen) != 3 || seen[0] != FieldX || seen[1] != FieldZ || seen[2] != FieldText {
		t.Errorf("Unexpected iteration order: %v", seen)
	}
}
