package tensor

import (
	"testing"
)

// RawTensor Tests

func TestRawTensorAsInt32(t *testing.T) {
	raw, _ := NewRaw(Shape{3, 2}, Int32, CPU)
	data := raw.AsInt32()

	if len(data) != 6 {
		t.Errorf("AsInt32 length = %d, want 6", len(data))
	}

	// Modify and verify zero-copy
	data[0] = 42
	if raw.AsInt32()[0] != 42 {
		t.Error("AsInt32 should return zero-copy slice")
	}
}

func TestNewRawRejectsInvalidShape(t *testing.T) {
	if _, err := NewRaw(Shape{2, 0}, Float32, CPU); err == nil {
		t.Error("expected error for zero dimension")
	}
}

func TestFromFloat32LengthMismatch(t *testing.T) {
	if _, err := FromFloat32([]float32{1, 2, 3}, Shape{2, 2}, CPU); err == nil {
		t.Error("expected error for element count mismatch")
	}
}

// View Tests

func TestViewAliasesParent(t *testing.T) {
	flat := Zeros(Shape{10}, CPU)
	view, err := flat.View(4, Shape{2, 3})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}

	view.AsFloat32()[0] = 1.5
	if got := flat.AsFloat32()[4]; got != 1.5 {
		t.Errorf("write through view not visible in parent: got %v", got)
	}

	flat.AsFloat32()[9] = -2
	if got := view.AsFloat32()[5]; got != -2 {
		t.Errorf("write through parent not visible in view: got %v", got)
	}

	if !view.SharesStorage(flat) {
		t.Error("view should share storage with parent")
	}
	if len(view.Data()) != 6*4 {
		t.Errorf("view Data length = %d, want 24", len(view.Data()))
	}
}

func TestViewOutOfRange(t *testing.T) {
	flat := Zeros(Shape{4}, CPU)
	if _, err := flat.View(2, Shape{3}); err == nil {
		t.Error("expected out of range error")
	}
	if _, err := flat.View(-1, Shape{1}); err == nil {
		t.Error("expected error for negative start")
	}
}

func TestViewOfView(t *testing.T) {
	flat := Zeros(Shape{8}, CPU)
	outer, _ := flat.View(2, Shape{6})
	inner, _ := outer.View(3, Shape{2})

	inner.AsFloat32()[1] = 7
	if got := flat.AsFloat32()[6]; got != 7 {
		t.Errorf("nested view offset wrong: flat[6] = %v", got)
	}
}

func TestStorageKey(t *testing.T) {
	flat := Zeros(Shape{8}, CPU)
	a, _ := flat.View(0, Shape{4})
	b, _ := flat.View(0, Shape{2, 2})
	c, _ := flat.View(4, Shape{4})

	if a.StorageKey() != b.StorageKey() {
		t.Error("identical windows should have equal keys")
	}
	if a.StorageKey() == c.StorageKey() {
		t.Error("disjoint windows should have different keys")
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig, _ := FromFloat32([]float32{1, 2, 3}, Shape{3}, CPU)
	clone := orig.Clone()

	clone.AsFloat32()[0] = 100
	if orig.AsFloat32()[0] != 1 {
		t.Error("Clone should not share storage")
	}
	if clone.SharesStorage(orig) {
		t.Error("Clone reported shared storage")
	}
}

func TestReshapeAndFill(t *testing.T) {
	raw := Zeros(Shape{2, 3}, CPU)
	flat, err := raw.Reshape(Shape{6})
	if err != nil {
		t.Fatalf("Reshape failed: %v", err)
	}
	flat.Fill(3)
	for i, v := range raw.AsFloat32() {
		if v != 3 {
			t.Errorf("element %d = %v, want 3", i, v)
		}
	}

	raw.Zero()
	if flat.AsFloat32()[5] != 0 {
		t.Error("Zero should clear shared storage")
	}

	if _, err := raw.Reshape(Shape{4}); err == nil {
		t.Error("expected reshape error for mismatched size")
	}
}
