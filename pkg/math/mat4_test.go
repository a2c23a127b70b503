package math

import (
	"testing"
)

func TestTranslate(t *testing.T) {
	m := Translate(5, 10, 15)

	// Translation should be in column 4 (indices 12, 13, 14)
	if m[12] != 5 || m[13] != 10 || m[14] != 15 {
		t.Errorf("Translate: got (%f, %f, %f), want (5, 10, 15)", m[12], m[13], m[14])
	}
}

func TestScale(t *testing.T) {
	m := Scale(2, 3, 4)

	if m[0] != 2 || m[5] != 3 || m[10] != 4 {
		t.Errorf("Scale diagonal: got (%f, %f, %f), want (2, 3, 4)", m[0], m[5], m[10])
	}
}

func TestTransformPoint(t *testing.T) {
	// Translate by (10, 20, 30)
	m := Translate(10, 20, 30)
	p := [3]float32{1, 2, 3}
	result := m.TransformPoint(p)

	expected := [3]float32{11, 22, 33}
	if result != expected {
		t.Errorf("TransformPoint: got %v, want %v", result, expected)
	}
}

func TestTransformPointScale(t *testing.T) {
	m := Scale(2, 2, 2)
	p := [3]float32{1, 2, 3}
	result := m.TransformPoint(p)

	expected := [3]float32{2, 4, 6}
	if result != expected {
		t.Errorf("TransformPoint with scale: got %v, want %v", result, expected)
	}
}

func TestTransformPointProjective(t *testing.T) {
	m := FromRows([4][4]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 2},
	})
	if got := m.TransformPoint([3]float32{2, 4, 6}); got != [3]float32{1, 2, 3} {
		t.Errorf("TransformPoint should divide by w, got %v", got)
	}
}

func TestFromRows(t *testing.T) {
	rows := [4][4]float32{
		{1, 0, 0, 10},
		{0, 1, 0, 20},
		{0, 0, 1, 30},
		{0, 0, 0, 1},
	}
	if m := FromRows(rows); m != Translate(10, 20, 30) {
		t.Errorf("FromRows translation: got %v", m)
	}

	// Translate then scale, written out row-major.
	ts := FromRows([4][4]float32{
		{2, 0, 0, 1},
		{0, 2, 0, 0},
		{0, 0, 2, 0},
		{0, 0, 0, 1},
	})
	if got := ts.TransformVec3(Vec3{1, 1, 1}); got != (Vec3{3, 2, 2}) {
		t.Errorf("TransformVec3: got %v, want (3, 2, 2)", got)
	}
}
