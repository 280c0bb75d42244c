package types

import (
	"math"
	"testing"
)

func approx(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-4
}

func approxVec3(a, b Vec3) bool {
	return approx(a[0], b[0]) && approx(a[1], b[1]) && approx(a[2], b[2])
}

func TestLookAtLH(t *testing.T) {
	view := LookAtLH(Vec3{0, 0, -5}, Vec3{}, Vec3{0, 1, 0})

	specs := []struct {
		in  Vec3
		exp Vec3
	}{
		{Vec3{}, Vec3{0, 0, 5}},
		{Vec3{1, 0, 0}, Vec3{1, 0, 5}},
		{Vec3{0, 1, 0}, Vec3{0, 1, 5}},
		{Vec3{0, 0, -5}, Vec3{0, 0, 0}},
	}

	for index, s := range specs {
		if got := TransformPoint(view, s.in); !approxVec3(got, s.exp) {
			t.Fatalf("[spec %d] expected %v; got %v", index, s.exp, got)
		}
	}
}

func TestOrthographicLHDepthRange(t *testing.T) {
	proj := OrthographicLH(4, 2, 1, 9)

	if got := TransformPoint(proj, Vec3{2, 1, 1}); !approxVec3(got, Vec3{1, 1, 0}) {
		t.Fatalf("expected near corner to map to (1, 1, 0); got %v", got)
	}
	if got := TransformPoint(proj, Vec3{-2, -1, 9}); !approxVec3(got, Vec3{-1, -1, 1}) {
		t.Fatalf("expected far corner to map to (-1, -1, 1); got %v", got)
	}
}

func TestPerspectiveFovLHDepthRange(t *testing.T) {
	proj := PerspectiveFovLH(math.Pi/2, 1, 1, 100)

	if got := TransformPoint(proj, Vec3{0, 0, 1}); !approx(got[2], 0) {
		t.Fatalf("expected near plane depth 0; got %v", got[2])
	}
	if got := TransformPoint(proj, Vec3{0, 0, 100}); !approx(got[2], 1) {
		t.Fatalf("expected far plane depth 1; got %v", got[2])
	}
	if got := TransformPoint(proj, Vec3{10, 0, 10}); !approx(got[0], 1) {
		t.Fatalf("expected 45 degree point on the right clip edge; got %v", got[0])
	}
}

func TestScreenMatrix(t *testing.T) {
	m := ScreenMatrix(640, 480)

	specs := []struct {
		in  Vec3
		exp Vec3
	}{
		{Vec3{-1, 1, 0.25}, Vec3{0, 0, 0.25}},
		{Vec3{1, -1, 0.5}, Vec3{640, 480, 0.5}},
		{Vec3{0, 0, 1}, Vec3{320, 240, 1}},
	}
	for index, s := range specs {
		if got := TransformPoint(m, s.in); !approxVec3(got, s.exp) {
			t.Fatalf("[spec %d] expected %v; got %v", index, s.exp, got)
		}
	}
}

func TestRows3x4RoundTrip(t *testing.T) {
	world := Placement{Position: Vec3{1, -2, 3}, Scale: 2.5}.World()
	rows := Rows3x4(world)

	if rows[3] != 1 || rows[7] != -2 || rows[11] != 3 {
		t.Fatalf("expected translation in the last column of each row; got %v", rows)
	}
	if rows[0] != 2.5 || rows[5] != 2.5 || rows[10] != 2.5 {
		t.Fatalf("expected scale on the diagonal; got %v", rows)
	}
	if back := FromRows3x4(rows); back != world {
		t.Fatalf("expected %v; got %v", world, back)
	}
}

func TestBoundFromBBox(t *testing.T) {
	b := BoundFromBBox([2]Vec3{{-1, -1, -1}, {1, 1, 1}})
	if !approxVec3(b.Center, Vec3{}) {
		t.Fatalf("expected center at origin; got %v", b.Center)
	}
	if !approx(b.Radius, float32(math.Sqrt(3))) {
		t.Fatalf("expected radius sqrt(3); got %v", b.Radius)
	}
}

func TestOrbit(t *testing.T) {
	o := Orbit{Target: Vec3{1, 0, 0}, Distance: 4}
	if got := o.Eye(); !approxVec3(got, Vec3{1, 0, -4}) {
		t.Fatalf("expected eye behind the target; got %v", got)
	}
	if got := o.Step(math.Pi / 2).Eye(); !approxVec3(got, Vec3{-3, 0, 0}) {
		t.Fatalf("expected eye rotated around +Y; got %v", got)
	}
}
