package geom

import "math"

// Vec2 is a 2D vector in world units.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns the component-wise sum.
func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{X: v.X + o.X, Y: v.Y + o.Y}
}

// Scale returns the vector multiplied by s.
func (v Vec2) Scale(s float64) Vec2 {
	return Vec2{X: v.X * s, Y: v.Y * s}
}

// Length returns the Euclidean norm.
func (v Vec2) Length() float64 {
	return math.Hypot(v.X, v.Y)
}

// Normalized returns a unit-length copy, or the zero vector unchanged.
func (v Vec2) Normalized() Vec2 {
	length := v.Length()
	if length == 0 {
		return Vec2{}
	}
	return Vec2{X: v.X / length, Y: v.Y / length}
}

// AABB is an axis-aligned bounding box anchored at its min corner.
type AABB struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// FromCenter builds a box from a center point and half extents.
func FromCenter(center Vec2, halfExtent Vec2) AABB {
	return AABB{
		X:      center.X - halfExtent.X,
		Y:      center.Y - halfExtent.Y,
		Width:  halfExtent.X * 2,
		Height: halfExtent.Y * 2,
	}
}

// Center returns the midpoint of the box.
func (a AABB) Center() Vec2 {
	return Vec2{X: a.X + a.Width/2, Y: a.Y + a.Height/2}
}

// MaxX returns the right edge.
func (a AABB) MaxX() float64 { return a.X + a.Width }

// MaxY returns the bottom edge.
func (a AABB) MaxY() float64 { return a.Y + a.Height }

// Overlaps checks for AABB overlap with optional padding.
func (a AABB) Overlaps(b AABB, padding float64) bool {
	return a.X-padding < b.X+b.Width+padding &&
		a.X+a.Width+padding > b.X-padding &&
		a.Y-padding < b.Y+b.Height+padding &&
		a.Y+a.Height+padding > b.Y-padding
}

// Inset shrinks the box symmetrically by dx and dy on each side. The result
// never inverts: extents are floored at zero around the original center.
func (a AABB) Inset(dx, dy float64) AABB {
	width := a.Width - 2*dx
	height := a.Height - 2*dy
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	center := a.Center()
	return AABB{X: center.X - width/2, Y: center.Y - height/2, Width: width, Height: height}
}

// Penetration reports the minimum translation that moves a out of b, choosing
// the axis of least overlap. Returns the zero vector when the boxes do not
// overlap.
func Penetration(a, b AABB) Vec2 {
	if !a.Overlaps(b, 0) {
		return Vec2{}
	}
	overlapX := math.Min(a.MaxX(), b.MaxX()) - math.Max(a.X, b.X)
	overlapY := math.Min(a.MaxY(), b.MaxY()) - math.Max(a.Y, b.Y)
	if overlapX < overlapY {
		if a.Center().X < b.Center().X {
			return Vec2{X: -overlapX}
		}
		return Vec2{X: overlapX}
	}
	if a.Center().Y < b.Center().Y {
		return Vec2{Y: -overlapY}
	}
	return Vec2{Y: overlapY}
}

// Clamp limits value to the range [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
