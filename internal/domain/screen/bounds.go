package screen

import (
	"fmt"
	"regexp"
	"strconv"
)

// Point is a screen coordinate in device pixels
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Rect is an element's bounding box, as reported by uiautomator
type Rect struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

var boundsPattern = regexp.MustCompile(`^\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]$`)

// ParseBounds parses "[x1,y1][x2,y2]"
func ParseBounds(s string) (Rect, error) {
	m := boundsPattern.FindStringSubmatch(s)
	if m == nil {
		return Rect{}, fmt.Errorf("invalid bounds %q", s)
	}

	var v [4]int
	for i := range v {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Rect{}, fmt.Errorf("invalid bounds %q: %w", s, err)
		}
		v[i] = n
	}
	return Rect{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}, nil
}

// Center returns the midpoint of the rect
func (r Rect) Center() Point {
	return Point{X: (r.X1 + r.X2) / 2, Y: (r.Y1 + r.Y2) / 2}
}

// Contains reports whether p lies inside the rect
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X1 && p.X < r.X2 && p.Y >= r.Y1 && p.Y < r.Y2
}

// Area returns the rect area, zero for degenerate rects
func (r Rect) Area() int {
	w, h := r.X2-r.X1, r.Y2-r.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Width returns the rect width
func (r Rect) Width() int { return r.X2 - r.X1 }

// Height returns the rect height
func (r Rect) Height() int { return r.Y2 - r.Y1 }

// String formats the rect the way uiautomator does
func (r Rect) String() string {
	return fmt.Sprintf("[%d,%d][%d,%d]", r.X1, r.Y1, r.X2, r.Y2)
}
