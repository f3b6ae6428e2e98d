// Package geometry picks capture frame sizes: the mode closest to an ideal
// resolution, the largest mode, and scaled output sizes.
package geometry

import (
	"fmt"
	"math"
)

// Size is a frame size in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Area returns Width*Height.
func (s Size) Area() int {
	return s.Width * s.Height
}

// Range is a frame size mode as reported by a capture device. Discrete modes
// have Min == Max; stepwise modes accept any size Min + k*Step up to Max.
type Range struct {
	Min  Size
	Max  Size
	Step Size
}

// Discrete returns a Range holding exactly one size.
func Discrete(s Size) Range {
	return Range{Min: s, Max: s}
}

// fit returns the size inside r nearest to ideal.
func (r Range) fit(ideal Size) Size {
	return Size{
		Width:  snap(ideal.Width, r.Min.Width, r.Max.Width, r.Step.Width),
		Height: snap(ideal.Height, r.Min.Height, r.Max.Height, r.Step.Height),
	}
}

func snap(v, lo, hi, step int) int {
	if v <= lo {
		return lo
	}
	if v >= hi {
		return hi
	}
	if step <= 0 {
		return v
	}
	k := int(math.Round(float64(v-lo) / float64(step)))
	out := lo + k*step
	if out > hi {
		out -= step
	}
	return out
}

// distance compares candidate sizes against the ideal: pixel-count
// difference first, then aspect ratio difference.
func distance(s, ideal Size) (float64, float64) {
	area := math.Abs(float64(s.Area() - ideal.Area()))
	var aspect float64
	if s.Height > 0 && ideal.Height > 0 {
		aspect = math.Abs(float64(s.Width)/float64(s.Height) - float64(ideal.Width)/float64(ideal.Height))
	}
	return area, aspect
}

// Closest returns the supported size nearest to ideal. Ties prefer the
// larger frame. ok is false when ranges is empty.
func Closest(ranges []Range, ideal Size) (best Size, ok bool) {
	var bestArea, bestAspect float64
	for _, r := range ranges {
		c := r.fit(ideal)
		area, aspect := distance(c, ideal)
		switch {
		case !ok,
			area < bestArea,
			area == bestArea && aspect < bestAspect,
			area == bestArea && aspect == bestAspect && c.Area() > best.Area():
			best, bestArea, bestAspect, ok = c, area, aspect, true
		}
	}
	return best, ok
}

// Largest returns the biggest supported size by pixel count.
func Largest(ranges []Range) (best Size, ok bool) {
	for _, r := range ranges {
		if !ok || r.Max.Area() > best.Area() {
			best, ok = r.Max, true
		}
	}
	return best, ok
}

// Scale multiplies both dimensions by factor (0 < factor <= 1), rounding
// and never going below 1 pixel. Out-of-range factors leave s unchanged.
func Scale(s Size, factor float64) Size {
	if factor <= 0 || factor >= 1 || math.IsNaN(factor) {
		return s
	}
	w := int(math.Round(float64(s.Width) * factor))
	h := int(math.Round(float64(s.Height) * factor))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return Size{Width: w, Height: h}
}
