// Package chart provides viewport math for the pan/zoom price chart.
package chart

import (
	"math"
)

// MinVisible is the smallest number of data points the viewport may show.
const MinVisible = 5

// Viewport tracks the visible window over a data series. Pinch gestures
// resize the window and pan gestures scroll it; both results are clamped so
// the window always lies inside the series.
type Viewport struct {
	length  int
	visible int
	offset  int
}

// NewViewport creates a viewport over a series of the given length, showing
// the widest allowed window anchored at the end of the series.
func NewViewport(length int) *Viewport {
	v := &Viewport{length: length}
	v.visible = v.maxVisible()
	v.offset = v.clampOffset(length - v.visible)
	return v
}

// maxVisible is length/5, floored at MinVisible.
func (v *Viewport) maxVisible() int {
	m := v.length / 5
	if m < MinVisible {
		m = MinVisible
	}
	if m > v.length && v.length > 0 {
		m = v.length
	}
	return m
}

func (v *Viewport) clampVisible(n int) int {
	if n < MinVisible {
		n = MinVisible
	}
	if m := v.maxVisible(); n > m {
		n = m
	}
	return n
}

func (v *Viewport) clampOffset(off int) int {
	max := v.length - v.visible
	if max < 0 {
		max = 0
	}
	if off < 0 {
		return 0
	}
	if off > max {
		return max
	}
	return off
}

// Pinch applies a continuous pinch scale factor. Scale > 1 zooms in
// (fewer visible points); scale < 1 zooms out. Invalid scales are ignored.
func (v *Viewport) Pinch(scale float64) {
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return
	}
	v.visible = v.clampVisible(int(math.Round(float64(v.visible) / scale)))
	v.offset = v.clampOffset(v.offset)
}

// Pan scrolls the window by delta data points. Positive delta moves toward
// newer data.
func (v *Viewport) Pan(delta int) {
	v.offset = v.clampOffset(v.offset + delta)
}

// Resize updates the underlying series length, keeping the window anchored
// to the newest data when it was already there.
func (v *Viewport) Resize(length int) {
	atEnd := v.offset >= v.length-v.visible
	v.length = length
	v.visible = v.clampVisible(v.visible)
	if atEnd {
		v.offset = v.clampOffset(length - v.visible)
	} else {
		v.offset = v.clampOffset(v.offset)
	}
}

// Bounds returns the current [start, end) window over the series.
func (v *Viewport) Bounds() (start, end int) {
	start = v.offset
	end = v.offset + v.visible
	if end > v.length {
		end = v.length
	}
	if start > end {
		start = end
	}
	return start, end
}

// Visible returns the current visible point count.
func (v *Viewport) Visible() int {
	return v.visible
}

// Slice returns the visible portion of series. Overlay series such as
// moving averages are computed over the full history first and sliced here,
// so their values stay continuous across zoom and pan.
func Slice[T any](v *Viewport, series []T) []T {
	start, end := v.Bounds()
	if start >= len(series) {
		return nil
	}
	if end > len(series) {
		end = len(series)
	}
	return series[start:end]
}
