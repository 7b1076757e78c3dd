package controller

// CullPadding expands the visible rectangle on all sides before culling, so
// boxes just offscreen are already mounted when they scroll in.
const CullPadding = 200

// Viewport is the visible region of the canvas: a canvas-space origin, a
// screen-space size, and a zoom factor.
type Viewport struct {
	X, Y float64 // canvas-space coordinate of the screen origin
	W, H float64 // screen-space size
	Zoom float64
}

// ToCanvas projects a screen-space point into canvas space.
func (v Viewport) ToCanvas(sx, sy float64) (float64, float64) {
	return v.X + sx/v.Zoom, v.Y + sy/v.Zoom
}

// visible reports whether the rect (x,y,w,h) in canvas space intersects the
// viewport expanded by CullPadding.
func (v Viewport) visible(x, y, w, h float64) bool {
	minX := v.X - CullPadding
	minY := v.Y - CullPadding
	maxX := v.X + v.W/v.Zoom + CullPadding
	maxY := v.Y + v.H/v.Zoom + CullPadding
	return x+w >= minX && x <= maxX && y+h >= minY && y <= maxY
}

// pan shifts the viewport origin by a screen-space delta.
func (v Viewport) pan(dx, dy float64) Viewport {
	v.X -= dx / v.Zoom
	v.Y -= dy / v.Zoom
	return v
}

// zoom scales around the screen-space anchor (cx, cy), keeping the canvas
// point under the anchor fixed.
func (v Viewport) zoom(factor, cx, cy float64) Viewport {
	if factor <= 0 {
		return v
	}
	ax, ay := v.ToCanvas(cx, cy)
	v.Zoom *= factor
	v.X = ax - cx/v.Zoom
	v.Y = ay - cy/v.Zoom
	return v
}
