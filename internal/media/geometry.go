package media

import "math"

// SquareCenter returns the origin and side of the largest centered square
// inside a width x height image.
func SquareCenter(width, height int) (x, y, side int) {
	side = min(width, height)
	x = int(math.Round(float64(width-side) / 2))
	y = int(math.Round(float64(height-side) / 2))
	// Rounding half up can push an odd remainder one pixel past the edge.
	x = min(x, width-side)
	y = min(y, height-side)
	return x, y, side
}

// LongestEdge scales width x height so the longer side equals target. Square
// images are treated as portrait, which gives the same result.
func LongestEdge(width, height, target int) (int, int) {
	if width <= 0 || height <= 0 {
		return target, target
	}
	if width > height {
		h := int(math.Round(float64(height) * float64(target) / float64(width)))
		return target, max(h, 1)
	}
	w := int(math.Round(float64(width) * float64(target) / float64(height)))
	return max(w, 1), target
}

// RotatedSize returns the dimensions after applying an EXIF orientation.
func RotatedSize(width, height, orientation int) (int, int) {
	switch orientation {
	case 6, 8:
		return height, width
	default:
		return width, height
	}
}
