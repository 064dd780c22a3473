package overlay

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/v0xg/pagepilot/internal/executor"
)

// BarHeight is the height of the status bar drawn over each frame
const BarHeight = 24

const (
	pipSize = 10
	pipGap  = 6
)

var (
	colorCompleted = color.RGBA{52, 168, 83, 255}
	colorFailed    = color.RGBA{234, 67, 53, 255}
	colorExhausted = color.RGBA{251, 188, 4, 255}
	colorPip       = color.RGBA{255, 255, 255, 255}
	colorBorder    = color.RGBA{0, 0, 0, 255}
)

// OutcomeColor returns the bar color for a round outcome
func OutcomeColor(o executor.Outcome) color.RGBA {
	switch o {
	case executor.OutcomeCompleted:
		return colorCompleted
	case executor.OutcomeExhausted:
		return colorExhausted
	default:
		return colorFailed
	}
}

// StampOutcome returns a copy of frame with a status bar along the top edge:
// the bar color shows the outcome and one white pip is drawn per round.
func StampOutcome(frame image.Image, round int, outcome executor.Outcome) image.Image {
	bounds := frame.Bounds()
	result := image.NewRGBA(bounds)

	// Copy original frame
	draw.Draw(result, bounds, frame, bounds.Min, draw.Src)

	barHeight := min(BarHeight, bounds.Dy())
	bar := image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Min.Y+barHeight)
	draw.Draw(result, bar, &image.Uniform{C: OutcomeColor(outcome)}, image.Point{}, draw.Src)

	// Bottom edge of the bar
	drawLine(result, bar.Min.X, bar.Max.Y-1, bar.Max.X-1, bar.Max.Y-1, colorBorder)

	drawPips(result, bar, round)
	return result
}

// drawPips draws one square per round, left to right, until the bar is full
func drawPips(img *image.RGBA, bar image.Rectangle, count int) {
	if bar.Dy() < pipSize+2 {
		return
	}
	y := bar.Min.Y + (bar.Dy()-pipSize)/2
	x := bar.Min.X + pipGap
	for i := 0; i < count && x+pipSize <= bar.Max.X-pipGap; i++ {
		for dy := 0; dy < pipSize; dy++ {
			for dx := 0; dx < pipSize; dx++ {
				setPixelSafe(img, x+dx, y+dy, colorPip)
			}
		}
		x += pipSize + pipGap
	}
}

// drawLine draws a line between two points using Bresenham's algorithm
func drawLine(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	dx := abs(x2 - x1)
	dy := abs(y2 - y1)
	sx := 1
	if x1 > x2 {
		sx = -1
	}
	sy := 1
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy

	for {
		setPixelSafe(img, x1, y1, c)
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

func setPixelSafe(img *image.RGBA, x, y int, c color.RGBA) {
	if (image.Point{X: x, Y: y}).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
