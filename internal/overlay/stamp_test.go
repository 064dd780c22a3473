package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/v0xg/pagepilot/internal/executor"
)

func blankFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{200, 200, 200, 255}}, image.Point{}, draw.Src)
	return img
}

func TestStampOutcomeColorsBar(t *testing.T) {
	cases := map[executor.Outcome]color.RGBA{
		executor.OutcomeCompleted: colorCompleted,
		executor.OutcomeFailed:    colorFailed,
		executor.OutcomeExhausted: colorExhausted,
	}
	for outcome, want := range cases {
		frame := blankFrame(200, 100)
		out := StampOutcome(frame, 0, outcome).(*image.RGBA)

		assert.Equal(t, want, out.RGBAAt(150, 2), outcome.String())
		assert.Equal(t, colorBorder, out.RGBAAt(150, BarHeight-1), outcome.String())
		assert.Equal(t, color.RGBA{200, 200, 200, 255}, out.RGBAAt(150, 60), outcome.String())
	}
}

func TestStampOutcomeLeavesInputUntouched(t *testing.T) {
	frame := blankFrame(100, 50)
	StampOutcome(frame, 3, executor.OutcomeFailed)
	assert.Equal(t, color.RGBA{200, 200, 200, 255}, frame.RGBAAt(1, 1))
}

func TestStampOutcomeDrawsOnePipPerRound(t *testing.T) {
	out := StampOutcome(blankFrame(300, 100), 3, executor.OutcomeExhausted).(*image.RGBA)

	y := (BarHeight - pipSize) / 2
	pips := 0
	for i := range 6 {
		x := pipGap + i*(pipSize+pipGap) + pipSize/2
		if out.RGBAAt(x, y+pipSize/2) == colorPip {
			pips++
		}
	}
	assert.Equal(t, 3, pips)
}

func TestStampOutcomeSmallFrame(t *testing.T) {
	assert.NotPanics(t, func() {
		StampOutcome(blankFrame(5, 5), 50, executor.OutcomeCompleted)
	})
}

func TestStampOutcomeManyRoundsStayInsideBar(t *testing.T) {
	out := StampOutcome(blankFrame(60, 40), 100, executor.OutcomeFailed).(*image.RGBA)
	assert.Equal(t, colorFailed, out.RGBAAt(58, BarHeight/2))
}
