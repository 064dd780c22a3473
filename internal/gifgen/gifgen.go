package gifgen

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	_ "image/png"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/nfnt/resize"
)

// ErrNoFrames is returned when saving a recording that captured nothing
var ErrNoFrames = errors.New("no frames recorded")

// Options configures GIF generation
type Options struct {
	FPS      int
	MaxWidth uint
}

func (o Options) withDefaults() Options {
	if o.FPS <= 0 {
		o.FPS = 1
	}
	if o.MaxWidth == 0 {
		o.MaxWidth = 800
	}
	return o
}

// Recorder collects frames for one run. Safe for concurrent use.
type Recorder struct {
	opts Options

	mu     sync.Mutex
	frames []image.Image
}

// NewRecorder creates an empty Recorder
func NewRecorder(opts Options) *Recorder {
	return &Recorder{opts: opts.withDefaults()}
}

// Add appends a frame
func (r *Recorder) Add(frame image.Image) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
}

// DecodeFrame decodes a PNG screenshot
func DecodeFrame(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

// Len returns the number of frames recorded so far
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// Save writes the recorded frames to path and returns the file size
func (r *Recorder) Save(path string) (int64, error) {
	r.mu.Lock()
	frames := slices.Clone(r.frames)
	r.mu.Unlock()

	if len(frames) == 0 {
		return 0, ErrNoFrames
	}
	return Generate(frames, path, r.opts)
}

// Generate creates a GIF from frames
func Generate(frames []image.Image, outputPath string, opts Options) (int64, error) {
	if len(frames) == 0 {
		return 0, nil
	}
	opts = opts.withDefaults()

	// Calculate delay (in 100ths of a second)
	delay := 100 / opts.FPS

	// Never upscale
	bounds := frames[0].Bounds()
	outputWidth := min(opts.MaxWidth, uint(bounds.Dx()))

	// Calculate height maintaining aspect ratio
	aspectRatio := float64(bounds.Dy()) / float64(bounds.Dx())
	outputHeight := max(uint(float64(outputWidth)*aspectRatio), 1)

	g := &gif.GIF{
		Image:     make([]*image.Paletted, len(frames)),
		Delay:     make([]int, len(frames)),
		LoopCount: 0, // Infinite loop
	}

	palette := generatePalette(frames[0])

	for i, frame := range frames {
		resized := resize.Resize(outputWidth, outputHeight, frame, resize.Lanczos3)

		paletted := image.NewPaletted(resized.Bounds(), palette)
		draw.FloydSteinberg.Draw(paletted, resized.Bounds(), resized, image.Point{})

		g.Image[i] = paletted
		g.Delay[i] = delay
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return 0, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if err := gif.EncodeAll(f, g); err != nil {
		return 0, err
	}

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// generatePalette builds a 256-color palette from the most frequent colors
// of a sampled image, padded with grays
func generatePalette(img image.Image) color.Palette {
	bounds := img.Bounds()
	colorMap := make(map[color.RGBA]int)

	// Sample every 4th pixel
	step := 4
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			r, g, b, a := img.At(x, y).RGBA()
			c := color.RGBA{
				R: uint8(r >> 8),
				G: uint8(g >> 8),
				B: uint8(b >> 8),
				A: uint8(a >> 8),
			}
			colorMap[c]++
		}
	}

	type colorCount struct {
		c     color.RGBA
		count int
	}
	colors := make([]colorCount, 0, len(colorMap))
	for c, count := range colorMap {
		colors = append(colors, colorCount{c, count})
	}
	slices.SortFunc(colors, func(a, b colorCount) int {
		return cmp.Compare(b.count, a.count)
	})

	palette := make(color.Palette, 0, 256)
	palette = append(palette, color.RGBA{0, 0, 0, 0})
	for i := 0; i < len(colors) && len(palette) < 256; i++ {
		palette = append(palette, colors[i].c)
	}
	for len(palette) < 256 {
		gray := uint8(len(palette))
		palette = append(palette, color.RGBA{gray, gray, gray, 255})
	}
	return palette
}
