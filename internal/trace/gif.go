package trace

import (
	"archive/zip"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/png"
	"os"
	"sort"
	"strings"

	"github.com/nfnt/resize"
)

// frameDelay is the inter-frame delay in 100ths of a second. One frame
// per captured step reads comfortably at just under a second.
const frameDelay = 80

// defaultGIFWidth bounds the rendered animation when no width is given
const defaultGIFWidth = 800

// RenderGIF rebuilds the screenshots stored in a trace archive into an
// animated replay GIF at outPath, returning the written file size.
// Archives recorded without screenshots cannot be rendered.
func RenderGIF(zipPath, outPath string, maxWidth uint) (int64, error) {
	frames, err := readFrames(zipPath)
	if err != nil {
		return 0, err
	}
	if len(frames) == 0 {
		return 0, fmt.Errorf("archive %s holds no screenshots; record with screenshots enabled", zipPath)
	}

	width := maxWidth
	if width == 0 {
		width = defaultGIFWidth
	}
	bounds := frames[0].Bounds()
	aspect := float64(bounds.Dy()) / float64(bounds.Dx())
	height := uint(float64(width) * aspect)

	g := &gif.GIF{
		Image:     make([]*image.Paletted, len(frames)),
		Delay:     make([]int, len(frames)),
		LoopCount: 0,
	}

	// One palette from the first frame keeps the animation stable;
	// replay frames of a single page rarely diverge enough to matter.
	palette := quantizePalette(frames[0])

	for i, frame := range frames {
		resized := resize.Resize(width, height, frame, resize.Lanczos3)
		paletted := image.NewPaletted(resized.Bounds(), palette)
		draw.FloydSteinberg.Draw(paletted, resized.Bounds(), resized, image.Point{})
		g.Image[i] = paletted
		g.Delay[i] = frameDelay
	}

	f, err := os.Create(outPath)
	if err != nil {
		return 0, fmt.Errorf("create gif: %w", err)
	}
	if err := gif.EncodeAll(f, g); err != nil {
		f.Close()
		return 0, fmt.Errorf("encode gif: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, err
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// readFrames decodes the archive's screenshots in capture order
func readFrames(zipPath string) ([]image.Image, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("open trace archive: %w", err)
	}
	defer zr.Close()

	var shots []*zip.File
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "screenshots/") && strings.HasSuffix(f.Name, ".png") {
			shots = append(shots, f)
		}
	}
	sort.Slice(shots, func(i, j int) bool { return shots[i].Name < shots[j].Name })

	frames := make([]image.Image, 0, len(shots))
	for _, f := range shots {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		img, err := png.Decode(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Name, err)
		}
		frames = append(frames, img)
	}
	return frames, nil
}

// quantizePalette samples the frame and keeps its 255 most frequent
// colors, padding with grayscale when the page is flatter than that
func quantizePalette(img image.Image) color.Palette {
	bounds := img.Bounds()
	counts := map[color.RGBA]int{}

	// Every 4th pixel is plenty for a palette estimate
	const step = 4
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			r, g, b, a := img.At(x, y).RGBA()
			c := color.RGBA{
				R: uint8(r >> 8),
				G: uint8(g >> 8),
				B: uint8(b >> 8),
				A: uint8(a >> 8),
			}
			counts[c]++
		}
	}

	sampled := make([]color.RGBA, 0, len(counts))
	for c := range counts {
		sampled = append(sampled, c)
	}
	sort.Slice(sampled, func(i, j int) bool {
		if counts[sampled[i]] != counts[sampled[j]] {
			return counts[sampled[i]] > counts[sampled[j]]
		}
		// Stable order for equally frequent colors
		a, b := sampled[i], sampled[j]
		return uint32(a.R)<<24|uint32(a.G)<<16|uint32(a.B)<<8|uint32(a.A) <
			uint32(b.R)<<24|uint32(b.G)<<16|uint32(b.B)<<8|uint32(b.A)
	})

	palette := make(color.Palette, 0, 256)
	palette = append(palette, color.RGBA{0, 0, 0, 0})
	for _, c := range sampled {
		if len(palette) == 256 {
			break
		}
		palette = append(palette, c)
	}
	for len(palette) < 256 {
		gray := uint8(len(palette))
		palette = append(palette, color.RGBA{gray, gray, gray, 255})
	}
	return palette
}
