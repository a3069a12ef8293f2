package thumbnails

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"polaris/internal/models"
)

var padColor = color.Black

// maxSourcePixels caps the decoded size of a source image.
const maxSourcePixels = 40_000_000

func (g *Generator) render(source, target string, maxDimension int) error {
	const op = "thumbnails.render"
	f, err := os.Open(source)
	if err != nil {
		return models.E(models.KindIO, op, err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return models.E(models.KindImageProcessing, op, fmt.Errorf("decode %s: %w", source, err))
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > maxSourcePixels {
		return models.E(models.KindImageProcessing, op,
			fmt.Errorf("%s is %dx%d, over the %d pixel limit", source, cfg.Width, cfg.Height, maxSourcePixels))
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return models.E(models.KindIO, op, err)
	}

	img, _, err := image.Decode(f)
	if err != nil {
		return models.E(models.KindImageProcessing, op, fmt.Errorf("decode %s: %w", source, err))
	}

	thumb := Fit(img, maxDimension)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: g.quality}); err != nil {
		return models.E(models.KindImageProcessing, op, fmt.Errorf("encode jpeg: %w", err))
	}
	if err := writeFileAtomic(filepath.Dir(target), filepath.Base(target), buf.Bytes()); err != nil {
		return models.E(models.KindCacheDirectory, op, err)
	}
	return nil
}

// Fit scales img to fit a maxDimension box, never upscaling, and pads the
// result onto a square canvas when it is not already square.
func Fit(img image.Image, maxDimension int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	newWidth, newHeight := width, height
	if width > maxDimension || height > maxDimension {
		if width >= height {
			newWidth = maxDimension
			newHeight = max(1, height*maxDimension/width)
		} else {
			newHeight = maxDimension
			newWidth = max(1, width*maxDimension/height)
		}
	}

	side := max(newWidth, newHeight)
	canvas := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(padColor), image.Point{}, draw.Src)

	offset := image.Pt((side-newWidth)/2, (side-newHeight)/2)
	dst := image.Rectangle{Min: offset, Max: offset.Add(image.Pt(newWidth, newHeight))}
	if newWidth == width && newHeight == height {
		draw.Draw(canvas, dst, img, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(canvas, dst, img, bounds, draw.Over, nil)
	}
	return canvas
}
