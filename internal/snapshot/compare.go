package snapshot

import (
	"image"
	"image/color"
	"image/draw"
)

// markColor highlights differing pixels in diff images.
var markColor = color.NRGBA{R: 255, G: 0, B: 255, A: 255}

// Diff describes the result of comparing two images.
type Diff struct {
	Equal         bool
	SameSize      bool
	BaselineSize  image.Point
	ActualSize    image.Point
	DifferentPx   int
	Visualization *image.NRGBA // nil when sizes differ or images are equal
}

// Canonical converts img to non-premultiplied RGBA anchored at (0, 0) so that
// images decoded from different formats compare by pixel value only.
func Canonical(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// Compare performs an exact comparison of two images.
func Compare(baseline, actual image.Image) Diff {
	base := Canonical(baseline)
	act := Canonical(actual)

	d := Diff{
		BaselineSize: base.Bounds().Size(),
		ActualSize:   act.Bounds().Size(),
	}
	d.SameSize = d.BaselineSize == d.ActualSize
	if !d.SameSize {
		return d
	}

	w, h := d.ActualSize.X, d.ActualSize.Y
	var vis *image.NRGBA
	for y := 0; y < h; y++ {
		bRow := base.Pix[y*base.Stride : y*base.Stride+w*4]
		aRow := act.Pix[y*act.Stride : y*act.Stride+w*4]
		for x := 0; x < w; x++ {
			i := x * 4
			if bRow[i] == aRow[i] && bRow[i+1] == aRow[i+1] && bRow[i+2] == aRow[i+2] && bRow[i+3] == aRow[i+3] {
				continue
			}
			if vis == nil {
				vis = dimmed(act)
			}
			vis.SetNRGBA(x, y, markColor)
			d.DifferentPx++
		}
	}
	d.Equal = d.DifferentPx == 0
	d.Visualization = vis
	return d
}

// dimmed returns a faded copy of img used as the diff background.
func dimmed(img *image.NRGBA) *image.NRGBA {
	out := image.NewNRGBA(img.Bounds())
	for i := 0; i+3 < len(img.Pix); i += 4 {
		out.Pix[i] = img.Pix[i]/4 + 191
		out.Pix[i+1] = img.Pix[i+1]/4 + 191
		out.Pix[i+2] = img.Pix[i+2]/4 + 191
		out.Pix[i+3] = 255
	}
	return out
}
