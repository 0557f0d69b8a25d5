/**
 * Image preprocessing for the document pipeline.
 *
 * Normalizes a decoded image into the canonical form consumed by region
 * detection and OCR: 8-bit grayscale plus a binarized ink mask. The stage
 * order is fixed: grayscale -> denoise -> deskew -> binarize.
 */

package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	perrors "github.com/docuflow/docproc-worker/internal/errors"
)

// Options controls the preprocessing stages. Each knob is independently
// toggleable; the zero value disables denoising, enables nothing special for
// binarization (Otsu picks the threshold), and skips deskewing.
type Options struct {
	// DenoiseStrength is the number of smoothing passes (0 disables).
	DenoiseStrength int
	// DeskewEnabled turns on rotation correction via the dominant
	// text-line angle.
	DeskewEnabled bool
	// BinarizationThreshold forces a fixed ink threshold in [1,255].
	// Zero selects the threshold automatically (Otsu).
	BinarizationThreshold int
}

// DefaultOptions returns the preprocessing defaults tuned for scanned
// documents.
func DefaultOptions() Options {
	return Options{
		DenoiseStrength: 1,
		DeskewEnabled:   true,
	}
}

// Canonical is the preprocessed form of one document image.
type Canonical struct {
	// Gray is the deskewed grayscale image.
	Gray *image.Gray
	// Mask is the binarized image: 0 marks ink, 255 background.
	Mask *image.Gray
	// Threshold is the ink threshold that produced Mask.
	Threshold uint8
	// SkewAngle is the rotation (degrees) that was corrected, 0 when
	// deskewing was disabled or unnecessary.
	SkewAngle float64
}

// Ink reports whether the canonical mask marks (x, y) as ink.
func (c *Canonical) Ink(x, y int) bool {
	return c.Mask.GrayAt(x, y).Y == 0
}

// Bounds returns the canonical image bounds.
func (c *Canonical) Bounds() image.Rectangle {
	return c.Gray.Bounds()
}

// Decode decodes raw image bytes using the registered codecs
// (png, jpeg, gif, tiff, bmp).
func Decode(data []byte) (image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, perrors.NewUnsupportedFormatError("", err)
	}
	_ = format
	return img, nil
}

// Preprocess normalizes img into its canonical form. The input image is
// never mutated.
func Preprocess(img image.Image, opts Options) (*Canonical, error) {
	if img == nil {
		return nil, perrors.NewEmptyImageError("")
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, perrors.NewEmptyImageError("")
	}

	gray := toGray(img)

	if opts.DenoiseStrength > 0 {
		for i := 0; i < opts.DenoiseStrength; i++ {
			gray = boxBlur(gray)
		}
	}

	var skew float64
	if opts.DeskewEnabled {
		skew = estimateSkew(gray)
		if math.Abs(skew) >= 0.25 {
			gray = rotate(gray, -skew)
		} else {
			skew = 0
		}
	}

	lo, hi := tonalRange(gray)
	// A scan with no tonal spread (all black, all white) has nothing for
	// OCR to latch onto and is treated as structurally unreadable.
	if int(hi)-int(lo) < 8 {
		return nil, perrors.NewUnreadableImageError("")
	}

	var threshold uint8
	if opts.BinarizationThreshold >= 1 && opts.BinarizationThreshold <= 255 {
		threshold = uint8(opts.BinarizationThreshold)
	} else {
		threshold = otsuThreshold(gray)
	}

	mask := binarize(gray, threshold)

	return &Canonical{
		Gray:      gray,
		Mask:      mask,
		Threshold: threshold,
		SkewAngle: skew,
	}, nil
}

// Crop copies the given rectangle out of a grayscale image. The rectangle is
// clamped to the image bounds.
func Crop(src *image.Gray, r image.Rectangle) *image.Gray {
	r = r.Intersect(src.Bounds())
	dst := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dst.SetGray(x-r.Min.X, y-r.Min.Y, src.GrayAt(x, y))
		}
	}
	return dst
}

// EncodePNG encodes an image as PNG for handing to OCR engines.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func toGray(img image.Image) *image.Gray {
	// Always copy, so the caller's image stays untouched downstream.
	bounds := img.Bounds()
	dst := image.NewGray(bounds)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Src)
	return dst
}

// boxBlur applies a single 3x3 mean filter pass.
func boxBlur(src *image.Gray) *image.Gray {
	bounds := src.Bounds()
	dst := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			var sum, n int
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					px, py := x+dx, y+dy
					if px < bounds.Min.X || px >= bounds.Max.X ||
						py < bounds.Min.Y || py >= bounds.Max.Y {
						continue
					}
					sum += int(src.GrayAt(px, py).Y)
					n++
				}
			}
			dst.SetGray(x, y, color.Gray{Y: uint8(sum / n)})
		}
	}
	return dst
}

// estimateSkew finds the dominant text-line angle in degrees by maximizing
// the variance of horizontal projection profiles over a bounded sweep.
// Straight text lines produce sharply peaked row profiles.
func estimateSkew(gray *image.Gray) float64 {
	threshold := otsuThreshold(gray)

	const (
		maxAngle = 10.0
		step     = 0.5
	)
	bestAngle, bestScore := 0.0, -1.0
	for angle := -maxAngle; angle <= maxAngle+1e-9; angle += step {
		score := projectionVariance(gray, threshold, angle)
		if score > bestScore {
			bestScore = score
			bestAngle = angle
		}
	}
	return bestAngle
}

func projectionVariance(gray *image.Gray, threshold uint8, angleDeg float64) float64 {
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	rad := angleDeg * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)

	// Row histogram with headroom for the shift a rotated sample can take.
	margin := int(float64(w)*math.Abs(sin)) + 1
	rows := make([]float64, h+2*margin)
	// Sample a coarse grid; full resolution adds nothing to the argmax.
	const stride = 2
	for y := 0; y < h; y += stride {
		for x := 0; x < w; x += stride {
			if gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y > threshold {
				continue
			}
			// Row index after rotating the sample point by -angle.
			ry := int(float64(y)*cos-float64(x)*sin) + margin
			if ry >= 0 && ry < len(rows) {
				rows[ry]++
			}
		}
	}

	var mean float64
	for _, v := range rows {
		mean += v
	}
	mean /= float64(len(rows))
	var variance float64
	for _, v := range rows {
		d := v - mean
		variance += d * d
	}
	return variance / float64(len(rows))
}

// rotate resamples the grayscale image rotated by angleDeg around its center,
// keeping the original dimensions and filling uncovered corners with white.
func rotate(src *image.Gray, angleDeg float64) *image.Gray {
	bounds := src.Bounds()
	dst := image.NewGray(bounds)
	for i := range dst.Pix {
		dst.Pix[i] = 0xff
	}

	rad := angleDeg * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	cx := float64(bounds.Min.X) + float64(bounds.Dx())/2
	cy := float64(bounds.Min.Y) + float64(bounds.Dy())/2

	// Affine map rotating src around (cx, cy).
	m := f64.Aff3{
		cos, -sin, cx - cos*cx + sin*cy,
		sin, cos, cy - sin*cx - cos*cy,
	}
	draw.BiLinear.Transform(dst, m, src, bounds, draw.Src, nil)
	return dst
}

func tonalRange(gray *image.Gray) (uint8, uint8) {
	lo, hi := uint8(255), uint8(0)
	for _, p := range gray.Pix {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	if lo > hi { // empty pix slice
		return 0, 0
	}
	return lo, hi
}

// otsuThreshold computes the classic Otsu binarization threshold.
func otsuThreshold(gray *image.Gray) uint8 {
	var hist [256]int
	for _, p := range gray.Pix {
		hist[p]++
	}
	total := len(gray.Pix)
	if total == 0 {
		return 128
	}

	var sum float64
	for i, c := range hist {
		sum += float64(i) * float64(c)
	}

	var sumB, wB float64
	plateauLow, plateauHigh, bestBetween := 128, 128, -1.0
	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > bestBetween {
			bestBetween = between
			plateauLow = t
			plateauHigh = t
		} else if between == bestBetween {
			plateauHigh = t
		}
	}
	// A flat argmax plateau (empty histogram gap between the modes)
	// collapses to its midpoint.
	return uint8((plateauLow + plateauHigh) / 2)
}

func binarize(gray *image.Gray, threshold uint8) *image.Gray {
	bounds := gray.Bounds()
	mask := image.NewGray(bounds)
	for i, p := range gray.Pix {
		if p <= threshold {
			mask.Pix[i] = 0
		} else {
			mask.Pix[i] = 0xff
		}
	}
	return mask
}
