package imaging

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/docuflow/docproc-worker/internal/errors"
)

// grayImage builds a uniform grayscale image with a few overrides.
func grayImage(w, h int, base uint8, overrides map[image.Point]uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = base
	}
	for p, v := range overrides {
		img.SetGray(p.X, p.Y, color.Gray{Y: v})
	}
	return img
}

func TestPreprocessNilImage(t *testing.T) {
	_, err := Preprocess(nil, DefaultOptions())
	require.Error(t, err)
	assert.True(t, perrors.IsCode(err, perrors.ErrorEmptyImage))
	assert.True(t, perrors.IsStructural(err))
}

func TestPreprocessZeroDimensions(t *testing.T) {
	_, err := Preprocess(image.NewGray(image.Rect(0, 0, 0, 10)), DefaultOptions())
	require.Error(t, err)
	assert.True(t, perrors.IsCode(err, perrors.ErrorEmptyImage))
}

func TestPreprocessAllBlackIsUnreadable(t *testing.T) {
	img := grayImage(60, 40, 0, nil)
	_, err := Preprocess(img, Options{BinarizationThreshold: 128})
	require.Error(t, err)
	assert.True(t, perrors.IsCode(err, perrors.ErrorUnreadableImage))
	assert.True(t, perrors.IsStructural(err))
}

func TestPreprocessAllWhiteIsUnreadable(t *testing.T) {
	img := grayImage(60, 40, 255, nil)
	_, err := Preprocess(img, Options{BinarizationThreshold: 128})
	require.Error(t, err)
	assert.True(t, perrors.IsCode(err, perrors.ErrorUnreadableImage))
}

func TestPreprocessFixedThreshold(t *testing.T) {
	img := grayImage(20, 20, 200, map[image.Point]uint8{
		{3, 3}: 10,
		{4, 3}: 10,
	})
	c, err := Preprocess(img, Options{BinarizationThreshold: 128})
	require.NoError(t, err)

	assert.Equal(t, uint8(128), c.Threshold)
	assert.True(t, c.Ink(3, 3))
	assert.True(t, c.Ink(4, 3))
	assert.False(t, c.Ink(0, 0))
	assert.Equal(t, float64(0), c.SkewAngle)
}

func TestPreprocessDoesNotMutateInput(t *testing.T) {
	img := grayImage(20, 20, 200, map[image.Point]uint8{{5, 5}: 0})
	_, err := Preprocess(img, Options{DenoiseStrength: 2, BinarizationThreshold: 128})
	require.NoError(t, err)

	assert.Equal(t, uint8(0), img.GrayAt(5, 5).Y)
	assert.Equal(t, uint8(200), img.GrayAt(0, 0).Y)
}

func TestOtsuSeparatesBimodalImage(t *testing.T) {
	// Half dark, half light; Otsu must land between the modes.
	img := image.NewGray(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			v := uint8(230)
			if x < 20 {
				v = 20
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}

	// Every cut in [20,229] separates the modes equally well; the threshold
	// must be the plateau midpoint, not the dark mode itself.
	threshold := otsuThreshold(img)
	assert.Equal(t, 124, int(threshold))
	assert.Greater(t, int(threshold), 20)
	assert.Less(t, int(threshold), 230)

	c, err := Preprocess(img, Options{})
	require.NoError(t, err)
	assert.True(t, c.Ink(5, 5))
	assert.False(t, c.Ink(35, 5))
}

func TestCropClampsToBounds(t *testing.T) {
	img := grayImage(10, 10, 100, nil)
	crop := Crop(img, image.Rect(5, 5, 50, 50))
	assert.Equal(t, 5, crop.Bounds().Dx())
	assert.Equal(t, 5, crop.Bounds().Dy())
	assert.Equal(t, uint8(100), crop.GrayAt(0, 0).Y)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("definitely not an image"))
	require.Error(t, err)
	assert.True(t, perrors.IsCode(err, perrors.ErrorUnsupportedFormat))
}

func TestDecodePNGRoundTrip(t *testing.T) {
	img := grayImage(8, 8, 77, nil)
	data, err := EncodePNG(img)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())
}

func TestEstimateSkewOnStraightLines(t *testing.T) {
	// Horizontal text lines: the sweep should prefer no rotation.
	img := grayImage(120, 90, 255, nil)
	for _, y := range []int{20, 40, 60} {
		for x := 10; x < 110; x++ {
			img.SetGray(x, y, color.Gray{Y: 0})
			img.SetGray(x, y+1, color.Gray{Y: 0})
		}
	}
	skew := estimateSkew(img)
	assert.InDelta(t, 0, skew, 0.51)
}
