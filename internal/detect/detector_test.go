package detect

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/docproc-worker/internal/imaging"
)

// canvas builds a canonical image with a white background to paint on.
type canvas struct {
	gray *image.Gray
	mask *image.Gray
}

func newCanvas(w, h int) *canvas {
	gray := image.NewGray(image.Rect(0, 0, w, h))
	mask := image.NewGray(image.Rect(0, 0, w, h))
	for i := range gray.Pix {
		gray.Pix[i] = 0xff
		mask.Pix[i] = 0xff
	}
	return &canvas{gray: gray, mask: mask}
}

func (c *canvas) fill(r image.Rectangle) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c.gray.Pix[y*c.gray.Stride+x] = 0
			c.mask.Pix[y*c.mask.Stride+x] = 0
		}
	}
}

// textBlock paints widely spaced thin lines, the shape of a paragraph.
func (c *canvas) textBlock(r image.Rectangle) {
	for y := r.Min.Y; y < r.Max.Y; y += 8 {
		c.fill(image.Rect(r.Min.X, y, r.Max.X, y+2))
	}
}

// tableGrid paints a bordered grid with the given inner rules.
func (c *canvas) tableGrid(r image.Rectangle, rows, cols int) {
	c.fill(image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1))
	c.fill(image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y))
	c.fill(image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y))
	c.fill(image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y))
	for i := 1; i < rows; i++ {
		y := r.Min.Y + i*r.Dy()/rows
		c.fill(image.Rect(r.Min.X, y, r.Max.X, y+1))
	}
	for i := 1; i < cols; i++ {
		x := r.Min.X + i*r.Dx()/cols
		c.fill(image.Rect(x, r.Min.Y, x+1, r.Max.Y))
	}
}

func (c *canvas) canonical() *imaging.Canonical {
	return &imaging.Canonical{Gray: c.gray, Mask: c.mask, Threshold: 128}
}

func TestDetectEmptyPage(t *testing.T) {
	c := newCanvas(200, 200)
	regions := New(Options{}, nil).Detect(c.canonical())
	assert.Empty(t, regions)
}

func TestDetectTwoTextBlocksInReadingOrder(t *testing.T) {
	c := newCanvas(300, 300)
	c.textBlock(image.Rect(20, 20, 180, 70))
	c.textBlock(image.Rect(20, 150, 180, 200))

	regions := New(Options{}, nil).Detect(c.canonical())
	require.Len(t, regions, 2)

	assert.Equal(t, 1, regions[0].ID)
	assert.Equal(t, 2, regions[1].ID)
	assert.Equal(t, KindText, regions[0].Kind)
	assert.Equal(t, KindText, regions[1].Kind)
	assert.Less(t, regions[0].Bounds.Min.Y, regions[1].Bounds.Min.Y)
}

func TestDetectSideBySideBlocksOrderedLeftToRight(t *testing.T) {
	c := newCanvas(400, 200)
	c.textBlock(image.Rect(220, 30, 380, 90))
	c.textBlock(image.Rect(20, 30, 180, 90))

	regions := New(Options{}, nil).Detect(c.canonical())
	require.Len(t, regions, 2)

	assert.Less(t, regions[0].Bounds.Min.X, regions[1].Bounds.Min.X)
	assert.Equal(t, 1, regions[0].ID)
}

func TestDetectSolidBlockIsFigure(t *testing.T) {
	c := newCanvas(200, 200)
	c.fill(image.Rect(40, 40, 160, 160))

	regions := New(Options{}, nil).Detect(c.canonical())
	require.Len(t, regions, 1)
	assert.Equal(t, KindFigure, regions[0].Kind)
}

func TestDetectGridIsTable(t *testing.T) {
	c := newCanvas(300, 250)
	c.tableGrid(image.Rect(30, 30, 270, 220), 3, 3)

	regions := New(Options{}, nil).Detect(c.canonical())
	require.Len(t, regions, 1)
	assert.Equal(t, KindTable, regions[0].Kind)
}

func TestDetectMinAreaSuppressesSpecks(t *testing.T) {
	c := newCanvas(200, 200)
	c.fill(image.Rect(10, 10, 13, 13)) // 9px speck

	regions := New(Options{MinArea: 120}, nil).Detect(c.canonical())
	assert.Empty(t, regions)
}

func TestDetectRegionIDsAreSequentialFromOne(t *testing.T) {
	c := newCanvas(300, 400)
	c.textBlock(image.Rect(20, 20, 280, 70))
	c.textBlock(image.Rect(20, 150, 280, 200))
	c.textBlock(image.Rect(20, 280, 280, 330))

	regions := New(Options{}, nil).Detect(c.canonical())
	require.Len(t, regions, 3)
	for i, r := range regions {
		assert.Equal(t, i+1, r.ID)
		assert.False(t, r.Bounds.Empty())
	}
}

func TestMergeOverlapping(t *testing.T) {
	boxes := []image.Rectangle{
		image.Rect(0, 0, 100, 100),
		image.Rect(50, 50, 150, 150), // 25% of the smaller box
		image.Rect(300, 300, 400, 400),
	}
	merged := mergeOverlapping(boxes, 0.25)
	require.Len(t, merged, 2)
	assert.Equal(t, image.Rect(0, 0, 150, 150), merged[0])
	assert.Equal(t, image.Rect(300, 300, 400, 400), merged[1])
}

func TestOverlapRatioDisjoint(t *testing.T) {
	assert.Equal(t, 0.0, overlapRatio(image.Rect(0, 0, 10, 10), image.Rect(20, 20, 30, 30)))
}
