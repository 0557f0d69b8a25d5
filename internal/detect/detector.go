/**
 * Region detection for the document pipeline.
 *
 * Finds candidate text/table/figure regions on the binarized canonical image
 * using run-length smearing and connected-component labeling, merges
 * overlapping candidates, and orders the survivors in reading order.
 */

package detect

import (
	"image"
	"sort"

	"github.com/docuflow/docproc-worker/internal/imaging"
	"github.com/docuflow/docproc-worker/internal/logging"
)

// Kind classifies what a region is believed to contain.
type Kind string

const (
	KindText    Kind = "text"
	KindTable   Kind = "table"
	KindFigure  Kind = "figure"
	KindUnknown Kind = "unknown"
)

// Region is a detected sub-area of a document image.
type Region struct {
	ID            int
	Bounds        image.Rectangle
	Kind          Kind
	SourceImageID string
}

// Options tunes candidate filtering, merging and classification.
type Options struct {
	// MinArea suppresses connected components smaller than this (pixels).
	MinArea int
	// MaxAspectRatio suppresses degenerate slivers.
	MaxAspectRatio float64
	// MergeOverlapRatio merges two candidates when their intersection
	// covers at least this share of the smaller box.
	MergeOverlapRatio float64
	// SmearX / SmearY are the run-length smearing gaps (pixels) that join
	// nearby glyphs into blocks before labeling.
	SmearX int
	SmearY int
}

// DefaultOptions returns detection thresholds tuned for 150-300 DPI scans.
func DefaultOptions() Options {
	return Options{
		MinArea:           120,
		MaxAspectRatio:    60,
		MergeOverlapRatio: 0.25,
		SmearX:            25,
		SmearY:            12,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MinArea <= 0 {
		o.MinArea = d.MinArea
	}
	if o.MaxAspectRatio <= 0 {
		o.MaxAspectRatio = d.MaxAspectRatio
	}
	if o.MergeOverlapRatio <= 0 {
		o.MergeOverlapRatio = d.MergeOverlapRatio
	}
	if o.SmearX <= 0 {
		o.SmearX = d.SmearX
	}
	if o.SmearY <= 0 {
		o.SmearY = d.SmearY
	}
	return o
}

// Detector performs layout analysis over canonical images.
type Detector struct {
	opts   Options
	logger *logging.Logger
}

// New creates a detector. A nil logger disables logging.
func New(opts Options, logger *logging.Logger) *Detector {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Detector{opts: opts.withDefaults(), logger: logger}
}

// Detect returns the regions of the canonical image in reading order.
// Zero regions is a valid outcome, not an error.
func (d *Detector) Detect(c *imaging.Canonical) []Region {
	smeared := smear(c.Mask, d.opts.SmearX, d.opts.SmearY)
	boxes := components(smeared)

	candidates := boxes[:0]
	for _, b := range boxes {
		if !d.acceptable(b) {
			continue
		}
		candidates = append(candidates, b.Intersect(c.Bounds()))
	}

	merged := mergeOverlapping(candidates, d.opts.MergeOverlapRatio)

	// Classification runs strictly after the merge so fragments that were
	// swallowed into a union never influence the kind.
	regions := make([]Region, 0, len(merged))
	for _, b := range merged {
		regions = append(regions, Region{Bounds: b, Kind: classify(c, b)})
	}

	sortReadingOrder(regions)
	for i := range regions {
		regions[i].ID = i + 1
	}

	d.logger.Debug("region detection complete",
		"candidates", len(candidates), "regions", len(regions))
	return regions
}

func (d *Detector) acceptable(b image.Rectangle) bool {
	w, h := b.Dx(), b.Dy()
	if w*h < d.opts.MinArea {
		return false
	}
	long, short := float64(w), float64(h)
	if short > long {
		long, short = short, long
	}
	if short == 0 || long/short > d.opts.MaxAspectRatio {
		return false
	}
	return true
}

// smear fills short background gaps between ink runs, first along rows then
// along columns, so that glyphs of one block fuse into a single component.
func smear(mask *image.Gray, gapX, gapY int) *image.Gray {
	bounds := mask.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewGray(bounds)
	copy(out.Pix, mask.Pix)

	// Horizontal pass.
	for y := 0; y < h; y++ {
		lastInk := -1
		for x := 0; x < w; x++ {
			if out.Pix[y*out.Stride+x] != 0 {
				continue
			}
			if lastInk >= 0 && x-lastInk <= gapX {
				for fx := lastInk + 1; fx < x; fx++ {
					out.Pix[y*out.Stride+fx] = 0
				}
			}
			lastInk = x
		}
	}

	// Vertical pass.
	for x := 0; x < w; x++ {
		lastInk := -1
		for y := 0; y < h; y++ {
			if out.Pix[y*out.Stride+x] != 0 {
				continue
			}
			if lastInk >= 0 && y-lastInk <= gapY {
				for fy := lastInk + 1; fy < y; fy++ {
					out.Pix[fy*out.Stride+x] = 0
				}
			}
			lastInk = y
		}
	}

	return out
}

// components labels 4-connected ink components and returns their bounding
// boxes in image coordinates.
func components(mask *image.Gray) []image.Rectangle {
	bounds := mask.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	visited := make([]bool, w*h)
	var boxes []image.Rectangle
	stack := make([]int, 0, 1024)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			if visited[idx] || mask.Pix[y*mask.Stride+x] != 0 {
				continue
			}
			minX, minY, maxX, maxY := x, y, x, y
			visited[idx] = true
			stack = append(stack[:0], idx)
			for len(stack) > 0 {
				cur := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				cx, cy := cur%w, cur/w
				if cx < minX {
					minX = cx
				}
				if cx > maxX {
					maxX = cx
				}
				if cy < minY {
					minY = cy
				}
				if cy > maxY {
					maxY = cy
				}
				for _, n := range [4][2]int{{cx - 1, cy}, {cx + 1, cy}, {cx, cy - 1}, {cx, cy + 1}} {
					nx, ny := n[0], n[1]
					if nx < 0 || nx >= w || ny < 0 || ny >= h {
						continue
					}
					nidx := ny*w + nx
					if visited[nidx] || mask.Pix[ny*mask.Stride+nx] != 0 {
						continue
					}
					visited[nidx] = true
					stack = append(stack, nidx)
				}
			}
			boxes = append(boxes, image.Rect(
				bounds.Min.X+minX, bounds.Min.Y+minY,
				bounds.Min.X+maxX+1, bounds.Min.Y+maxY+1))
		}
	}
	return boxes
}

// mergeOverlapping repeatedly unions boxes whose overlap exceeds the ratio
// until no pair overlaps anymore. The union bounding box wins the tie-break.
func mergeOverlapping(boxes []image.Rectangle, ratio float64) []image.Rectangle {
	out := append([]image.Rectangle(nil), boxes...)
	for {
		mergedAny := false
		for i := 0; i < len(out) && !mergedAny; i++ {
			for j := i + 1; j < len(out); j++ {
				if overlapRatio(out[i], out[j]) < ratio {
					continue
				}
				out[i] = out[i].Union(out[j])
				out = append(out[:j], out[j+1:]...)
				mergedAny = true
				break
			}
		}
		if !mergedAny {
			return out
		}
	}
}

func overlapRatio(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	interArea := float64(inter.Dx() * inter.Dy())
	aArea := float64(a.Dx() * a.Dy())
	bArea := float64(b.Dx() * b.Dy())
	small := aArea
	if bArea < small {
		small = bArea
	}
	if small == 0 {
		return 0
	}
	return interArea / small
}

// classify decides the region kind from the unsmeared ink mask inside the
// box: grid-line density points at a table, saturated ink at a figure,
// everything else defaults to text.
func classify(c *imaging.Canonical, b image.Rectangle) Kind {
	b = b.Intersect(c.Bounds())
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return KindUnknown
	}

	ink := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if c.Ink(x, y) {
				ink++
			}
		}
	}
	density := float64(ink) / float64(w*h)
	// Saturated blocks are halftoned photos or solid graphics, and their
	// full-extent runs would otherwise satisfy the grid heuristic.
	if density > 0.6 {
		return KindFigure
	}

	hRules, vRules := gridRules(c, b)
	if hRules >= 2 && vRules >= 2 {
		return KindTable
	}
	return KindText
}

// gridRules counts near-full-width horizontal ink runs and near-full-height
// vertical ink runs inside the box.
func gridRules(c *imaging.Canonical, b image.Rectangle) (int, int) {
	w, h := b.Dx(), b.Dy()
	minRun := func(extent int) int { return extent * 3 / 5 }

	hRules := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		run, best := 0, 0
		for x := b.Min.X; x < b.Max.X; x++ {
			if c.Ink(x, y) {
				run++
				if run > best {
					best = run
				}
			} else {
				run = 0
			}
		}
		if best >= minRun(w) {
			hRules++
		}
	}

	vRules := 0
	for x := b.Min.X; x < b.Max.X; x++ {
		run, best := 0, 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			if c.Ink(x, y) {
				run++
				if run > best {
					best = run
				}
			} else {
				run = 0
			}
		}
		if best >= minRun(h) {
			vRules++
		}
	}

	// Collapse adjacent rule rows/columns (a 2px border counts once).
	return collapseRuns(hRules), collapseRuns(vRules)
}

// collapseRuns conservatively treats every 3 adjacent rule lines as one.
func collapseRuns(n int) int {
	if n <= 0 {
		return 0
	}
	out := (n + 2) / 3
	if out < 1 {
		out = 1
	}
	return out
}

// sortReadingOrder arranges regions top-to-bottom, then left-to-right.
// Regions whose vertical extents overlap by more than half of the shorter
// one are treated as the same line.
func sortReadingOrder(regions []Region) {
	sort.SliceStable(regions, func(i, j int) bool {
		a, b := regions[i].Bounds, regions[j].Bounds
		if sameBand(a, b) {
			if a.Min.X != b.Min.X {
				return a.Min.X < b.Min.X
			}
			return a.Min.Y < b.Min.Y
		}
		if a.Min.Y != b.Min.Y {
			return a.Min.Y < b.Min.Y
		}
		return a.Min.X < b.Min.X
	})
}

func sameBand(a, b image.Rectangle) bool {
	top := a.Min.Y
	if b.Min.Y > top {
		top = b.Min.Y
	}
	bottom := a.Max.Y
	if b.Max.Y < bottom {
		bottom = b.Max.Y
	}
	overlap := bottom - top
	if overlap <= 0 {
		return false
	}
	short := a.Dy()
	if b.Dy() < short {
		short = b.Dy()
	}
	return float64(overlap) >= 0.5*float64(short)
}
