package detector

import "fmt"

// Level is one pyramid level of the anchor grid
type Level struct {
	Stride    int    `json:"stride"`
	BaseSizes [2]int `json:"base_sizes"`
}

// PriorConfig describes the anchor grid a model was trained with
type PriorConfig struct {
	Levels []Level `json:"levels"`
	// Width and Height of the grid. Zero means the network input size.
	Width  int  `json:"width"`
	Height int  `json:"height"`
	Clip   bool `json:"clip"`
}

// DefaultLevels returns the RetinaFace pyramid: strides 8/16/32 with
// base sizes 16/32, 64/128 and 256/512.
func DefaultLevels() []Level {
	return []Level{
		{Stride: 8, BaseSizes: [2]int{16, 32}},
		{Stride: 16, BaseSizes: [2]int{64, 128}},
		{Stride: 32, BaseSizes: [2]int{256, 512}},
	}
}

// Prior is an anchor in normalized [0,1] coordinates
type Prior struct {
	CX, CY, W, H float32
}

// Priors is the anchor table. Entry i pairs with row i of every model output.
type Priors []Prior

func (c PriorConfig) validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: prior grid %dx%d", ErrInvalidConfig, c.Width, c.Height)
	}
	if len(c.Levels) == 0 {
		return fmt.Errorf("%w: no pyramid levels", ErrInvalidConfig)
	}
	for k, lvl := range c.Levels {
		if lvl.Stride <= 0 {
			return fmt.Errorf("%w: level %d stride %d", ErrInvalidConfig, k, lvl.Stride)
		}
		for _, size := range lvl.BaseSizes {
			if size <= 0 {
				return fmt.Errorf("%w: level %d base size %d", ErrInvalidConfig, k, size)
			}
		}
	}
	return nil
}

// Count returns the number of priors the config generates:
// the sum over levels of ceil(H/stride) * ceil(W/stride) * 2.
func (c PriorConfig) Count() int {
	n := 0
	for _, lvl := range c.Levels {
		n += ceilDiv(c.Height, lvl.Stride) * ceilDiv(c.Width, lvl.Stride) * len(lvl.BaseSizes)
	}
	return n
}

// GeneratePriors builds the anchor table in level order, row-major,
// base-size-minor. This is the order the network emits regression rows in.
func GeneratePriors(c PriorConfig) (Priors, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	w := float32(c.Width)
	h := float32(c.Height)
	priors := make(Priors, 0, c.Count())

	for _, lvl := range c.Levels {
		stride := float32(lvl.Stride)
		fmHeight := ceilDiv(c.Height, lvl.Stride)
		fmWidth := ceilDiv(c.Width, lvl.Stride)

		for i := 0; i < fmHeight; i++ {
			for j := 0; j < fmWidth; j++ {
				for _, size := range lvl.BaseSizes {
					p := Prior{
						CX: (float32(j) + 0.5) * stride / w,
						CY: (float32(i) + 0.5) * stride / h,
						W:  float32(size) / w,
						H:  float32(size) / h,
					}
					if c.Clip {
						p = Prior{CX: clamp(p.CX, 0, 1), CY: clamp(p.CY, 0, 1), W: clamp(p.W, 0, 1), H: clamp(p.H, 0, 1)}
					}
					priors = append(priors, p)
				}
			}
		}
	}

	return priors, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func clamp(x, min, max float32) float32 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}
