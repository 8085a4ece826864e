package lbpcascade

// Stage is one rejection step of the cascade.
type Stage struct {
	Threshold float64
	Features  []Feature
}

// Evaluate accumulates the feature scores in their stored order and rejects the
// window as soon as the running total drops below the stage threshold.
// A later feature can not bring a rejected window back.
// rects is the rectangle pool the features index into.
func (s *Stage) Evaluate(ii *IntegralImage, rects []Rect, row, col int, scale float64) bool {
	var score float64
	for i := range s.Features {
		f := &s.Features[i]
		score += f.Evaluate(ii, rects[f.RectIndex], row, col, scale)
		if score < s.Threshold {
			return false
		}
	}
	return true
}
