package lbpcascade

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Comparison summarizes how two detection sets overlap.
type Comparison struct {
	Matched       int
	OursOnly      int
	ReferenceOnly int
	// MeanIoU and StdDevIoU describe the overlap of the matched pairs.
	MeanIoU   float64
	StdDevIoU float64
}

type candidate struct {
	ours, ref int
	iou       float64
}

// Compare pairs every reference detection with at most one of ours, greedily
// taking the pairs with the highest intersection over union first. Pairs
// overlapping less than iouThreshold are never matched.
func Compare(ours, ref []Detection, iouThreshold float64) Comparison {
	var pairs []candidate
	for i := range ours {
		for j := range ref {
			iou := ours[i].IoU(ref[j])
			if iou > 0 && iou >= iouThreshold {
				pairs = append(pairs, candidate{ours: i, ref: j, iou: iou})
			}
		}
	}
	sort.SliceStable(pairs, func(a, b int) bool {
		return pairs[a].iou > pairs[b].iou
	})

	var (
		usedOurs = make([]bool, len(ours))
		usedRef  = make([]bool, len(ref))
		ious     []float64
	)
	for _, p := range pairs {
		if usedOurs[p.ours] || usedRef[p.ref] {
			continue
		}
		usedOurs[p.ours], usedRef[p.ref] = true, true
		ious = append(ious, p.iou)
	}

	cmp := Comparison{
		Matched:       len(ious),
		OursOnly:      len(ours) - len(ious),
		ReferenceOnly: len(ref) - len(ious),
	}
	switch len(ious) {
	case 0:
	case 1:
		cmp.MeanIoU = ious[0]
	default:
		cmp.MeanIoU, cmp.StdDevIoU = stat.MeanStdDev(ious, nil)
	}
	return cmp
}
