package stats

import (
	"math"

	"github.com/leadfunnel/leadfunnel/internal/funnel"
	"github.com/leadfunnel/leadfunnel/internal/store"
)

// Result is the statistical read-out of one step's A/B test.
type Result struct {
	StepID          string
	Variants        []VariantResult
	Confident       bool    // >= 95% confidence
	ConfidenceLevel float64 // 0-1
	LeadingVariant  int
}

type VariantResult struct {
	Index       int
	ID          string
	Name        string
	Weight      float64
	Views       int
	Conversions int
	Rate        float64
	CILower     float64
	CIUpper     float64
}

// SignificanceTest runs a two-proportion z-test and returns the confidence
// (0-1) that A converts better than B. Missing data on either side gives 0.5.
func SignificanceTest(aConv, aViews, bConv, bViews int) float64 {
	if aViews == 0 || bViews == 0 {
		return 0.5
	}

	pA := float64(aConv) / float64(aViews)
	pB := float64(bConv) / float64(bViews)
	pooled := float64(aConv+bConv) / float64(aViews+bViews)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(aViews) + 1/float64(bViews)))

	if se == 0 {
		switch {
		case pA > pB:
			return 1
		case pA < pB:
			return 0
		}
		return 0.5
	}
	return normalCDF((pA - pB) / se)
}

func normalCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// Analyze combines a step's variants with their aggregated events. The first
// variant is the control.
func Analyze(step funnel.Step, variantStats []store.VariantStats) *Result {
	byID := make(map[string]store.VariantStats, len(variantStats))
	for _, s := range variantStats {
		byID[s.VariantID] = s
	}

	defs := step.Base().Variants
	if len(defs) == 0 {
		defs = []funnel.StepVariant{funnel.Original()}
	}

	res := &Result{StepID: step.Base().ID, Variants: make([]VariantResult, len(defs))}
	best := -1.0
	for i, v := range defs {
		st := byID[v.ID]
		rate := 0.0
		if st.Views > 0 {
			rate = float64(st.Conversions) / float64(st.Views)
		}
		lo, hi := WilsonInterval(st.Conversions, st.Views, 0.95)
		res.Variants[i] = VariantResult{
			Index:       i,
			ID:          v.ID,
			Name:        v.Name,
			Weight:      v.Weight,
			Views:       st.Views,
			Conversions: st.Conversions,
			Rate:        rate,
			CILower:     lo,
			CIUpper:     hi,
		}
		if rate > best {
			best = rate
			res.LeadingVariant = i
		}
	}

	if len(res.Variants) < 2 {
		return res
	}

	// Compare the leader with the control, or the control with its best challenger.
	lead := res.Variants[res.LeadingVariant]
	other := res.Variants[0]
	if res.LeadingVariant == 0 {
		other = res.Variants[1]
		for _, v := range res.Variants[2:] {
			if v.Rate > other.Rate {
				other = v
			}
		}
	}
	res.ConfidenceLevel = SignificanceTest(lead.Conversions, lead.Views, other.Conversions, other.Views)
	res.Confident = res.ConfidenceLevel >= 0.95
	return res
}
