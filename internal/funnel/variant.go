package funnel

// OriginalVariantID names the implicit variant that renders the step as authored.
const OriginalVariantID = "original"

// Rand is the randomness the selector draws from. *math/rand/v2.Rand satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// Content is what a step renders after variant overrides are applied.
type Content struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ButtonText  string `json:"buttonText"`
}

// Original returns the implicit variant representing the step itself.
func Original() StepVariant {
	return StepVariant{ID: OriginalVariantID, Name: "Original", Weight: 100}
}

// IsTesting reports whether the step has an active A/B test.
func IsTesting(s Step) bool {
	b := s.Base()
	return b.ABTestEnabled && len(b.Variants) >= 2
}

// SelectVariant draws a variant with probability weight/sum(weights).
// Steps without an active test get the implicit original. An all-zero weight
// set falls back to a uniform pick.
func SelectVariant(s Step, rng Rand) StepVariant {
	if !IsTesting(s) {
		return Original()
	}
	variants := s.Base().Variants

	total := 0.0
	for _, v := range variants {
		total += effectiveWeight(v)
	}
	if total <= 0 {
		return variants[rng.IntN(len(variants))]
	}

	draw := rng.Float64() * total
	cumulative := 0.0
	for _, v := range variants {
		cumulative += effectiveWeight(v)
		if cumulative > draw {
			return v
		}
	}
	// Float rounding can leave draw == total; the last weighted variant owns it.
	for i := len(variants) - 1; i >= 0; i-- {
		if effectiveWeight(variants[i]) > 0 {
			return variants[i]
		}
	}
	return variants[len(variants)-1]
}

// Assign keeps a visitor on the variant they were already shown in this
// session, as long as it still exists and the test is still running.
// Otherwise it draws a fresh one.
func Assign(s Step, previous string, rng Rand) StepVariant {
	if previous != "" && IsTesting(s) {
		for _, v := range s.Base().Variants {
			if v.ID == previous {
				return v
			}
		}
	}
	return SelectVariant(s, rng)
}

func effectiveWeight(v StepVariant) float64 {
	if v.Weight < 0 {
		return 0
	}
	return v.Weight
}

// EffectiveContent applies the variant's non-empty overrides to the step.
func EffectiveContent(s Step, v StepVariant) Content {
	b := s.Base()
	c := Content{
		Title:       b.Title,
		Description: b.Description,
		ButtonText:  b.ButtonText,
	}
	if v.Title != "" {
		c.Title = v.Title
	}
	if v.Description != "" {
		c.Description = v.Description
	}
	if v.ButtonText != "" {
		c.ButtonText = v.ButtonText
	}
	return c
}

// NormalizeWeights rescales weights in place so they sum to 100.
// An all-zero set becomes an equal split.
func NormalizeWeights(variants []StepVariant) {
	if len(variants) == 0 {
		return
	}
	total := 0.0
	for _, v := range variants {
		total += effectiveWeight(v)
	}
	for i := range variants {
		if total <= 0 {
			variants[i].Weight = 100 / float64(len(variants))
			continue
		}
		variants[i].Weight = effectiveWeight(variants[i]) / total * 100
	}
}

// DeclareWinner folds the winning variant's overrides into the step and ends
// its A/B test. It reports false when the variant does not exist.
func DeclareWinner(s Step, variantID string) bool {
	b := s.Base()
	for _, v := range b.Variants {
		if v.ID != variantID {
			continue
		}
		c := EffectiveContent(s, v)
		b.Title, b.Description, b.ButtonText = c.Title, c.Description, c.ButtonText
		b.ABTestEnabled = false
		return true
	}
	return false
}
