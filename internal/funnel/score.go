package funnel

import "fmt"

// CalculateMaxScore returns the static upper bound of attainable score: the
// sum over every question step of its best option, regardless of which steps
// a particular path reaches.
func CalculateMaxScore(f *Funnel) int {
	total := 0
	for _, s := range f.Steps {
		q, ok := s.(*QuestionStep)
		if !ok {
			continue
		}
		best := 0
		for _, o := range q.Options {
			if o.Score > best {
				best = o.Score
			}
		}
		total += best
	}
	return total
}

var defaultBands = []struct {
	name, label, color string
}{
	{"low", "Low", "#ef4444"},
	{"medium", "Medium", "#f59e0b"},
	{"high", "High", "#22c55e"},
}

// GenerateDefaultSegments splits [0, maxScore] into low/medium/high bands of
// width maxScore/3. The last band absorbs the remainder. When maxScore is
// below 3 a single low band covers [0, maxScore].
func GenerateDefaultSegments(maxScore int) []ScoreSegment {
	if maxScore < 0 {
		maxScore = 0
	}
	width := maxScore / 3
	if width == 0 {
		band := defaultBands[0]
		return []ScoreSegment{{
			ID:       fmt.Sprintf("segment-%s", band.name),
			Name:     band.name,
			Label:    band.label,
			MinScore: 0,
			MaxScore: maxScore,
			Color:    band.color,
		}}
	}

	segments := make([]ScoreSegment, 0, len(defaultBands))
	lo := 0
	for i, band := range defaultBands {
		hi := lo + width - 1
		if i == len(defaultBands)-1 {
			hi = maxScore
		}
		segments = append(segments, ScoreSegment{
			ID:       fmt.Sprintf("segment-%s", band.name),
			Name:     band.name,
			Label:    band.label,
			MinScore: lo,
			MaxScore: hi,
			Color:    band.color,
		})
		lo = hi + 1
	}
	return segments
}

// SegmentFor returns the first segment, in list order, whose range contains
// score. Overlapping segments are a configuration problem and are not
// corrected here.
func SegmentFor(cfg *ScoringConfig, score int) (*ScoreSegment, bool) {
	if cfg == nil {
		return nil, false
	}
	for i := range cfg.Segments {
		if cfg.Segments[i].Contains(score) {
			return &cfg.Segments[i], true
		}
	}
	return nil, false
}

// PassesThreshold applies the legacy single cutoff used before segments
// existed. It is only meaningful when no segments are configured.
func PassesThreshold(cfg *ScoringConfig, score int) bool {
	if cfg == nil || len(cfg.Segments) > 0 {
		return false
	}
	return score >= cfg.Threshold
}
