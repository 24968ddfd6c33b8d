package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/leadfunnel/leadfunnel/internal/dashboard"
	"github.com/leadfunnel/leadfunnel/internal/funnel"
	"github.com/leadfunnel/leadfunnel/internal/stats"
	"github.com/leadfunnel/leadfunnel/internal/store"
)

// Dashboard template data structures
type layoutData struct {
	Title   string
	CSS     template.CSS
	Content template.HTML
}

type listData struct {
	Funnels []funnelListItem
}

type funnelListItem struct {
	ID             string
	Name           string
	State          string
	StepCount      int
	Sessions       int
	Abandoned      int
	Submissions    int
	CompletionRate string
	AvgScore       string
	UpdatedAt      string
}

type detailData struct {
	Funnel         funnelListItem
	Stats          *store.FunnelStats
	CompletionRate string
	MaxScore       int
	Segments       []segmentRow
	Steps          []stepResult
}

type segmentRow struct {
	funnel.ScoreSegment
	Completed int
}

type stepResult struct {
	ID                 string
	Title              string
	Kind               funnel.Kind
	Testing            bool
	Confident          bool
	ConfidencePercent  float64
	LeadingVariant     int
	LeadingVariantName string
	Variants           []detailVariant
}

type detailVariant struct {
	Index          int
	ID             string
	Name           string
	Weight         float64
	Views          int
	Conversions    int
	RatePercent    float64
	CILowerPercent float64
	CIUpperPercent float64
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	// Handle logout
	if r.URL.Query().Get("logout") == "1" {
		http.SetCookie(w, &http.Cookie{
			Name:   tokenCookieName,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}

	ctx := r.Context()
	funnels, err := s.store.ListFunnels(ctx)
	if err != nil {
		s.logger.Error("failed to list funnels", zap.Error(err))
		http.Error(w, "Failed to load funnels", http.StatusInternalServerError)
		return
	}

	items := make([]funnelListItem, 0, len(funnels))
	for _, rec := range funnels {
		fs, err := s.store.GetFunnelStats(ctx, rec.ID)
		if err != nil {
			s.logger.Warn("failed to load funnel stats", zap.String("funnel", rec.ID), zap.Error(err))
			fs = &store.FunnelStats{}
		}
		items = append(items, listItem(rec, fs))
	}

	s.renderDashboard(w, "Dashboard", "list.html", listData{Funnels: items})
}

func listItem(rec *store.FunnelRecord, fs *store.FunnelStats) funnelListItem {
	return funnelListItem{
		ID:             rec.ID,
		Name:           rec.Name,
		State:          string(rec.State),
		StepCount:      len(rec.Definition.Steps),
		Sessions:       fs.Sessions,
		Abandoned:      fs.Abandoned,
		Submissions:    fs.Submissions,
		CompletionRate: completionRate(fs),
		AvgScore:       fmt.Sprintf("%.1f", fs.AvgScore),
		UpdatedAt:      rec.UpdatedAt.Format("Jan 2, 2006"),
	}
}

func (s *Server) handleDashboardFunnel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rec, err := s.store.GetFunnel(ctx, r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.logger.Error("failed to load funnel", zap.String("funnel", r.PathValue("id")), zap.Error(err))
		http.Error(w, "Failed to load funnel", http.StatusInternalServerError)
		return
	}

	fs, err := s.store.GetFunnelStats(ctx, rec.ID)
	if err != nil {
		s.logger.Error("failed to load funnel stats", zap.String("funnel", rec.ID), zap.Error(err))
		http.Error(w, "Failed to load stats", http.StatusInternalServerError)
		return
	}

	steps, err := s.analyzeSteps(ctx, rec.Definition)
	if err != nil {
		s.logger.Error("failed to load variant stats", zap.String("funnel", rec.ID), zap.Error(err))
		http.Error(w, "Failed to load stats", http.StatusInternalServerError)
		return
	}

	data := detailData{
		Funnel:         listItem(rec, fs),
		Stats:          fs,
		CompletionRate: completionRate(fs),
		Steps:          steps,
	}

	f := rec.Definition
	if f.ScoringEnabled() {
		data.MaxScore = funnel.CalculateMaxScore(f)
		segments, err := s.segmentRows(ctx, f)
		if err != nil {
			s.logger.Warn("failed to count segment completions", zap.String("funnel", f.ID), zap.Error(err))
		}
		data.Segments = segments
	}

	s.renderDashboard(w, rec.Name, "detail.html", data)
}

func (s *Server) analyzeSteps(ctx context.Context, f *funnel.Funnel) ([]stepResult, error) {
	results := make([]stepResult, 0, len(f.Steps))
	for _, step := range f.Steps {
		b := step.Base()
		row := stepResult{
			ID:      b.ID,
			Title:   b.Title,
			Kind:    step.Kind(),
			Testing: funnel.IsTesting(step),
		}
		if row.Title == "" {
			row.Title = b.ID
		}

		if row.Testing {
			variantStats, err := s.store.GetVariantStats(ctx, f.ID, b.ID)
			if err != nil {
				return nil, err
			}
			res := stats.Analyze(step, variantStats)
			row.Confident = res.Confident
			row.ConfidencePercent = res.ConfidenceLevel * 100
			row.LeadingVariant = res.LeadingVariant
			for _, v := range res.Variants {
				row.Variants = append(row.Variants, detailVariant{
					Index:          v.Index,
					ID:             v.ID,
					Name:           v.Name,
					Weight:         v.Weight,
					Views:          v.Views,
					Conversions:    v.Conversions,
					RatePercent:    v.Rate * 100,
					CILowerPercent: v.CILower * 100,
					CIUpperPercent: v.CIUpper * 100,
				})
			}
			if lead := res.Variants[res.LeadingVariant]; lead.Name != "" {
				row.LeadingVariantName = lead.Name
			} else {
				row.LeadingVariantName = lead.ID
			}
		}
		results = append(results, row)
	}
	return results, nil
}

// segmentRows counts completed sessions per score segment.
func (s *Server) segmentRows(ctx context.Context, f *funnel.Funnel) ([]segmentRow, error) {
	rows := make([]segmentRow, len(f.Scoring.Segments))
	index := make(map[string]int, len(rows))
	for i, seg := range f.Scoring.Segments {
		rows[i] = segmentRow{ScoreSegment: seg}
		index[seg.ID] = i
	}

	sessions, err := s.store.ListSessions(ctx, f.ID)
	if err != nil {
		return rows, err
	}
	for _, sess := range sessions {
		if !sess.Completed {
			continue
		}
		if seg, ok := funnel.SegmentFor(f.Scoring, sess.Score); ok {
			rows[index[seg.ID]].Completed++
		}
	}
	return rows, nil
}

func (s *Server) handleDashboardAPI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	funnels, err := s.store.ListFunnels(ctx)
	if err != nil {
		s.logger.Error("failed to list funnels", zap.Error(err))
		http.Error(w, "Failed to load funnels", http.StatusInternalServerError)
		return
	}

	type apiVariant struct {
		VariantID   string  `json:"variant_id"`
		VariantName string  `json:"variant_name,omitempty"`
		Views       int     `json:"views"`
		Conversions int     `json:"conversions"`
		Rate        float64 `json:"rate"`
		CILower     float64 `json:"ci_lower"`
		CIUpper     float64 `json:"ci_upper"`
	}

	type apiStep struct {
		StepID          string       `json:"step_id"`
		Type            funnel.Kind  `json:"type"`
		Confident       bool         `json:"confident"`
		ConfidenceLevel float64      `json:"confidence_level"`
		LeadingVariant  string       `json:"leading_variant"`
		Variants        []apiVariant `json:"variants"`
	}

	type apiFunnel struct {
		ID             string    `json:"id"`
		Name           string    `json:"name"`
		State          string    `json:"state"`
		Steps          int       `json:"steps"`
		Sessions       int       `json:"sessions"`
		Completed      int       `json:"completed"`
		Abandoned      int       `json:"abandoned"`
		Submissions    int       `json:"submissions"`
		CompletionRate float64   `json:"completion_rate"`
		AvgScore       float64   `json:"avg_score"`
		UpdatedAt      string    `json:"updated_at"`
		ABTests        []apiStep `json:"ab_tests"`
	}

	out := make([]apiFunnel, 0, len(funnels))
	for _, rec := range funnels {
		fs, err := s.store.GetFunnelStats(ctx, rec.ID)
		if err != nil {
			s.logger.Warn("failed to load funnel stats", zap.String("funnel", rec.ID), zap.Error(err))
			fs = &store.FunnelStats{}
		}

		item := apiFunnel{
			ID:          rec.ID,
			Name:        rec.Name,
			State:       string(rec.State),
			Steps:       len(rec.Definition.Steps),
			Sessions:    fs.Sessions,
			Completed:   fs.Completed,
			Abandoned:   fs.Abandoned,
			Submissions: fs.Submissions,
			AvgScore:    fs.AvgScore,
			UpdatedAt:   rec.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			ABTests:     []apiStep{},
		}
		if fs.Sessions > 0 {
			item.CompletionRate = float64(fs.Completed) / float64(fs.Sessions)
		}

		for _, step := range rec.Definition.Steps {
			if !funnel.IsTesting(step) {
				continue
			}
			variantStats, err := s.store.GetVariantStats(ctx, rec.ID, step.Base().ID)
			if err != nil {
				s.logger.Warn("failed to load variant stats",
					zap.String("funnel", rec.ID), zap.String("step", step.Base().ID), zap.Error(err))
				continue
			}
			res := stats.Analyze(step, variantStats)
			as := apiStep{
				StepID:          res.StepID,
				Type:            step.Kind(),
				Confident:       res.Confident,
				ConfidenceLevel: res.ConfidenceLevel,
				LeadingVariant:  res.Variants[res.LeadingVariant].ID,
			}
			for _, v := range res.Variants {
				as.Variants = append(as.Variants, apiVariant{
					VariantID:   v.ID,
					VariantName: v.Name,
					Views:       v.Views,
					Conversions: v.Conversions,
					Rate:        v.Rate,
					CILower:     v.CILower,
					CIUpper:     v.CIUpper,
				})
			}
			item.ABTests = append(item.ABTests, as)
		}
		out = append(out, item)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"funnels": out,
	})
}

func (s *Server) renderDashboard(w http.ResponseWriter, title, contentTemplate string, data any) {
	cssBytes, err := dashboard.Assets.ReadFile("assets/style.css")
	if err != nil {
		http.Error(w, "Failed to load styles", http.StatusInternalServerError)
		return
	}

	contentTmpl, err := template.ParseFS(dashboard.Templates, "templates/"+contentTemplate)
	if err != nil {
		s.logger.Error("failed to parse template", zap.String("template", contentTemplate), zap.Error(err))
		http.Error(w, "Failed to parse template", http.StatusInternalServerError)
		return
	}

	var contentBuf bytes.Buffer
	if err := contentTmpl.Execute(&contentBuf, data); err != nil {
		s.logger.Error("failed to render template", zap.String("template", contentTemplate), zap.Error(err))
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
		return
	}

	layoutTmpl, err := template.ParseFS(dashboard.Templates, "templates/layout.html")
	if err != nil {
		s.logger.Error("failed to parse layout", zap.Error(err))
		http.Error(w, "Failed to parse layout", http.StatusInternalServerError)
		return
	}

	var page bytes.Buffer
	if err := layoutTmpl.Execute(&page, layoutData{
		Title:   title,
		CSS:     template.CSS(cssBytes),
		Content: template.HTML(contentBuf.String()),
	}); err != nil {
		s.logger.Error("failed to render layout", zap.Error(err))
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	page.WriteTo(w)
}

func completionRate(fs *store.FunnelStats) string {
	if fs.Sessions == 0 {
		return "0%"
	}
	return formatPercentage(float64(fs.Completed) / float64(fs.Sessions) * 100)
}

func formatPercentage(p float64) string {
	if p < 0.01 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", p)
}
