package assessment

import (
	"math"
	"strings"
	"time"
)

// MaxScore is the upper bound of every dimension score.
const MaxScore = 10.0

// Dimension is one scored soft-skill axis of a report.
type Dimension struct {
	Score               float64  `json:"score"`
	Strengths           []string `json:"strengths"`
	AreasForImprovement []string `json:"areasForImprovement"`
	Tip                 string   `json:"tip"`
}

// Report is the terminal artifact of a completed discussion.
type Report struct {
	Communication Dimension `json:"communication"`
	Empathy       Dimension `json:"empathy"`
	Collaboration Dimension `json:"collaboration"`
	Adaptivity    Dimension `json:"adaptivity"`
	GeneratedAt   time.Time `json:"generatedAt"`
}

// NamedDimension pairs a dimension with its stable name.
type NamedDimension struct {
	Name string
	Dimension
}

// Dimensions returns the four dimensions in their canonical order.
func (r Report) Dimensions() []NamedDimension {
	return []NamedDimension{
		{Name: "communication", Dimension: r.Communication},
		{Name: "empathy", Dimension: r.Empathy},
		{Name: "collaboration", Dimension: r.Collaboration},
		{Name: "adaptivity", Dimension: r.Adaptivity},
	}
}

// Overall is the arithmetic mean of the four dimension scores.
func (r Report) Overall() float64 {
	dims := r.Dimensions()
	var sum float64
	for _, d := range dims {
		sum += d.Score
	}
	return sum / float64(len(dims))
}

// OverallDisplay rounds the overall score to one decimal.
func (r Report) OverallDisplay() float64 {
	return math.Round(r.Overall()*10) / 10
}

// OverallPercent is the overall score on a 0-100 scale rounded to the nearest integer.
func (r Report) OverallPercent() int {
	return percent(r.Overall())
}

// Normalize clamps scores into [0, MaxScore] and tidies the text fields.
func (r Report) Normalize() Report {
	r.Communication = r.Communication.normalize()
	r.Empathy = r.Empathy.normalize()
	r.Collaboration = r.Collaboration.normalize()
	r.Adaptivity = r.Adaptivity.normalize()
	return r
}

func (d Dimension) normalize() Dimension {
	d.Score = ClampScore(d.Score)
	d.Strengths = cleanList(d.Strengths)
	d.AreasForImprovement = cleanList(d.AreasForImprovement)
	d.Tip = strings.TrimSpace(d.Tip)
	return d
}

// ClampScore bounds a score to the valid range. NaN maps to zero.
func ClampScore(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

func percent(score float64) int {
	return int(math.Round(ClampScore(score) * 100 / MaxScore))
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
