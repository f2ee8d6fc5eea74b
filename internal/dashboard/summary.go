package dashboard

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/kompressai/portal/internal/projects"
)

// Stats counts projects by status.
type Stats struct {
	Total      int  `json:"total"`
	Completed  int  `json:"completed"`
	Processing int  `json:"processing"`
	Draft      int  `json:"draft"`
	Failed     int  `json:"failed"`
	Sample     bool `json:"sample,omitempty"`
}

// sampleStats fills the cards for an account with no projects yet.
var sampleStats = Stats{Completed: 5, Processing: 2, Draft: 1, Sample: true}

func ComputeStats(list []*projects.Project) Stats {
	if len(list) == 0 {
		return sampleStats
	}
	s := Stats{Total: len(list)}
	for _, p := range list {
		switch p.Status {
		case projects.StatusCompleted:
			s.Completed++
		case projects.StatusProcessing:
			s.Processing++
		case projects.StatusDraft:
			s.Draft++
		case projects.StatusFailed:
			s.Failed++
		}
	}
	return s
}

// Month is one bar of the timeline.
type Month struct {
	Month     string `json:"month"`
	Year      int    `json:"year"`
	Projects  int    `json:"projects"`
	Completed int    `json:"completed"`
}

// Timeline buckets projects into the twelve calendar months ending with
// the month of now, oldest first, using loc to decide the month.
func Timeline(list []*projects.Project, now time.Time, loc *time.Location) []Month {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)

	out := make([]Month, 12)
	index := make(map[[2]int]int, 12)
	for i := range out {
		m := first.AddDate(0, i-11, 0)
		out[i] = Month{Month: m.Month().String()[:3], Year: m.Year()}
		index[[2]int{m.Year(), int(m.Month())}] = i
	}
	for _, p := range list {
		created := p.CreatedAt.In(loc)
		i, ok := index[[2]int{created.Year(), int(created.Month())}]
		if !ok {
			continue
		}
		out[i].Projects++
		if p.Status == projects.StatusCompleted {
			out[i].Completed++
		}
	}
	return out
}

var modelFormats = []string{"ONNX", "TensorFlow Lite", "PyTorch Mobile"}

// CompressedModel is the mock result card of a finished project.
type CompressedModel struct {
	ProjectID          string     `json:"project_id"`
	OriginalSizeMB     int        `json:"original_size_mb"`
	CompressedSizeMB   int        `json:"compressed_size_mb"`
	CompressionRatio   float64    `json:"compression_ratio"`
	LatencyImprovement int        `json:"latency_improvement"`
	AccuracyRetention  float64    `json:"accuracy_retention"`
	APIEndpoint        string     `json:"api_endpoint"`
	DeploymentURL      string     `json:"deployment_url"`
	ModelFormat        string     `json:"model_format"`
	APIKey             string     `json:"api_key"`
	APIKeyExpiresAt    *time.Time `json:"api_key_expires_at"`
}

// CompressedModel fabricates a result for p. keyTTL of zero means the
// API key never expires.
func (s *Simulator) CompressedModel(p *projects.Project, keyTTL time.Duration) CompressedModel {
	s.mu.Lock()
	defer s.mu.Unlock()

	original := s.rnd.IntN(500) + 100
	compressed := original * 5 / 100
	ratio := float64(original-compressed) / float64(original) * 100

	m := CompressedModel{
		ProjectID:          p.ID,
		OriginalSizeMB:     original,
		CompressedSizeMB:   compressed,
		CompressionRatio:   round1(ratio),
		LatencyImprovement: s.rnd.IntN(8) + 2,
		AccuracyRetention:  round1(s.rnd.Float64()*3 + 97),
		APIEndpoint:        fmt.Sprintf("https://api.kompressai.io/v1/models/%s/predict", p.ID),
		DeploymentURL:      fmt.Sprintf("https://%s.kompressai.app", shortID(p.ID)),
		ModelFormat:        modelFormats[s.rnd.IntN(len(modelFormats))],
		APIKey:             fmt.Sprintf("ak_%s_%s", shortID(p.ID), randomBase36(s.rnd, 13)),
	}
	if keyTTL > 0 {
		exp := s.now().Add(keyTTL).UTC()
		m.APIKeyExpiresAt = &exp
	}
	return m
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func randomBase36(rnd *rand.Rand, n int) string {
	var b strings.Builder
	for b.Len() < n {
		b.WriteString(strconv.FormatUint(rnd.Uint64(), 36))
	}
	return b.String()[:n]
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
