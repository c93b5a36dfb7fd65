package quality

import "github.com/shouni/go-storyboard-kit/pkg/domain"

// --- Mocks ---

// fixedScorer は URL ごとに決めたスコアを返すのだ。
type fixedScorer struct {
	scores map[string]float64
	calls  int
}

func (s *fixedScorer) CheckImage(img domain.GeneratedImage) Result {
	s.calls++
	score := s.scores[img.URL]
	return Result{OverallScore: score, Passed: score >= DefaultMinAcceptable}
}
