package models

import "fmt"

// NumClasses is the number of independent toxicity classes the model scores.
const NumClasses = 6

// ClassNames lists the toxicity classes in the order the model emits them.
var ClassNames = [NumClasses]string{
	"toxic",
	"severe_toxic",
	"obscene",
	"threat",
	"insult",
	"identity_hate",
}

// Scores holds one raw probability per class, in ClassNames order.
type Scores [NumClasses]float32

// Labels holds one binary decision per class, in ClassNames order.
type Labels [NumClasses]bool

// ThresholdVector holds the per-class cutoffs. A class is positive when its
// raw score is strictly greater than its cutoff.
type ThresholdVector [NumClasses]float32

// DefaultThresholds are the cutoffs used for video analysis.
var DefaultThresholds = ThresholdVector{0.5, 0.4, 0.5, 0.3, 0.5, 0.4}

// Validate checks every cutoff lies in [0,1].
func (t ThresholdVector) Validate() error {
	for i, v := range t {
		if v < 0 || v > 1 {
			return fmt.Errorf("threshold for %s out of range [0,1]: %v", ClassNames[i], v)
		}
	}
	return nil
}

// Apply derives the binary labels for a score vector.
func (t ThresholdVector) Apply(s Scores) Labels {
	var l Labels
	for i := range s {
		l[i] = s[i] > t[i]
	}
	return l
}

// Flagged returns the names of the positive classes.
func (l Labels) Flagged() []string {
	var out []string
	for i, on := range l {
		if on {
			out = append(out, ClassNames[i])
		}
	}
	return out
}

// Any reports whether at least one class is positive.
func (l Labels) Any() bool {
	for _, on := range l {
		if on {
			return true
		}
	}
	return false
}

// ClassificationResult is the outcome of classifying a single text
type ClassificationResult struct {
	Text      string `json:"text"`
	RawScores Scores `json:"scores"`
	Labels    Labels `json:"labels"`
}

// VideoReference is a raw URL and the identifier extracted from it.
type VideoReference struct {
	URL     string `json:"url"`
	VideoID string `json:"video_id,omitempty"`
}

// CommentSet is the deduplicated comment text gathered for one video.
type CommentSet struct {
	Comments         []string `json:"-"`
	TotalReported    int64    `json:"total_reported"`
	TotalFetched     int64    `json:"total_fetched"`
	UnavailableCount int64    `json:"unavailable_count"`
}

// VideoAnalysisResult represents the result of analyzing one video reference.
// Exactly one of Error or the statistics/predictions is meaningful.
type VideoAnalysisResult struct {
	Reference   VideoReference         `json:"reference"`
	Stats       *CommentSet            `json:"stats,omitempty"`
	Predictions []ClassificationResult `json:"predictions,omitempty"`
	Error       *ErrorInfo             `json:"error,omitempty"`
}

// AnalysisBatchResult holds one VideoAnalysisResult per requested reference,
// in request order.
type AnalysisBatchResult struct {
	Videos []VideoAnalysisResult `json:"videos"`
}
