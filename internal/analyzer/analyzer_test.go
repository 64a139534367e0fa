package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/toxiclens/internal/models"
	"github.com/bdougie/toxiclens/internal/storage"
)

type fakeCollector struct {
	sets  map[string]*models.CommentSet
	errs  map[string]error
	calls []string
}

func (f *fakeCollector) Collect(_ context.Context, videoID string) (*models.CommentSet, error) {
	f.calls = append(f.calls, videoID)
	if err := f.errs[videoID]; err != nil {
		return nil, err
	}
	return f.sets[videoID], nil
}

// fakeClassifier looks scores up by text; unknown texts score zero.
type fakeClassifier struct {
	scores map[string]models.Scores
	err    error
	calls  int
}

func (f *fakeClassifier) Classify(_ context.Context, texts []string, t models.ThresholdVector) ([]models.ClassificationResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.ClassificationResult, len(texts))
	for i, text := range texts {
		s := f.scores[text]
		out[i] = models.ClassificationResult{Text: text, RawScores: s, Labels: t.Apply(s)}
	}
	return out, nil
}

type recordingStore struct {
	records []storage.Record
	flushes int
	err     error
}

func (r *recordingStore) AddResult(_ context.Context, rec storage.Record) error {
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *recordingStore) Flush() error {
	r.flushes++
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAnalyzeVideos_StatsAndPredictions(t *testing.T) {
	set := &models.CommentSet{
		Comments:         []string{"first", "reply one", "second", "third", "fourth", "fifth", "I will hurt you"},
		TotalReported:    10,
		TotalFetched:     7,
		UnavailableCount: 3,
	}
	coll := &fakeCollector{sets: map[string]*models.CommentSet{"dQw4w9WgXcQ": set}}
	cls := &fakeClassifier{scores: map[string]models.Scores{
		"I will hurt you": {0.6, 0.2, 0.1, 0.4, 0.3, 0.1},
	}}
	store := &recordingStore{}
	p := NewProcessor(coll, cls, discardLogger(), WithStorage(store))

	batch, err := p.AnalyzeVideos(context.Background(), []string{"https://www.youtube.com/watch?v=dQw4w9WgXcQ"})
	require.NoError(t, err)
	require.Len(t, batch.Videos, 1)

	v := batch.Videos[0]
	assert.Nil(t, v.Error)
	assert.Equal(t, "dQw4w9WgXcQ", v.Reference.VideoID)
	assert.Equal(t, int64(10), v.Stats.TotalReported)
	assert.Equal(t, int64(7), v.Stats.TotalFetched)
	assert.Equal(t, int64(3), v.Stats.UnavailableCount)
	require.Len(t, v.Predictions, 7)
	assert.Equal(t, "first", v.Predictions[0].Text)
	assert.Equal(t, models.Labels{true, false, false, true, false, false}, v.Predictions[6].Labels)

	require.Len(t, store.records, 7)
	assert.Equal(t, "dQw4w9WgXcQ", store.records[0].Source)
	assert.Equal(t, 1, store.flushes)
}

// slowStore takes a little time per write so the history queue fills up.
type slowStore struct {
	mu      sync.Mutex
	records []storage.Record
	flushes int
}

func (s *slowStore) AddResult(_ context.Context, rec storage.Record) error {
	time.Sleep(100 * time.Microsecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *slowStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func TestAnalyzeVideos_HistoryKeepsEveryComment(t *testing.T) {
	comments := make([]string, 500)
	for i := range comments {
		comments[i] = fmt.Sprintf("comment %d", i)
	}
	set := &models.CommentSet{Comments: comments, TotalReported: 500, TotalFetched: 500}
	coll := &fakeCollector{sets: map[string]*models.CommentSet{"dQw4w9WgXcQ": set}}

	slow := &slowStore{}
	history := storage.NewAsync(slow, 100, discardLogger())
	p := NewProcessor(coll, &fakeClassifier{}, discardLogger(), WithStorage(history))

	batch, err := p.AnalyzeVideos(context.Background(), []string{"https://youtu.be/dQw4w9WgXcQ"})
	require.NoError(t, err)
	require.Nil(t, batch.Videos[0].Error)
	require.NoError(t, history.Close())

	require.Len(t, slow.records, 500)
	assert.Equal(t, "comment 0", slow.records[0].Text)
	assert.Equal(t, "comment 499", slow.records[499].Text)
	assert.GreaterOrEqual(t, slow.flushes, 2)
}

func TestAnalyzeVideos_MalformedURLMakesNoCalls(t *testing.T) {
	coll := &fakeCollector{}
	cls := &fakeClassifier{}
	p := NewProcessor(coll, cls, discardLogger())

	batch, err := p.AnalyzeVideos(context.Background(), []string{"https://www.youtube.com/watch?list=abc"})
	require.NoError(t, err)
	require.Len(t, batch.Videos, 1)

	require.NotNil(t, batch.Videos[0].Error)
	assert.Equal(t, "PARSE_ERROR", batch.Videos[0].Error.Code)
	assert.Empty(t, coll.calls)
	assert.Zero(t, cls.calls)
}

func TestAnalyzeVideos_IsolatesFailures(t *testing.T) {
	coll := &fakeCollector{
		sets: map[string]*models.CommentSet{
			"good1": {Comments: []string{"hello"}, TotalReported: 1, TotalFetched: 1},
		},
		errs: map[string]error{
			"gone": models.UpstreamErr("youtube.CommentCount", http.StatusNotFound, "video not found", nil),
		},
	}
	p := NewProcessor(coll, &fakeClassifier{}, discardLogger())

	batch, err := p.AnalyzeVideos(context.Background(), []string{
		"https://youtu.be/gone",
		"not a url ://",
		"https://youtu.be/good1",
	})
	require.NoError(t, err)
	require.Len(t, batch.Videos, 3)

	assert.Equal(t, "NOT_FOUND", batch.Videos[0].Error.Code)
	assert.Equal(t, http.StatusNotFound, batch.Videos[0].Error.Status)
	assert.Equal(t, "PARSE_ERROR", batch.Videos[1].Error.Code)
	assert.Equal(t, "not a url ://", batch.Videos[1].Reference.URL)
	assert.Nil(t, batch.Videos[2].Error)
	assert.Len(t, batch.Videos[2].Predictions, 1)

	assert.Equal(t, []string{"gone", "good1"}, coll.calls)
}

func TestAnalyzeVideos_ClassifierFailure(t *testing.T) {
	coll := &fakeCollector{sets: map[string]*models.CommentSet{
		"abc": {Comments: []string{"x"}, TotalReported: 1, TotalFetched: 1},
	}}
	cls := &fakeClassifier{err: models.InferenceErr("scorer.Score", errors.New("model down"))}
	p := NewProcessor(coll, cls, discardLogger())

	batch, err := p.AnalyzeVideos(context.Background(), []string{"https://youtu.be/abc"})
	require.NoError(t, err)
	assert.Equal(t, "INFERENCE_ERROR", batch.Videos[0].Error.Code)
	assert.Nil(t, batch.Videos[0].Stats)
}

func TestAnalyzeVideos_Empty(t *testing.T) {
	p := NewProcessor(&fakeCollector{}, &fakeClassifier{}, discardLogger())

	_, err := p.AnalyzeVideos(context.Background(), nil)
	assert.Equal(t, models.KindEmptyInput, models.KindOf(err))
}

func TestClassifyTexts(t *testing.T) {
	t.Run("empty input never reaches the model", func(t *testing.T) {
		cls := &fakeClassifier{}
		p := NewProcessor(&fakeCollector{}, cls, discardLogger())

		results, err := p.ClassifyTexts(context.Background(), []string{}, models.DefaultThresholds)
		require.Error(t, err)
		assert.Nil(t, results)
		assert.Equal(t, models.KindEmptyInput, models.KindOf(err))
		assert.Zero(t, cls.calls)
	})

	t.Run("scenarios", func(t *testing.T) {
		cls := &fakeClassifier{scores: map[string]models.Scores{
			"you are great":   {0.1, 0.05, 0.05, 0.02, 0.05, 0.02},
			"I will hurt you": {0.6, 0.2, 0.1, 0.4, 0.3, 0.1},
		}}
		store := &recordingStore{}
		p := NewProcessor(&fakeCollector{}, cls, discardLogger(), WithStorage(store))

		results, err := p.ClassifyTexts(context.Background(), []string{"you are great", "I will hurt you"}, models.DefaultThresholds)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, models.Labels{}, results[0].Labels)
		assert.Equal(t, models.Labels{true, false, false, true, false, false}, results[1].Labels)

		require.Len(t, store.records, 2)
		assert.Equal(t, storage.DirectSource, store.records[0].Source)
	})

	t.Run("storage failure does not change the response", func(t *testing.T) {
		store := &recordingStore{err: errors.New("disk full")}
		p := NewProcessor(&fakeCollector{}, &fakeClassifier{}, discardLogger(), WithStorage(store))

		results, err := p.ClassifyTexts(context.Background(), []string{"hello"}, models.DefaultThresholds)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})
}

func TestSplit(t *testing.T) {
	assert.Equal(t, []string{"you suck", "nice video", "ok", "bye"},
		SplitTexts("you suck, nice video\n ok |bye\n\n,"))
	assert.Empty(t, SplitTexts(" \n , | "))

	assert.Equal(t, []string{"https://youtu.be/a", "https://www.youtube.com/watch?v=b&t=1,2"},
		SplitURLs("https://youtu.be/a\r\n\nhttps://www.youtube.com/watch?v=b&t=1,2\n"))
}
