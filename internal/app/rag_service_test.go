package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuchat/internal/model"
)

func newTestRAGService(searcher *fakeSearcher, embedder *fakeEmbedder, llm *fakeLLM) (*RAGService, *fakePublisher, *fakeHistoryCache, *fakeTranscriptStore) {
	publisher := &fakePublisher{}
	cache := newFakeHistoryCache()
	store := &fakeTranscriptStore{}
	svc := NewRAGService(searcher, embedder, llm, publisher, cache, store, 5)
	return svc, publisher, cache, store
}

func TestAskRanksNearestChunkFirst(t *testing.T) {
	searcher := &fakeSearcher{}
	searcher.add("user-1", "The sky is blue.", []float64{1, 0})
	searcher.add("user-1", "Grass is green.", []float64{0, 1})

	embedder := &fakeEmbedder{vectors: map[string][]float64{
		"What color is the sky?": {0.9, 0.1},
	}}
	llm := &fakeLLM{answer: "The sky is blue."}
	svc, publisher, _, _ := newTestRAGService(searcher, embedder, llm)

	result, err := svc.Ask(context.Background(), "user-1", "What color is the sky?")
	require.NoError(t, err)

	assert.Equal(t, "The sky is blue.", result.Answer)
	assert.False(t, result.NoContext)
	require.Len(t, result.Chunks, 2)
	assert.Equal(t, "The sky is blue.", result.Chunks[0].Text)
	assert.Equal(t, "Grass is green.", result.Chunks[1].Text)

	require.Len(t, publisher.published, 1)
	assert.Equal(t, "user-1", publisher.published[0].UserID)
	assert.Equal(t, "What color is the sky?", publisher.published[0].Question)
	assert.Equal(t, "The sky is blue.", publisher.published[0].Answer)
}

func TestAskPromptGroundedInContext(t *testing.T) {
	searcher := &fakeSearcher{}
	searcher.add("user-1", "Paris is the capital of France.", []float64{1})

	embedder := &fakeEmbedder{vectors: map[string][]float64{"capital?": {1}}}
	llm := &fakeLLM{answer: "Paris."}
	svc, _, _, _ := newTestRAGService(searcher, embedder, llm)

	_, err := svc.Ask(context.Background(), "user-1", "capital?")
	require.NoError(t, err)

	require.Len(t, llm.prompts, 1)
	prompt := llm.prompts[0]
	require.Len(t, prompt, 2)
	assert.Equal(t, "system", prompt[0].Role)
	assert.Contains(t, prompt[0].Content, "ONLY the following context")
	assert.Equal(t, "user", prompt[1].Role)
	assert.Contains(t, prompt[1].Content, "Paris is the capital of France.")
	assert.Contains(t, prompt[1].Content, "QUESTION:\ncapital?")
}

func TestAskNoContext(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float64{"q": {1}}}
	llm := &fakeLLM{answer: "should not be called"}
	svc, publisher, _, _ := newTestRAGService(&fakeSearcher{}, embedder, llm)

	result, err := svc.Ask(context.Background(), "user-1", "q")
	require.NoError(t, err)

	assert.True(t, result.NoContext)
	assert.Equal(t, NoContextMessage, result.Answer)
	assert.Empty(t, result.Chunks)
	assert.Empty(t, llm.prompts)
	assert.Empty(t, publisher.published, "no transcript without an answer")
}

func TestAskErrors(t *testing.T) {
	searcher := &fakeSearcher{}
	searcher.add("user-1", "text", []float64{1})
	goodEmbedder := func() *fakeEmbedder {
		return &fakeEmbedder{vectors: map[string][]float64{"q": {1}}}
	}

	t.Run("blank question", func(t *testing.T) {
		svc, _, _, _ := newTestRAGService(searcher, goodEmbedder(), &fakeLLM{})
		_, err := svc.Ask(context.Background(), "user-1", "   ")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("missing user", func(t *testing.T) {
		svc, _, _, _ := newTestRAGService(searcher, goodEmbedder(), &fakeLLM{})
		_, err := svc.Ask(context.Background(), "", "q")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("embedder failure", func(t *testing.T) {
		svc, _, _, _ := newTestRAGService(searcher, &fakeEmbedder{err: errors.New("provider down")}, &fakeLLM{})
		_, err := svc.Ask(context.Background(), "user-1", "q")
		assert.ErrorIs(t, err, ErrEmbeddingFailed)
	})

	t.Run("embedder returns empty vector", func(t *testing.T) {
		svc, _, _, _ := newTestRAGService(searcher, &fakeEmbedder{vectors: map[string][]float64{}}, &fakeLLM{})
		_, err := svc.Ask(context.Background(), "user-1", "q")
		assert.ErrorIs(t, err, ErrEmbeddingFailed)
	})

	t.Run("search failure", func(t *testing.T) {
		svc, _, _, _ := newTestRAGService(&fakeSearcher{err: errors.New("db gone")}, goodEmbedder(), &fakeLLM{})
		_, err := svc.Ask(context.Background(), "user-1", "q")
		assert.ErrorIs(t, err, ErrSearchFailed)
	})

	t.Run("model failure", func(t *testing.T) {
		svc, publisher, _, _ := newTestRAGService(searcher, goodEmbedder(), &fakeLLM{err: errors.New("rate limited")})
		_, err := svc.Ask(context.Background(), "user-1", "q")
		assert.ErrorIs(t, err, ErrModelFailed)
		assert.Empty(t, publisher.published)
	})
}

func TestAskOwnerScoping(t *testing.T) {
	searcher := &fakeSearcher{}
	searcher.add("user-2", "someone else's secret", []float64{1})

	embedder := &fakeEmbedder{vectors: map[string][]float64{"q": {1}}}
	svc, _, _, _ := newTestRAGService(searcher, embedder, &fakeLLM{answer: "x"})

	result, err := svc.Ask(context.Background(), "user-1", "q")
	require.NoError(t, err)
	assert.True(t, result.NoContext, "other users' chunks must not be retrieved")
}

func TestAskPublishFailureDoesNotFailRequest(t *testing.T) {
	searcher := &fakeSearcher{}
	searcher.add("user-1", "text", []float64{1})
	embedder := &fakeEmbedder{vectors: map[string][]float64{"q": {1}}}
	svc, publisher, _, _ := newTestRAGService(searcher, embedder, &fakeLLM{answer: "ok"})
	publisher.err = errors.New("broker down")

	result, err := svc.Ask(context.Background(), "user-1", "q")
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Answer)
}

func TestAnswerContextJoinsChunks(t *testing.T) {
	searcher := &fakeSearcher{}
	searcher.add("user-1", "first", []float64{1, 0})
	searcher.add("user-1", "second", []float64{0.9, 0})

	embedder := &fakeEmbedder{vectors: map[string][]float64{"q": {1, 0}}}
	svc, _, _, _ := newTestRAGService(searcher, embedder, &fakeLLM{})

	rc, err := svc.AnswerContext(context.Background(), "user-1", "q")
	require.NoError(t, err)
	assert.Equal(t, "first\n\nsecond", rc.ContextText)
	assert.False(t, rc.Empty())
}

func TestGetHistory(t *testing.T) {
	searcher := &fakeSearcher{}
	embedder := &fakeEmbedder{}

	t.Run("cache hit served without the store", func(t *testing.T) {
		svc, _, cache, store := newTestRAGService(searcher, embedder, &fakeLLM{})
		cached := []model.ChatMessage{{UserID: "user-1", Question: "q", Answer: "a"}}
		cache.histories["user-1"] = cached

		got, err := svc.GetHistory("user-1", 10)
		require.NoError(t, err)
		assert.Equal(t, cached, got)
		assert.Zero(t, store.calls)
	})

	t.Run("dirty cache falls through to the store", func(t *testing.T) {
		svc, _, cache, store := newTestRAGService(searcher, embedder, &fakeLLM{})
		cache.histories["user-1"] = []model.ChatMessage{{Question: "stale"}}
		cache.dirty["user-1"] = true
		store.messages = []model.ChatMessage{{UserID: "user-1", Question: "fresh"}}

		got, err := svc.GetHistory("user-1", 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "fresh", got[0].Question)
		assert.Equal(t, 1, store.calls)
	})

	t.Run("miss populates the cache", func(t *testing.T) {
		svc, _, cache, store := newTestRAGService(searcher, embedder, &fakeLLM{})
		store.messages = []model.ChatMessage{{UserID: "user-1", Question: "q1"}}

		_, err := svc.GetHistory("user-1", 10)
		require.NoError(t, err)
		_, hit, _ := cache.GetHistory(context.Background(), "user-1")
		assert.True(t, hit)
	})

	t.Run("cache hit respects the limit", func(t *testing.T) {
		svc, _, cache, _ := newTestRAGService(searcher, embedder, &fakeLLM{})
		cache.histories["user-1"] = []model.ChatMessage{
			{Question: "q1"}, {Question: "q2"}, {Question: "q3"},
		}

		got, err := svc.GetHistory("user-1", 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "q2", got[0].Question)
		assert.Equal(t, "q3", got[1].Question)
	})

	t.Run("missing user rejected", func(t *testing.T) {
		svc, _, _, _ := newTestRAGService(searcher, embedder, &fakeLLM{})
		_, err := svc.GetHistory("", 10)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestAskInvalidatesHistoryCache(t *testing.T) {
	searcher := &fakeSearcher{}
	searcher.add("user-1", "text", []float64{1})
	embedder := &fakeEmbedder{vectors: map[string][]float64{"q": {1}}}
	svc, _, cache, _ := newTestRAGService(searcher, embedder, &fakeLLM{answer: "a"})
	cache.histories["user-1"] = []model.ChatMessage{{Question: "old"}}

	_, err := svc.Ask(context.Background(), "user-1", "q")
	require.NoError(t, err)

	assert.True(t, cache.dirty["user-1"])
	_, hit, _ := cache.GetHistory(context.Background(), "user-1")
	assert.False(t, hit)
}
