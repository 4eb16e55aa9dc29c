package app

import (
	"context"
	"errors"
	"log"
	"strings"

	"docuchat/internal/ai"
	"docuchat/internal/model"
)

const defaultTopK = 5

// NoContextMessage is returned (as a normal answer, not an error) when the
// user has no retrieval-eligible chunks yet.
const NoContextMessage = "I don't have any documents uploaded yet. Please upload and process some documents first, then generate embeddings for them."

var (
	ErrEmbeddingFailed = errors.New("failed to generate embedding for question")
	ErrSearchFailed    = errors.New("vector search failed")
	ErrModelFailed     = errors.New("failed to generate answer")
)

// Embedder turns text into an embedding vector. An empty vector means the
// text could not be embedded.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// LanguageModel generates an answer for a prompt, batch or streamed.
type LanguageModel interface {
	Complete(ctx context.Context, messages []ai.ChatMessage) (string, error)
	StreamComplete(ctx context.Context, messages []ai.ChatMessage, onChunk func(string) error) (string, error)
}

// SimilaritySearcher runs owner-scoped nearest-neighbor queries.
type SimilaritySearcher interface {
	Search(ownerID string, queryVec []float64, topK int) ([]model.Chunk, error)
}

// TranscriptPublisher hands a finished transcript to the async persistence
// pipeline.
type TranscriptPublisher interface {
	Publish(ctx context.Context, msg model.ChatMessage) error
}

// TranscriptStore reads persisted transcripts back for history requests.
type TranscriptStore interface {
	ListByUserID(userID string, limit int) ([]model.ChatMessage, error)
}

// HistoryCache is the read-through cache for a user's transcript history.
type HistoryCache interface {
	GetHistory(ctx context.Context, userID string) ([]model.ChatMessage, bool, error)
	SetHistory(ctx context.Context, userID string, messages []model.ChatMessage) error
	DeleteHistory(ctx context.Context, userID string) error
	MarkDirty(ctx context.Context, userID string) error
	IsDirty(ctx context.Context, userID string) (bool, error)
}

// RAGService answers questions from a user's ingested documents: embed the
// question, retrieve the nearest chunks, build a context-grounded prompt and
// call the model.
type RAGService struct {
	similarity   SimilaritySearcher
	embedder     Embedder
	llm          LanguageModel
	publisher    TranscriptPublisher
	historyCache HistoryCache
	messageRepo  TranscriptStore
	topK         int
}

func NewRAGService(
	similarity SimilaritySearcher,
	embedder Embedder,
	llm LanguageModel,
	publisher TranscriptPublisher,
	historyCache HistoryCache,
	messageRepo TranscriptStore,
	topK int,
) *RAGService {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &RAGService{
		similarity:   similarity,
		embedder:     embedder,
		llm:          llm,
		publisher:    publisher,
		historyCache: historyCache,
		messageRepo:  messageRepo,
		topK:         topK,
	}
}

// RetrievedContext is the outcome of the retrieval stage. Zero chunks is a
// normal state (nothing ingested yet), not an error.
type RetrievedContext struct {
	ContextText string        `json:"-"`
	Chunks      []model.Chunk `json:"chunks"`
}

func (rc *RetrievedContext) Empty() bool {
	return len(rc.Chunks) == 0
}

// AnswerContext embeds the question and retrieves the top-K chunks for the
// user. Each stage is a failure boundary: embedding problems surface as
// ErrEmbeddingFailed, store problems as ErrSearchFailed with the cause
// logged but not exposed.
func (s *RAGService) AnswerContext(ctx context.Context, userID, question string) (*RetrievedContext, error) {
	queryVec, err := s.embedder.Embed(ctx, question)
	if err != nil || len(queryVec) == 0 {
		if err != nil {
			log.Printf("embed question failed: %v", err)
		}
		return nil, ErrEmbeddingFailed
	}

	chunks, err := s.similarity.Search(userID, queryVec, s.topK)
	if err != nil {
		log.Printf("similarity search failed: %v", err)
		return nil, ErrSearchFailed
	}
	if len(chunks) == 0 {
		return &RetrievedContext{}, nil
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}
	return &RetrievedContext{
		ContextText: strings.Join(texts, "\n\n"),
		Chunks:      chunks,
	}, nil
}

// AskResult is the batch answer plus the chunks it was grounded on.
type AskResult struct {
	Answer    string        `json:"answer"`
	Chunks    []model.Chunk `json:"chunks,omitempty"`
	NoContext bool          `json:"no_context,omitempty"`
}

// Ask runs the full pipeline and returns a single answer. The transcript is
// persisted best-effort after the answer is produced.
func (s *RAGService) Ask(ctx context.Context, userID, question string) (*AskResult, error) {
	question = strings.TrimSpace(question)
	if userID == "" || question == "" {
		return nil, ErrInvalidInput
	}

	rc, err := s.AnswerContext(ctx, userID, question)
	if err != nil {
		return nil, err
	}
	if rc.Empty() {
		return &AskResult{Answer: NoContextMessage, NoContext: true}, nil
	}

	answer, err := s.llm.Complete(ctx, buildPrompt(rc.ContextText, question))
	if err != nil {
		log.Printf("llm completion failed: %v", err)
		return nil, ErrModelFailed
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = "The model returned an empty response."
	}

	s.persistTranscript(ctx, userID, question, answer)

	return &AskResult{Answer: answer, Chunks: rc.Chunks}, nil
}

// GetHistory returns the user's recent transcripts, served from the redis
// cache when it is fresh.
func (s *RAGService) GetHistory(userID string, limit int) ([]model.ChatMessage, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}

	ctx := context.Background()
	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, userID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, userID); cacheErr == nil && hit {
				return trimMessages(cached, limit), nil
			}
		}
	}

	messages, err := s.messageRepo.ListByUserID(userID, limit)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, userID); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, userID, messages)
		}
	}
	return messages, nil
}

// persistTranscript hands the finished transcript to the async persistence
// queue. Failures are logged and never surfaced to the request.
func (s *RAGService) persistTranscript(ctx context.Context, userID, question, answer string) {
	if s.historyCache != nil {
		_ = s.historyCache.MarkDirty(ctx, userID)
		_ = s.historyCache.DeleteHistory(ctx, userID)
	}
	if s.publisher == nil {
		log.Printf("transcript publisher not configured, dropping transcript for user %s", userID)
		return
	}
	msg := model.ChatMessage{
		UserID:   userID,
		Question: question,
		Answer:   answer,
	}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		log.Printf("publish transcript failed: %v", err)
	}
}

func buildPrompt(contextText, question string) []ai.ChatMessage {
	system := `You are an AI assistant. Use ONLY the following context to answer the user's question. If the answer is not found in the context, say "I don't have information about that." Do not make up facts.`
	user := "CONTEXT:\n" + contextText + "\n\nQUESTION:\n" + question + "\n\nANSWER:"
	return []ai.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}

func trimMessages(messages []model.ChatMessage, limit int) []model.ChatMessage {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}
