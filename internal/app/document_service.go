package app

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"docuchat/internal/chunker"
	"docuchat/internal/model"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrNoChunks         = errors.New("no chunks found for document")
)

// DocumentStore is the persistence surface for document rows.
// *repository.DocumentRepository satisfies it.
type DocumentStore interface {
	Create(doc *model.Document) error
	ListByUserID(userID string) ([]model.Document, error)
	GetByIDAndUserID(id, userID string) (*model.Document, error)
	DeleteByIDAndUserID(id, userID string) error
}

// ChunkStore is the persistence surface the chunk lifecycle needs.
// *repository.ChunkRepository satisfies it.
type ChunkStore interface {
	CreateBatch(chunks []model.Chunk) error
	ListByDocumentID(documentID, userID string) ([]model.Chunk, error)
	UpsertEmbedding(chunkID string, vec []float64) error
	DeleteByDocumentID(documentID, userID string) error
	CleanupInvalid(ownerID string) (int64, error)
	CountValid(ownerID string) (int64, error)
}

// DocumentService owns the ingestion side: chunking uploaded text, attaching
// embeddings, and the cleanup pass for invalid rows.
type DocumentService struct {
	docRepo        DocumentStore
	chunks         ChunkStore
	embedder       Embedder
	chunkMaxLength int
	concurrency    int
}

func NewDocumentService(
	docRepo DocumentStore,
	chunks ChunkStore,
	embedder Embedder,
	chunkMaxLength int,
	concurrency int,
) *DocumentService {
	if chunkMaxLength <= 0 {
		chunkMaxLength = chunker.DefaultMaxLength
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &DocumentService{
		docRepo:        docRepo,
		chunks:         chunks,
		embedder:       embedder,
		chunkMaxLength: chunkMaxLength,
		concurrency:    concurrency,
	}
}

type IngestInput struct {
	UserID  string
	Name    string
	Content string
}

type IngestResult struct {
	Document   model.Document `json:"document"`
	ChunkCount int            `json:"chunk_count"`
}

// Ingest splits the content into fragments and persists them without
// embeddings. Embedding is a separate step so a slow or failing provider
// never blocks the upload.
func (s *DocumentService) Ingest(input IngestInput) (*IngestResult, error) {
	if input.UserID == "" {
		return nil, ErrInvalidInput
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrInvalidInput
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = "Untitled"
	}

	fragments := chunker.Split(content, s.chunkMaxLength)
	if len(fragments) == 0 {
		return nil, ErrInvalidInput
	}

	doc := &model.Document{
		UserID: input.UserID,
		Name:   name,
		Text:   content,
	}
	if err := s.docRepo.Create(doc); err != nil {
		return nil, err
	}

	rows := make([]model.Chunk, len(fragments))
	for i, text := range fragments {
		rows[i] = model.Chunk{
			UserID:     input.UserID,
			DocumentID: doc.ID,
			Text:       text,
		}
	}
	if err := s.chunks.CreateBatch(rows); err != nil {
		return nil, err
	}

	return &IngestResult{Document: *doc, ChunkCount: len(rows)}, nil
}

type EmbedResult struct {
	Embedded int `json:"embedded"`
	Skipped  int `json:"skipped"`
}

// EmbedDocument embeds each chunk of the document with bounded concurrency.
// A chunk whose embedding fails (provider error, empty vector, write error)
// is counted and skipped; one bad chunk never fails the batch.
func (s *DocumentService) EmbedDocument(ctx context.Context, userID, documentID string) (*EmbedResult, error) {
	if userID == "" || documentID == "" {
		return nil, ErrInvalidInput
	}

	doc, err := s.docRepo.GetByIDAndUserID(documentID, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}

	chunks, err := s.chunks.ListByDocumentID(documentID, userID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		embedded int
		skipped  int
	)
	sem := make(chan struct{}, s.concurrency)

	for i := range chunks {
		chunk := chunks[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			vec, embedErr := s.embedder.Embed(ctx, chunk.Text)
			if embedErr != nil || len(vec) == 0 {
				log.Printf("embed chunk %s skipped: %v", chunk.ID, embedErr)
				mu.Lock()
				skipped++
				mu.Unlock()
				return
			}
			if upsertErr := s.chunks.UpsertEmbedding(chunk.ID, vec); upsertErr != nil {
				log.Printf("store embedding for chunk %s skipped: %v", chunk.ID, upsertErr)
				mu.Lock()
				skipped++
				mu.Unlock()
				return
			}
			mu.Lock()
			embedded++
			mu.Unlock()
		}()
	}
	wg.Wait()

	return &EmbedResult{Embedded: embedded, Skipped: skipped}, nil
}

func (s *DocumentService) ListDocuments(userID string) ([]model.Document, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.docRepo.ListByUserID(userID)
}

// DeleteDocument removes a document and its chunks.
func (s *DocumentService) DeleteDocument(userID, documentID string) error {
	if userID == "" || documentID == "" {
		return ErrInvalidInput
	}
	doc, err := s.docRepo.GetByIDAndUserID(documentID, userID)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrDocumentNotFound
	}
	if err := s.chunks.DeleteByDocumentID(documentID, userID); err != nil {
		return err
	}
	return s.docRepo.DeleteByIDAndUserID(documentID, userID)
}

type CleanupResult struct {
	Removed        int64 `json:"removed"`
	RemainingValid int64 `json:"remaining_valid"`
}

// Cleanup deletes the user's chunks with NULL or zero-dimension embeddings.
func (s *DocumentService) Cleanup(userID string) (*CleanupResult, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	removed, err := s.chunks.CleanupInvalid(userID)
	if err != nil {
		return nil, err
	}
	valid, err := s.chunks.CountValid(userID)
	if err != nil {
		return nil, err
	}
	return &CleanupResult{Removed: removed, RemainingValid: valid}, nil
}
