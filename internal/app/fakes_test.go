package app

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"docuchat/internal/ai"
	"docuchat/internal/model"
)

type fakeEmbedder struct {
	mu        sync.Mutex
	vectors   map[string][]float64
	err       error
	delay     time.Duration
	calls     int
	active    int
	maxActive int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	f.mu.Lock()
	f.calls++
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.active--
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	return f.vectors[text], nil
}

type storedChunk struct {
	chunk model.Chunk
	vec   []float64
}

// fakeSearcher ranks stored chunks by euclidean distance, mirroring the
// pgvector <-> operator.
type fakeSearcher struct {
	stored []storedChunk
	err    error
}

func (f *fakeSearcher) add(userID, text string, vec []float64) {
	f.stored = append(f.stored, storedChunk{
		chunk: model.Chunk{ID: text, UserID: userID, Text: text},
		vec:   vec,
	})
}

func (f *fakeSearcher) Search(ownerID string, queryVec []float64, topK int) ([]model.Chunk, error) {
	if f.err != nil {
		return nil, f.err
	}

	type ranked struct {
		chunk model.Chunk
		dist  float64
	}
	var matches []ranked
	for _, sc := range f.stored {
		if sc.chunk.UserID != ownerID {
			continue
		}
		var sum float64
		for i := range queryVec {
			d := queryVec[i] - sc.vec[i]
			sum += d * d
		}
		matches = append(matches, ranked{chunk: sc.chunk, dist: math.Sqrt(sum)})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].dist < matches[j].dist })

	if topK < len(matches) {
		matches = matches[:topK]
	}
	out := make([]model.Chunk, len(matches))
	for i, m := range matches {
		out[i] = m.chunk
	}
	return out, nil
}

type fakeLLM struct {
	answer    string
	tokens    []string
	err       error
	streamErr error
	prompts   [][]ai.ChatMessage
}

func (f *fakeLLM) Complete(_ context.Context, messages []ai.ChatMessage) (string, error) {
	f.prompts = append(f.prompts, messages)
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeLLM) StreamComplete(_ context.Context, messages []ai.ChatMessage, onChunk func(string) error) (string, error) {
	f.prompts = append(f.prompts, messages)
	if f.streamErr != nil {
		return "", f.streamErr
	}
	var full string
	for _, tok := range f.tokens {
		full += tok
		if err := onChunk(tok); err != nil {
			return full, err
		}
	}
	return full, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []model.ChatMessage
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, msg model.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

type fakeTranscriptStore struct {
	messages []model.ChatMessage
	err      error
	calls    int
}

func (f *fakeTranscriptStore) ListByUserID(userID string, limit int) ([]model.ChatMessage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []model.ChatMessage
	for _, m := range f.messages {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	if limit > 0 && limit < len(out) {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type fakeHistoryCache struct {
	histories map[string][]model.ChatMessage
	dirty     map[string]bool
	deletes   int
	marks     int
}

func newFakeHistoryCache() *fakeHistoryCache {
	return &fakeHistoryCache{
		histories: make(map[string][]model.ChatMessage),
		dirty:     make(map[string]bool),
	}
}

func (f *fakeHistoryCache) GetHistory(_ context.Context, userID string) ([]model.ChatMessage, bool, error) {
	msgs, ok := f.histories[userID]
	return msgs, ok, nil
}

func (f *fakeHistoryCache) SetHistory(_ context.Context, userID string, messages []model.ChatMessage) error {
	f.histories[userID] = messages
	return nil
}

func (f *fakeHistoryCache) DeleteHistory(_ context.Context, userID string) error {
	delete(f.histories, userID)
	f.deletes++
	return nil
}

func (f *fakeHistoryCache) MarkDirty(_ context.Context, userID string) error {
	f.dirty[userID] = true
	f.marks++
	return nil
}

func (f *fakeHistoryCache) IsDirty(_ context.Context, userID string) (bool, error) {
	return f.dirty[userID], nil
}

// collectSink records frames and can simulate a consumer that disconnects
// after a fixed number of sends.
type collectSink struct {
	frames    []Frame
	failAfter int
}

var errConsumerGone = errors.New("consumer gone")

func newCollectSink() *collectSink {
	return &collectSink{failAfter: -1}
}

func (s *collectSink) Send(f Frame) error {
	if s.failAfter >= 0 && len(s.frames) >= s.failAfter {
		return errConsumerGone
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *collectSink) terminalFrames() []Frame {
	var out []Frame
	for _, f := range s.frames {
		if f.Done || f.Error != "" {
			out = append(out, f)
		}
	}
	return out
}

type fakeDocStore struct {
	docs map[string]*model.Document
	err  error
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{docs: make(map[string]*model.Document)}
}

func (f *fakeDocStore) Create(doc *model.Document) error {
	if f.err != nil {
		return f.err
	}
	if doc.ID == "" {
		doc.ID = "doc-" + doc.Name
	}
	cp := *doc
	f.docs[doc.ID] = &cp
	return nil
}

func (f *fakeDocStore) ListByUserID(userID string) ([]model.Document, error) {
	var out []model.Document
	for _, d := range f.docs {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDocStore) GetByIDAndUserID(id, userID string) (*model.Document, error) {
	d, ok := f.docs[id]
	if !ok || d.UserID != userID {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDocStore) DeleteByIDAndUserID(id, userID string) error {
	d, ok := f.docs[id]
	if ok && d.UserID == userID {
		delete(f.docs, id)
	}
	return nil
}

type fakeChunkStore struct {
	mu         sync.Mutex
	chunks     []model.Chunk
	upsertErr  map[string]error
	upserted   []string
	cleanupRet int64
	validRet   int64
}

func (f *fakeChunkStore) CreateBatch(chunks []model.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range chunks {
		if chunks[i].ID == "" {
			chunks[i].ID = chunks[i].Text
		}
	}
	f.chunks = append(f.chunks, chunks...)
	return nil
}

func (f *fakeChunkStore) ListByDocumentID(documentID, userID string) ([]model.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Chunk
	for _, c := range f.chunks {
		if c.DocumentID == documentID && c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeChunkStore) UpsertEmbedding(chunkID string, vec []float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.upsertErr[chunkID]; err != nil {
		return err
	}
	f.upserted = append(f.upserted, chunkID)
	return nil
}

func (f *fakeChunkStore) DeleteByDocumentID(documentID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.chunks[:0]
	for _, c := range f.chunks {
		if !(c.DocumentID == documentID && c.UserID == userID) {
			kept = append(kept, c)
		}
	}
	f.chunks = kept
	return nil
}

func (f *fakeChunkStore) CleanupInvalid(ownerID string) (int64, error) {
	return f.cleanupRet, nil
}

func (f *fakeChunkStore) CountValid(ownerID string) (int64, error) {
	return f.validRet, nil
}
