package app

import (
	"context"
	"errors"
	"log"
	"strings"
)

// Frame is one event of the streaming answer protocol. Token frames carry
// Content with Done unset; the terminal frame is either Done=true or an
// Error, never both, and nothing follows it.
type Frame struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Error   string `json:"error,omitempty"`
}

// FrameSink receives ordered frames. A Send error marks the consumer as
// gone; the stream stops emitting but never propagates the failure.
type FrameSink interface {
	Send(Frame) error
}

var errSinkClosed = errors.New("stream consumer disconnected")

// answerStream enforces the terminal-frame invariant: at most one terminal
// frame per call, and all writes after the terminal frame or after a sink
// failure are no-ops.
type answerStream struct {
	sink       FrameSink
	dead       bool
	terminated bool
}

func (st *answerStream) send(f Frame) {
	if st.dead || st.terminated {
		return
	}
	if err := st.sink.Send(f); err != nil {
		st.dead = true
	}
}

func (st *answerStream) token(text string) {
	st.send(Frame{Content: text})
}

func (st *answerStream) finish(text string) {
	st.send(Frame{Content: text, Done: true})
	st.terminated = true
}

func (st *answerStream) fail(message string) {
	st.send(Frame{Error: message})
	st.terminated = true
}

// StreamAnswer runs the retrieval pipeline and streams the generated answer
// into sink. Exactly one terminal frame is emitted: an informational
// done=true frame when the user has no documents, an error frame on any
// pipeline or model failure, or an empty done=true frame after the last
// token. The transcript is persisted best-effort after the terminal frame.
func (s *RAGService) StreamAnswer(ctx context.Context, userID, question string, sink FrameSink) {
	st := &answerStream{sink: sink}

	question = strings.TrimSpace(question)
	if userID == "" || question == "" {
		st.fail("question is required")
		return
	}

	rc, err := s.AnswerContext(ctx, userID, question)
	if err != nil {
		st.fail(userFacingMessage(err))
		return
	}
	if rc.Empty() {
		// Not an error: nothing ingested yet.
		st.finish(NoContextMessage)
		return
	}

	full, err := s.llm.StreamComplete(ctx, buildPrompt(rc.ContextText, question), func(token string) error {
		st.token(token)
		if st.dead {
			return errSinkClosed
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errSinkClosed) || ctx.Err() != nil {
			log.Printf("answer stream stopped early for user %s: %v", userID, err)
			return
		}
		log.Printf("llm stream failed: %v", err)
		st.fail(userFacingMessage(ErrModelFailed))
		return
	}

	st.finish("")

	full = strings.TrimSpace(full)
	if full == "" {
		full = "The model returned an empty response."
	}
	// The stream is already terminated; persistence failures only get logged.
	s.persistTranscript(context.WithoutCancel(ctx), userID, question, full)
}

// userFacingMessage maps pipeline failures to messages safe to show to end
// users; the underlying causes are only ever logged.
func userFacingMessage(err error) string {
	switch {
	case errors.Is(err, ErrEmbeddingFailed):
		return "Failed to process your question. Please try again."
	case errors.Is(err, ErrSearchFailed):
		return "Error searching documents. Please ensure embeddings have been generated for your files."
	case errors.Is(err, ErrModelFailed):
		return "Failed to generate answer. Please try again."
	default:
		return "Something went wrong."
	}
}
