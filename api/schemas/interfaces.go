// Adapter contracts. The orchestrator is injected with implementations of
// these interfaces and never constructs an adapter itself.
package schemas

import "context"

// CompletionService is the boundary to the text/vision completion backend.
// Implementations must surface transport problems as errors; callers map
// them to the retryable "empty/failure" cases.
type CompletionService interface {
	// Abstract strips literal payload values from an instruction, producing
	// the retrieval key ("Type 'Hello' into Notepad" -> "Type text into a
	// text editor").
	Abstract(ctx context.Context, instruction string) (string, error)

	// GenerateCode produces an executable automation script, or an empty
	// string when the model returns nothing usable.
	GenerateCode(ctx context.Context, req GenerateRequest) (string, error)

	// Judge compares the before/after state against the instruction and
	// returns the raw verdict text. The contract is token based: a verdict
	// containing "SUCCESS" (any case) means success, anything else failure.
	Judge(ctx context.Context, req JudgeRequest) (string, error)
}

// TextDetector returns every text block visible in an image.
type TextDetector interface {
	Detect(ctx context.Context, imagePath string) ([]TextBlock, error)
}

// ScreenCapturer persists a capture of the current screen state and reports
// the screen dimensions used for prompt construction.
type ScreenCapturer interface {
	// Capture writes a timestamped image named after prefix and returns its
	// path. The caller owns the file and is responsible for cleanup.
	Capture(ctx context.Context, prefix string) (string, error)
	ScreenSize(ctx context.Context) (ScreenSize, error)
}

// CodeExecutor launches generated code as a detached process. Launch must
// not block on script completion; the orchestrator synchronizes with a
// fixed settle interval and a best-effort crash check instead.
type CodeExecutor interface {
	Launch(ctx context.Context, code string) error
	// CrashOutput returns the contents of the script's error artifact, or
	// an empty string when the script has produced none.
	CrashOutput() (string, error)
	// Artifacts lists every file the executor has created so the session
	// can release them.
	Artifacts() []string
}

// KnowledgeStore indexes confirmed episodes by semantic similarity of
// their abstract prompts.
type KnowledgeStore interface {
	// Query returns up to topK examples most similar to the key. An empty
	// store yields an empty, non-error result.
	Query(ctx context.Context, key string, topK int) ([]RetrievedExample, error)
	Insert(ctx context.Context, entry KnowledgeEntry) error
	List(ctx context.Context) ([]KnowledgeEntry, error)
	Close()
}

// Embedder computes the vector representation used for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Strategy judges whether one attempt achieved the instruction. Strategies
// return a verdict only and never mutate session state.
type Strategy interface {
	Verify(ctx context.Context, instruction, code, beforeImage, afterImage string) (bool, error)
}
