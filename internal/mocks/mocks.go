// Package mocks provides testify mocks for the adapter contracts defined
// in api/schemas.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
)

// -- Completion Mock --

// MockCompletionService mocks schemas.CompletionService.
type MockCompletionService struct {
	mock.Mock
}

func (m *MockCompletionService) Abstract(ctx context.Context, instruction string) (string, error) {
	args := m.Called(ctx, instruction)
	return args.String(0), args.Error(1)
}

func (m *MockCompletionService) GenerateCode(ctx context.Context, req schemas.GenerateRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockCompletionService) Judge(ctx context.Context, req schemas.JudgeRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// -- Text Detector Mock --

// MockTextDetector mocks schemas.TextDetector.
type MockTextDetector struct {
	mock.Mock
}

func (m *MockTextDetector) Detect(ctx context.Context, imagePath string) ([]schemas.TextBlock, error) {
	args := m.Called(ctx, imagePath)
	if blocks, ok := args.Get(0).([]schemas.TextBlock); ok {
		return blocks, args.Error(1)
	}
	return nil, args.Error(1)
}

// -- Screen Capturer Mock --

// MockScreenCapturer mocks schemas.ScreenCapturer.
type MockScreenCapturer struct {
	mock.Mock
}

func (m *MockScreenCapturer) Capture(ctx context.Context, prefix string) (string, error) {
	args := m.Called(ctx, prefix)
	return args.String(0), args.Error(1)
}

func (m *MockScreenCapturer) ScreenSize(ctx context.Context) (schemas.ScreenSize, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.ScreenSize), args.Error(1)
}

// -- Code Executor Mock --

// MockCodeExecutor mocks schemas.CodeExecutor.
type MockCodeExecutor struct {
	mock.Mock
}

func (m *MockCodeExecutor) Launch(ctx context.Context, code string) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

func (m *MockCodeExecutor) CrashOutput() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *MockCodeExecutor) Artifacts() []string {
	args := m.Called()
	if paths, ok := args.Get(0).([]string); ok {
		return paths
	}
	return nil
}

// -- Knowledge Store Mock --

// MockKnowledgeStore mocks schemas.KnowledgeStore.
type MockKnowledgeStore struct {
	mock.Mock
}

func (m *MockKnowledgeStore) Query(ctx context.Context, key string, topK int) ([]schemas.RetrievedExample, error) {
	args := m.Called(ctx, key, topK)
	if examples, ok := args.Get(0).([]schemas.RetrievedExample); ok {
		return examples, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockKnowledgeStore) Insert(ctx context.Context, entry schemas.KnowledgeEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockKnowledgeStore) List(ctx context.Context) ([]schemas.KnowledgeEntry, error) {
	args := m.Called(ctx)
	if entries, ok := args.Get(0).([]schemas.KnowledgeEntry); ok {
		return entries, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockKnowledgeStore) Close() {
	m.Called()
}

// -- Embedder Mock --

// MockEmbedder mocks schemas.Embedder.
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if vec, ok := args.Get(0).([]float32); ok {
		return vec, args.Error(1)
	}
	return nil, args.Error(1)
}

// -- Strategy Mock --

// MockStrategy mocks schemas.Strategy.
type MockStrategy struct {
	mock.Mock
}

func (m *MockStrategy) Verify(ctx context.Context, instruction, code, beforeImage, afterImage string) (bool, error) {
	args := m.Called(ctx, instruction, code, beforeImage, afterImage)
	return args.Bool(0), args.Error(1)
}
