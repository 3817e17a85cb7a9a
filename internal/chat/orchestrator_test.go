// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Robdel12/DraftPatch/internal/llm"
	"github.com/Robdel12/DraftPatch/internal/model"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

// memRepo is an in-memory Repository recording call ordering.
type memRepo struct {
	mu sync.Mutex

	threads map[string]*model.Thread
	models  []llm.ChatModel

	// insertedWith records how many messages each thread had when it was
	// first inserted, keyed by thread ID.
	insertedWith map[string]int
	saveCount    int

	insertErr error
	saveErr   error
}

func newMemRepo() *memRepo {
	return &memRepo{
		threads:      make(map[string]*model.Thread),
		insertedWith: make(map[string]int),
	}
}

func (r *memRepo) FetchThreads(ctx context.Context) ([]*model.Thread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Thread
	for _, t := range r.threads {
		out = append(out, t)
	}
	return out, nil
}

func (r *memRepo) FetchModels(ctx context.Context) ([]llm.ChatModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]llm.ChatModel(nil), r.models...), nil
}

func (r *memRepo) InsertThread(ctx context.Context, t *model.Thread) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.insertedWith[t.ID] = len(t.Messages)
	r.threads[t.ID] = t
	return nil
}

func (r *memRepo) SaveThread(ctx context.Context, t *model.Thread) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saveCount++
	r.threads[t.ID] = t
	return nil
}

func (r *memRepo) DeleteThread(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.threads, id)
	return nil
}

func (r *memRepo) SaveModels(ctx context.Context, models []llm.ChatModel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = append([]llm.ChatModel(nil), models...)
	return nil
}

// fixedCapture is a capture source with scripted output.
type fixedCapture struct {
	text string
	ext  string
}

func (f *fixedCapture) CapturedText(_ context.Context) (string, string) {
	return f.text, f.ext
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// newTestOrchestrator wires a mock service for Ollama behind a real
// manager and registry, with one enabled model selected.
func newTestOrchestrator(t *testing.T, svc *llm.MockService) (*Orchestrator, *memRepo) {
	t.Helper()
	registry := llm.NewRegistry(map[llm.Provider]llm.Service{
		svc.Provider(): svc,
	})
	manager := llm.NewManager(registry).WithLogger(quietLogger())
	repo := newMemRepo()

	orch := NewOrchestrator(manager, repo).
		WithLogger(quietLogger()).
		WithBuffer(NewTokenBufferWithConfig(1, 60))
	orch.SetModels([]llm.ChatModel{llm.NewChatModel("test-model", svc.Provider())})
	return orch, repo
}

// =============================================================================
// STREAMING TESTS
// =============================================================================

func TestSendMessage_DeliversAllFragmentsInOrder(t *testing.T) {
	svc := llm.NewMockService(llm.ProviderOllama)
	svc.Fragments = []string{"Hel", "lo", ", ", "world", "!"}
	orch, _ := newTestOrchestrator(t, svc)

	if err := orch.SendMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	thread := orch.Thread()
	if thread == nil {
		t.Fatal("No active thread after send")
	}
	last := thread.LastMessage()
	if last.Role != model.RoleAssistant {
		t.Fatalf("Last message role = %s", last.Role)
	}
	if last.Streaming {
		t.Error("Assistant message should be finalized")
	}
	if got := last.DisplayContent(); got != "Hello, world!" {
		t.Errorf("Content = %q, want %q", got, "Hello, world!")
	}
}

func TestSendMessage_ConcurrentRendererSeesConsistentThread(t *testing.T) {
	// A renderer on another goroutine reads Thread() on every change
	// notification while the stream appends. Run with -race: the
	// snapshot it gets must always be a prefix of the final reply.
	svc := llm.NewMockService(llm.ProviderOllama)
	fragments := make([]string, 200)
	for i := range fragments {
		fragments[i] = "token "
	}
	svc.Fragments = fragments
	orch, _ := newTestOrchestrator(t, svc)

	changes := make(chan struct{}, 1)
	orch.OnChange(func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	})

	want := strings.Repeat("token ", len(fragments))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range changes {
			thread := orch.Thread()
			if thread == nil {
				continue
			}
			last := thread.LastMessage()
			if last == nil {
				continue
			}
			if got := last.DisplayContent(); !strings.HasPrefix(want, got) {
				t.Errorf("observed content %q is not a prefix of the reply", got)
				return
			}
		}
	}()

	if err := orch.SendMessage(context.Background(), "hello"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	close(changes)
	<-done

	if got := orch.Thread().LastMessage().DisplayContent(); got != want {
		t.Errorf("final content length = %d, want %d", len(got), len(want))
	}
}

func TestSendMessage_CoalescedFinalFlushLosesNothing(t *testing.T) {
	// A large batch size means nothing flushes during the stream; the
	// terminal force-flush must still deliver every fragment.
	svc := llm.NewMockService(llm.ProviderOllama)
	svc.Fragments = []string{"a", "b", "c"}
	orch, _ := newTestOrchestrator(t, svc)
	orch.WithBuffer(NewTokenBufferWithConfig(1000, 1))

	if err := orch.SendMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if got := orch.Thread().LastMessage().DisplayContent(); got != "abc" {
		t.Errorf("Content = %q, want abc", got)
	}
}

func TestSendMessage_PayloadHistoryIsChronological(t *testing.T) {
	svc := llm.NewMockService(llm.ProviderOllama)
	svc.Fragments = []string{"first reply"}
	orch, _ := newTestOrchestrator(t, svc)
	ctx := context.Background()

	if err := orch.SendMessage(ctx, "first question"); err != nil {
		t.Fatalf("First send failed: %v", err)
	}
	svc.Fragments = []string{"second reply"}
	if err := orch.SendMessage(ctx, "second question"); err != nil {
		t.Fatalf("Second send failed: %v", err)
	}

	calls := svc.StreamCalls()
	if len(calls) != 2 {
		t.Fatalf("Stream calls = %d, want 2", len(calls))
	}
	second := calls[1]
	var contents []string
	for _, p := range second.Messages {
		contents = append(contents, p.Content)
	}
	want := []string{"first question", "first reply", "second question"}
	if len(contents) != len(want) {
		t.Fatalf("Payload count = %d (%v), want %d", len(contents), contents, len(want))
	}
	for i := range want {
		if contents[i] != want[i] {
			t.Errorf("Payload[%d] = %q, want %q", i, contents[i], want[i])
		}
	}
}

// =============================================================================
// DRAFT PROMOTION TESTS
// =============================================================================

func TestSendMessage_PromotesDraftBeforeFirstMessage(t *testing.T) {
	svc := llm.NewMockService(llm.ProviderOllama)
	svc.Fragments = []string{"reply"}
	orch, repo := newTestOrchestrator(t, svc)

	draft := orch.NewThread()
	if !draft.Draft {
		t.Fatal("NewThread should produce a draft")
	}

	if err := orch.SendMessage(context.Background(), "hello"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if draft.Draft {
		t.Error("Thread should no longer be a draft after send")
	}
	count, inserted := repo.insertedWith[draft.ID]
	if !inserted {
		t.Fatal("Draft was never inserted")
	}
	if count != 0 {
		t.Errorf("Thread was inserted with %d messages; promotion must precede the user append", count)
	}
}

func TestSendMessage_InsertsDraftOnlyOnce(t *testing.T) {
	svc := llm.NewMockService(llm.ProviderOllama)
	svc.Fragments = []string{"reply"}
	orch, repo := newTestOrchestrator(t, svc)
	ctx := context.Background()

	if err := orch.SendMessage(ctx, "one"); err != nil {
		t.Fatalf("First send failed: %v", err)
	}
	if err := orch.SendMessage(ctx, "two"); err != nil {
		t.Fatalf("Second send failed: %v", err)
	}
	if len(repo.insertedWith) != 1 {
		t.Errorf("Insert count = %d, want 1", len(repo.insertedWith))
	}
}

func TestSendMessage_InsertFailureDoesNotAbort(t *testing.T) {
	svc := llm.NewMockService(llm.ProviderOllama)
	svc.Fragments = []string{"reply"}
	orch, repo := newTestOrchestrator(t, svc)
	repo.insertErr = errors.New("disk full")

	if err := orch.SendMessage(context.Background(), "hello"); err != nil {
		t.Fatalf("SendMessage should recover from repository failure, got %v", err)
	}
	if got := orch.Thread().LastMessage().DisplayContent(); got != "reply" {
		t.Errorf("Content = %q", got)
	}
}

// =============================================================================
// CANCELLATION TESTS
// =============================================================================

func TestSendMessage_CancellationKeepsPartialText(t *testing.T) {
	svc := llm.NewMockService(llm.ProviderOllama)
	svc.StreamDelay = 5 * time.Millisecond
	for i := 0; i < 200; i++ {
		svc.Fragments = append(svc.Fragments, "x")
	}
	orch, _ := newTestOrchestrator(t, svc)

	done := make(chan error, 1)
	go func() {
		done <- orch.SendMessage(context.Background(), "hello")
	}()

	// Let a few fragments land, then cancel.
	time.Sleep(40 * time.Millisecond)
	orch.CancelStreaming()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Cancellation must not surface as an error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SendMessage did not return after cancellation")
	}

	last := orch.Thread().LastMessage()
	if last.Streaming {
		t.Error("Message should be finalized after cancellation")
	}
	content := last.DisplayContent()
	if content == "" {
		t.Error("Partial text should be preserved")
	}
	if len(content) >= 200 {
		t.Error("Stream should have been cut short")
	}
	if orch.Thinking() {
		t.Error("Thinking should be reset")
	}

	// Repeated cancellation is a no-op.
	orch.CancelStreaming()
	orch.CancelStreaming()
}

func TestCancelStreaming_IdleIsNoOp(t *testing.T) {
	svc := llm.NewMockService(llm.ProviderOllama)
	orch, _ := newTestOrchestrator(t, svc)
	orch.CancelStreaming()
}

func TestSendMessage_RejectsConcurrentSend(t *testing.T) {
	svc := llm.NewMockService(llm.ProviderOllama)
	svc.StreamDelay = 10 * time.Millisecond
	svc.Fragments = []string{"a", "b", "c", "d", "e"}
	orch, _ := newTestOrchestrator(t, svc)

	done := make(chan error, 1)
	go func() {
		done <- orch.SendMessage(context.Background(), "hello")
	}()
	time.Sleep(15 * time.Millisecond)

	if err := orch.SendMessage(context.Background(), "again"); !errors.Is(err, ErrStreamInProgress) {
		t.Errorf("Expected ErrStreamInProgress, got %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Original send failed: %v", err)
	}
}

// =============================================================================
// FAILURE TESTS
// =============================================================================

func TestSendMessage_StreamFailureKeepsPartialText(t *testing.T) {
	svc := llm.NewMockService(llm.ProviderOllama)
	svc.Fragments = []string{"partial ", "text"}
	svc.StreamErr = &llm.NetworkError{Provider: llm.ProviderOllama, Cause: errors.New("connection reset")}
	orch, repo := newTestOrchestrator(t, svc)

	err := orch.SendMessage(context.Background(), "hello")
	if err == nil {
		t.Fatal("Stream failure should surface an error")
	}
	var netErr *llm.NetworkError
	if !errors.As(err, &netErr) {
		t.Errorf("Error type = %T", err)
	}

	last := orch.Thread().LastMessage()
	if last.Streaming {
		t.Error("Message should be finalized after failure")
	}
	if got := last.DisplayContent(); got != "partial text" {
		t.Errorf("Partial content = %q", got)
	}
	if repo.saveCount == 0 {
		t.Error("Partial text should have been persisted")
	}
	if orch.Thinking() {
		t.Error("Thinking should be reset")
	}
}

// =============================================================================
// NO-OP TESTS
// =============================================================================

func TestSendMessage_NoModelsIsNoOp(t *testing.T) {
	svc := llm.NewMockService(llm.ProviderOllama)
	orch, repo := newTestOrchestrator(t, svc)
	orch.SetModels(nil)

	if err := orch.SendMessage(context.Background(), "hello"); err != nil {
		t.Fatalf("Expected silent no-op, got %v", err)
	}
	if len(svc.StreamCalls()) != 0 {
		t.Error("Nothing should have been sent")
	}
	if repo.saveCount != 0 || len(repo.insertedWith) != 0 {
		t.Error("Nothing should have been persisted")
	}
}

func TestSendMessage_EmptyTextIsNoOp(t *testing.T) {
	svc := llm.NewMockService(llm.ProviderOllama)
	orch, _ := newTestOrchestrator(t, svc)

	if err := orch.SendMessage(context.Background(), "   \n"); err != nil {
		t.Fatalf("Expected silent no-op, got %v", err)
	}
	if len(svc.StreamCalls()) != 0 {
		t.Error("Whitespace-only text should not be sent")
	}
}

// =============================================================================
// CAPTURE ENRICHMENT TESTS
// =============================================================================

func TestSendMessage_EnrichesWithCapturedText(t *testing.T) {
	svc := llm.NewMockService(llm.ProviderOllama)
	svc.Fragments = []string{"ok"}
	orch, _ := newTestOrchestrator(t, svc)
	orch.WithCapture(&fixedCapture{text: "func main() {}", ext: "go"})

	if err := orch.SendMessage(context.Background(), "explain this"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	calls := svc.StreamCalls()
	if len(calls) != 1 {
		t.Fatalf("Stream calls = %d", len(calls))
	}
	sent := calls[0].Messages[len(calls[0].Messages)-1].Content
	if !strings.Contains(sent, "explain this") {
		t.Errorf("User text missing from %q", sent)
	}
	if !strings.Contains(sent, "```go\nfunc main() {}\n```") {
		t.Errorf("Fenced capture block missing from %q", sent)
	}
}

func TestSendMessage_CaptureAloneSends(t *testing.T) {
	svc := llm.NewMockService(llm.ProviderOllama)
	svc.Fragments = []string{"ok"}
	orch, _ := newTestOrchestrator(t, svc)
	orch.WithCapture(&fixedCapture{text: "captured only", ext: ""})

	if err := orch.SendMessage(context.Background(), ""); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if len(svc.StreamCalls()) != 1 {
		t.Fatal("Capture-only send should go through")
	}
}

func TestSendMessage_EmptyCaptureAndTextIsNoOp(t *testing.T) {
	svc := llm.NewMockService(llm.ProviderOllama)
	orch, _ := newTestOrchestrator(t, svc)
	orch.WithCapture(&fixedCapture{})

	if err := orch.SendMessage(context.Background(), ""); err != nil {
		t.Fatalf("Expected silent no-op, got %v", err)
	}
	if len(svc.StreamCalls()) != 0 {
		t.Error("Nothing should have been sent")
	}
}

// =============================================================================
// AUTO-TITLE TESTS
// =============================================================================

func TestSendMessage_ReplacesPlaceholderTitle(t *testing.T) {
	svc := llm.NewMockService(llm.ProviderOllama)
	svc.Fragments = []string{"reply"}
	svc.Completion = "Greeting Discussion."
	orch, _ := newTestOrchestrator(t, svc)

	if err := orch.SendMessage(context.Background(), "hello"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	thread := orch.Thread()
	if thread.Title != "Greeting Discussion" {
		t.Errorf("Title = %q, want sanitized generated title", thread.Title)
	}
	if len(svc.CompletionCalls()) != 1 {
		t.Errorf("Completion calls = %d, want 1", len(svc.CompletionCalls()))
	}
}

func TestSendMessage_TitleFailureKeepsPlaceholder(t *testing.T) {
	svc := llm.NewMockService(llm.ProviderOllama)
	svc.Fragments = []string{"reply"}
	svc.CompletionErr = errors.New("title backend down")
	orch, _ := newTestOrchestrator(t, svc)

	if err := orch.SendMessage(context.Background(), "hello"); err != nil {
		t.Fatalf("Title failure must not surface, got %v", err)
	}
	if got := orch.Thread().Title; got != model.PlaceholderTitle {
		t.Errorf("Title = %q, want placeholder", got)
	}
}

func TestSendMessage_ExistingTitleNotRegenerated(t *testing.T) {
	svc := llm.NewMockService(llm.ProviderOllama)
	svc.Fragments = []string{"reply"}
	svc.Completion = "Should Not Appear"
	orch, _ := newTestOrchestrator(t, svc)

	thread := orch.NewThread()
	thread.SetTitle("My Custom Title")

	if err := orch.SendMessage(context.Background(), "hello"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if thread.Title != "My Custom Title" {
		t.Errorf("Title = %q", thread.Title)
	}
	if len(svc.CompletionCalls()) != 0 {
		t.Error("Title generator should not run for titled threads")
	}
}

// =============================================================================
// MODEL STATE TESTS
// =============================================================================

func TestRefreshModels_PersistsAndAdopts(t *testing.T) {
	svc := llm.NewMockService(llm.ProviderOllama)
	svc.Models = []string{"llama3.2", "qwen2.5"}
	orch, repo := newTestOrchestrator(t, svc)
	orch.SetModels(nil)

	merged, errs := orch.RefreshModels(context.Background(), []llm.Provider{llm.ProviderOllama})
	if errs != nil {
		t.Fatalf("Discovery errors: %v", errs)
	}
	if len(merged) != 2 {
		t.Fatalf("Merged count = %d, want 2", len(merged))
	}
	if len(repo.models) != 2 {
		t.Errorf("Models were not persisted")
	}
	if len(orch.Models()) != 2 {
		t.Errorf("Models were not adopted")
	}
}

func TestSelectModel_PinsTarget(t *testing.T) {
	svc := llm.NewMockService(llm.ProviderOllama)
	svc.Fragments = []string{"ok"}
	orch, _ := newTestOrchestrator(t, svc)

	pinned := llm.NewChatModel("pinned-model", llm.ProviderOllama)
	orch.SetModels([]llm.ChatModel{
		llm.NewChatModel("first-model", llm.ProviderOllama),
		pinned,
	})
	orch.SelectModel(pinned)

	if err := orch.SendMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if got := svc.StreamCalls()[0].Model; got != "pinned-model" {
		t.Errorf("Model = %q, want pinned-model", got)
	}
}
