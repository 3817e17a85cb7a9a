// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/Robdel12/DraftPatch/internal/capture"
	"github.com/Robdel12/DraftPatch/internal/llm"
	"github.com/Robdel12/DraftPatch/internal/model"
)

// =============================================================================
// REPOSITORY CONTRACT
// =============================================================================

// Repository persists threads and model records. Every repository failure
// is logged and recovered; the in-memory state stays authoritative.
type Repository interface {
	FetchThreads(ctx context.Context) ([]*model.Thread, error)
	FetchModels(ctx context.Context) ([]llm.ChatModel, error)
	InsertThread(ctx context.Context, t *model.Thread) error
	SaveThread(ctx context.Context, t *model.Thread) error
	DeleteThread(ctx context.Context, id string) error
	SaveModels(ctx context.Context, models []llm.ChatModel) error
}

// ErrStreamInProgress is returned when SendMessage is called while a
// previous stream is still running.
var ErrStreamInProgress = errors.New("a message is already streaming")

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator drives the send-message workflow for the active thread.
type Orchestrator struct {
	manager *llm.Manager
	repo    Repository
	capture capture.Source
	logger  *log.Logger
	buffer  *TokenBuffer

	onChange func()

	mu       sync.Mutex
	thread   *model.Thread
	models   []llm.ChatModel
	selected *llm.ChatModel
	thinking bool
	cancel   context.CancelFunc
	active   llm.Service
}

// NewOrchestrator creates an orchestrator backed by the given manager
// and repository.
func NewOrchestrator(manager *llm.Manager, repo Repository) *Orchestrator {
	return &Orchestrator{
		manager: manager,
		repo:    repo,
		logger:  log.New(log.Writer(), "chat: ", log.LstdFlags),
		buffer:  NewTokenBuffer(),
	}
}

// WithCapture attaches an external text capture source. Safe to call at
// runtime; the config watcher swaps sources on reload.
func (o *Orchestrator) WithCapture(src capture.Source) *Orchestrator {
	o.mu.Lock()
	o.capture = src
	o.mu.Unlock()
	return o
}

// WithLogger overrides the background-failure logger.
func (o *Orchestrator) WithLogger(logger *log.Logger) *Orchestrator {
	if logger != nil {
		o.logger = logger
	}
	return o
}

// WithBuffer overrides the token coalescing buffer. Tests use a buffer
// with a batch size of one to observe every fragment.
func (o *Orchestrator) WithBuffer(buffer *TokenBuffer) *Orchestrator {
	if buffer != nil {
		o.buffer = buffer
	}
	return o
}

// OnChange registers the callback fired on coalesced state changes. The
// callback runs on the streaming goroutine.
func (o *Orchestrator) OnChange(fn func()) {
	o.onChange = fn
}

// =============================================================================
// SEND WORKFLOW
// =============================================================================

// SendMessage runs one full exchange: enrich the text, promote a draft
// thread, append the user message, stream the assistant reply, persist,
// and auto-title. It blocks until the stream terminates.
//
// A deliberate cancellation is not an error: accumulated partial text is
// kept and nil is returned. Any other stream failure is returned after
// the partial text has been finalized and persisted.
func (o *Orchestrator) SendMessage(ctx context.Context, userText string) error {
	mdl, ok := o.targetModel()
	if !ok {
		o.logger.Printf("send ignored: no models available")
		return nil
	}

	o.mu.Lock()
	src := o.capture
	o.mu.Unlock()

	text := strings.TrimSpace(userText)
	if src != nil {
		captured, ext := src.CapturedText(ctx)
		text = capture.Enrich(text, captured, ext)
	}
	if text == "" {
		return nil
	}

	svc := o.manager.Client(mdl.Provider)
	if svc == nil {
		return fmt.Errorf("no client registered for provider %s", mdl.Provider)
	}

	o.mu.Lock()
	if o.thinking {
		o.mu.Unlock()
		return ErrStreamInProgress
	}
	if o.thread == nil {
		o.thread = model.NewDraftThread(mdl)
	}
	thread := o.thread

	// Stamp usage so the thread records the generating model and
	// discovery merges keep recency.
	mdl.LastUsed = time.Now()
	thread.Model = mdl
	for i := range o.models {
		if o.models[i].Key() == mdl.Key() {
			o.models[i].LastUsed = mdl.LastUsed
			break
		}
	}
	if o.selected != nil && o.selected.Key() == mdl.Key() {
		o.selected.LastUsed = mdl.LastUsed
	}

	o.thinking = true
	streamCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.active = svc
	o.mu.Unlock()

	defer func() {
		cancel()
		o.mu.Lock()
		o.thinking = false
		o.cancel = nil
		o.active = nil
		o.mu.Unlock()
		o.publish()
	}()

	// Promote drafts before they gain content so a thread is never
	// partially visible in the persisted store.
	if thread.Draft {
		if err := o.repo.InsertThread(ctx, thread); err != nil {
			o.logger.Printf("insert thread failed: %v", err)
		}
		o.mu.Lock()
		thread.Draft = false
		o.mu.Unlock()
	}

	// Every thread mutation below holds o.mu. Thread() clones under the
	// same lock, so readers on other goroutines never observe a
	// half-applied append.
	o.mu.Lock()
	thread.AddUserMessage(text)
	req := llm.ChatRequest{
		Model:    mdl.Name,
		Messages: thread.Payloads(),
		Options:  mdl.Options(),
	}
	thread.AddAssistantMessage()
	o.mu.Unlock()

	o.buffer.Reset()
	o.publish()

	first := true
	err := svc.StreamChat(streamCtx, req, func(fragment string) {
		o.mu.Lock()
		if first {
			first = false
			thread.UpdatedAt = time.Now()
		}
		o.buffer.Write(fragment)
		chunk, flushed := o.buffer.Flush()
		if flushed {
			thread.AppendToLast(chunk)
		}
		o.mu.Unlock()
		if flushed {
			o.publish()
		}
	})

	// The final flush must include every received fragment.
	o.mu.Lock()
	if chunk, flushed := o.buffer.ForceFlush(); flushed {
		thread.AppendToLast(chunk)
	}
	thread.FinalizeLast()
	o.mu.Unlock()
	o.persist(ctx, thread)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	if thread.NeedsTitle() {
		o.generateTitle(ctx, svc, mdl.Name, text, thread)
	}
	return nil
}

// CancelStreaming aborts the in-flight stream, if any. Safe to call at
// any time, from any goroutine, repeatedly.
func (o *Orchestrator) CancelStreaming() {
	o.mu.Lock()
	cancel := o.cancel
	svc := o.active
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if svc != nil {
		svc.CancelActiveStream()
	}
}

// generateTitle replaces the placeholder title after the first exchange.
// Failures never surface to the user.
func (o *Orchestrator) generateTitle(ctx context.Context, svc llm.Service, modelName, text string, thread *model.Thread) {
	title, err := llm.GenerateTitle(ctx, svc, modelName, text)
	if err != nil {
		o.logger.Printf("title generation failed: %v", err)
		return
	}
	if title == "" {
		return
	}
	o.mu.Lock()
	thread.SetTitle(title)
	o.mu.Unlock()
	o.persist(ctx, thread)
}

func (o *Orchestrator) persist(ctx context.Context, thread *model.Thread) {
	if err := o.repo.SaveThread(ctx, thread); err != nil {
		o.logger.Printf("save thread failed: %v", err)
	}
}

func (o *Orchestrator) publish() {
	if o.onChange != nil {
		o.onChange()
	}
}

// =============================================================================
// STATE
// =============================================================================

// Restore loads persisted models and threads. Failures degrade to empty
// state rather than aborting startup.
func (o *Orchestrator) Restore(ctx context.Context) []*model.Thread {
	models, err := o.repo.FetchModels(ctx)
	if err != nil {
		o.logger.Printf("fetch models failed: %v", err)
	} else {
		o.SetModels(models)
	}

	threads, err := o.repo.FetchThreads(ctx)
	if err != nil {
		o.logger.Printf("fetch threads failed: %v", err)
		return nil
	}
	return threads
}

// RefreshModels runs discovery across the enabled providers, merges with
// the known model set, persists, and adopts the result.
func (o *Orchestrator) RefreshModels(ctx context.Context, providers []llm.Provider) ([]llm.ChatModel, map[llm.Provider]error) {
	o.mu.Lock()
	known := append([]llm.ChatModel(nil), o.models...)
	o.mu.Unlock()

	merged, errs := o.manager.LoadModels(ctx, providers, known)

	o.SetModels(merged)
	if err := o.repo.SaveModels(ctx, merged); err != nil {
		o.logger.Printf("save models failed: %v", err)
	}
	return merged, errs
}

// Thread returns a point-in-time copy of the active thread, nil when
// none is open. Renderers on other goroutines read the copy while the
// stream keeps appending to the original.
func (o *Orchestrator) Thread() *model.Thread {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.thread == nil {
		return nil
	}
	return o.thread.Clone()
}

// SetThread switches the active thread.
func (o *Orchestrator) SetThread(t *model.Thread) {
	o.mu.Lock()
	o.thread = t
	o.mu.Unlock()
	o.publish()
}

// NewThread opens a fresh draft thread on the current target model.
// The draft is not persisted until its first message is sent.
func (o *Orchestrator) NewThread() *model.Thread {
	mdl, _ := o.targetModel()
	t := model.NewDraftThread(mdl)
	o.SetThread(t)
	return t
}

// DeleteThread removes a persisted thread, closing it if it was active.
func (o *Orchestrator) DeleteThread(ctx context.Context, id string) error {
	o.mu.Lock()
	if o.thread != nil && o.thread.ID == id {
		o.thread = nil
	}
	o.mu.Unlock()

	if err := o.repo.DeleteThread(ctx, id); err != nil {
		o.logger.Printf("delete thread failed: %v", err)
		return err
	}
	o.publish()
	return nil
}

// Thinking reports whether a stream is currently in flight.
func (o *Orchestrator) Thinking() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.thinking
}

// SelectModel pins the target model for subsequent sends.
func (o *Orchestrator) SelectModel(m llm.ChatModel) {
	o.mu.Lock()
	o.selected = &m
	o.mu.Unlock()
}

// SelectedModel returns the pinned model, ok=false when resolution would
// fall back to the first enabled model.
func (o *Orchestrator) SelectedModel() (llm.ChatModel, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.selected == nil {
		return llm.ChatModel{}, false
	}
	return *o.selected, true
}

// SetModels replaces the known model set.
func (o *Orchestrator) SetModels(models []llm.ChatModel) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.models = models
	if o.selected != nil {
		// Keep the pinned selection in sync with refreshed records.
		for i := range models {
			if models[i].Key() == o.selected.Key() {
				m := models[i]
				o.selected = &m
				return
			}
		}
		o.selected = nil
	}
}

// Models returns a copy of the known model set.
func (o *Orchestrator) Models() []llm.ChatModel {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]llm.ChatModel(nil), o.models...)
}

// targetModel resolves the model for the next send: the explicit
// selection when set, otherwise the first enabled model.
func (o *Orchestrator) targetModel() (llm.ChatModel, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.selected != nil {
		return *o.selected, true
	}
	for _, m := range o.models {
		if m.Enabled {
			return m, true
		}
	}
	return llm.ChatModel{}, false
}
