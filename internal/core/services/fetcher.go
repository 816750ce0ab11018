package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chronicle-labs/chronicler/internal/core/domain"
	"github.com/chronicle-labs/chronicler/internal/core/ports/driven"
	"github.com/chronicle-labs/chronicler/internal/core/ports/driving"
	"github.com/chronicle-labs/chronicler/internal/logger"
)

// Ensure FetchOrchestrator implements the interface.
var _ driving.Fetcher = (*FetchOrchestrator)(nil)

// FetchOrchestrator drives one backend through the fetch lifecycle:
//
//	INIT -> RESOLVING_CHECKPOINT -> STREAMING -> DONE | FAILED
//
// It resolves the starting checkpoint, pulls raw items from the
// backend, derives identity, category and update time for each one,
// enforces ordering and the time window, and yields the final document
// stream. Cancellation is honoured at item boundaries only, never
// mid-response, so archives stay scope-balanced.
//
// One orchestrator runs one fetch at a time.
type FetchOrchestrator struct {
	backend driven.Backend

	mu      sync.RWMutex
	running bool
	status  driving.Status

	// Test seam for document timestamps.
	now func() time.Time
}

// NewFetchOrchestrator creates an orchestrator for one backend.
func NewFetchOrchestrator(backend driven.Backend) *FetchOrchestrator {
	return &FetchOrchestrator{
		backend: backend,
		now:     time.Now,
	}
}

// Status returns a snapshot of the current run's progress.
func (o *FetchOrchestrator) Status() driving.Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

func (o *FetchOrchestrator) setState(s driving.RunState) {
	o.mu.Lock()
	o.status.State = s
	o.mu.Unlock()
}

func (o *FetchOrchestrator) track(emitted, skipped int) {
	o.mu.Lock()
	o.status.Emitted = emitted
	o.status.Skipped = skipped
	o.mu.Unlock()
}

// Fetch starts one run. The document channel carries the stream; the
// error channel receives exactly one terminal value, a *RunDone on
// success or an error (usually a *RunError) on failure, before both
// channels close.
func (o *FetchOrchestrator) Fetch(
	ctx context.Context, req driving.Request,
) (<-chan domain.Document, <-chan error) {
	docs := make(chan domain.Document)
	errs := make(chan error, 1)

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		errs <- domain.ErrRunInProgress
		close(docs)
		close(errs)
		return docs, errs
	}
	o.running = true
	o.status = driving.Status{
		RunID: uuid.NewString(),
		State: driving.StateInit,
	}
	o.mu.Unlock()

	go func() {
		defer close(docs)
		defer close(errs)
		defer func() {
			o.mu.Lock()
			o.running = false
			o.mu.Unlock()
		}()

		errs <- o.run(ctx, req, docs)
	}()

	return docs, errs
}

// run executes the state machine and returns the terminal value for
// the error channel.
func (o *FetchOrchestrator) run(
	ctx context.Context, req driving.Request, docs chan<- domain.Document,
) error {
	// INIT: validate mode and category.
	if err := o.validate(req); err != nil {
		o.setState(driving.StateFailed)
		return err
	}

	// RESOLVING_CHECKPOINT: derive the resume cursor.
	o.setState(driving.StateResolvingCheckpoint)
	cursor := o.resolveCursor(req)

	logger.Info("run %s: %s/%s category=%s from=%s cursor=%q",
		o.Status().RunID, o.backend.Name(), o.backend.Origin(),
		req.Category, req.Window.From.Format(time.RFC3339), cursor)

	// STREAMING.
	o.setState(driving.StateStreaming)
	summary, finalCursor, err := o.stream(ctx, req, cursor, docs)

	checkpoint := domain.FetchCheckpoint{
		FromDate: req.Window.From,
		ToDate:   req.Window.To,
		Cursor:   finalCursor,
	}

	if err != nil {
		o.setState(driving.StateFailed)
		logger.Warn("run %s failed after %d document(s): %v",
			o.Status().RunID, summary.Fetched, err)
		return &driving.RunError{Err: err, Checkpoint: checkpoint, Emitted: summary.Fetched}
	}

	o.setState(driving.StateDone)
	logger.Info("run %s done: %d fetched, %d skipped",
		o.Status().RunID, summary.Fetched,
		summary.SkippedOutOfWindow+summary.SkippedParse)
	return &driving.RunDone{Checkpoint: checkpoint, Summary: *summary}
}

func (o *FetchOrchestrator) validate(req driving.Request) error {
	if req.Mode == driving.ModeReplay && !o.backend.Capabilities().SupportsArchiving {
		return fmt.Errorf("%w: %s", domain.ErrReplayUnsupported, o.backend.Name())
	}
	if !slices.Contains(o.backend.Categories(), req.Category) {
		return fmt.Errorf("%w: %q not valid for %s",
			domain.ErrInvalidCategory, req.Category, o.backend.Name())
	}
	if !req.Window.To.IsZero() && req.Window.To.Before(req.Window.From) {
		return domain.ErrInvalidWindow
	}
	return nil
}

// resolveCursor picks the resume cursor from a prior checkpoint when
// the backend supports resuming; otherwise every run starts fresh from
// the window's lower bound.
func (o *FetchOrchestrator) resolveCursor(req driving.Request) string {
	if req.Checkpoint == nil {
		return ""
	}
	if !o.backend.Capabilities().SupportsResuming {
		logger.Warn("%s does not support resuming, ignoring checkpoint", o.backend.Name())
		return ""
	}
	return req.Checkpoint.Cursor
}

//nolint:gocognit // Orchestration loop with necessary sequential steps.
func (o *FetchOrchestrator) stream(
	ctx context.Context, req driving.Request, cursor string, docs chan<- domain.Document,
) (*domain.Summary, string, error) {
	tag := req.Tag
	if tag == "" {
		tag = o.backend.Origin()
	}

	summary := &domain.Summary{LastCursor: cursor}
	appliedCursor := cursor

	items, backendErrs := o.backend.Fetch(ctx, driven.FetchRequest{
		Category: req.Category,
		Window:   req.Window,
		Cursor:   cursor,
	})

	var lastUpdated time.Time

	// Set when an item was held back without advancing the cursor: a
	// parse skip, or a drop at/past to_date. The backend's final cursor
	// covers every item it sent, so adopting it would resume past them.
	heldBack := false

	for item := range items {
		// Cancellation is only observed here, at an item boundary.
		if err := ctx.Err(); err != nil {
			return summary, appliedCursor, err
		}

		updatedOn, nativeID, err := o.itemMetadata(item)
		if err != nil {
			if errors.Is(err, domain.ErrParse) {
				// Adapter-declared skip. The checkpoint must not
				// advance past an item that was never emitted.
				summary.SkippedParse++
				heldBack = true
				o.track(summary.Fetched, summary.SkippedOutOfWindow+summary.SkippedParse)
				logger.Warn("skipping unparseable item: %v", err)
				continue
			}
			return summary, appliedCursor, err
		}

		if updatedOn.Before(lastUpdated) {
			return summary, appliedCursor, fmt.Errorf(
				"%w: %s after %s", domain.ErrOutOfOrder,
				updatedOn.Format(time.RFC3339), lastUpdated.Format(time.RFC3339))
		}
		lastUpdated = updatedOn

		if !req.Window.Contains(updatedOn) {
			summary.SkippedOutOfWindow++
			o.track(summary.Fetched, summary.SkippedOutOfWindow+summary.SkippedParse)
			// Items below the window are settled history: resuming
			// past them is safe. Items at or past to_date stay
			// reachable for future runs with a wider window.
			if updatedOn.Before(req.Window.From) {
				if item.Cursor != "" {
					appliedCursor = item.Cursor
					summary.LastCursor = appliedCursor
				}
			} else {
				heldBack = true
			}
			continue
		}

		doc, err := o.document(item, tag, nativeID, updatedOn, req.Category)
		if err != nil {
			return summary, appliedCursor, err
		}

		select {
		case docs <- *doc:
		case <-ctx.Done():
			return summary, appliedCursor, ctx.Err()
		}

		summary.Update(doc)
		if item.Cursor != "" {
			appliedCursor = item.Cursor
			summary.LastCursor = appliedCursor
		}
		o.track(summary.Fetched, summary.SkippedOutOfWindow+summary.SkippedParse)
	}

	// The backend closes the item channel and then reports how the
	// production ended.
	err := <-backendErrs
	if done, ok := driven.IsFetchDone(err); ok {
		if done.Cursor != "" && !heldBack {
			appliedCursor = done.Cursor
			summary.LastCursor = appliedCursor
		}
		return summary, appliedCursor, nil
	}
	if err == nil {
		// A closed error channel without a sentinel still counts as
		// clean completion.
		return summary, appliedCursor, nil
	}
	return summary, appliedCursor, err
}

func (o *FetchOrchestrator) itemMetadata(item domain.RawItem) (time.Time, string, error) {
	nativeID, err := o.backend.NativeID(item)
	if err != nil {
		return time.Time{}, "", err
	}
	updatedOn, err := o.backend.UpdatedOn(item)
	if err != nil {
		return time.Time{}, "", err
	}
	return updatedOn.UTC(), nativeID, nil
}

func (o *FetchOrchestrator) document(
	item domain.RawItem, tag, nativeID string, updatedOn time.Time, category string,
) (*domain.Document, error) {
	id, err := domain.UUID(o.backend.Origin(), nativeID, updatedOn)
	if err != nil {
		return nil, err
	}

	itemCategory := o.backend.Category(item)
	if itemCategory == "" {
		itemCategory = category
	}

	return &domain.Document{
		BackendName:    o.backend.Name(),
		BackendVersion: o.backend.Version(),
		Origin:         o.backend.Origin(),
		UUID:           id,
		UpdatedOn:      updatedOn.Unix(),
		Timestamp:      o.now().UTC().Unix(),
		Category:       itemCategory,
		Tag:            tag,
		Data:           item.Fields,
	}, nil
}
