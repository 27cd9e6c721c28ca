package testutils

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/papercomputeco/cogniweave/pkg/storage"
)

// ErrMockStorage is returned by FlakyHistory when a failure is enabled.
var ErrMockStorage = errors.New("mock history failure")

// FlakyHistory wraps a history driver with switchable failures.
type FlakyHistory struct {
	storage.Driver

	FailAppend  atomic.Bool
	FailHistory atomic.Bool
}

func NewFlakyHistory(d storage.Driver) *FlakyHistory {
	return &FlakyHistory{Driver: d}
}

func (f *FlakyHistory) Append(ctx context.Context, turns ...storage.Turn) error {
	if f.FailAppend.Load() {
		return &storage.Error{Op: "append", Err: ErrMockStorage}
	}
	return f.Driver.Append(ctx, turns...)
}

func (f *FlakyHistory) History(ctx context.Context, sessionID string, limit int) ([]storage.Turn, error) {
	if f.FailHistory.Load() {
		return nil, &storage.Error{Op: "history", SessionID: sessionID, Err: ErrMockStorage}
	}
	return f.Driver.History(ctx, sessionID, limit)
}
