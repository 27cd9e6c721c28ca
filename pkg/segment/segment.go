// Package segment splits a session's turns into time segments: runs of
// turns whose gaps stay below an inactivity threshold.
package segment

import (
	"time"

	"github.com/papercomputeco/cogniweave/pkg/storage"
)

// DefaultGap is the inactivity window after which a new segment starts.
const DefaultGap = 30 * time.Minute

// FirstID is the segment id of the first turn of a session.
const FirstID int64 = 1

// Decision is the outcome of assigning a turn to a segment.
type Decision int

const (
	// Same continues the current segment.
	Same Decision = iota

	// New opens a segment.
	New
)

func (d Decision) String() string {
	if d == New {
		return "new"
	}
	return "same"
}

// Splitter decides segment boundaries from timestamps alone.
type Splitter struct {
	Gap time.Duration
}

// NewSplitter returns a Splitter with the given gap. A non-positive gap
// falls back to DefaultGap.
func NewSplitter(gap time.Duration) *Splitter {
	if gap <= 0 {
		gap = DefaultGap
	}
	return &Splitter{Gap: gap}
}

// Assign decides whether a turn at now continues the segment of the turn
// at last. Without a previous turn the decision is New. A timestamp earlier
// than last (clock skew) never splits and yields Same.
func (s *Splitter) Assign(last *time.Time, now time.Time) Decision {
	if last == nil {
		return New
	}
	if now.Before(*last) {
		return Same
	}
	if now.Sub(*last) >= s.Gap {
		return New
	}
	return Same
}

// Next returns the segment id for a turn at now that follows prev. prev is
// nil for the first turn of a session.
func (s *Splitter) Next(prev *storage.Turn, now time.Time) int64 {
	if prev == nil {
		return FirstID
	}
	if s.Assign(&prev.CreatedAt, now) == New {
		return prev.SegmentID + 1
	}
	return prev.SegmentID
}

// Segments groups turns by their persisted segment id, keeping order.
// It reads the stored ids and does not re-run the splitter.
func Segments(turns []storage.Turn) [][]storage.Turn {
	var out [][]storage.Turn
	for i, t := range turns {
		if i == 0 || t.SegmentID != turns[i-1].SegmentID {
			out = append(out, nil)
		}
		out[len(out)-1] = append(out[len(out)-1], t)
	}
	return out
}
