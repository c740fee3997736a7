package progress

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownSubject     = errors.New("unknown subject")
	ErrInvalidMode        = errors.New("invalid mode")
	ErrInvalidRag         = errors.New("invalid rag status")
	ErrInvalidItemKey     = errors.New("invalid item key")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrRemoteUnavailable  = errors.New("remote store unavailable")
)

// Mode selects how a subject's completion is displayed and aggregated.
// Switching modes never discards the other mode's per-item data.
type Mode string

const (
	ModeCheckbox Mode = "checkbox"
	ModeRag      Mode = "rag"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case ModeCheckbox:
		return ModeCheckbox, nil
	case ModeRag:
		return ModeRag, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, raw)
	}
}

// RagStatus is the three-state completion status. The zero value means unset,
// which aggregation folds into red.
type RagStatus string

const (
	RagUnset RagStatus = ""
	RagRed   RagStatus = "red"
	RagAmber RagStatus = "amber"
	RagGreen RagStatus = "green"
)

func ParseRag(raw string) (RagStatus, error) {
	switch RagStatus(raw) {
	case RagRed, RagAmber, RagGreen:
		return RagStatus(raw), nil
	default:
		return RagUnset, fmt.Errorf("%w: %q", ErrInvalidRag, raw)
	}
}

// ItemEntry is the progress record for one checklist item. Both fields may be
// set at once; which one is rendered depends on the subject's current mode.
type ItemEntry struct {
	Checkbox bool      `json:"checkbox,omitempty"`
	Rag      RagStatus `json:"rag,omitempty"`
}

// SubjectState is the full progress snapshot for one subject's checklist.
// An item key absent from Items is equivalent to a zero ItemEntry.
type SubjectState struct {
	Mode      Mode                 `json:"mode"`
	Items     map[string]ItemEntry `json:"items"`
	Total     int                  `json:"total"`
	UpdatedAt string               `json:"updatedAt,omitempty"`
	// Filter is carried for records written by the legacy page script; the
	// engine stores it untouched and never interprets it.
	Filter string `json:"filter,omitempty"`
}

// Entry returns the entry for key, or a zero entry when the key was never
// individually tracked.
func (s SubjectState) Entry(key string) ItemEntry {
	if s.Items == nil {
		return ItemEntry{}
	}
	return s.Items[key]
}

// Clone returns a deep copy so callers can hold a snapshot while the tracker
// keeps mutating the original.
func (s SubjectState) Clone() SubjectState {
	out := s
	out.Items = make(map[string]ItemEntry, len(s.Items))
	for key, entry := range s.Items {
		out.Items[key] = entry
	}
	return out
}

func newSubjectState(total int) SubjectState {
	return SubjectState{
		Mode:  ModeCheckbox,
		Items: map[string]ItemEntry{},
		Total: total,
	}
}

// RemoteDocument is the per-user document held by the remote store. The
// top-level mode/items/total mirror the active subject for older
// single-subject consumers; Subjects carries one snapshot per subject.
type RemoteDocument struct {
	Mode      Mode                    `json:"mode,omitempty"`
	Items     map[string]ItemEntry    `json:"items,omitempty"`
	Total     int                     `json:"total,omitempty"`
	Subjects  map[string]SubjectState `json:"subjects,omitempty"`
	UpdatedAt string                  `json:"updatedAt,omitempty"`
}

// SubjectSnapshots normalizes a remote document into per-subject snapshots.
// Documents written before the subjects map existed carry a single top-level
// snapshot, attributed to the subject that was active when they were written.
func (d RemoteDocument) SubjectSnapshots(activeSubject string) map[string]SubjectState {
	if len(d.Subjects) > 0 {
		out := make(map[string]SubjectState, len(d.Subjects))
		for subjectID, snapshot := range d.Subjects {
			out[subjectID] = snapshot.Clone()
		}
		return out
	}
	if len(d.Items) == 0 && d.Mode == "" && d.Total == 0 {
		return map[string]SubjectState{}
	}
	legacy := SubjectState{
		Mode:      d.Mode,
		Items:     d.Items,
		Total:     d.Total,
		UpdatedAt: d.UpdatedAt,
	}
	return map[string]SubjectState{activeSubject: legacy.Clone()}
}

// Counts is a scope-level completion tally. In checkbox mode amber is always
// zero. Total of zero means "no data", not "complete".
type Counts struct {
	Green int `json:"green"`
	Amber int `json:"amber"`
	Red   int `json:"red"`
	Total int `json:"total"`
}

func (c Counts) Add(other Counts) Counts {
	return Counts{
		Green: c.Green + other.Green,
		Amber: c.Amber + other.Amber,
		Red:   c.Red + other.Red,
		Total: c.Total + other.Total,
	}
}

func timestampNow(now time.Time) string {
	return now.UTC().Format(time.RFC3339)
}
