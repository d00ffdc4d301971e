package statestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"podforge/internal/queue"
)

var (
	// ErrUnsupportedVersion marks snapshots written by an unknown format version.
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
	// ErrCorrupt marks snapshots that could not be parsed.
	ErrCorrupt = errors.New("corrupt snapshot")
)

type versionProbe struct {
	Version int `json:"version"`
}

type snapshotV1 struct {
	Version int          `json:"version"`
	SavedAt time.Time    `json:"savedAt"`
	Jobs    []*queue.Job `json:"jobs"`
}

// legacyStatuses maps version 1 status names onto current ones.
var legacyStatuses = map[string]queue.Status{
	"queued":     queue.StatusPending,
	"waiting":    queue.StatusPending,
	"processing": queue.StatusRunning,
	"active":     queue.StatusRunning,
	"done":       queue.StatusCompleted,
	"success":    queue.StatusCompleted,
	"error":      queue.StatusFailed,
	"canceled":   queue.StatusCancelled,
}

// Encode serializes a snapshot, forcing the current version.
func Encode(snap *Snapshot) ([]byte, error) {
	if snap == nil {
		return nil, errors.New("nil snapshot")
	}
	out := *snap
	out.Version = CurrentVersion
	if out.Jobs == nil {
		out.Jobs = map[string]*queue.Job{}
	}
	return json.MarshalIndent(&out, "", "  ")
}

// Decode parses a snapshot, migrating older formats. It returns an error
// wrapping ErrCorrupt for unparseable input and ErrUnsupportedVersion for
// versions it does not understand.
func Decode(data []byte) (*Snapshot, error) {
	var probe versionProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	switch probe.Version {
	case CurrentVersion:
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if snap.Jobs == nil {
			snap.Jobs = make(map[string]*queue.Job)
		}
		for id, job := range snap.Jobs {
			if job == nil {
				delete(snap.Jobs, id)
				continue
			}
			if job.ID == "" {
				job.ID = id
			}
		}
		return &snap, nil
	case 1:
		return migrateV1(data)
	default:
		return nil, fmt.Errorf("%w: %d (supported: 1, %d)", ErrUnsupportedVersion, probe.Version, CurrentVersion)
	}
}

func migrateV1(data []byte) (*Snapshot, error) {
	var legacy snapshotV1
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	snap := NewSnapshot(make(map[string]*queue.Job, len(legacy.Jobs)), legacy.SavedAt)
	for _, job := range legacy.Jobs {
		if job == nil || job.ID == "" {
			continue
		}
		if status, ok := legacyStatuses[strings.ToLower(string(job.Status))]; ok {
			job.Status = status
		}
		if _, ok := queue.ParseStatus(string(job.Status)); !ok {
			job.Status = queue.StatusPending
		}
		if job.Type == "" {
			job.Type = queue.TypeFullPipeline
		}
		if job.UpdatedAt.IsZero() {
			job.UpdatedAt = job.CreatedAt
		}
		snap.Jobs[job.ID] = job
	}
	return snap, nil
}
