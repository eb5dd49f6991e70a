package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Mode selects what a replay session does with processed events.
type Mode string

const (
	// ModeFull rebuilds derived state from scratch.
	ModeFull Mode = "full"
	// ModeIncremental processes only events not yet marked processed.
	ModeIncremental Mode = "incremental"
	// ModeVerification replays and diffs against the persisted state.
	ModeVerification Mode = "verification"
	// ModeDebug commits nothing and logs verbosely.
	ModeDebug Mode = "debug"
)

// ParseMode converts a config or flag value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeFull, ModeIncremental, ModeVerification, ModeDebug:
		return m, nil
	case "":
		return ModeFull, nil
	default:
		return "", fmt.Errorf("unknown replay mode: %s", s)
	}
}

// AppliesState reports whether events processed in this mode feed the
// state builder.
func (m Mode) AppliesState() bool {
	return m == ModeFull || m == ModeVerification
}

// RangeKind tags the variant held by a Range.
type RangeKind string

const (
	RangeAll            RangeKind = "all"
	RangeFrom           RangeKind = "from"
	RangeTo             RangeKind = "to"
	RangeFromTo         RangeKind = "from_to"
	RangeFromCheckpoint RangeKind = "from_checkpoint"
	RangeLast           RangeKind = "last"
)

// Range is a declarative ledger range. Only the fields relevant to Kind
// are meaningful.
type Range struct {
	Kind         RangeKind `json:"kind"`
	Start        uint64    `json:"start,omitempty"`
	End          uint64    `json:"end,omitempty"`
	Count        uint64    `json:"count,omitempty"`
	CheckpointID string    `json:"checkpoint_id,omitempty"`
}

func AllLedgers() Range { return Range{Kind: RangeAll} }
func FromLedger(start uint64) Range { return Range{Kind: RangeFrom, Start: start} }
func ToLedger(end uint64) Range { return Range{Kind: RangeTo, End: end} }
func LastLedgers(count uint64) Range { return Range{Kind: RangeLast, Count: count} }
func FromCheckpoint(id string) Range { return Range{Kind: RangeFromCheckpoint, CheckpointID: id} }
func LedgerSpan(start, end uint64) Range { return Range{Kind: RangeFromTo, Start: start, End: end} }

// StartLedger resolves the first ledger to replay. For FromCheckpoint it
// returns false when no checkpoint ledger is known.
func (r Range) StartLedger(latest uint64, checkpointLedger *uint64) (uint64, bool) {
	switch r.Kind {
	case RangeAll, RangeTo:
		return 0, true
	case RangeFrom, RangeFromTo:
		return r.Start, true
	case RangeFromCheckpoint:
		if checkpointLedger == nil {
			return 0, false
		}
		return *checkpointLedger, true
	case RangeLast:
		if r.Count >= latest {
			return 0, true
		}
		return latest - r.Count, true
	default:
		return 0, false
	}
}

// EndLedger resolves the last ledger to replay, inclusive.
func (r Range) EndLedger(latest uint64) (uint64, bool) {
	switch r.Kind {
	case RangeAll, RangeFrom, RangeFromCheckpoint, RangeLast:
		return latest, true
	case RangeTo, RangeFromTo:
		return r.End, true
	default:
		return 0, false
	}
}

// Contains reports whether ledger falls inside the resolved range. Missing
// bounds default to 0 and the maximum ledger.
func (r Range) Contains(ledger, latest uint64, checkpointLedger *uint64) bool {
	start, ok := r.StartLedger(latest, checkpointLedger)
	if !ok {
		start = 0
	}
	end, ok := r.EndLedger(latest)
	if !ok {
		end = math.MaxUint64
	}
	return start <= ledger && ledger <= end
}

func (r Range) String() string {
	switch r.Kind {
	case RangeAll:
		return "all"
	case RangeFrom:
		return fmt.Sprintf("from:%d", r.Start)
	case RangeTo:
		return fmt.Sprintf("to:%d", r.End)
	case RangeFromTo:
		return fmt.Sprintf("%d-%d", r.Start, r.End)
	case RangeFromCheckpoint:
		return "checkpoint:" + r.CheckpointID
	case RangeLast:
		return fmt.Sprintf("last:%d", r.Count)
	default:
		return string(r.Kind)
	}
}

// ParseRange parses the CLI range syntax: all, from:N, to:N, N-M,
// checkpoint:ID and last:N.
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "all" {
		return AllLedgers(), nil
	}

	if prefix, value, ok := strings.Cut(s, ":"); ok {
		if prefix == "checkpoint" {
			if value == "" {
				return Range{}, fmt.Errorf("invalid range %q: empty checkpoint id", s)
			}
			return FromCheckpoint(value), nil
		}
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return Range{}, fmt.Errorf("invalid range %q: %w", s, err)
		}
		switch prefix {
		case "from":
			return FromLedger(n), nil
		case "to":
			return ToLedger(n), nil
		case "last":
			return LastLedgers(n), nil
		}
		return Range{}, fmt.Errorf("invalid range %q: unknown kind %s", s, prefix)
	}

	startStr, endStr, ok := strings.Cut(s, "-")
	if !ok {
		return Range{}, fmt.Errorf("invalid range %q", s)
	}
	start, err := strconv.ParseUint(startStr, 10, 64)
	if err != nil {
		return Range{}, fmt.Errorf("invalid start: %w", err)
	}
	end, err := strconv.ParseUint(endStr, 10, 64)
	if err != nil {
		return Range{}, fmt.Errorf("invalid end: %w", err)
	}
	return LedgerSpan(start, end), nil
}

// ReplayConfig is fixed for the lifetime of a session.
type ReplayConfig struct {
	Mode               Mode          `json:"mode"`
	Range              Range         `json:"range"`
	Filter             EventFilter   `json:"filter"`
	BatchSize          int           `json:"batch_size"`
	MaxWorkers         int           `json:"max_workers"`
	DryRun             bool          `json:"dry_run"`
	Verbose            bool          `json:"verbose"`
	CheckpointInterval uint64        `json:"checkpoint_interval"`
	EventTimeout       time.Duration `json:"event_timeout"`
	MaxRetries         int           `json:"max_retries"`
}

// DefaultReplayConfig returns a full replay of all ledgers.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		Mode:               ModeFull,
		Range:              AllLedgers(),
		BatchSize:          100,
		MaxWorkers:         4,
		CheckpointInterval: 1000,
		EventTimeout:       30 * time.Second,
		MaxRetries:         3,
	}
}

// Validate checks the config and returns an ErrInvalidConfig error that
// names the first offending field.
func (c ReplayConfig) Validate() error {
	if c.BatchSize <= 0 {
		return ConfigError("batch_size must be greater than 0")
	}
	if c.MaxWorkers <= 0 {
		return ConfigError("max_workers must be greater than 0")
	}
	if c.CheckpointInterval == 0 {
		return ConfigError("checkpoint_interval must be greater than 0")
	}
	if c.EventTimeout <= 0 {
		return ConfigError("event_timeout must be greater than 0")
	}
	if c.MaxRetries < 0 {
		return ConfigError("max_retries must not be negative")
	}

	switch c.Range.Kind {
	case RangeFromTo:
		if c.Range.Start > c.Range.End {
			return ConfigError("invalid range: start %d is after end %d", c.Range.Start, c.Range.End)
		}
	case RangeFromCheckpoint:
		if c.Range.CheckpointID == "" {
			return ConfigError("checkpoint_id must not be empty")
		}
	case RangeAll, RangeFrom, RangeTo, RangeLast:
	default:
		return ConfigError("unknown range kind %q", c.Range.Kind)
	}

	switch c.Mode {
	case ModeFull, ModeIncremental, ModeVerification, ModeDebug:
	default:
		return ConfigError("unknown mode %q", c.Mode)
	}
	return nil
}

// CommitsState reports whether the session may write markers and persist
// derived state.
func (c ReplayConfig) CommitsState() bool {
	return !c.DryRun && c.Mode != ModeDebug
}
