package domain

import (
	"errors"
	"testing"
	"time"
)

func TestRange_LastResolvesFromLatest(t *testing.T) {
	r := LastLedgers(100)

	start, ok := r.StartLedger(1000, nil)
	if !ok || start != 900 {
		t.Errorf("expected start 900, got %d (ok=%v)", start, ok)
	}
	end, ok := r.EndLedger(1000)
	if !ok || end != 1000 {
		t.Errorf("expected end 1000, got %d (ok=%v)", end, ok)
	}
}

func TestRange_LastSaturatesAtZero(t *testing.T) {
	start, ok := LastLedgers(5000).StartLedger(1000, nil)
	if !ok || start != 0 {
		t.Errorf("expected start 0, got %d", start)
	}
}

func TestRange_StartAndEnd(t *testing.T) {
	cpLedger := uint64(420)

	tests := []struct {
		name      string
		r         Range
		cp        *uint64
		wantStart uint64
		startOK   bool
		wantEnd   uint64
	}{
		{"all", AllLedgers(), nil, 0, true, 1000},
		{"from", FromLedger(10), nil, 10, true, 1000},
		{"to", ToLedger(50), nil, 0, true, 50},
		{"from_to", LedgerSpan(100, 200), nil, 100, true, 200},
		{"checkpoint", FromCheckpoint("cp-1"), &cpLedger, 420, true, 1000},
		{"checkpoint missing", FromCheckpoint("cp-1"), nil, 0, false, 1000},
		{"last", LastLedgers(10), nil, 990, true, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, ok := tt.r.StartLedger(1000, tt.cp)
			if ok != tt.startOK {
				t.Fatalf("expected ok=%v, got %v", tt.startOK, ok)
			}
			if ok && start != tt.wantStart {
				t.Errorf("expected start %d, got %d", tt.wantStart, start)
			}
			end, _ := tt.r.EndLedger(1000)
			if end != tt.wantEnd {
				t.Errorf("expected end %d, got %d", tt.wantEnd, end)
			}
		})
	}
}

func TestRange_Contains(t *testing.T) {
	r := LedgerSpan(100, 200)

	tests := []struct {
		ledger uint64
		want   bool
	}{
		{150, true},
		{100, true},
		{200, true},
		{50, false},
		{250, false},
	}
	for _, tt := range tests {
		if got := r.Contains(tt.ledger, 1000, nil); got != tt.want {
			t.Errorf("Contains(%d) = %v, want %v", tt.ledger, got, tt.want)
		}
	}

	// Missing checkpoint ledger falls back to 0.
	if !FromCheckpoint("x").Contains(5, 1000, nil) {
		t.Error("expected checkpoint range without ledger to start at 0")
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		in      string
		want    Range
		wantErr bool
	}{
		{"all", AllLedgers(), false},
		{"", AllLedgers(), false},
		{"from:10", FromLedger(10), false},
		{"to:20", ToLedger(20), false},
		{"100-200", LedgerSpan(100, 200), false},
		{"last:50", LastLedgers(50), false},
		{"checkpoint:abc", FromCheckpoint("abc"), false},
		{"checkpoint:", Range{}, true},
		{"from:x", Range{}, true},
		{"sideways:1", Range{}, true},
		{"nonsense", Range{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRange(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
			if tt.in != "" && got.String() != tt.in {
				t.Errorf("String() = %q, want %q", got.String(), tt.in)
			}
		})
	}
}

func TestReplayConfig_Validate(t *testing.T) {
	if err := DefaultReplayConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *ReplayConfig)
	}{
		{"zero batch size", func(c *ReplayConfig) { c.BatchSize = 0 }},
		{"zero workers", func(c *ReplayConfig) { c.MaxWorkers = 0 }},
		{"zero checkpoint interval", func(c *ReplayConfig) { c.CheckpointInterval = 0 }},
		{"zero timeout", func(c *ReplayConfig) { c.EventTimeout = 0 }},
		{"negative retries", func(c *ReplayConfig) { c.MaxRetries = -1 }},
		{"inverted range", func(c *ReplayConfig) { c.Range = LedgerSpan(200, 100) }},
		{"empty checkpoint id", func(c *ReplayConfig) { c.Range = FromCheckpoint("") }},
		{"unknown mode", func(c *ReplayConfig) { c.Mode = "turbo" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultReplayConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestReplayConfig_Defaults(t *testing.T) {
	cfg := DefaultReplayConfig()
	if cfg.Mode != ModeFull || cfg.Range.Kind != RangeAll {
		t.Errorf("unexpected mode/range: %s %s", cfg.Mode, cfg.Range)
	}
	if cfg.BatchSize != 100 || cfg.MaxWorkers != 4 || cfg.CheckpointInterval != 1000 {
		t.Errorf("unexpected sizes: %+v", cfg)
	}
	if cfg.EventTimeout != 30*time.Second || cfg.MaxRetries != 3 {
		t.Errorf("unexpected timeout/retries: %+v", cfg)
	}
	if cfg.DryRun || cfg.Verbose {
		t.Error("dry run and verbose should be off by default")
	}
}

func TestEventFilter_Matches(t *testing.T) {
	ev := &ContractEvent{ContractID: "C1", EventType: "transfer", Network: NetworkTestnet}

	tests := []struct {
		name   string
		filter EventFilter
		want   bool
	}{
		{"empty", EventFilter{}, true},
		{"contract match", EventFilter{ContractIDs: []string{"C0", "C1"}}, true},
		{"contract miss", EventFilter{ContractIDs: []string{"C2"}}, false},
		{"type match", EventFilter{EventTypes: []string{"transfer"}}, true},
		{"type miss", EventFilter{EventTypes: []string{"mint"}}, false},
		{"network miss", EventFilter{Network: NetworkMainnet}, false},
		{"all match", EventFilter{
			ContractIDs: []string{"C1"},
			EventTypes:  []string{"transfer"},
			Network:     NetworkTestnet,
		}, true},
		{"and semantics", EventFilter{ContractIDs: []string{"C1"}, EventTypes: []string{"mint"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(ev); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckpoint_StateHash(t *testing.T) {
	a := NewCheckpoint("s1", 10).WithState([]byte(`{"a":1}`))
	b := NewCheckpoint("s2", 20).WithState([]byte(`{"a":1}`))

	if a.StateHash() != b.StateHash() {
		t.Error("same snapshot should hash identically")
	}
	if a.Metadata[MetaStateHash] != a.StateHash() {
		t.Error("WithState should record the hash in metadata")
	}
	if len(a.StateHash()) != 64 {
		t.Errorf("expected hex sha256, got %q", a.StateHash())
	}
}
