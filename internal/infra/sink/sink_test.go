package sink

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/vietddude/replayer/internal/infra/storage/memory"
)

func TestFileSink_WriteRead(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewFileSink(filepath.Join(dir, "nested"), "ledger_state")
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}

	got, err := s.Read(ctx)
	if err != nil || got != nil {
		t.Fatalf("expected nothing stored, got %q, %v", got, err)
	}

	for _, doc := range [][]byte{[]byte(`{"v":1}`), []byte(`{"v":2}`)} {
		if err := s.Write(ctx, doc); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		got, err := s.Read(ctx)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if !bytes.Equal(got, doc) {
			t.Errorf("expected %s, got %s", doc, got)
		}
	}

	if _, err := os.Stat(s.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	states := memory.NewStateRepo(memory.NewMemoryStorage())

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"file", Config{Type: TypeFile, Path: t.TempDir()}, false},
		{"database", Config{Type: TypeDatabase}, false},
		{"none", Config{Type: TypeNone}, false},
		{"s3 without bucket", Config{Type: TypeS3}, true},
		{"gcs without bucket", Config{Type: TypeGCS}, true},
		{"unknown", Config{Type: "ftp"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(ctx, tt.cfg, states)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
			if s != nil {
				s.Close()
			}
		})
	}
}

func TestDatabaseSink(t *testing.T) {
	ctx := context.Background()
	s := NewDatabaseSink(memory.NewStateRepo(memory.NewMemoryStorage()), "state")

	if err := s.Write(ctx, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := s.Read(ctx)
	if err != nil || string(got) != `{"a":1}` {
		t.Errorf("unexpected read: %s, %v", got, err)
	}
}
