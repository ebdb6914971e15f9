package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestContextFieldsPropagate(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "test", Level: zerolog.InfoLevel, Output: &buf})

	ctx := logg.WithSubscriptionID(context.Background(), "sub-123")
	ctx = logg.WithCycleID(ctx, "cycle-9")
	logg.Info(ctx, "batch start")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid log output: %v", err)
	}
	if entry["subscription_id"] != "sub-123" {
		t.Fatalf("missing subscription field: %v", entry)
	}
	if entry["cycle_id"] != "cycle-9" {
		t.Fatalf("missing cycle field: %v", entry)
	}
	if entry["service"] != "test" {
		t.Fatalf("missing service field: %v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != zerolog.DebugLevel {
		t.Fatal("debug should parse")
	}
	if ParseLevel("") != zerolog.InfoLevel {
		t.Fatal("empty should default to info")
	}
	if ParseLevel("nope") != zerolog.InfoLevel {
		t.Fatal("garbage should default to info")
	}
}
