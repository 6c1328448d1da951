package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newCapturing(topics map[string]bool) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	handler := &topicHandler{
		inner:  slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		topics: topics,
	}
	return slog.New(handler), &buf
}

func TestParseTopics(t *testing.T) {
	got := ParseTopics("sensor, ipc ,,session")
	want := map[string]bool{"sensor": true, "ipc": true, "session": true}
	if len(got) != len(want) {
		t.Fatalf("ParseTopics() = %v, want %v", got, want)
	}
	for k := range want {
		if !got[k] {
			t.Fatalf("ParseTopics() missing topic %q", k)
		}
	}
}

func TestTopicHandler_PassesUntaggedRecords(t *testing.T) {
	logger, buf := newCapturing(map[string]bool{})
	logger.Info("daemon starting")

	if !strings.Contains(buf.String(), "daemon starting") {
		t.Fatalf("untagged record was filtered out, buf = %q", buf.String())
	}
}

func TestTopicHandler_FiltersDisabledTopic(t *testing.T) {
	logger, buf := newCapturing(map[string]bool{"ipc": true})
	sensorLog := Topic(logger, "sensor")
	sensorLog.Info("tick missed")

	if buf.Len() != 0 {
		t.Fatalf("expected sensor-topic record to be filtered, got %q", buf.String())
	}
}

func TestTopicHandler_PassesEnabledTopic(t *testing.T) {
	logger, buf := newCapturing(map[string]bool{"sensor": true})
	sensorLog := Topic(logger, "sensor")
	sensorLog.Info("tick missed")

	if !strings.Contains(buf.String(), "tick missed") {
		t.Fatalf("expected sensor-topic record to pass, got %q", buf.String())
	}
}

func TestTopicHandler_AllTopicPassesEverything(t *testing.T) {
	logger, buf := newCapturing(map[string]bool{"all": true})
	Topic(logger, "retention").Info("pruned rows")

	if !strings.Contains(buf.String(), "pruned rows") {
		t.Fatalf("expected 'all' topic to pass every record, got %q", buf.String())
	}
}

func TestTopicHandler_WithGroupPreservesTopic(t *testing.T) {
	logger, buf := newCapturing(map[string]bool{"ipc": true})
	grouped := Topic(logger, "ipc").WithGroup("conn").With("id", 1)
	grouped.Info("accepted")

	if !strings.Contains(buf.String(), "accepted") {
		t.Fatalf("expected grouped ipc-topic record to pass, got %q", buf.String())
	}
}
