// Package logging wraps log/slog with a topic filter, so the daemon can
// turn on verbose logging for one subsystem ("sensor", "ipc", "session",
// "retention") without drowning in the others.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// topicHandler filters records by a "topic" attribute. Records without a
// topic attribute always pass through (startup messages, errors);
// records with a topic only pass if that topic is enabled, or "all" is.
type topicHandler struct {
	inner  slog.Handler
	topics map[string]bool
	topic  string // set once WithAttrs has seen a "topic" key
}

func (h *topicHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *topicHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.topics["all"] {
		return h.inner.Handle(ctx, r)
	}
	topic := h.topic
	if topic == "" {
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == "topic" {
				topic = a.Value.String()
				return false
			}
			return true
		})
	}
	if topic != "" && !h.topics[topic] {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *topicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	topic := h.topic
	for _, a := range attrs {
		if a.Key == "topic" {
			topic = a.Value.String()
		}
	}
	return &topicHandler{inner: h.inner.WithAttrs(attrs), topics: h.topics, topic: topic}
}

func (h *topicHandler) WithGroup(name string) slog.Handler {
	return &topicHandler{inner: h.inner.WithGroup(name), topics: h.topics, topic: h.topic}
}

// ParseTopics turns a comma-separated "-log" flag value into a topic set.
func ParseTopics(raw string) map[string]bool {
	topics := make(map[string]bool)
	if raw == "" {
		return topics
	}
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			topics[t] = true
		}
	}
	return topics
}

// New returns a *slog.Logger writing text-formatted records at or above
// level to os.Stderr, filtered to the given topic set.
func New(topics map[string]bool, level slog.Level) *slog.Logger {
	handler := &topicHandler{
		inner:  slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
		topics: topics,
	}
	return slog.New(handler)
}

// Topic returns a child logger tagged with the given topic attribute.
func Topic(logger *slog.Logger, name string) *slog.Logger {
	return logger.With("topic", name)
}
