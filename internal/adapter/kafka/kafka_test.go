package kafka

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/malaria-risk-index/internal/config"
	"github.com/couchcryptid/malaria-risk-index/internal/domain"
	"github.com/couchcryptid/malaria-risk-index/internal/graph"
)

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 7, 1, 12, 30, 0, 0, time.UTC)
	event := domain.MapExportEvent{
		ID:         "evt-1",
		Region:     "Kigali City",
		Layer:      "index",
		MapID:      "projects/p/maps/abc",
		Vis:        graph.VisParams{Min: 0, Max: 1, Palette: []string{"blue", "red"}},
		RangeStart: now.AddDate(0, -6, 0),
		RangeEnd:   now,
		ExportedAt: now,
	}

	msg, err := serializeToMessage(event)
	require.NoError(t, err)

	assert.Equal(t, []byte("evt-1"), msg.Key)
	assert.Contains(t, string(msg.Value), `"map_id":"projects/p/maps/abc"`)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "region", msg.Headers[0].Key)
	assert.Equal(t, []byte("Kigali City"), msg.Headers[0].Value)
	assert.Equal(t, "layer", msg.Headers[1].Key)
	assert.Equal(t, []byte("index"), msg.Headers[1].Value)
	assert.Equal(t, "exported_at", msg.Headers[2].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[2].Value)

	var decoded domain.MapExportEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.Region, decoded.Region)
	assert.True(t, event.RangeStart.Equal(decoded.RangeStart))
}

func TestNewWriter_UsesConfiguredTopic(t *testing.T) {
	cfg := &config.Config{KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "map-exports"}
	w := NewWriter(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = w.Close() })

	assert.Equal(t, "map-exports", w.writer.Topic)
}

func TestWriter_PublishCanceled(t *testing.T) {
	cfg := &config.Config{KafkaBrokers: []string{"127.0.0.1:1"}, KafkaTopic: "map-exports"}
	w := NewWriter(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.Publish(ctx, domain.MapExportEvent{ID: "evt-2"})
	require.Error(t, err)
}
