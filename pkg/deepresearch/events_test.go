package deepresearch

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStartEvent_OmitsIrrelevantFields(t *testing.T) {
	e := newStartEvent("go generics", ResearchOptions{IsDeep: true, Depth: 2, Breadth: 3, ModelID: "gpt-4o"}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	data, err := json.Marshal(e)
	require.NoError(t, err)
	s := string(data)

	assert.Contains(t, s, `"type":"start"`)
	assert.Contains(t, s, `"query":"go generics"`)
	assert.Contains(t, s, `"timestamp":"2026-01-02T03:04:05Z"`)
	assert.NotContains(t, s, `"content"`)
	assert.NotContains(t, s, `"sources"`)
	assert.NotContains(t, s, `"metrics"`)
}

func TestNewErrorEvent_CarriesKind(t *testing.T) {
	e := newErrorEvent("boom", KindTransient)
	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"transient"`)
}

func TestEventStream_EmitAndClose(t *testing.T) {
	stream := NewEventStream(4)
	require.NoError(t, stream.Emit(context.Background(), newContentEvent("hello")))
	stream.Close()

	e, ok := <-stream.Events()
	require.True(t, ok)
	assert.Equal(t, "hello", e.Content)

	_, ok = <-stream.Events()
	assert.False(t, ok, "channel should be drained and closed")
}

func TestEventStream_Emit_RespectsCancellation(t *testing.T) {
	stream := NewEventStream(1)
	require.NoError(t, stream.Emit(context.Background(), newContentEvent("fills the buffer")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := stream.Emit(ctx, newContentEvent("should not block forever"))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindCancelled))
}

func TestEventStream_Emit_AfterCloseReturnsCancelled(t *testing.T) {
	stream := NewEventStream(4)
	stream.Close()
	err := stream.Emit(context.Background(), newContentEvent("too late"))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindCancelled))
}

func TestWriteNDJSON_WritesOneJSONObjectPerLine(t *testing.T) {
	stream := NewEventStream(4)
	require.NoError(t, stream.Emit(context.Background(), newContentEvent("first")))
	require.NoError(t, stream.Emit(context.Background(), newContentEvent("second")))
	stream.Close()

	var buf bytes.Buffer
	require.NoError(t, WriteNDJSON(&buf, stream))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		var e Event
		require.NoError(t, json.Unmarshal([]byte(line), &e))
	}
}
