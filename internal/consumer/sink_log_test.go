package consumer

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correlator-io/eventd/internal/ingestion"
)

func TestLoggingSink_HandleLogsEvent(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	sink := NewLoggingSink(logger)

	event := ingestion.Event{Topic: "orders", EventID: "evt-1", Source: "svc"}

	require.NoError(t, sink.Handle(context.Background(), event))

	out := buf.String()
	assert.True(t, strings.Contains(out, "orders"))
	assert.True(t, strings.Contains(out, "evt-1"))
}
