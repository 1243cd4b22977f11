package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
)

func TestMockLogger_Records(t *testing.T) {
	m := NewMockLogger()
	m.Info("started", logging.String("category", "software"))
	m.Error("row failed")
	m.Error("row failed")

	assert.True(t, m.HasMessage("info", "started"))
	assert.False(t, m.HasMessage("warn", "started"))
	assert.Equal(t, 2, m.CountLevel("error"))
	assert.Len(t, m.GetMessages(), 3)

	m.Clear()
	assert.Empty(t, m.GetMessages())
}
