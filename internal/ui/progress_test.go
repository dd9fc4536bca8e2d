package ui

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"nondetify/internal/driver"
)

func TestProgressModelTracksUnits(t *testing.T) {
	m := NewProgressModel("instrument", []string{"a.ll", "b.ll"}, nil).(*progressModel)

	m.applyEvent(driver.Event{Index: 0, Stage: driver.StageParse, Status: driver.StatusWorking})
	require.Equal(t, "parsing", m.items[0].status)
	require.InDelta(t, 0.1, m.percent(), 1e-9)

	m.applyEvent(driver.Event{Index: 0, Stage: driver.StageEmit, Status: driver.StatusDone})
	m.applyEvent(driver.Event{Index: 1, Stage: driver.StageParse, Status: driver.StatusError, Err: errors.New("bad")})
	require.Equal(t, "done", m.items[0].status)
	require.Equal(t, "error", m.items[1].status)
	require.Equal(t, 1, m.failures)
	require.InDelta(t, 1.0, m.percent(), 1e-9)

	// события после финального статуса игнорируются
	m.applyEvent(driver.Event{Index: 1, Stage: driver.StageEmit, Status: driver.StatusWorking})
	require.Equal(t, "error", m.items[1].status)

	view := m.View()
	require.True(t, strings.Contains(view, "1 failed"), view)
	require.Contains(t, view, "a.ll")
}

func TestProgressModelIgnoresUnknownIndex(t *testing.T) {
	m := NewProgressModel("scan", []string{"a.ll"}, nil).(*progressModel)
	require.Nil(t, m.applyEvent(driver.Event{Index: 3, Status: driver.StatusDone}))
	require.Equal(t, "queued", m.items[0].status)
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "abcd...", truncate("abcdefghijk", 7))
	require.Equal(t, "ab", truncate("abcdef", 2))
}
