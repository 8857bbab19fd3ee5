package runlog

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatch-tools/consultbot/internal/classify"
	"github.com/dispatch-tools/consultbot/internal/dispatch"
)

var linePattern = regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] `)

func TestNewWithWriterFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, zerolog.InfoLevel)

	log.Info().Str("task", "42").Msg("task completed")
	log.Warn().Msg("slow page")
	log.Debug().Msg("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	assert.Regexp(t, linePattern, lines[0])
	assert.Contains(t, lines[0], "] task completed task=42")
	assert.Contains(t, lines[1], "WARN: slow page")
}

func TestNewCreatesRunFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	start := time.Date(2026, 5, 6, 7, 8, 9, 0, time.Local)

	log, err := New(Options{Dir: dir, Level: zerolog.InfoLevel, Start: start})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "consultation_20260506_070809.log"), log.Path)

	log.Info().Msg("logged in via credentials")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(log.Path)
	require.NoError(t, err)
	assert.Regexp(t, linePattern, string(data))
	assert.Contains(t, string(data), "logged in via credentials")
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	p := newProgress(&buf, 3, true)

	p.Advance()
	p.Advance()
	p.Advance()
	p.Advance() // extra advances never overshoot
	p.Done()

	out := buf.String()
	assert.Contains(t, out, "1/3")
	assert.Contains(t, out, "3/3")
	assert.NotContains(t, out, "4/3")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestProgressDisabled(t *testing.T) {
	var buf bytes.Buffer
	p := newProgress(&buf, 2, false)
	p.Advance()
	p.Done()
	assert.Empty(t, buf.String())
}

func TestTally(t *testing.T) {
	tally := NewTally()
	tally.Record(&dispatch.Task{Label: classify.Free, State: dispatch.StateCompleted, JobText: "WiFi Survey"})
	tally.Record(&dispatch.Task{Label: classify.Billable, State: dispatch.StateCompleted, JobText: "ONT move to garage", BillingSubtask: true})
	tally.Record(&dispatch.Task{Label: classify.Unknown, State: dispatch.StateNotesOnly, JobText: "Roof leak"})
	tally.Record(&dispatch.Task{Label: classify.Free, State: dispatch.StateSkipped, JobText: ""})
	tally.Record(&dispatch.Task{State: dispatch.StateErrored, JobText: ""})

	assert.Equal(t, 5, tally.Processed)
	assert.Equal(t, 2, tally.ByLabel[classify.Free])
	assert.Equal(t, 1, tally.ByLabel[classify.Billable])
	assert.Equal(t, 1, tally.ByLabel[classify.Unknown])
	assert.Equal(t, 1, tally.Billing)
	assert.Equal(t, 2, tally.ByState[dispatch.StateCompleted])
	assert.Equal(t, 1, tally.ByState[dispatch.StateErrored])

	assert.Equal(t, 1, tally.JobTypes["WiFi Survey"])
	assert.Equal(t, 1, tally.JobTypes["ONT Move"])
	assert.Equal(t, 1, tally.JobTypes["Blank"])
	assert.Equal(t, 1, tally.JobTypes["Unknown"])
	assert.Equal(t, 1, tally.Other["Roof leak"])

	var buf bytes.Buffer
	tally.Log(NewWithWriter(&buf, zerolog.InfoLevel))
	out := buf.String()
	assert.Contains(t, out, "Free=2")
	assert.Contains(t, out, "Billable=1")
	assert.Contains(t, out, "Unknown=1")
	assert.Contains(t, out, "Roof leak: 1 task(s)")
}
