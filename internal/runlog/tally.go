package runlog

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dispatch-tools/consultbot/internal/classify"
	"github.com/dispatch-tools/consultbot/internal/dispatch"
)

// majorJobTypes are reported individually in the job-type breakdown.
// Matching is by case-insensitive substring, first hit wins.
var majorJobTypes = []string{
	"ONT In Disco", "ONT Move", "ONT Swap", "WiFi Survey",
	"Go-Live", "NID/IW/CopperTest", "IW Tie Down", "Onn Install",
	"Equipment Check/ONT Swap",
}

// Tally counts finished tasks for the end-of-run summary
type Tally struct {
	ByLabel   map[classify.Label]int
	ByState   map[dispatch.State]int
	JobTypes  map[string]int
	Other     map[string]int // job texts that matched no major type
	Processed int
	Billing   int
}

func NewTally() *Tally {
	return &Tally{
		ByLabel:  make(map[classify.Label]int),
		ByState:  make(map[dispatch.State]int),
		JobTypes: make(map[string]int),
		Other:    make(map[string]int),
	}
}

// Record counts a task that reached a terminal state
func (t *Tally) Record(task *dispatch.Task) {
	t.Processed++
	t.ByState[task.State]++
	if task.Label != "" {
		t.ByLabel[task.Label]++
	}
	if task.BillingSubtask {
		t.Billing++
	}

	bucket, other := jobTypeBucket(task)
	t.JobTypes[bucket]++
	if other {
		t.Other[strings.TrimSpace(task.JobText)]++
	}
}

func jobTypeBucket(task *dispatch.Task) (bucket string, other bool) {
	text := strings.TrimSpace(task.JobText)
	lower := strings.ToLower(text)
	for _, major := range majorJobTypes {
		if strings.Contains(lower, strings.ToLower(major)) {
			return major, false
		}
	}
	switch {
	case task.Label == "":
		return "Unknown", false
	case text == "" || lower == "blank":
		return "Blank", false
	case lower == "unknown" || lower == "error":
		return "Unknown", false
	}
	return "Other", true
}

// Log writes the aggregate counts. It is always the last thing a run logs.
func (t *Tally) Log(log zerolog.Logger) {
	log.Info().
		Int("processed", t.Processed).
		Int(string(classify.Free), t.ByLabel[classify.Free]).
		Int(string(classify.Billable), t.ByLabel[classify.Billable]).
		Int(string(classify.Unknown), t.ByLabel[classify.Unknown]).
		Int("billing_subtasks", t.Billing).
		Msg("run summary by job classification")

	states := log.Info()
	for _, s := range []dispatch.State{dispatch.StateCompleted, dispatch.StateNotesOnly, dispatch.StateSkipped, dispatch.StateErrored} {
		states = states.Int(string(s), t.ByState[s])
	}
	states.Msg("run summary by outcome")

	log.Info().Msg("job type summary:")
	for _, major := range majorJobTypes {
		if n := t.JobTypes[major]; n > 0 {
			log.Info().Msgf("  %s: %d", major, n)
		}
	}
	for _, bucket := range []string{"Blank", "Unknown"} {
		if n := t.JobTypes[bucket]; n > 0 {
			log.Info().Msgf("  %s: %d", bucket, n)
		}
	}
	if n := t.JobTypes["Other"]; n > 0 {
		log.Info().Msgf("  Other: %d", n)
		others := make([]string, 0, len(t.Other))
		for text := range t.Other {
			others = append(others, text)
		}
		sort.Strings(others)
		for _, text := range others {
			log.Info().Msgf("    - %s: %d task(s)", text, t.Other[text])
		}
	}
}
