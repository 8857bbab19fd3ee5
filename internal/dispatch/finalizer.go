package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dispatch-tools/consultbot/internal/browser"
	"github.com/dispatch-tools/consultbot/internal/classify"
)

// FinalizationError reports the step at which writing a task back failed.
// The task is left unmarked.
type FinalizationError struct {
	TaskID     string
	Step       string
	Screenshot string
	Err        error
}

func (e *FinalizationError) Error() string {
	return fmt.Sprintf("finalize task %s: %s: %v", e.TaskID, e.Step, e.Err)
}

func (e *FinalizationError) Unwrap() error { return e.Err }

// ErrAlreadyFinalized is returned when a task has been finalized earlier in
// the same run.
var ErrAlreadyFinalized = errors.New("task already finalized in this run")

// Outcome is what the finalizer did to a task
type Outcome struct {
	State          State
	BillingSubtask bool
	Reason         string
}

// FinalizerOptions tune what the finalizer writes
type FinalizerOptions struct {
	DryRun          bool // Build everything, write nothing
	CompleteUnknown bool // Mark Unknown jobs complete instead of notes-only
}

// Finalizer writes the dispatch summary into a task and closes it
type Finalizer struct {
	opts      FinalizerOptions
	log       zerolog.Logger
	finalized map[string]bool
}

func NewFinalizer(opts FinalizerOptions, log zerolog.Logger) *Finalizer {
	return &Finalizer{opts: opts, log: log, finalized: make(map[string]bool)}
}

// NoteText is what gets written into the task notes for a label. Free jobs
// carry a trailing no-charge line naming the job type.
func NoteText(summary string, label classify.Label, jobText string) string {
	if label != classify.Free {
		return summary
	}
	if strings.TrimSpace(jobText) == "" {
		jobText = "Blank"
	}
	return summary + "\n\n" + jobText + ", no charge"
}

// Finalize returns to the task page, skips tasks that already carry the
// summary, and otherwise fills the note, ticks the completion boxes the
// label calls for and submits. No task is submitted twice per run.
func (f *Finalizer) Finalize(ctx context.Context, page Page, t *Task, summary string) (Outcome, error) {
	if t.ID == "" {
		return Outcome{}, &FinalizationError{Step: "identify task", Err: errors.New("task page has no task ID")}
	}
	if f.finalized[t.ID] {
		return Outcome{}, &FinalizationError{TaskID: t.ID, Step: "guard", Err: ErrAlreadyFinalized}
	}

	if err := page.Navigate(ctx, t.URL); err != nil {
		return Outcome{}, f.fail(ctx, page, t.ID, "reopen task", err)
	}
	f.expand(ctx, page, t.ID)

	html, err := page.HTML(ctx)
	if err != nil {
		return Outcome{}, f.fail(ctx, page, t.ID, "read notes history", err)
	}
	dup, err := NotesContainSummary(html, summary)
	if err != nil {
		f.log.Warn().Err(err).Str("task", t.ID).Msg("could not read notes history")
	}
	if dup {
		return Outcome{State: StateSkipped, Reason: "summary already in notes"}, nil
	}

	complete := t.Label != classify.Unknown || f.opts.CompleteUnknown
	billing := t.Label == classify.Billable
	notes := NoteText(summary, t.Label, t.JobText)

	if f.opts.DryRun {
		f.log.Info().
			Str("task", t.ID).
			Bool("complete", complete).
			Bool("billing_subtask", billing).
			Msg("(dry run) would update task")
		return Outcome{State: StateSkipped, Reason: "dry run"}, nil
	}

	if complete {
		if err := page.SetChecked(ctx, selCompletedCheck(t.ID), true); err != nil {
			return Outcome{}, f.fail(ctx, page, t.ID, "tick completed", err)
		}
	}
	if billing {
		if err := page.WaitFor(ctx, SelBillingSubtask, browser.WaitAttached); err != nil {
			return Outcome{}, f.fail(ctx, page, t.ID, "find billing subtask", err)
		}
		if err := page.SetChecked(ctx, SelBillingSubtask, true); err != nil {
			return Outcome{}, f.fail(ctx, page, t.ID, "tick billing subtask", err)
		}
	}

	notesSel := selTaskNotesInput(t.ID)
	if err := page.Fill(ctx, notesSel, notes); err != nil {
		return Outcome{}, f.fail(ctx, page, t.ID, "fill notes", err)
	}
	written, err := page.ReadValue(ctx, notesSel)
	if err != nil {
		return Outcome{}, f.fail(ctx, page, t.ID, "verify notes", err)
	}
	if written != notes {
		return Outcome{}, f.fail(ctx, page, t.ID, "verify notes", fmt.Errorf("notes field holds %d chars, want %d", len(written), len(notes)))
	}

	// Past this point the site may have accepted the update, so the task
	// counts as finalized even if the click reports an error.
	f.finalized[t.ID] = true
	if err := page.Click(ctx, selTaskSubmit(t.ID)); err != nil {
		return Outcome{}, f.fail(ctx, page, t.ID, "submit", err)
	}

	if !complete {
		return Outcome{State: StateNotesOnly}, nil
	}
	return Outcome{State: StateCompleted, BillingSubtask: billing}, nil
}

// expand opens the collapsed note form. Failure is logged only; the fill
// that follows reports the real error.
func (f *Finalizer) expand(ctx context.Context, page Page, taskID string) {
	span := selDisplaySpan(taskID)
	visible, err := page.Visible(ctx, span)
	if err != nil {
		f.log.Warn().Err(err).Str("task", taskID).Msg("could not inspect note form")
		return
	}
	if visible {
		return
	}
	if err := page.ClickNearest(ctx, span, noteFormContainer, noteFormToggle); err != nil {
		f.log.Warn().Err(err).Str("task", taskID).Msg("could not expand note form")
		return
	}
	if err := page.WaitFor(ctx, span, browser.WaitVisible); err != nil {
		f.log.Warn().Err(err).Str("task", taskID).Msg("note form did not expand")
	}
}

func (f *Finalizer) fail(ctx context.Context, page Page, taskID, step string, err error) error {
	ferr := &FinalizationError{TaskID: taskID, Step: step, Err: err}
	if path, shotErr := page.Screenshot(ctx, "fail_"+taskID); shotErr != nil {
		f.log.Debug().Err(shotErr).Str("task", taskID).Msg("failure screenshot not captured")
	} else if path != "" {
		ferr.Screenshot = path
		f.log.Info().Str("path", path).Msg("screenshot saved")
	}
	return ferr
}
