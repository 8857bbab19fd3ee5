// Package runner drives one pass over the due consultation tasks: log in,
// list, then classify, summarize and finalize each task in turn.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dispatch-tools/consultbot/internal/browser"
	"github.com/dispatch-tools/consultbot/internal/classify"
	"github.com/dispatch-tools/consultbot/internal/dispatch"
	"github.com/dispatch-tools/consultbot/internal/runlog"
)

// debugDumpLimit caps how much page text an errored task dumps to the log
const debugDumpLimit = 2000

// Reporter is advanced once per processed task
type Reporter interface {
	Advance()
	Done()
}

// Deps are the collaborators a run is built from
type Deps struct {
	Page       dispatch.Page
	Auth       *dispatch.Authenticator
	Lister     *dispatch.Lister
	Classifier *classify.Classifier
	Summarizer *dispatch.Summarizer
	Finalizer  *dispatch.Finalizer
	Log        zerolog.Logger

	// Progress builds the progress display once the task count is known.
	// Nil draws the terminal bar.
	Progress func(total int) Reporter
}

type Runner struct {
	Deps
	tally *runlog.Tally
}

func New(d Deps) *Runner {
	if d.Progress == nil {
		d.Progress = func(total int) Reporter { return runlog.NewProgress(total) }
	}
	return &Runner{Deps: d, tally: runlog.NewTally()}
}

// Run processes every due consultation task once, sequentially. Login and
// listing failures end the run; a failing task is recorded as errored and
// the run moves on. The tally is logged before Run returns, whatever
// happened.
func (r *Runner) Run(ctx context.Context) (*runlog.Tally, error) {
	start := time.Now()
	defer func() {
		r.tally.Log(r.Log)
		r.Log.Info().Msgf("run finished in %.1fs", time.Since(start).Seconds())
	}()

	if _, err := r.Auth.Login(ctx, r.Page); err != nil {
		r.Log.Error().Err(err).Msg("login failed")
		return r.tally, fmt.Errorf("login: %w", err)
	}

	tasks, err := r.Lister.List(ctx, r.Page)
	if err != nil {
		r.Log.Error().Err(err).Msg("could not list tasks")
		return r.tally, fmt.Errorf("list tasks: %w", err)
	}
	if len(tasks) == 0 {
		r.Log.Info().Msg("no due consultation tasks")
		return r.tally, nil
	}

	bar := r.Progress(len(tasks))
	defer bar.Done()

	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			r.advance(t, dispatch.StateErrored)
			t.Reason = "run interrupted"
		} else {
			r.process(ctx, t)
		}
		r.tally.Record(t)
		bar.Advance()
	}
	if err := ctx.Err(); err != nil {
		r.Log.Warn().Msg("run interrupted; remaining tasks were not processed")
		return r.tally, err
	}
	return r.tally, nil
}

func (r *Runner) process(ctx context.Context, t *dispatch.Task) {
	r.advance(t, dispatch.StateClassifying)

	if err := r.Page.Navigate(ctx, t.URL); err != nil {
		r.fail(ctx, t, fmt.Errorf("open task: %w", err))
		return
	}
	if err := r.Page.WaitFor(ctx, dispatch.SelTaskNotes, browser.WaitAttached); err != nil {
		r.fail(ctx, t, fmt.Errorf("task notes: %w", err))
		return
	}
	html, err := r.Page.HTML(ctx)
	if err != nil {
		r.fail(ctx, t, fmt.Errorf("read task page: %w", err))
		return
	}
	info, err := dispatch.ParseTaskPage(html)
	if err != nil {
		r.fail(ctx, t, err)
		return
	}
	t.ID = info.TaskID
	t.Notes = info.Notes
	t.CustomerID = info.CustomerID
	t.CustomerName = info.CustomerName
	t.Ticket = info.Ticket

	res := r.Classifier.Classify(t.Notes)
	t.Label = res.Label
	t.JobText = res.JobText
	r.Log.Info().
		Str("task", t.Ref()).
		Str("job_type", res.JobText).
		Str("label", string(res.Label)).
		Float64("score", res.Score).
		Msg("classified task")

	if t.ID == "" {
		r.skip(t, "task page has no task ID")
		return
	}

	r.advance(t, dispatch.StateSummarizing)
	summary, err := r.Summarizer.Build(ctx, r.Page, t)
	if errors.Is(err, dispatch.ErrWorkOrderIncomplete) {
		r.skip(t, err.Error())
		return
	}
	if err != nil {
		r.fail(ctx, t, err)
		return
	}

	r.advance(t, dispatch.StateFinalizing)
	out, err := r.Finalizer.Finalize(ctx, r.Page, t, summary.Render())
	if err != nil {
		r.fail(ctx, t, err)
		return
	}
	t.BillingSubtask = out.BillingSubtask
	t.Reason = out.Reason
	r.advance(t, out.State)

	ev := r.Log.Info().Str("task", t.ID).Str("outcome", string(t.State))
	if t.Reason != "" {
		ev = ev.Str("reason", t.Reason)
	}
	ev.Bool("billing_subtask", t.BillingSubtask).Msg("task processed")
}

func (r *Runner) advance(t *dispatch.Task, to dispatch.State) {
	if err := t.Advance(to); err != nil {
		r.Log.Warn().Err(err).Msg("unexpected task transition")
	}
}

func (r *Runner) skip(t *dispatch.Task, reason string) {
	r.advance(t, dispatch.StateSkipped)
	t.Reason = reason
	r.Log.Info().Str("task", t.Ref()).Str("reason", reason).Msg("task skipped")
}

func (r *Runner) fail(ctx context.Context, t *dispatch.Task, err error) {
	r.advance(t, dispatch.StateErrored)
	t.Reason = err.Error()

	ev := r.Log.Error().Err(err).Str("task", t.Ref())
	var ferr *dispatch.FinalizationError
	if errors.As(err, &ferr) && ferr.Screenshot != "" {
		ev = ev.Str("screenshot", ferr.Screenshot)
	}
	ev.Msg("task failed")

	r.dumpPage(ctx, t)
}

// dumpPage logs where the browser was and what it showed when a task failed
func (r *Runner) dumpPage(ctx context.Context, t *dispatch.Task) {
	if r.Log.GetLevel() > zerolog.DebugLevel {
		return
	}
	current, err := r.Page.URL(ctx)
	if err != nil {
		current = "unknown"
	}
	body, err := r.Page.ReadText(ctx, "body")
	if err != nil {
		r.Log.Debug().Err(err).Str("task", t.Ref()).Str("url", current).Msg("page text unavailable")
		return
	}
	if len(body) > debugDumpLimit {
		body = body[:debugDumpLimit]
	}
	r.Log.Debug().Str("task", t.Ref()).Str("url", current).Str("body", body).Msg("page at failure")
}
