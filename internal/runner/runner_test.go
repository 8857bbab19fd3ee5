package runner

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatch-tools/consultbot/internal/classify"
	"github.com/dispatch-tools/consultbot/internal/config"
	"github.com/dispatch-tools/consultbot/internal/credentials"
	"github.com/dispatch-tools/consultbot/internal/dispatch"
	"github.com/dispatch-tools/consultbot/internal/dispatch/dispatchtest"
	"github.com/dispatch-tools/consultbot/internal/runlog"
	"github.com/dispatch-tools/consultbot/internal/session"
)

const (
	base      = "http://dispatch.test"
	listURL   = base + "/index.php?tab=tasks"
	loginURL  = base + "/system/login.php"
	billingCB = "check " + dispatch.SelBillingSubtask + "=true"
)

var testRules = []classify.Rule{
	{Label: classify.Free, Phrases: []string{"WiFi Survey", "Go-Live", "Blank"}},
	{Label: classify.Billable, Phrases: []string{"ONT Move", "Fiber Cut"}},
}

type memStore struct{ state *session.State }

func (m *memStore) Restore() (*session.State, error) { return m.state, nil }
func (m *memStore) Save(s *session.State) error     { m.state = s; return nil }
func (m *memStore) Clear() error                     { m.state = nil; return nil }

type countingReporter struct{ advanced, done int }

func (c *countingReporter) Advance() { c.advanced++ }
func (c *countingReporter) Done()    { c.done++ }

type siteTask struct {
	n        int
	jobType  string
	due      string
	woStatus string
}

func taskURL(n int) string { return fmt.Sprintf("%s/task.php?id=%d", base, n) }

// newSite serves a logged-in dispatch site with one task page, customer
// and work order per entry.
func newSite(tasks ...siteTask) *dispatchtest.Page {
	page := dispatchtest.New()
	page.Serve(base+"/", dispatchtest.Dashboard())

	var rows []dispatchtest.ListRow
	rows = append(rows, dispatchtest.ListRow{Href: "/task.php?id=999", Description: "Install", Due: "2026-01-01"})
	for _, st := range tasks {
		id := fmt.Sprint(st.n)
		cid := fmt.Sprint(5000 + st.n)
		ticket := fmt.Sprint(7000 + st.n)
		wo := 9000 + st.n

		rows = append(rows, dispatchtest.ListRow{Href: fmt.Sprintf("/task.php?id=%d", st.n), Description: "Consultation - Dispatch", Due: st.due})
		page.Serve(taskURL(st.n), dispatchtest.TaskPage(dispatchtest.TaskFixture{
			ID:           id,
			Notes:        "PROBLEM STATEMENT: <b>" + st.jobType + "</b>",
			CustomerID:   cid,
			CustomerName: "Customer " + id,
			Ticket:       ticket,
		}))
		page.Serve(fmt.Sprintf("%s/menu.php?coid=1&tabid=7&parentid=9&customerid=%s", base, cid), dispatchtest.CustomerPage(
			dispatchtest.WorkOrderLink{Number: wo, Description: "Consultation for Ticket #" + ticket, Href: fmt.Sprintf("/wo.php?id=%d", wo)},
		))
		status := st.woStatus
		if status == "" {
			status = "Complete"
		}
		page.Serve(fmt.Sprintf("%s/wo.php?id=%d", base, wo), dispatchtest.WorkOrderPage(dispatchtest.WorkOrderFixture{
			Status:        status,
			ArrivalDate:   "2026-01-05",
			ArrivalTime:   "09:00",
			CompletedDate: "2026-01-05",
			CompletedTime: "10:00",
			Equipment:     "ONT",
			Notes:         "Visited site",
		}))
	}
	rows = append(rows, dispatchtest.ListRow{Href: "/task.php?id=998", Description: "Consultation - Dispatch", Due: "2999-01-01"})
	page.Serve(listURL, dispatchtest.TaskList(rows...))
	return page
}

func newRunner(t *testing.T, page dispatch.Page, opts dispatch.FinalizerOptions, log zerolog.Logger) (*Runner, *countingReporter) {
	t.Helper()
	summarizer, err := dispatch.NewSummarizer(base, log)
	require.NoError(t, err)

	store := &memStore{state: &session.State{Cookies: []session.Cookie{{Name: "PHPSESSID", Value: "saved"}}}}
	progress := &countingReporter{}
	r := New(Deps{
		Page:       page,
		Auth:       dispatch.NewAuthenticator(base, loginURL, store, credentials.NewChain(), log),
		Lister:     dispatch.NewLister(listURL, log),
		Classifier: classify.New(testRules, classify.DefaultThreshold),
		Summarizer: summarizer,
		Finalizer:  dispatch.NewFinalizer(opts, log),
		Log:        log,
		Progress:   func(int) Reporter { return progress },
	})
	return r, progress
}

func countActions(page *dispatchtest.Page, action string) int {
	n := 0
	for _, a := range page.ActionsLog {
		if a == action {
			n++
		}
	}
	return n
}

func TestRunClassifiesAndFinalizes(t *testing.T) {
	page := newSite(
		siteTask{n: 101, jobType: "WiFi Survey", due: "2026-01-02"},
		siteTask{n: 102, jobType: "ONT Move", due: "2026-01-03"},
		siteTask{n: 103, jobType: "Roof leak inspection", due: "2026-01-04"},
	)
	var buf bytes.Buffer
	r, progress := newRunner(t, page, dispatch.FinalizerOptions{}, runlog.NewWithWriter(&buf, zerolog.InfoLevel))

	tally, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, tally.Processed)
	assert.Equal(t, 1, tally.ByLabel[classify.Free])
	assert.Equal(t, 1, tally.ByLabel[classify.Billable])
	assert.Equal(t, 1, tally.ByLabel[classify.Unknown])
	assert.Equal(t, 2, tally.ByState[dispatch.StateCompleted])
	assert.Equal(t, 1, tally.ByState[dispatch.StateNotesOnly])
	assert.Equal(t, 1, tally.Billing)

	// only the billable task gets a billing subtask
	assert.Equal(t, 1, countActions(page, billingCB))
	idx := func(action string) int {
		for i, a := range page.ActionsLog {
			if a == action {
				return i
			}
		}
		return -1
	}
	billing := idx(billingCB)
	assert.Greater(t, billing, idx("navigate "+taskURL(102)))
	assert.Less(t, billing, idx("navigate "+taskURL(103)))

	assert.Equal(t, 1, countActions(page, "click #sub_101"))
	assert.Equal(t, 1, countActions(page, "click #sub_102"))
	assert.Equal(t, 1, countActions(page, "click #sub_103"))
	assert.Zero(t, countActions(page, "check #completedcheck103=true"), "unknown jobs are notes-only")
	assert.Contains(t, page.Fills["#txtNotes103"], "CUSTOMER: Customer 103")

	assert.NotContains(t, page.Navigated, taskURL(998), "future tasks are not opened")
	assert.NotContains(t, page.Navigated, taskURL(999), "non-consultation tasks are not opened")

	assert.Equal(t, 3, progress.advanced)
	assert.Equal(t, 1, progress.done)

	out := buf.String()
	assert.Contains(t, out, "session restored with stored state")
	assert.Contains(t, out, "run summary by job classification")
	assert.True(t, strings.Index(out, "run summary") > strings.Index(out, "task processed"), "tally comes last")
}

func TestRunContinuesPastFailures(t *testing.T) {
	page := newSite(
		siteTask{n: 201, jobType: "WiFi Survey", due: "2026-01-02", woStatus: "Scheduled"},
		siteTask{n: 202, jobType: "Go-Live", due: "2026-01-02"},
		siteTask{n: 203, jobType: "ONT Move", due: "2026-01-02"},
	)
	// the second customer page never loads
	page.Fail[base+"/menu.php?coid=1&tabid=7&parentid=9&customerid=5202"] = fmt.Errorf("connection reset")

	r, _ := newRunner(t, page, dispatch.FinalizerOptions{}, zerolog.Nop())
	tally, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, tally.Processed)
	assert.Equal(t, 1, tally.ByState[dispatch.StateSkipped])
	assert.Equal(t, 1, tally.ByState[dispatch.StateErrored])
	assert.Equal(t, 1, tally.ByState[dispatch.StateCompleted])
	assert.Zero(t, countActions(page, "click #sub_201"), "incomplete work orders are left alone")
	assert.Equal(t, 1, countActions(page, "click #sub_203"))
}

func TestRunDryRunWritesNothing(t *testing.T) {
	page := newSite(
		siteTask{n: 301, jobType: "WiFi Survey", due: "2026-01-02"},
		siteTask{n: 302, jobType: "ONT Move", due: "2026-01-02"},
	)
	r, _ := newRunner(t, page, dispatch.FinalizerOptions{DryRun: true}, zerolog.Nop())

	tally, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, tally.ByState[dispatch.StateSkipped])
	assert.Empty(t, page.Checked)
	assert.Empty(t, page.Fills)
	for _, c := range page.Clicks {
		assert.False(t, strings.HasPrefix(c, "#sub_"), "submitted %s", c)
	}
}

func TestRunLoginFailureIsFatal(t *testing.T) {
	page := newSite(siteTask{n: 401, jobType: "WiFi Survey", due: "2026-01-02"})
	page.Serve(loginURL, dispatchtest.LoginPage())
	page.Redirect = func(u string) string {
		if u == base+"/" {
			return loginURL
		}
		return u
	}

	var buf bytes.Buffer
	r, _ := newRunner(t, page, dispatch.FinalizerOptions{}, runlog.NewWithWriter(&buf, zerolog.InfoLevel))
	tally, err := r.Run(context.Background())

	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr, "credential chain with no sources reports a configuration error")
	assert.Zero(t, tally.Processed)
	assert.NotContains(t, page.Navigated, listURL)
	assert.Contains(t, buf.String(), "run summary by job classification")
}

func TestRunInterrupted(t *testing.T) {
	page := newSite(
		siteTask{n: 501, jobType: "WiFi Survey", due: "2026-01-02"},
		siteTask{n: 502, jobType: "ONT Move", due: "2026-01-02"},
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, _ := newRunner(t, page, dispatch.FinalizerOptions{}, zerolog.Nop())
	tally, err := r.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 2, tally.Processed, "no task is silently dropped")
	assert.Equal(t, 2, tally.ByState[dispatch.StateErrored])
	assert.Empty(t, page.Clicks)
}

func TestRunNoTasks(t *testing.T) {
	page := newSite()
	progress := &countingReporter{}
	r, _ := newRunner(t, page, dispatch.FinalizerOptions{}, zerolog.Nop())
	r.Progress = func(int) Reporter { return progress }

	tally, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, tally.Processed)
	assert.Zero(t, progress.done)
}
