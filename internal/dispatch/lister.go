package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dispatch-tools/consultbot/internal/browser"
)

const consultationKeyword = "consultation"

// Lister scrapes the task list for due consultation tasks
type Lister struct {
	taskListURL string
	log         zerolog.Logger
	now         func() time.Time
}

func NewLister(taskListURL string, log zerolog.Logger) *Lister {
	return &Lister{taskListURL: taskListURL, log: log, now: time.Now}
}

// List returns the due consultation tasks in page order. An empty list is
// not an error.
func (l *Lister) List(ctx context.Context, page Page) ([]*Task, error) {
	base, err := url.Parse(l.taskListURL)
	if err != nil {
		return nil, fmt.Errorf("invalid task list URL: %w", err)
	}

	if err := page.Navigate(ctx, l.taskListURL); err != nil {
		return nil, fmt.Errorf("open task list: %w", err)
	}
	// rows render after the frame loads; none within the timeout is an empty list
	if err := page.WaitFor(ctx, SelTaskRow, browser.WaitAttached); err != nil {
		if !errors.Is(err, browser.ErrNavigationTimeout) || ctx.Err() != nil {
			return nil, fmt.Errorf("wait for task rows: %w", err)
		}
		l.log.Debug().Err(err).Msg("no task rows appeared")
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read task list: %w", err)
	}
	rows, err := ParseTaskList(html, base)
	if err != nil {
		return nil, err
	}

	tasks := FilterDue(rows, l.now(), l.log)
	l.log.Info().Int("rows", len(rows)).Int("due", len(tasks)).Msgf("found %d due consultation tasks", len(tasks))
	return tasks, nil
}

// FilterDue keeps consultation rows due on or before today. Rows whose due
// date cannot be parsed are logged and dropped.
func FilterDue(rows []TaskRow, today time.Time, log zerolog.Logger) []*Task {
	y, m, d := today.Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	var tasks []*Task
	for _, row := range rows {
		if !strings.Contains(strings.ToLower(row.Description), consultationKeyword) {
			continue
		}

		due, err := time.Parse("2006-01-02", row.DueRaw)
		if err != nil {
			log.Warn().Str("description", row.Description).Str("due", row.DueRaw).Msg("could not parse due date, skipping")
			continue
		}
		if due.After(cutoff) {
			log.Debug().Str("description", row.Description).Str("due", row.DueRaw).Msg("not yet due")
			continue
		}
		if row.URL == "" {
			log.Warn().Str("description", row.Description).Msg("task row has no link, skipping")
			continue
		}

		tasks = append(tasks, &Task{
			URL:         row.URL,
			Due:         due,
			Description: row.Description,
			AssignedTo:  row.AssignedTo,
			Company:     row.Company,
			State:       StatePending,
		})
	}
	return tasks
}
