package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dispatch-tools/consultbot/internal/browser"
)

// Placeholder stands in for any summary field the site left empty
const Placeholder = "not recorded"

const defaultParty = "Customer"

var (
	ErrNoCustomer          = errors.New("task page has no customer ID")
	ErrNoTicket            = errors.New("task page has no dispatch ticket number")
	ErrNoWorkOrder         = errors.New("no work order matches the dispatch ticket")
	ErrWorkOrderIncomplete = errors.New("work order is not complete")
)

var (
	datePattern        = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	clockPattern       = regexp.MustCompile(`^\d{1,2}:\d{2}`)
	damageCausedBy     = regexp.MustCompile(`(?i)damage caused by\s+([^.,:\n]+)`)
	partyResponsible   = regexp.MustCompile(`(?i)([^.,:\n]+?)\s+(?:(?:is|was|are|were)\s+)?responsible`)
	brightspeedPattern = regexp.MustCompile(`(?i)bright\s?speed`)
)

// DispatchSummary is the text record written back into a task
type DispatchSummary struct {
	CustomerName     string
	CustomerID       string
	WorkOrderNumber  int
	WorkOrderLink    string
	Arrival          string
	Departure        string
	TotalHours       string
	WorkDone         string
	Equipment        []string
	ResponsibleParty string
}

// Render lays the summary out in its fixed order
func (s DispatchSummary) Render() string {
	equipment := Placeholder
	if len(s.Equipment) > 0 {
		equipment = strings.Join(s.Equipment, "\n")
	}

	lines := []string{
		"CUSTOMER: " + orPlaceholder(s.CustomerName),
		"CID: " + orPlaceholder(s.CustomerID),
		fmt.Sprintf("WORK ORDER NUMBER: %d", s.WorkOrderNumber),
		"WORK ORDER LINK: " + orPlaceholder(s.WorkOrderLink),
		"",
		"Arrival Time: " + orPlaceholder(s.Arrival),
		"Departure Time: " + orPlaceholder(s.Departure),
		"",
		"Total time of DP: " + s.TotalHours,
		"",
		"WORK DONE (DISPATCH NOTES):",
		orPlaceholder(s.WorkDone),
		"",
		"EQUIPMENT USED:",
		equipment,
		"",
		"RESPONSIBLE PARTY: " + orPlaceholder(s.ResponsibleParty),
	}
	return strings.Join(lines, "\n")
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return Placeholder
	}
	return s
}

// Summarizer visits a task's customer and work-order pages and assembles
// its dispatch summary.
type Summarizer struct {
	base *url.URL
	log  zerolog.Logger
}

func NewSummarizer(baseURL string, log zerolog.Logger) (*Summarizer, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	return &Summarizer{base: base, log: log}, nil
}

// Build gathers the summary for a task whose page has already been parsed
// into t. A page that cannot be reached or a work order that cannot be
// found fails the build; individual missing fields become placeholders.
func (s *Summarizer) Build(ctx context.Context, page Page, t *Task) (DispatchSummary, error) {
	if t.CustomerID == "" {
		return DispatchSummary{}, ErrNoCustomer
	}
	if t.Ticket == "" {
		return DispatchSummary{}, ErrNoTicket
	}

	customerURL := s.base.ResolveReference(mustParseRef(customerPath(url.QueryEscape(t.CustomerID)))).String()
	if err := page.Navigate(ctx, customerURL); err != nil {
		return DispatchSummary{}, fmt.Errorf("open customer %s: %w", t.CustomerID, err)
	}
	if err := page.WaitFor(ctx, SelWorkOrderRows, browser.WaitAttached); err != nil {
		return DispatchSummary{}, fmt.Errorf("work-order table for customer %s: %w", t.CustomerID, err)
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return DispatchSummary{}, fmt.Errorf("read customer page: %w", err)
	}
	rows, err := ParseWorkOrders(html, s.base)
	if err != nil {
		return DispatchSummary{}, err
	}
	wo, ok := LatestForTicket(rows, t.Ticket)
	if !ok || wo.Link == "" {
		return DispatchSummary{}, fmt.Errorf("ticket %s: %w", t.Ticket, ErrNoWorkOrder)
	}
	s.log.Debug().Int("work_order", wo.Number).Str("ticket", t.Ticket).Msg("matched work order")

	if err := page.Navigate(ctx, wo.Link); err != nil {
		return DispatchSummary{}, fmt.Errorf("open work order %d: %w", wo.Number, err)
	}
	if err := page.WaitFor(ctx, SelWorkOrderReady, browser.WaitAttached); err != nil {
		return DispatchSummary{}, fmt.Errorf("work order %d form: %w", wo.Number, err)
	}
	html, err = page.HTML(ctx)
	if err != nil {
		return DispatchSummary{}, fmt.Errorf("read work order page: %w", err)
	}
	detail, err := ParseWorkOrder(html)
	if err != nil {
		return DispatchSummary{}, err
	}
	if detail.Status != "complete" {
		return DispatchSummary{}, fmt.Errorf("work order %d status %q: %w", wo.Number, detail.Status, ErrWorkOrderIncomplete)
	}
	s.readVisitTimes(ctx, page, &detail)

	for _, f := range noteFields {
		if v := detail.Notes[f.ID]; v != "" {
			s.log.Debug().Str("field", f.ID).Int("chars", len(v)).Msg("work order field")
		}
	}

	return Summarize(t, wo, detail), nil
}

// readVisitTimes replaces the snapshot's visit dates and times with the
// controls' current values. The site fills some of them in by script after
// load, which the serialized markup does not show.
func (s *Summarizer) readVisitTimes(ctx context.Context, page Page, wo *WorkOrder) {
	fields := []struct {
		id  string
		dst *string
	}{
		{FieldArrivalDate, &wo.ArrivalDate},
		{FieldArrivalTime, &wo.ArrivalTime},
		{FieldCompletedDate, &wo.CompletedDate},
		{FieldCompletedTime, &wo.CompletedTime},
	}
	for _, f := range fields {
		v, err := page.ReadValue(ctx, "#"+f.id)
		if err != nil {
			s.log.Debug().Err(err).Str("field", f.id).Msg("live value unavailable, keeping page snapshot")
			continue
		}
		*f.dst = strings.TrimSpace(v)
	}
}

// Summarize assembles a summary from already-parsed pages
func Summarize(t *Task, wo WorkOrderRow, detail WorkOrder) DispatchSummary {
	arrival, arrivalOK := visitTime(detail.ArrivalDate, detail.ArrivalTime)
	departure, departureOK := visitTime(detail.CompletedDate, detail.CompletedTime)

	hours := "1.00"
	if arrivalOK && departureOK {
		hours = billableHours(departure.Sub(arrival))
	}

	combined := combinedNotes(detail.Notes)
	workDone := detail.Notes[FieldAdditionalNotes]
	if workDone == "" {
		workDone = combined
	}

	sum := DispatchSummary{
		CustomerName:     t.CustomerName,
		CustomerID:       t.CustomerID,
		WorkOrderNumber:  wo.Number,
		WorkOrderLink:    wo.Link,
		Arrival:          Placeholder,
		Departure:        Placeholder,
		TotalHours:       hours,
		WorkDone:         workDone,
		Equipment:        splitLines(detail.Notes[FieldEquipmentInstalled]),
		ResponsibleParty: ResponsibleParty(combined),
	}
	if arrivalOK {
		sum.Arrival = arrival.Format("15:04")
	}
	if departureOK {
		sum.Departure = departure.Format("15:04")
	}
	return sum
}

// visitTime parses a date field and a clock field. ok is false unless both
// are well formed.
func visitTime(date, clock string) (time.Time, bool) {
	if !datePattern.MatchString(date) || !clockPattern.MatchString(clock) {
		return time.Time{}, false
	}
	date = date[:10]
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, date+" "+clock, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// billableHours bills at least one hour, rounded to the quarter hour
// (ties to even).
func billableHours(d time.Duration) string {
	hours := math.Max(d.Hours(), 1)
	return fmt.Sprintf("%.2f", math.RoundToEven(hours*4)/4)
}

func combinedNotes(notes map[string]string) string {
	var parts []string
	for _, f := range noteFields {
		if v := notes[f.ID]; v != "" {
			parts = append(parts, f.Label+": "+v)
		}
	}
	return strings.Join(parts, "\n")
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// ResponsibleParty names who caused the damage described in the notes.
// An explicit "damage caused by" wins; otherwise "X responsible" names the
// party, and any mention of Brightspeed overrides that. Default: Customer.
func ResponsibleParty(notes string) string {
	if m := damageCausedBy.FindStringSubmatch(notes); m != nil {
		if party := strings.TrimSpace(m[1]); party != "" {
			return party
		}
	}

	party := defaultParty
	if m := partyResponsible.FindStringSubmatch(notes); m != nil {
		if p := strings.TrimSpace(m[1]); p != "" {
			party = p
		}
	}
	if brightspeedPattern.MatchString(notes) {
		party = "Brightspeed"
	}
	return party
}

func mustParseRef(ref string) *url.URL {
	u, err := url.Parse(ref)
	if err != nil {
		panic(fmt.Sprintf("dispatch: bad internal path %q: %v", ref, err))
	}
	return u
}
