package dispatch

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// TaskRow is one row of the task list, before filtering
type TaskRow struct {
	URL         string
	Description string
	DueRaw      string
	AssignedTo  string
	Company     string
}

// TaskPage holds what the task detail page says about a task
type TaskPage struct {
	TaskID       string
	Notes        string
	CustomerID   string
	CustomerName string
	Ticket       string
}

// WorkOrderRow is one row of a customer's work-order table
type WorkOrderRow struct {
	Number      int
	Description string
	Link        string
}

// WorkOrder holds the fields read from a work-order page
type WorkOrder struct {
	Status        string
	ArrivalDate   string
	ArrivalTime   string
	CompletedDate string
	CompletedTime string
	Notes         map[string]string // keyed by Field* ids, sanitized
}

func parseDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// ParseTaskList reads every task row from the task list page. Links are
// resolved against base. Rows with too few cells are ignored.
func ParseTaskList(html string, base *url.URL) ([]TaskRow, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return nil, err
	}

	var rows []TaskRow
	doc.Find(SelTaskRow).Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td")
		if cells.Length() < 6 {
			return
		}

		href, _ := cells.Eq(0).Find("a").First().Attr("href")
		due := tr.Find(SelTaskDue).First().Text()
		if strings.TrimSpace(due) == "" {
			due = cells.Eq(3).Text()
		}

		rows = append(rows, TaskRow{
			URL:         resolveLink(base, href),
			Description: strings.TrimSpace(cells.Eq(1).Text()),
			DueRaw:      strings.TrimSpace(due),
			AssignedTo:  strings.TrimSpace(cells.Eq(4).Text()),
			Company:     strings.TrimSpace(cells.Eq(5).Text()),
		})
	})
	return rows, nil
}

// ParseTaskPage reads the task ID, the raw notes, the linked customer and
// the dispatch ticket number. Absent values are left empty.
func ParseTaskPage(html string) (TaskPage, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return TaskPage{}, err
	}

	page := TaskPage{
		TaskID:       strings.TrimSpace(doc.Find(SelTaskID).First().AttrOr("value", "")),
		Notes:        strings.TrimSpace(fieldValue(doc.Find(SelTaskNotes).First())),
		CustomerID:   labelledCell(doc, customerIDLabel),
		CustomerName: labelledCell(doc, customerNameLabel),
	}

	doc.Find(SelDispatchBold).EachWithBreak(func(_ int, b *goquery.Selection) bool {
		text := strings.TrimSpace(b.Text())
		if !strings.Contains(text, dispatchTicketPrefix) {
			return true
		}
		if fields := strings.Fields(text); len(fields) > 0 {
			page.Ticket = strings.TrimPrefix(fields[len(fields)-1], "#")
		}
		return false
	})
	return page, nil
}

// labelledCell returns the bold value in the cell following the one whose
// text equals label.
func labelledCell(doc *goquery.Document, label string) string {
	cell := doc.Find("td").FilterFunction(func(_ int, td *goquery.Selection) bool {
		return strings.TrimSpace(td.Text()) == label
	}).First()
	return strings.TrimSpace(cell.NextAllFiltered("td").First().Find("b").First().Text())
}

// ParseWorkOrders reads the numbered rows of a customer's work-order table.
// Header and malformed rows are skipped.
func ParseWorkOrders(html string, base *url.URL) ([]WorkOrderRow, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return nil, err
	}

	var rows []WorkOrderRow
	doc.Find(SelWorkOrderRows).Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td")
		if cells.Length() < 5 {
			return
		}
		num, err := strconv.Atoi(strings.TrimSpace(cells.Eq(0).Text()))
		if err != nil || num < 0 {
			return
		}
		href, _ := cells.Eq(4).Find("a").First().Attr("href")
		rows = append(rows, WorkOrderRow{
			Number:      num,
			Description: strings.TrimSpace(cells.Eq(1).Text()),
			Link:        resolveLink(base, href),
		})
	})
	return rows, nil
}

// LatestForTicket picks the highest-numbered work order whose description
// mentions the ticket. ok is false when none does.
func LatestForTicket(rows []WorkOrderRow, ticket string) (WorkOrderRow, bool) {
	if ticket == "" {
		return WorkOrderRow{}, false
	}
	pattern := regexp.MustCompile(`(?i)ticket\s*#?\s*` + regexp.QuoteMeta(ticket) + `\b`)

	var best WorkOrderRow
	found := false
	for _, row := range rows {
		if !pattern.MatchString(row.Description) {
			continue
		}
		if !found || row.Number > best.Number {
			best = row
			found = true
		}
	}
	return best, found
}

// ParseWorkOrder reads the status, visit times and note fields of a work
// order page.
func ParseWorkOrder(html string) (WorkOrder, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return WorkOrder{}, err
	}

	status := doc.Find(SelDetailHeader).FilterFunction(func(_ int, td *goquery.Selection) bool {
		return strings.TrimSpace(td.Text()) == statusLabel
	}).First().NextAllFiltered("td").First().Find("span").First().Text()

	wo := WorkOrder{
		Status:        strings.ToLower(strings.TrimSpace(status)),
		ArrivalDate:   strings.TrimSpace(fieldValue(doc.Find("#" + FieldArrivalDate))),
		ArrivalTime:   strings.TrimSpace(fieldValue(doc.Find("#" + FieldArrivalTime))),
		CompletedDate: strings.TrimSpace(fieldValue(doc.Find("#" + FieldCompletedDate))),
		CompletedTime: strings.TrimSpace(fieldValue(doc.Find("#" + FieldCompletedTime))),
		Notes:         make(map[string]string, len(noteFields)),
	}
	for _, f := range noteFields {
		if v := Sanitize(fieldValue(doc.Find("#" + f.ID))); v != "" {
			wo.Notes[f.ID] = v
		}
	}
	return wo, nil
}

// fieldValue reads a form control the way the browser would show it.
func fieldValue(sel *goquery.Selection) string {
	sel = sel.First()
	if sel.Length() == 0 {
		return ""
	}
	switch goquery.NodeName(sel) {
	case "textarea":
		return sel.Text()
	case "select":
		return sel.Find("option[selected]").First().AttrOr("value", "")
	default:
		return sel.AttrOr("value", "")
	}
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// NotesContainSummary reports whether the task's rendered note history
// already holds the summary block, comparing sanitized text.
func NotesContainSummary(html, summary string) (bool, error) {
	block := summary
	if idx := strings.Index(block, summaryAnchor); idx >= 0 {
		block = block[idx:]
	}
	block = Sanitize(block)
	if block == "" {
		return false, nil
	}

	doc, err := parseDocument(html)
	if err != nil {
		return false, err
	}

	found := false
	doc.Find("td:contains('" + summaryAnchor + "')").EachWithBreak(func(_ int, td *goquery.Selection) bool {
		inner, err := td.Html()
		if err != nil {
			return true
		}
		if strings.Contains(Sanitize(inner), block) {
			found = true
			return false
		}
		return true
	})
	return found, nil
}
