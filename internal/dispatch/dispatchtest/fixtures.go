package dispatchtest

import (
	"fmt"
	"html"
	"strings"
)

// ListRow is one row of the task list fixture
type ListRow struct {
	Href        string
	Description string
	Due         string
	AssignedTo  string
	Company     string
}

func TaskList(rows ...ListRow) string {
	var b strings.Builder
	b.WriteString(`<html><body><table id="tasks"><tr><th>Task</th><th>Description</th><th>Type</th><th>Due</th><th>Assigned</th><th>Company</th></tr>`)
	for _, r := range rows {
		fmt.Fprintf(&b, `<tr class="taskElement"><td><a href="%s">open</a></td><td>%s</td><td>Dispatch</td><td><nobr>%s</nobr></td><td>%s</td><td>%s</td></tr>`,
			html.EscapeString(r.Href), html.EscapeString(r.Description), html.EscapeString(r.Due),
			html.EscapeString(r.AssignedTo), html.EscapeString(r.Company))
	}
	b.WriteString(`</table></body></html>`)
	return b.String()
}

// TaskFixture describes a task detail page
type TaskFixture struct {
	ID           string
	Notes        string // raw notes markup, e.g. PROBLEM STATEMENT: <b>WiFi Survey</b>
	CustomerID   string
	CustomerName string
	Ticket       string
	History      []string // earlier notes as plain text
}

func TaskPage(f TaskFixture) string {
	var b strings.Builder
	b.WriteString(`<html><body>`)
	fmt.Fprintf(&b, `<form><input type="hidden" name="nTaskID" value="%s">`, html.EscapeString(f.ID))
	fmt.Fprintf(&b, `<textarea name="Notes">%s</textarea></form>`, html.EscapeString(f.Notes))
	if f.Ticket != "" {
		fmt.Fprintf(&b, `<p><b>Dispatch for Ticket #%s</b></p>`, html.EscapeString(f.Ticket))
	}
	b.WriteString(`<table class="customer">`)
	if f.CustomerID != "" {
		fmt.Fprintf(&b, `<tr><td>Customer ID</td><td><b>%s</b></td></tr>`, html.EscapeString(f.CustomerID))
	}
	if f.CustomerName != "" {
		fmt.Fprintf(&b, `<tr><td>Customer Name</td><td><b>%s</b></td></tr>`, html.EscapeString(f.CustomerName))
	}
	b.WriteString(`</table><table class="history">`)
	for _, h := range f.History {
		fmt.Fprintf(&b, `<tr><td>%s</td></tr>`, strings.ReplaceAll(html.EscapeString(h), "\n", "<br>"))
	}
	b.WriteString(`</table>`)
	fmt.Fprintf(&b, `<fieldset><legend>Task Actions</legend><fieldset><legend>Add Note</legend><span id="displaySpan%[1]s">`+
		`<input type="checkbox" id="completedcheck%[1]s"> Completed `+
		`<input type="checkbox" name="SpawnBillingTask"> Billing `+
		`<textarea id="txtNotes%[1]s"></textarea>`+
		`<input type="button" id="sub_%[1]s" value="Submit"></span></fieldset></fieldset>`, html.EscapeString(f.ID))
	b.WriteString(`</body></html>`)
	return b.String()
}

// WorkOrderLink is one row of a customer's work-order table
type WorkOrderLink struct {
	Number      int
	Description string
	Href        string
}

func CustomerPage(rows ...WorkOrderLink) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="custWork"><div id="workShow"><table>`)
	b.WriteString(`<tr><td>#</td><td>Description</td><td>Opened</td><td>Tech</td><td>Link</td></tr>`)
	for _, r := range rows {
		fmt.Fprintf(&b, `<tr><td>%d</td><td>%s</td><td>2026-10-01</td><td>Tech</td><td><a href="%s">view</a></td></tr>`,
			r.Number, html.EscapeString(r.Description), html.EscapeString(r.Href))
	}
	b.WriteString(`</table></div></div></body></html>`)
	return b.String()
}

// WorkOrderFixture describes a work-order page
type WorkOrderFixture struct {
	Status        string
	ArrivalDate   string
	ArrivalTime   string
	CompletedDate string
	CompletedTime string
	Equipment     string
	Materials     string
	Tests         string
	Notes         string // may contain <br>
}

func WorkOrderPage(f WorkOrderFixture) string {
	var b strings.Builder
	b.WriteString(`<html><body><table>`)
	fmt.Fprintf(&b, `<tr><td class="detailHeader">Status:</td><td><span>%s</span></td></tr></table>`, html.EscapeString(f.Status))
	fmt.Fprintf(&b, `<input id="ArrivalOnsite" value="%s"><input id="ArrivalTime" value="%s">`, html.EscapeString(f.ArrivalDate), html.EscapeString(f.ArrivalTime))
	fmt.Fprintf(&b, `<input id="CompletedDate" value="%s"><input id="CompletedTime" value="%s">`, html.EscapeString(f.CompletedDate), html.EscapeString(f.CompletedTime))
	fmt.Fprintf(&b, `<textarea id="EquipmentInstalled">%s</textarea>`, html.EscapeString(f.Equipment))
	fmt.Fprintf(&b, `<textarea id="AdditionalMaterials">%s</textarea>`, html.EscapeString(f.Materials))
	fmt.Fprintf(&b, `<textarea id="TestsPerformed">%s</textarea>`, html.EscapeString(f.Tests))
	fmt.Fprintf(&b, `<textarea id="AdditionalNotes">%s</textarea>`, html.EscapeString(f.Notes))
	b.WriteString(`</body></html>`)
	return b.String()
}

// Dashboard is the landing page of a logged-in session
func Dashboard() string {
	return `<html><body><iframe id="MainView" src="about:blank"></iframe></body></html>`
}

func LoginPage() string {
	return `<html><body><form action="login.php" method="post">` +
		`<input name="username"><input name="password" type="password">` +
		`<input type="submit" id="login" value="Log in"></form></body></html>`
}

// Serve replaces the HTML served for url
func (p *Page) Serve(url, html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Sites[url] = html
}
