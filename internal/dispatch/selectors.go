package dispatch

import "fmt"

// Page structure of the dispatch site. Markup changes on the remote side
// should only ever need edits here.
const (
	SelMainView = "iframe#MainView"

	SelLoginUser   = "input[name='username']"
	SelLoginPass   = "input[name='password']"
	SelLoginSubmit = "#login"

	SelTaskRow      = "tr.taskElement"
	SelTaskDue      = "td:nth-child(4) nobr"
	SelTaskID       = "[name=nTaskID]"
	SelTaskNotes    = "[name=Notes]"
	SelDispatchBold = "b"

	SelWorkOrderRows  = "#custWork #workShow table tr"
	SelWorkOrderReady = "#AdditionalNotes"
	SelDetailHeader   = "td.detailHeader"

	SelBillingSubtask = "[name=SpawnBillingTask]"

	customerPathFormat = "/menu.php?coid=1&tabid=7&parentid=9&customerid=%s"

	// loginMarker appears in the URL whenever the site bounces to its login form
	loginMarker = "login.php"

	dispatchTicketPrefix = "Dispatch for Ticket"
	customerIDLabel      = "Customer ID"
	customerNameLabel    = "Customer Name"
	statusLabel          = "Status:"
	summaryAnchor        = "CUSTOMER:"
)

// Work-order form fields, in the order they are combined into notes text.
const (
	FieldEquipmentInstalled  = "EquipmentInstalled"
	FieldAdditionalMaterials = "AdditionalMaterials"
	FieldTestsPerformed      = "TestsPerformed"
	FieldAdditionalNotes     = "AdditionalNotes"

	FieldArrivalDate   = "ArrivalOnsite"
	FieldArrivalTime   = "ArrivalTime"
	FieldCompletedDate = "CompletedDate"
	FieldCompletedTime = "CompletedTime"
)

var noteFields = []struct {
	ID    string
	Label string
}{
	{FieldEquipmentInstalled, "Equipment Installed"},
	{FieldAdditionalMaterials, "Additional Materials"},
	{FieldTestsPerformed, "Tests Performed"},
	{FieldAdditionalNotes, "Additional Notes"},
}

// OverlayButtons close the first-run popups the site stacks over the frame.
var OverlayButtons = []string{
	`input#valueForm1[type=button]`,
	`input[type=button][value="Close This"]`,
	`form[id^=valueForm] input[type=button]`,
	`form#f input[type=button]`,
}

func selCompletedCheck(taskID string) string { return "#completedcheck" + taskID }
func selTaskNotesInput(taskID string) string { return "#txtNotes" + taskID }
func selTaskSubmit(taskID string) string     { return "#sub_" + taskID }
func selDisplaySpan(taskID string) string    { return "#displaySpan" + taskID }

// The note form collapses into the nearest enclosing fieldset; its legend
// toggles it.
const (
	noteFormContainer = "fieldset"
	noteFormToggle    = "legend"
)

func customerPath(cid string) string { return fmt.Sprintf(customerPathFormat, cid) }
