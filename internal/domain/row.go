package domain

// Columns is the published sheet header, in order.
var Columns = [...]string{
	"Sr.No",
	"Company Name",
	"Category",
	"Eligible Branches",
	"10th%",
	"12th%",
	"CGPA",
	"CTC",
	"Stipend",
	"Last Date for Registration",
	"Application Source",
	"Application Status",
	"Registration Links",
	"Mail Date",
	"Mail Time",
}

const NumColumns = len(Columns)

const (
	ColSrNo = iota
	ColCompany
	ColCategory
	ColBranches
	ColTenth
	ColTwelfth
	ColCGPA
	ColCTC
	ColStipend
	ColLastDate
	ColApplicationSource
	ColApplicationStatus
	ColRegistrationLinks
	ColMailDate
	ColMailTime
)

// OutputRow is a fully stringified sheet row.
type OutputRow [NumColumns]string

// Cells returns the row as a slice, the shape append APIs want.
func (r OutputRow) Cells() []string {
	out := make([]string, NumColumns)
	copy(out, r[:])
	return out
}
