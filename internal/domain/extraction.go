package domain

// ExtractionStatus is the outcome of extracting a table from one image.
type ExtractionStatus string

const (
	ExtractionSuccess ExtractionStatus = "Success"
	ExtractionPartial ExtractionStatus = "Partial Success" // model answered, CSV did not parse
	ExtractionError   ExtractionStatus = "Error"
)

// Table is a parsed CSV table.
type Table struct {
	Header []string
	Rows   [][]string
}

// ExtractionResult is the per-file result of an extraction batch.
type ExtractionResult struct {
	Filename string
	Status   ExtractionStatus
	Message  string
	Table    *Table // set on Success
	RawCSV   string // model output with code fences removed
}

// Downloadable reports whether the result has CSV content worth offering.
func (r ExtractionResult) Downloadable() bool {
	return r.Status != ExtractionError && r.RawCSV != ""
}
