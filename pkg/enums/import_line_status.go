package enums

// ImportLineStatus describes the outcome of a single line in an external
// order import batch.
type ImportLineStatus string

const (
	ImportLineApplied          ImportLineStatus = "applied"
	ImportLineAlreadyProcessed ImportLineStatus = "already_processed"
	ImportLineUnresolved       ImportLineStatus = "unresolved"
	ImportLineFailed           ImportLineStatus = "failed"
)

// IsValid reports whether the value matches a known line status.
func (s ImportLineStatus) IsValid() bool {
	switch s {
	case ImportLineApplied, ImportLineAlreadyProcessed, ImportLineUnresolved, ImportLineFailed:
		return true
	}
	return false
}
