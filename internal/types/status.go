package types

// Status is the record-level lifecycle of a document, independent of any
// business status it carries
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusArchived Status = "archived"
)
