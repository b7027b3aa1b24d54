package domain

import "encoding/json"

// InsuranceRecord is one insurance on file for the patient, reduced to
// what the insurance task needs: which slot it fills and whether its
// card images are captured. Self-pay records count as captured.
type InsuranceRecord struct {
	Priority  string
	HasImages bool
}

// CareRequestNote is a timeline note on a care request in the dispatch
// system.
type CareRequestNote struct {
	ID         int64
	Kind       string
	Body       string
	InTimeline bool
	Metadata   json.RawMessage
}

// ConsentDefinition is one consent document applicable to a visit.
type ConsentDefinition struct {
	ID       int64
	Name     string
	Required bool
}
