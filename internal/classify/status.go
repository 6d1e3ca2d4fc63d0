// Package classify decides whether an address is already known to the CRM.
package classify

// Status is the classification verdict for one address.
type Status string

const (
	// StatusRed marks an exact match: a person, lead, or organization
	// record carries this address.
	StatusRed Status = "red"
	// StatusYellow marks a domain indicator: no exact match, but some
	// record shares the address's domain.
	StatusYellow Status = "yellow"
	// StatusGreen marks no match of any kind.
	StatusGreen Status = "green"
	// StatusError marks a classification that could not be completed.
	StatusError Status = "error"
)

// severity orders statuses for per-anchor aggregation. A lookup failure
// never outranks actual evidence, but it does outrank a clean green: an
// anchor mixing clean and failed addresses deliberately shows the failure
// rather than claiming every address was checked.
var severity = map[Status]int{
	StatusGreen:  0,
	StatusError:  1,
	StatusYellow: 2,
	StatusRed:    3,
}

// Worst returns the most severe status of the list; an empty list is green.
func Worst(statuses []Status) Status {
	worst := StatusGreen
	for _, s := range statuses {
		if severity[s] > severity[worst] {
			worst = s
		}
	}
	return worst
}

// Explanation returns the human-readable reason attached to styled elements.
func (s Status) Explanation() string {
	switch s {
	case StatusRed:
		return "exists in CRM (person, lead, or organization)"
	case StatusYellow:
		return "possibly known (same domain found in CRM)"
	case StatusGreen:
		return "not found in CRM"
	default:
		return "lookup failed"
	}
}
