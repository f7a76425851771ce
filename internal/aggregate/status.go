package aggregate

import (
	"encoding/json"
	"strings"
)

// OrderStatus is the lifecycle state of an order, rental or job.
type OrderStatus int

const (
	StatusUnknown OrderStatus = iota
	StatusPending
	StatusApproved
	StatusInProgress
	StatusCompleted
	StatusClaimed
	StatusRejected
	StatusCancelled
)

// AllOrderStatuses lists every status, Unknown included.
var AllOrderStatuses = []OrderStatus{
	StatusUnknown,
	StatusPending,
	StatusApproved,
	StatusInProgress,
	StatusCompleted,
	StatusClaimed,
	StatusRejected,
	StatusCancelled,
}

var statusNames = map[OrderStatus]string{
	StatusUnknown:    "Unknown",
	StatusPending:    "Pending",
	StatusApproved:   "Approved",
	StatusInProgress: "In Progress",
	StatusCompleted:  "Completed",
	StatusClaimed:    "Claimed",
	StatusRejected:   "Rejected",
	StatusCancelled:  "Cancelled",
}

func (s OrderStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return statusNames[StatusUnknown]
}

// MarshalJSON encodes the display name.
func (s OrderStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// ParseOrderStatus maps API strings such as "in progress", "In-Progress" or
// "CANCELED" onto a status.
func ParseOrderStatus(raw string) OrderStatus {
	norm := strings.ToLower(strings.TrimSpace(raw))
	norm = strings.NewReplacer("-", " ", "_", " ").Replace(norm)
	switch norm {
	case "pending":
		return StatusPending
	case "approved":
		return StatusApproved
	case "in progress", "inprogress", "ongoing":
		return StatusInProgress
	case "completed", "done":
		return StatusCompleted
	case "claimed":
		return StatusClaimed
	case "rejected":
		return StatusRejected
	case "cancelled", "canceled":
		return StatusCancelled
	default:
		return StatusUnknown
	}
}

// Badge is the display style of a status.
type Badge struct {
	Label      string `json:"label"`
	Color      string `json:"color"`
	Background string `json:"background"`
}

// StatusBadge returns the badge for s. Every status has an explicit case.
func StatusBadge(s OrderStatus) Badge {
	switch s {
	case StatusPending:
		return Badge{Label: s.String(), Color: "#b45309", Background: "#fef3c7"}
	case StatusApproved:
		return Badge{Label: s.String(), Color: "#1d4ed8", Background: "#dbeafe"}
	case StatusInProgress:
		return Badge{Label: s.String(), Color: "#6d28d9", Background: "#ede9fe"}
	case StatusCompleted:
		return Badge{Label: s.String(), Color: "#15803d", Background: "#dcfce7"}
	case StatusClaimed:
		return Badge{Label: s.String(), Color: "#0f766e", Background: "#ccfbf1"}
	case StatusRejected:
		return Badge{Label: s.String(), Color: "#b91c1c", Background: "#fee2e2"}
	case StatusCancelled:
		return Badge{Label: s.String(), Color: "#4b5563", Background: "#f3f4f6"}
	case StatusUnknown:
		return Badge{Label: s.String(), Color: "#6b7280", Background: "#f9fafb"}
	}
	return StatusBadge(StatusUnknown)
}

// CountByStatus tallies records per parsed status.
func CountByStatus(records []Record) map[OrderStatus]int {
	counts := make(map[OrderStatus]int, len(AllOrderStatuses))
	for _, r := range records {
		counts[ParseOrderStatus(r.Status)]++
	}
	return counts
}
