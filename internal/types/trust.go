package types

// TrustLevel is the escalating autonomy state derived from approval history.
// Ordered: New < Building < Established < Trusted.
type TrustLevel int

const (
	TrustNew TrustLevel = iota
	TrustBuilding
	TrustEstablished
	TrustTrusted
)

func (l TrustLevel) String() string {
	switch l {
	case TrustNew:
		return "new"
	case TrustBuilding:
		return "building"
	case TrustEstablished:
		return "established"
	case TrustTrusted:
		return "trusted"
	default:
		return "unknown"
	}
}

// ParseTrustLevel resolves a stored level name; unknown names map to New
// so corrupted state degrades to the most conservative autonomy.
func ParseTrustLevel(s string) TrustLevel {
	switch s {
	case "building":
		return TrustBuilding
	case "established":
		return TrustEstablished
	case "trusted":
		return TrustTrusted
	default:
		return TrustNew
	}
}

// TrustState is the persisted counter set for one trust-bearing key.
type TrustState struct {
	Level             TrustLevel `json:"level"`
	Approvals         int        `json:"approvals"`
	Rejections        int        `json:"rejections"`
	Edits             int        `json:"edits"`
	TotalInteractions int        `json:"total_interactions"`
}

// ApprovalRate returns approvals / total, zero when empty.
func (s TrustState) ApprovalRate() float64 {
	if s.TotalInteractions == 0 {
		return 0
	}
	return float64(s.Approvals) / float64(s.TotalInteractions)
}
