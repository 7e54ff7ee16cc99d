package crmcontrol

// HostLocation is the score of a location constraint on one host, or of a
// ping rule.
type HostLocation struct {
	Score string `json:"score,omitempty"`
	// Op is the rule operation, "" for plain node scores.
	Op   string `json:"op,omitempty"`
	Role string `json:"role,omitempty"`
}

// "eq" is the default rule operation
func normalizeOp(op string) string {
	if op == "eq" {
		return ""
	}
	return op
}

func (l *HostLocation) empty() bool {
	return l == nil || (l.Score == "" && normalizeOp(l.Op) == "" && l.Role == "")
}

// Equal compares two locations. A nil location equals an empty one and the
// operations "" and "eq" are the same.
func (l *HostLocation) Equal(other *HostLocation) bool {
	if l.empty() || other.empty() {
		return l.empty() && other.empty()
	}
	return l.Score == other.Score &&
		normalizeOp(l.Op) == normalizeOp(other.Op) &&
		l.Role == other.Role
}

func (l *HostLocation) clone() *HostLocation {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}
