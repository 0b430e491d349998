package models

// League is the chat room of one prediction pool. The room id is the league id.
type League struct {
	ID             string   `json:"id"`
	Name           string   `json:"name,omitempty"`
	CommissionerID string   `json:"commissionerId"`
	Members        []Member `json:"members"`
}

// IsCommissioner reports whether userID moderates this league's chat.
func (l *League) IsCommissioner(userID string) bool {
	return l != nil && l.CommissionerID != "" && l.CommissionerID == userID
}

// Member returns the roster entry for userID.
func (l *League) Member(userID string) (Member, bool) {
	if l == nil {
		return Member{}, false
	}
	for _, m := range l.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Member{}, false
}
