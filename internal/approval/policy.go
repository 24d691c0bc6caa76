package approval

// Policy decides who may vote and how many distinct approvals decide a
// request.
type Policy struct {
	// Required is the approval quorum, at least 1.
	Required int
	// Approvers is the allow-list of voter handles. An empty list means
	// anyone may vote.
	Approvers []string
}

// Authorized reports whether the handle may vote under this policy.
func (p Policy) Authorized(id string) bool {
	if len(p.Approvers) == 0 {
		return true
	}
	for _, a := range p.Approvers {
		if a == id {
			return true
		}
	}
	return false
}

// PendingApprovers returns the configured approvers who do not appear in the
// given approvals, in configured order. With an empty allow-list there is
// nobody specific to name.
func (p Policy) PendingApprovers(approvals []Voter) []string {
	if len(p.Approvers) == 0 {
		return nil
	}

	approved := make(map[string]struct{}, len(approvals))
	for _, v := range approvals {
		approved[v.ID] = struct{}{}
	}

	var pending []string
	for _, a := range p.Approvers {
		if _, ok := approved[a]; !ok {
			pending = append(pending, a)
		}
	}
	return pending
}
