package models

// AccessGate answers the capability questions every operation asks before it
// touches the store.
type AccessGate interface {
	// CurrentAccountId is 0 when nobody is logged in.
	CurrentAccountId() int
	IsLoggedIn() bool
	IsPrivileged() bool
}

// Session is the caller context threaded explicitly into every Inventory call.
type Session struct {
	AccountId  int    `json:"account_id"`
	Login      string `json:"login"`
	Privileged bool   `json:"is_privileged"`
	TokenId    string `json:"-"`
}

// Anonymous is the zero session: every gated operation rejects it.
var Anonymous = Session{}

func (s Session) CurrentAccountId() int {
	return s.AccountId
}

func (s Session) IsLoggedIn() bool {
	return s.AccountId > 0
}

func (s Session) IsPrivileged() bool {
	return s.IsLoggedIn() && s.Privileged
}

func requireLogin(gate AccessGate) error {
	if gate == nil || !gate.IsLoggedIn() || gate.CurrentAccountId() <= 0 {
		return newError(ErrNotAuthenticated, "no active session")
	}
	return nil
}

func requirePrivilege(gate AccessGate) error {
	if err := requireLogin(gate); err != nil {
		return err
	}
	if !gate.IsPrivileged() {
		return newError(ErrNotAuthorized, "elevated role required")
	}
	return nil
}
