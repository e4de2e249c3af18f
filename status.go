package auth

// AccountStatus is the lifecycle status of an account
type AccountStatus string

const (
	// StatusUnverified is the status of a freshly registered account
	StatusUnverified AccountStatus = "unverified"
	// StatusActive accounts can authenticate
	StatusActive AccountStatus = "active"
	// StatusTerminated accounts were blocked by an admin and can be restored
	StatusTerminated AccountStatus = "terminated"
	// StatusArchived is the terminal removal state, data is retained
	StatusArchived AccountStatus = "archived"
)

// IsValid reports whether the status is one of the known values
func (s AccountStatus) IsValid() bool {
	switch s {
	case StatusUnverified, StatusActive, StatusTerminated, StatusArchived:
		return true
	default:
		return false
	}
}

func (s AccountStatus) String() string {
	return string(s)
}

// EnsureStatus defaults an empty status to unverified.
func (a *Account) EnsureStatus() {
	if a == nil {
		return
	}
	if a.Status == "" {
		a.Status = StatusUnverified
	}
}

func (a *Account) IsUnverified() bool { return a != nil && a.Status == StatusUnverified }
func (a *Account) IsActive() bool     { return a != nil && a.Status == StatusActive }
func (a *Account) IsTerminated() bool { return a != nil && a.Status == StatusTerminated }
func (a *Account) IsArchived() bool   { return a != nil && a.Status == StatusArchived }

// statusAuthError maps a status to the error returned when the account
// tries to authenticate.
func statusAuthError(status AccountStatus) error {
	switch status {
	case StatusActive:
		return nil
	case StatusUnverified, "":
		return ErrEmailNotVerified
	case StatusTerminated, StatusArchived:
		return ErrAccountNotActive
	default:
		return ErrAccountNotActive
	}
}
