package auth

import (
	"sync"
	"time"
)

// unknownLoginLimit bounds how many unknown emails are tracked before stale
// entries are swept.
const unknownLoginLimit = 4096

type loginFailure struct {
	count int
	at    time.Time
}

// unknownLogins counts failed logins for emails without an account, so the
// lockout answers the same way whether the email is registered or not.
type unknownLogins struct {
	mu      sync.Mutex
	entries map[string]loginFailure
}

func newUnknownLogins() *unknownLogins {
	return &unknownLogins{entries: make(map[string]loginFailure)}
}

// failures returns the count inside the lockout window ending at now
func (u *unknownLogins) failures(email string, now time.Time, window time.Duration) int {
	u.mu.Lock()
	defer u.mu.Unlock()

	entry, ok := u.entries[email]
	if !ok || now.Sub(entry.at) > window {
		return 0
	}
	return entry.count
}

func (u *unknownLogins) record(email string, failures int, now time.Time, window time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if len(u.entries) >= unknownLoginLimit {
		for key, entry := range u.entries {
			if now.Sub(entry.at) > window {
				delete(u.entries, key)
			}
		}
	}

	u.entries[email] = loginFailure{count: failures, at: now}
}
