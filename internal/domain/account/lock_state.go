package account

import "fmt"

// LockStatus is the coarse login state of an account
type LockStatus string

const (
	LockStatusActive LockStatus = "ACTIVE"
	LockStatusLocked LockStatus = "LOCKED"
)

// LockState models the login state machine:
//
//	ACTIVE(n) --fail--> ACTIVE(n+1)    n+1 < MaxFailedAttempts
//	ACTIVE(n) --fail--> LOCKED         n+1 == MaxFailedAttempts
//	ACTIVE(n) --ok----> ACTIVE(0)
//	LOCKED    --any---> LOCKED
//
// There is no transition out of LOCKED.
type LockState struct {
	Status   LockStatus
	Attempts int
}

// LockStateOf builds a state from the persisted counter and flag. A counter at
// or above the threshold counts as locked even if the flag was never set.
func LockStateOf(failedAttempts int, locked bool) LockState {
	if locked || failedAttempts >= MaxFailedAttempts {
		return LockState{Status: LockStatusLocked, Attempts: MaxFailedAttempts}
	}
	if failedAttempts < 0 {
		failedAttempts = 0
	}
	return LockState{Status: LockStatusActive, Attempts: failedAttempts}
}

func (s LockState) IsLocked() bool {
	return s.Status == LockStatusLocked
}

// Fail returns the state after one more failed login.
func (s LockState) Fail() LockState {
	if s.IsLocked() {
		return s
	}
	return LockStateOf(s.Attempts+1, false)
}

// Succeed returns the state after a successful login.
func (s LockState) Succeed() LockState {
	if s.IsLocked() {
		return s
	}
	return LockState{Status: LockStatusActive}
}

// Remaining is the number of failures left before the account locks.
func (s LockState) Remaining() int {
	if s.IsLocked() {
		return 0
	}
	return MaxFailedAttempts - s.Attempts
}

func (s LockState) String() string {
	if s.IsLocked() {
		return string(LockStatusLocked)
	}
	return fmt.Sprintf("%s(%d)", LockStatusActive, s.Attempts)
}
