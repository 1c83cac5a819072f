package generation

import (
	"errors"
	"fmt"
)

var (
	// ErrEos matches any EosError via errors.Is.
	ErrEos = errors.New("eos token generated")
	// ErrMaxNewTokens matches any MaxNewTokensError via errors.Is.
	ErrMaxNewTokens = errors.New("max new tokens exceeded")
	// ErrNoEOS is returned by New when the config names no EOS token.
	ErrNoEOS = errors.New("generation config has no eos token")
	// ErrEmptyHistory is returned by Next before any prompt was applied.
	ErrEmptyHistory = errors.New("no tokens to continue from")
	// ErrSessionFailed is returned by Next after a compute failure.
	ErrSessionFailed = errors.New("session failed; apply a new prompt")
)

// EosError reports that an end-of-sequence token was sampled. The token is
// already part of the session history and counted in Generated.
type EosError struct {
	Token     int
	Generated int
}

func (e *EosError) Error() string {
	return fmt.Sprintf("got eos token %d and %d tokens generated", e.Token, e.Generated)
}

func (e *EosError) Unwrap() error { return ErrEos }

// MaxNewTokensError reports that the new-token budget is exhausted.
type MaxNewTokensError struct {
	Limit int
}

func (e *MaxNewTokensError) Error() string {
	return fmt.Sprintf("max new tokens %d exceeded", e.Limit)
}

func (e *MaxNewTokensError) Unwrap() error { return ErrMaxNewTokens }

// IsTerminal reports whether err is an expected end of generation rather
// than a failure.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrEos) || errors.Is(err, ErrMaxNewTokens)
}
