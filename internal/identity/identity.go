// Package identity resolves the host and operator recorded in metadata
// documents. Resolution never fails: when the environment cannot supply a
// value, a sentinel is substituted and the Result reports the fallback.
package identity

import (
	"errors"
	"fmt"
	"os"
	"os/user"
)

// Sentinels substituted when resolution fails.
const (
	UnknownOperator = "USERNAME not found"
	UnknownHost     = "HOSTNAME not found"
)

// userEnvVars are consulted in order before the account database.
var userEnvVars = []string{"LOGNAME", "USER", "LNAME", "USERNAME"}

// Source supplies identity from the execution environment.
type Source interface {
	Hostname() (string, error)
	Username() (string, error)
}

// Result is a resolved identity value.
type Result struct {
	Value    string
	Fallback bool  // true if Value is a sentinel
	Err      error // cause of the fallback, nil otherwise
}

// ResolveOperator returns explicit verbatim when it is non-empty.
// Otherwise it asks src for the current user and falls back to
// UnknownOperator on any failure.
func ResolveOperator(explicit string, src Source) Result {
	if explicit != "" {
		return Result{Value: explicit}
	}
	if src == nil {
		return Result{Value: UnknownOperator, Fallback: true, Err: errors.New("no identity source")}
	}
	name, err := src.Username()
	if err == nil && name == "" {
		err = errors.New("empty username")
	}
	if err != nil {
		return Result{Value: UnknownOperator, Fallback: true, Err: err}
	}
	return Result{Value: name}
}

// ResolveHost asks src for the host name and falls back to UnknownHost.
func ResolveHost(src Source) Result {
	if src == nil {
		return Result{Value: UnknownHost, Fallback: true, Err: errors.New("no identity source")}
	}
	host, err := src.Hostname()
	if err == nil && host == "" {
		err = errors.New("empty hostname")
	}
	if err != nil {
		return Result{Value: UnknownHost, Fallback: true, Err: err}
	}
	return Result{Value: host}
}

// System reads identity from the running process.
type System struct {
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
	// CurrentUser defaults to user.Current.
	CurrentUser func() (*user.User, error)
}

// Hostname returns the kernel host name.
func (s System) Hostname() (string, error) {
	return os.Hostname()
}

// Username checks the login environment variables first, then the
// account database.
func (s System) Username() (string, error) {
	lookup := s.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, key := range userEnvVars {
		if v, ok := lookup(key); ok && v != "" {
			return v, nil
		}
	}

	current := s.CurrentUser
	if current == nil {
		current = user.Current
	}
	u, err := current()
	if err != nil {
		return "", fmt.Errorf("looking up current user: %w", err)
	}
	return u.Username, nil
}

// Fixed is a Source with predetermined answers.
type Fixed struct {
	Host    string
	User    string
	HostErr error
	UserErr error
}

func (f Fixed) Hostname() (string, error) { return f.Host, f.HostErr }
func (f Fixed) Username() (string, error) { return f.User, f.UserErr }
