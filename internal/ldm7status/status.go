// Package ldm7status defines the tagged status/error result shared across
// the LDM-7 multicast distribution fabric, so that every component reports
// failure through the same small vocabulary instead of ad-hoc error strings.
package ldm7status

import (
	"errors"
	"fmt"
)

// Code is one of the fixed LDM-7 status values.
type Code int

const (
	OK Code = iota
	INVAL
	MCAST
	RPC
	SYSTEM
	TIMEDOUT
	REFUSED
	UNAUTH
	NOENT
	DUP
	SHUTDOWN
	EXISTS
	IPV6
	LOGIC
)

// Returns the human-readable name of the status code, or "UNKNOWN" if the code is not recognized.
func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case INVAL:
		return "INVAL"
	case MCAST:
		return "MCAST"
	case RPC:
		return "RPC"
	case SYSTEM:
		return "SYSTEM"
	case TIMEDOUT:
		return "TIMEDOUT"
	case REFUSED:
		return "REFUSED"
	case UNAUTH:
		return "UNAUTH"
	case NOENT:
		return "NOENT"
	case DUP:
		return "DUP"
	case SHUTDOWN:
		return "SHUTDOWN"
	case EXISTS:
		return "EXISTS"
	case IPV6:
		return "IPV6"
	case LOGIC:
		return "LOGIC"
	default:
		return "UNKNOWN"
	}
}

// Status is an error carrying one of the fixed LDM-7 status codes plus
// optional context, so callers can branch on Code() while still getting a
// descriptive message via Error().
type Status struct {
	Code Code
	Msg  string
	Err  error
}

// New constructs a Status with the given code and message.
func New(code Code, msg string) *Status {
	return &Status{Code: code, Msg: msg}
}

// Wrap constructs a Status with the given code, message, and wrapped cause.
func Wrap(code Code, msg string, err error) *Status {
	return &Status{Code: code, Msg: msg, Err: err}
}

// Returns the formatted error message for the status, including the wrapped cause if one is present.
func (s *Status) Error() string {
	if s.Err != nil {
		return fmt.Sprintf("%s: %s: %v", s.Code, s.Msg, s.Err)
	}
	return fmt.Sprintf("%s: %s", s.Code, s.Msg)
}

// Unwrap returns the wrapped cause, if any, so errors.Is/As can see through a Status.
func (s *Status) Unwrap() error {
	return s.Err
}

// Is reports whether target is a *Status with the same Code, letting callers write errors.Is(err, ldm7status.New(ldm7status.DUP, "")).
func (s *Status) Is(target error) bool {
	t, ok := target.(*Status)
	if !ok {
		return false
	}
	return t.Code == s.Code
}

// CodeOf extracts the Code from err if it is (or wraps) a *Status, otherwise returns SYSTEM.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var s *Status
	if errors.As(err, &s) {
		return s.Code
	}
	return SYSTEM
}
