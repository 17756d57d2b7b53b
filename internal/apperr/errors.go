// Package apperr holds the error taxonomy shared by the pricing, checkout,
// lifecycle and payment packages. Handlers classify errors with errors.As.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError reports missing or malformed input. Field names the
// offending input (json name) when one can be pointed at.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

// NotFoundError reports a lookup miss.
type NotFoundError struct {
	What string
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.What + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.What, e.ID)
}

// AuthorizationError rejects a caller that may not perform the operation.
// Unauthenticated is set when no identity was presented at all.
type AuthorizationError struct {
	Msg             string
	Unauthenticated bool
}

func (e *AuthorizationError) Error() string { return e.Msg }

// ConflictError reports an illegal state transition; Current carries the
// state the resource was in. Stale marks a lost optimistic-concurrency race:
// the operation itself was legal and may succeed when retried. Code, when
// set, replaces the generic "conflict" code in API responses.
type ConflictError struct {
	Current string
	Msg     string
	Stale   bool
	Code    string
}

func (e *ConflictError) Error() string {
	if e.Current == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s (current status: %s)", e.Msg, e.Current)
}

// DownstreamError wraps a persistence or payment-provider failure.
type DownstreamError struct {
	Op  string
	Err error
}

func (e *DownstreamError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *DownstreamError) Unwrap() error { return e.Err }

func Validation(field, msg string) error { return &ValidationError{Field: field, Msg: msg} }

func NotFound(what, id string) error { return &NotFoundError{What: what, ID: id} }

func Forbidden(msg string) error { return &AuthorizationError{Msg: msg} }

func Unauthenticated(msg string) error {
	return &AuthorizationError{Msg: msg, Unauthenticated: true}
}

func Conflict(current, msg string) error { return &ConflictError{Current: current, Msg: msg} }

// StaleWrite reports that a conditional write found the row changed since it
// was read.
func StaleWrite(current string) error {
	return &ConflictError{Current: current, Msg: "order was modified concurrently", Stale: true}
}

// Downstream wraps err unless it already carries a taxonomy type, so a
// NotFound coming out of a repository is not reclassified.
func Downstream(op string, err error) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return err
	}
	return &DownstreamError{Op: op, Err: err}
}

// Classified reports whether err already belongs to the taxonomy.
func Classified(err error) bool {
	var (
		v *ValidationError
		n *NotFoundError
		a *AuthorizationError
		c *ConflictError
		d *DownstreamError
	)
	return errors.As(err, &v) || errors.As(err, &n) || errors.As(err, &a) ||
		errors.As(err, &c) || errors.As(err, &d)
}

func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}

func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IsStale reports a conflict that a fresh read-and-retry may resolve.
func IsStale(err error) bool {
	var c *ConflictError
	return errors.As(err, &c) && c.Stale
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
