// Package repository defines the account and refresh-session stores and the
// error values they share.  Higher layers use these sentinels to tell a
// missing row apart from a conflicting write without inspecting driver
// errors.
package repository

import "errors"

// ErrNotFound is returned when no live row matches a lookup.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned by Create when a live account already uses
// the email address.  Handlers translate this into an HTTP 409 response.
var ErrEmailExists = errors.New("email already exists")

// ErrConflict is returned when a write cannot be applied because the row
// changed state underneath it.
var ErrConflict = errors.New("conflict")
