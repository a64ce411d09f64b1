// Package repository holds the sqlx data access for the booking core.  Every
// method runs on the executor carried by its context (see database.DB.Ext),
// so callers compose several repositories inside one database.DB.WithTx.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row.  Handlers
// translate it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional update matched no row because
// the guarded state changed underneath the caller (e.g. a promotion's usage
// limit was reached by a concurrent order).
var ErrConflict = errors.New("conflict")
