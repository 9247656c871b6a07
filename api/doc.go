// Package api define types and interfaces common to all allocators
// implemented by this module.
package api
