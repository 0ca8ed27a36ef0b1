// Package idgen generates unique identifiers for approval requests and
// feedback entries.
package idgen
