// Package storage defines persistence sentinels shared by every store.
//
// Concrete stores live in subpackages (storage/sqlite). Domain packages
// declare the narrow store interfaces they consume; this package only holds
// what every implementation must agree on.
package storage
