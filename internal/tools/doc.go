// Package tools runs the external programs a task drives.
//
// Ownership boundary:
// - process spawn with working directory, environment and cancellation
//
// - exit status normalization
package tools
