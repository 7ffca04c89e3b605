// Package cli implements the cts command line: parsing flags, resolving the
// run plan and mapping outcomes to process exit codes.
package cli
