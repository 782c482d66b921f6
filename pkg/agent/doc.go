// Package agent defines the boundary to the external agent runtime: the
// session options sent to it, the typed messages it streams back, and a
// runtime that drives the command-line agent as a child process.
package agent
