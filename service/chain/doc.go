// Package chain evaluates multi-level approval chains: which levels a given
// execution must pass, when a level's approvers have collectively decided,
// and how a request advances or terminates across levels.
package chain
