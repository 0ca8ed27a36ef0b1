// Package feedback records qualitative human feedback tied to an execution
// and interprets it into partial workflow-state updates, closing the
// learning loop of the approval gate.
package feedback
