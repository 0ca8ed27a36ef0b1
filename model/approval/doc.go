// Package approval defines the data model of the human-in-the-loop gate:
// approval requests and their history, chain levels with policies and
// conditions, confidence factors, risk assessments, historical approval
// patterns and feedback entries.
package approval
