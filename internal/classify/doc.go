// Package classify assigns each email exactly one label from a closed
// category set using a structured language completion, and persists
// the label with a field-scoped merge on the email document.
package classify
