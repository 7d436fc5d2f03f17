// Package extract pulls structured sponsorship terms out of email text
// using a structured language completion. Fields with no evidence in
// the source are omitted, and non-conformant completions are rejected
// before anything reaches the document store.
package extract
