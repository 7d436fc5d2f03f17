// Package notify defines an optional observer for engine operation
// outcomes. Engines run fine without one; the server wires a logging
// implementation.
package notify
