// Package sortcmd compiles free-text sorting instructions into
// validated sort rules. A small sample of the tenant's most recent
// emails grounds the compilation; instructions that do not map to a
// supported sort are rejected rather than guessed at.
package sortcmd
