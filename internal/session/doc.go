// Package session drives one Pixl peripheral through connect, discovery and
// validation, and turns its characteristic traffic into domain events.
//
// A Controller owns at most one session at a time. Every completion from the
// link is tagged with the session it was issued for; completions that arrive
// after that session ended are dropped.
package session
