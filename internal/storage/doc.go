// Package storage persists per-prompt anchors and the delivery log.
//
// Anchors let the prompt service survive restarts: the reference instant a
// prompt's schedule is measured from, the canonical window list it was
// anchored for, and the last trigger already fired. Generated trigger times
// themselves are never stored; they are re-derived on start.
package storage
