// Package trigger computes prompt trigger times from daily windows.
//
// A schedule is a comma-separated list of windows:
//   - "10:00"            point, every day
//   - "10:10-10:20"      range, every day (uniformly jittered inside)
//   - "Mo-08:34"         point, Mondays only
//   - "Su-12:00-14:00"   range, Sundays only
//
// The package is pure: it never logs, performs no I/O and keeps no global
// state. Randomness comes from a caller-supplied Rand so results are
// reproducible under a fixed seed.
package trigger
