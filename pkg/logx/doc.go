// Package logx configures promptd's structured logging.
//
// Logger is a small value-type wrapper over zerolog:
//   - console output stays readable (short timestamp + file:line caller)
//   - file output is JSON, one event per line
//   - Service.Apply swaps sinks and level at runtime (config hot reload)
package logx
