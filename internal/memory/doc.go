// Package memory configures GOMEMLIMIT from container limits and monitors
// heap usage so the service can refuse new conversions under pressure.
package memory
