// Package workers sizes worker pools from available CPUs and container
// limits.
package workers
