// Package jobs implements the delayed running-late reminder: a
// scheduler that keys at most one reminder per care request to its
// arrival-estimate window, and a runner that claims due jobs from the
// store and delivers them through a worker pool.
package jobs
