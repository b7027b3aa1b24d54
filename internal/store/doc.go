// Package store defines the persistence interfaces for companion links,
// tasks, and scheduled jobs, plus the locking contract used by webhook
// processing. The interfaces keep the services independent of specific
// database technologies or persistence details.
package store
