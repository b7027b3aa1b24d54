// Package service provides application-level services for the
// companion experience: link lifecycle, task status updates, webhook
// coordination, reminder scheduling decisions, and dispatcher note
// synchronization.
package service
