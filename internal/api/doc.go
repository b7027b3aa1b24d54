// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. It acts as an adapter between external clients
// (the dispatch dashboard and the companion web experience) and the
// internal application services, translating HTTP concerns to business
// operations.
package api
