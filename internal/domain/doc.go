// Package domain contains the core business entities and domain logic of
// the companion experience: care request links, checklist tasks, and their
// append-only status history. It is independent of any specific
// infrastructure or delivery mechanism.
package domain
