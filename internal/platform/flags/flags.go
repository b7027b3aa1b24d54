// Package flags provides the feature-gate capability services consume.
// The static implementation is fed from configuration; a remote flag
// service can replace it behind the same interface.
package flags

// Well-known flag and config keys.
const (
	// KeyRunningLateSMS gates scheduling of the running-late reminder.
	KeyRunningLateSMS = "running_late_sms_enabled"

	// KeyConsentsModule gates the consents checklist module.
	KeyConsentsModule = "consents_module_enabled"

	// KeyDisplayedNoteTasks configures which task types appear in the
	// dispatcher-facing note.
	KeyDisplayedNoteTasks = "displayed_note_tasks"
)

// Provider exposes boolean gates and string-list dynamic configs.
type Provider interface {
	// GetBool returns the gate value for key, or fallback if the key
	// is unknown.
	GetBool(key string, fallback bool) bool

	// GetStringList returns the configured list for key, or fallback
	// if the key is unknown.
	GetStringList(key string, fallback []string) []string
}

// StaticProvider is a Provider backed by in-memory values.
type StaticProvider struct {
	bools map[string]bool
	lists map[string][]string
}

// NewStaticProvider creates a provider from fixed values. Nil maps are
// treated as empty.
func NewStaticProvider(bools map[string]bool, lists map[string][]string) *StaticProvider {
	if bools == nil {
		bools = map[string]bool{}
	}
	if lists == nil {
		lists = map[string][]string{}
	}
	return &StaticProvider{bools: bools, lists: lists}
}

// Ensure StaticProvider implements Provider
var _ Provider = (*StaticProvider)(nil)

// GetBool implements Provider.GetBool
func (p *StaticProvider) GetBool(key string, fallback bool) bool {
	if v, ok := p.bools[key]; ok {
		return v
	}
	return fallback
}

// GetStringList implements Provider.GetStringList
func (p *StaticProvider) GetStringList(key string, fallback []string) []string {
	if v, ok := p.lists[key]; ok {
		return v
	}
	return fallback
}
