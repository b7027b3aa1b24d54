package service

import (
	"github.com/phrazzld/companion-api/internal/domain"
	"github.com/phrazzld/companion-api/internal/platform/flags"
)

// pendingTaskLabels are the patient-facing names used when the
// on-route SMS mentions what is still outstanding.
var pendingTaskLabels = map[domain.TaskType]string{
	domain.TaskTypeIdentificationImage: "ID",
	domain.TaskTypeInsuranceCardImages: "insurance card",
	domain.TaskTypeDefaultPharmacy:     "pharmacy",
	domain.TaskTypePrimaryCareProvider: "primary care provider",
	domain.TaskTypeMedicationConsent:   "medications",
	domain.TaskTypeConsents:            "consents",
}

// pendingTaskText summarizes the link's incomplete tasks for the
// on-route SMS. One pending task names it, two are joined with "and",
// and three or more collapse to "required information". Whichever of
// the consent tasks is not active for the current consents gate is
// ignored.
func (s *CompanionService) pendingTaskText(tasks []*domain.Task) string {
	consentsEnabled := s.flags.GetBool(flags.KeyConsentsModule, false)

	pending := make([]string, 0, len(tasks))
	for _, task := range tasks {
		if consentsEnabled && task.Type == domain.TaskTypeMedicationConsent {
			continue
		}
		if !consentsEnabled && task.Type == domain.TaskTypeConsents {
			continue
		}
		if task.IsCompleted() {
			continue
		}
		label, ok := pendingTaskLabels[task.Type]
		if !ok {
			continue
		}
		pending = append(pending, label)
	}

	switch len(pending) {
	case 0:
		return ""
	case 1:
		return pending[0]
	case 2:
		return pending[0] + " and " + pending[1]
	default:
		return "required information"
	}
}
