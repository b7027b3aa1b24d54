// Package taskstatus implements the pure status-derivation rules for
// companion tasks. Given task-type-specific facts it computes the
// task's status and, where applicable, its updated metadata. The
// package performs no I/O and is deterministic given its inputs.
package taskstatus

import (
	"fmt"

	"github.com/phrazzld/companion-api/internal/domain"
)

// InsuranceOverall derives the single status of the insurance task
// from its per-priority slot statuses.
//
// Rules:
//   - An empty slot set is COMPLETED (nothing to collect, including
//     self-pay visits where no card image is ever required).
//   - Every slot COMPLETED is COMPLETED.
//   - Every slot NOT_STARTED is NOT_STARTED.
//   - Any mix is STARTED.
func InsuranceOverall(slots map[domain.InsurancePriority]domain.TaskStatusName) domain.TaskStatusName {
	if len(slots) == 0 {
		return domain.TaskStatusCompleted
	}

	allCompleted := true
	allNotStarted := true
	for _, status := range slots {
		if status != domain.TaskStatusCompleted {
			allCompleted = false
		}
		if status != domain.TaskStatusNotStarted {
			allNotStarted = false
		}
	}

	switch {
	case allCompleted:
		return domain.TaskStatusCompleted
	case allNotStarted:
		return domain.TaskStatusNotStarted
	default:
		return domain.TaskStatusStarted
	}
}

// Identification derives the identification-image task status from
// whether an uploaded record exists. Lookup failures upstream are
// reported as hasRecord=false, so the task degrades to NOT_STARTED
// rather than blocking link creation.
func Identification(hasRecord bool) domain.TaskStatusName {
	if hasRecord {
		return domain.TaskStatusCompleted
	}
	return domain.TaskStatusNotStarted
}

// Pharmacy derives the default-pharmacy task status from whether the
// patient has a default pharmacy on file.
func Pharmacy(hasDefaultPharmacy bool) domain.TaskStatusName {
	if hasDefaultPharmacy {
		return domain.TaskStatusCompleted
	}
	return domain.TaskStatusNotStarted
}

// MedicationConsent derives the medication-history-authority consent
// task status from whether the upstream consent record exists.
func MedicationConsent(hasConsent bool) domain.TaskStatusName {
	if hasConsent {
		return domain.TaskStatusCompleted
	}
	return domain.TaskStatusNotStarted
}

// ConsentsCompletion derives the consents task status from whether
// every required consent definition has a completion record.
func ConsentsCompletion(allDefinitionsComplete bool) domain.TaskStatusName {
	if allDefinitionsComplete {
		return domain.TaskStatusCompleted
	}
	return domain.TaskStatusNotStarted
}

// PCP derives the primary-care-provider task status from its funnel
// metadata.
//
// The funnel has three tiers:
//   - NOT_STARTED: metadata absent (legacy rows) or nothing answered
//     and no provider selected.
//   - COMPLETED: the patient definitively has no PCP, or a provider is
//     selected and the recency question is answered either way.
//   - STARTED: anything in between (partially answered).
func PCP(meta *domain.PCPMetadata) domain.TaskStatusName {
	if meta == nil {
		return domain.TaskStatusNotStarted
	}

	hasPCP := meta.SocialHistoryResponses.HasPCP
	seenRecently := meta.SocialHistoryResponses.HasSeenPCPRecently
	hasProvider := meta.ClinicalProviderID != ""

	if hasPCP == nil && seenRecently == nil && !hasProvider {
		return domain.TaskStatusNotStarted
	}

	noPCP := hasPCP != nil && !*hasPCP
	if noPCP || (hasProvider && seenRecently != nil) {
		return domain.TaskStatusCompleted
	}

	return domain.TaskStatusStarted
}

// ApplyPCPAnswer records one social-history answer on the PCP
// metadata and returns the updated metadata together with the
// re-derived status. Answers imply each other in one direction:
// answering "no PCP" forces the recency answer to false, and
// answering "seen recently: yes" forces "has PCP" to true.
//
// An unrecognized question tag returns domain.ErrValidation.
func ApplyPCPAnswer(
	meta *domain.PCPMetadata,
	questionTag string,
	answer bool,
) (*domain.PCPMetadata, domain.TaskStatusName, error) {
	updated := &domain.PCPMetadata{}
	if meta != nil {
		copied := *meta
		updated = &copied
	}

	switch questionTag {
	case domain.QuestionTagHasPCP:
		updated.SocialHistoryResponses.HasPCP = boolPtr(answer)
		if !answer {
			updated.SocialHistoryResponses.HasSeenPCPRecently = boolPtr(false)
		}
	case domain.QuestionTagHasSeenPCPRecently:
		updated.SocialHistoryResponses.HasSeenPCPRecently = boolPtr(answer)
		if answer {
			updated.SocialHistoryResponses.HasPCP = boolPtr(true)
		}
	default:
		return nil, "", fmt.Errorf("%w: unknown question tag %q", domain.ErrValidation, questionTag)
	}

	return updated, PCP(updated), nil
}

// SetClinicalProvider records the selected clinical provider id on the
// PCP metadata and returns the updated metadata with the re-derived
// status.
func SetClinicalProvider(meta *domain.PCPMetadata, clinicalProviderID string) (*domain.PCPMetadata, domain.TaskStatusName) {
	updated := &domain.PCPMetadata{}
	if meta != nil {
		copied := *meta
		updated = &copied
	}
	updated.ClinicalProviderID = clinicalProviderID
	return updated, PCP(updated)
}

// ApplyInsuranceUpload marks one insurance priority slot COMPLETED and
// returns the updated metadata with the re-derived overall status.
func ApplyInsuranceUpload(meta domain.InsuranceMetadata, priority domain.InsurancePriority) (domain.InsuranceMetadata, domain.TaskStatusName) {
	updated := domain.InsuranceMetadata{
		Statuses: make(map[domain.InsurancePriority]domain.TaskStatusName, len(meta.Statuses)+1),
	}
	for p, s := range meta.Statuses {
		updated.Statuses[p] = s
	}
	updated.Statuses[priority] = domain.TaskStatusCompleted
	return updated, InsuranceOverall(updated.Statuses)
}

func boolPtr(v bool) *bool {
	return &v
}
