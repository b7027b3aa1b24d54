package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// InsurancePriority identifies one insurance slot on a care request.
type InsurancePriority string

// Known insurance priorities. Anything else found in persisted
// metadata is dropped on read.
const (
	InsurancePriorityPrimary   InsurancePriority = "1"
	InsurancePrioritySecondary InsurancePriority = "2"
)

// PCP social-history question tags, persisted as metadata keys.
const (
	QuestionTagHasPCP             = "HAS_PCP"
	QuestionTagHasSeenPCPRecently = "HAS_SEEN_PCP_RECENTLY"
)

// TaskMetadata is the tagged union of per-task-type metadata shapes.
// The concrete type is determined by the owning task's Type.
type TaskMetadata interface {
	isTaskMetadata()
}

// InsuranceMetadata tracks the upload status of each insurance slot.
type InsuranceMetadata struct {
	Statuses map[InsurancePriority]TaskStatusName `json:"insuranceStatuses"`
}

func (InsuranceMetadata) isTaskMetadata() {}

// PCPMetadata holds the primary-care-provider funnel state. A nil
// *PCPMetadata is the legacy "unset" representation and is valid.
type PCPMetadata struct {
	ClinicalProviderID     string       `json:"clinicalProviderId,omitempty"`
	SocialHistoryResponses PCPResponses `json:"socialHistoryResponses"`
}

func (*PCPMetadata) isTaskMetadata() {}

// PCPResponses holds the patient's answers to the two PCP social
// history questions. A nil pointer means the question is unanswered.
type PCPResponses struct {
	HasPCP             *bool `json:"HAS_PCP,omitempty"`
	HasSeenPCPRecently *bool `json:"HAS_SEEN_PCP_RECENTLY,omitempty"`
}

// ConsentsMetadata tracks which consent definitions the patient has
// completed.
type ConsentsMetadata struct {
	CompletedDefinitionIDs []int `json:"completedDefinitionIds"`
}

func (ConsentsMetadata) isTaskMetadata() {}

// OpaqueMetadata is metadata for task types that attach no structured
// shape; it is passed through storage unchanged.
type OpaqueMetadata json.RawMessage

func (OpaqueMetadata) isTaskMetadata() {}

// MarshalJSON implements json.Marshaler for OpaqueMetadata.
func (m OpaqueMetadata) MarshalJSON() ([]byte, error) {
	if len(m) == 0 {
		return []byte("null"), nil
	}
	return json.RawMessage(m).MarshalJSON()
}

// ParseTaskMetadata validates and coerces raw persisted metadata into
// the typed variant for the given task type. Malformed optional fields
// are dropped rather than failing the whole parse; each drop is
// reported in the returned warnings so the caller can log it.
// A structural mismatch (e.g. insurance metadata that is not an
// object) returns ErrMetadataMismatch.
func ParseTaskMetadata(taskType TaskType, raw []byte) (TaskMetadata, []string, error) {
	switch taskType {
	case TaskTypeInsuranceCardImages:
		return parseInsuranceMetadata(raw)
	case TaskTypePrimaryCareProvider:
		return parsePCPMetadata(raw)
	case TaskTypeConsents:
		return parseConsentsMetadata(raw)
	default:
		if isJSONNull(raw) {
			return nil, nil, nil
		}
		return OpaqueMetadata(raw), nil, nil
	}
}

// MarshalTaskMetadata serializes typed metadata for persistence.
// Nil metadata serializes to SQL NULL (returned as nil bytes).
func MarshalTaskMetadata(meta TaskMetadata) ([]byte, error) {
	if meta == nil {
		return nil, nil
	}
	if pcp, ok := meta.(*PCPMetadata); ok && pcp == nil {
		return nil, nil
	}
	return json.Marshal(meta)
}

func parseInsuranceMetadata(raw []byte) (TaskMetadata, []string, error) {
	if isJSONNull(raw) {
		return nil, nil, fmt.Errorf("%w: insurance metadata is null", ErrMetadataMismatch)
	}

	var decoded struct {
		Statuses map[string]string `json:"insuranceStatuses"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded.Statuses == nil {
		return nil, nil, fmt.Errorf("%w: insurance metadata missing insuranceStatuses", ErrMetadataMismatch)
	}

	meta := InsuranceMetadata{Statuses: map[InsurancePriority]TaskStatusName{}}
	var warnings []string
	for priority, status := range decoded.Statuses {
		p := InsurancePriority(priority)
		if p != InsurancePriorityPrimary && p != InsurancePrioritySecondary {
			// Unknown priorities are dropped on read.
			continue
		}
		name := TaskStatusName(status)
		if !IsValidTaskStatus(name) {
			warnings = append(warnings,
				fmt.Sprintf("invalid status %q for insurance priority %s", status, priority))
			continue
		}
		meta.Statuses[p] = name
	}

	return meta, warnings, nil
}

func parsePCPMetadata(raw []byte) (TaskMetadata, []string, error) {
	// Legacy rows have no metadata at all.
	if isJSONNull(raw) {
		return (*PCPMetadata)(nil), nil, nil
	}

	var decoded struct {
		ClinicalProviderID *json.RawMessage           `json:"clinicalProviderId"`
		Responses          map[string]json.RawMessage `json:"socialHistoryResponses"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded.Responses == nil {
		return nil, nil, fmt.Errorf("%w: PCP metadata missing socialHistoryResponses", ErrMetadataMismatch)
	}

	meta := &PCPMetadata{}
	var warnings []string

	if decoded.ClinicalProviderID != nil {
		var id string
		if err := json.Unmarshal(*decoded.ClinicalProviderID, &id); err != nil {
			return nil, nil, fmt.Errorf("%w: clinicalProviderId is not a string", ErrMetadataMismatch)
		}
		meta.ClinicalProviderID = id
	}

	meta.SocialHistoryResponses.HasPCP = parseBoolAnswer(decoded.Responses, QuestionTagHasPCP, &warnings)
	meta.SocialHistoryResponses.HasSeenPCPRecently = parseBoolAnswer(decoded.Responses, QuestionTagHasSeenPCPRecently, &warnings)

	return meta, warnings, nil
}

// parseBoolAnswer extracts a boolean answer from the raw response map.
// Non-boolean values are dropped with a warning, matching the
// tolerance for historical rows written before the shape settled.
func parseBoolAnswer(responses map[string]json.RawMessage, tag string, warnings *[]string) *bool {
	raw, ok := responses[tag]
	if !ok {
		return nil
	}
	var answer bool
	if err := json.Unmarshal(raw, &answer); err != nil {
		*warnings = append(*warnings, fmt.Sprintf("non-boolean answer for %s dropped", tag))
		return nil
	}
	return &answer
}

func parseConsentsMetadata(raw []byte) (TaskMetadata, []string, error) {
	if isJSONNull(raw) {
		return nil, nil, fmt.Errorf("%w: consents metadata is null", ErrMetadataMismatch)
	}

	var decoded struct {
		CompletedDefinitionIDs []json.RawMessage `json:"completedDefinitionIds"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded.CompletedDefinitionIDs == nil {
		return nil, nil, fmt.Errorf("%w: consents metadata missing completedDefinitionIds", ErrMetadataMismatch)
	}

	meta := ConsentsMetadata{CompletedDefinitionIDs: []int{}}
	var warnings []string
	for _, rawID := range decoded.CompletedDefinitionIDs {
		// Upstream sends definition ids as either numbers or numeric
		// strings; both are accepted and coerced to int.
		var numeric int
		if err := json.Unmarshal(rawID, &numeric); err == nil {
			meta.CompletedDefinitionIDs = append(meta.CompletedDefinitionIDs, numeric)
			continue
		}

		var str string
		if err := json.Unmarshal(rawID, &str); err == nil {
			parsed, convErr := strconv.Atoi(str)
			if convErr == nil {
				meta.CompletedDefinitionIDs = append(meta.CompletedDefinitionIDs, parsed)
				continue
			}
		}

		warnings = append(warnings,
			fmt.Sprintf("invalid value %s in consents task metadata dropped", string(rawID)))
	}

	return meta, warnings, nil
}

func isJSONNull(raw []byte) bool {
	return len(raw) == 0 || string(raw) == "null"
}
