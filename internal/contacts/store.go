package contacts

import (
	"encoding/json"

	"mailview/backend/internal/models"
)

// StoreVersion is the only persisted envelope version this code recognizes.
// Any other shape is treated as empty; there is no best-effort migration.
const StoreVersion = 2

type storeEnvelope struct {
	Version int                    `json:"version"`
	Records []models.ContactRecord `json:"records"`
}

// encodeStore serializes records as the versioned envelope.
func encodeStore(records []models.ContactRecord) string {
	if records == nil {
		records = []models.ContactRecord{}
	}
	payload, err := json.Marshal(storeEnvelope{Version: StoreVersion, Records: records})
	if err != nil {
		// Records are plain data; marshaling cannot fail for them.
		return `{"version":2,"records":[]}`
	}
	return string(payload)
}

// decodeStore parses a persisted payload. Anything that is not exactly a
// version-2 envelope with an array of records yields an empty directory.
func decodeStore(payload string) []models.ContactRecord {
	var probe struct {
		Version int             `json:"version"`
		Records json.RawMessage `json:"records"`
	}
	if err := json.Unmarshal([]byte(payload), &probe); err != nil {
		return nil
	}
	if probe.Version != StoreVersion || len(probe.Records) == 0 {
		return nil
	}

	var records []models.ContactRecord
	if err := json.Unmarshal(probe.Records, &records); err != nil {
		return nil
	}

	// Drop records that violate the address invariant; they cannot be keyed.
	valid := records[:0]
	for _, r := range records {
		if r.Address != "" {
			valid = append(valid, r)
		}
	}
	return valid
}
