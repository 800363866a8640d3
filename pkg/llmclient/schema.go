package llmclient

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// intelSections enumerates the fixed intel schema sections (spec §4.4):
// basic_info is a singular object, the rest are arrays. Sections absent
// from a reply are treated as omitted, not as validation failures —
// the schema is fixed but sparse by design.
var intelSections = []string{
	"basic_info", "persons", "jobs", "metrics", "locations",
	"financials", "products", "events", "relationships",
}

var intelArraySections = map[string]bool{
	"persons": true, "jobs": true, "metrics": true, "locations": true,
	"financials": true, "products": true, "events": true, "relationships": true,
}

// validateIntelPayload checks that payload only carries recognized
// sections and that each array section actually decoded to an array.
// Unrecognized keys are dropped rather than rejected, and a section
// whose shape doesn't match (e.g. "persons" decoded to a string) is
// dropped from the payload rather than failing the whole extraction —
// a malformed sub-section degrades gracefully, consistent with the
// contract's non-fatal-on-malformed-output rule.
func validateIntelPayload(raw map[string]any) map[string]any {
	clean := map[string]any{}
	known := map[string]bool{}
	for _, s := range intelSections {
		known[s] = true
	}
	for key, value := range raw {
		if !known[key] {
			continue
		}
		if intelArraySections[key] {
			items, ok := value.([]any)
			if !ok || len(items) == 0 {
				continue
			}
			clean[key] = items
			continue
		}
		obj, ok := value.(map[string]any)
		if !ok || len(obj) == 0 {
			continue
		}
		clean[key] = obj
	}
	return clean
}

// salvageIntelSections pulls whatever known intel-schema sections it can
// find by path out of a reply that failed to parse as a clean top-level
// JSON object — e.g. the model wrapped valid JSON in a sentence of
// prose. gjson locates each named path independently, so stray text
// around (but not inside) the JSON object doesn't block extraction of
// the sections that are still well-formed. The salvaged sections are
// reassembled into a clean JSON document with sjson.SetRaw, which is then
// decoded; only the decoded map is returned.
func salvageIntelSections(reply string) map[string]any {
	clean := "{}"
	for _, section := range intelSections {
		result := gjson.Get(reply, section)
		if !result.Exists() {
			continue
		}
		var updated string
		var err error
		if updated, err = sjson.SetRaw(clean, section, result.Raw); err != nil {
			continue
		}
		clean = updated
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return map[string]any{}
	}
	return out
}

