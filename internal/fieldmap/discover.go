package fieldmap

import (
	"sort"
	"strings"

	"github.com/scullers68/sprint-reports/internal/types"
)

// Suggestion is a ranked field-mapping candidate produced by analyzing
// sample records. Confidence combines name-pattern matches with how often
// the field carries a value.
type Suggestion struct {
	TrackerFieldID string
	TargetField    string
	FieldType      types.FieldType
	Confidence     float64 // 0..1
	SampleCount    int
}

// namePatterns map well-known field-name fragments to canonical targets.
var namePatterns = []struct {
	fragment string
	target   string
	ftype    types.FieldType
}{
	{"story point", "story_points", types.FieldFloat},
	{"storypoint", "story_points", types.FieldFloat},
	{"sprint", "sprint", types.FieldObject},
	{"epic link", "epic_key", types.FieldString},
	{"epic name", "epic_name", types.FieldString},
	{"team", "discipline_team", types.FieldString},
	{"severity", "severity", types.FieldString},
	{"due date", "due_date", types.FieldDate},
	{"start date", "start_date", types.FieldDate},
	{"rank", "rank", types.FieldString},
}

// CustomField identifies one tracker custom field by id and display name.
type CustomField struct {
	ID   string
	Name string
}

// DiscoverMappings analyzes sample raw records against the known custom
// fields and returns ranked mapping suggestions, highest confidence first.
func DiscoverMappings(fields []CustomField, samples []map[string]interface{}) []Suggestion {
	var suggestions []Suggestion
	for _, f := range fields {
		lower := strings.ToLower(f.Name)

		usage := 0
		for _, sample := range samples {
			if v, ok := sample[f.ID]; ok && v != nil {
				usage++
			}
		}

		for _, p := range namePatterns {
			if !strings.Contains(lower, p.fragment) {
				continue
			}
			confidence := 0.6
			if len(samples) > 0 {
				confidence += 0.4 * float64(usage) / float64(len(samples))
			}
			suggestions = append(suggestions, Suggestion{
				TrackerFieldID: f.ID,
				TargetField:    p.target,
				FieldType:      p.ftype,
				Confidence:     confidence,
				SampleCount:    usage,
			})
			break
		}
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Confidence != suggestions[j].Confidence {
			return suggestions[i].Confidence > suggestions[j].Confidence
		}
		return suggestions[i].TrackerFieldID < suggestions[j].TrackerFieldID
	})
	return suggestions
}
