package scenario

import (
	"strings"

	messages "github.com/cucumber/messages/go/v21"
)

// IndexFeature records the position of every scenario of doc in its
// feature file, counting each example row of an outline as one scenario.
// Indexed scenarios keep their id whichever subset of the feature runs and
// in whatever order.
func (h *Harness) IndexFeature(doc *messages.GherkinDocument) {
	if doc == nil || doc.Feature == nil {
		return
	}

	var scenarios []*messages.Scenario
	for _, child := range doc.Feature.Children {
		if child.Scenario != nil {
			scenarios = append(scenarios, child.Scenario)
		}
		if child.Rule != nil {
			for _, rc := range child.Rule.Children {
				if rc.Scenario != nil {
					scenarios = append(scenarios, rc.Scenario)
				}
			}
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	pos := 0
	for _, sc := range scenarios {
		if len(sc.Examples) == 0 {
			h.positions[positionKey(doc.Uri, []string{sc.Id})] = pos
			pos++
			continue
		}
		for _, ex := range sc.Examples {
			for _, row := range ex.TableBody {
				h.positions[positionKey(doc.Uri, []string{sc.Id, row.Id})] = pos
				pos++
			}
		}
	}
}

// scenarioIndex is the indexed position of the pickle built from
// astNodeIDs. Scenarios of features that were never indexed are numbered
// in the order they start.
func (h *Harness) scenarioIndex(featureFile string, astNodeIDs []string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(astNodeIDs) > 0 {
		if pos, ok := h.positions[positionKey(featureFile, astNodeIDs)]; ok {
			return pos
		}
	}
	i := h.started[featureFile]
	h.started[featureFile] = i + 1
	return i
}

func positionKey(featureFile string, astNodeIDs []string) string {
	return featureFile + "#" + strings.Join(astNodeIDs, "/")
}
