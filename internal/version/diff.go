package version

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// Change kinds reported by Diff
const (
	ChangeFieldModified   = "field_modified"
	ChangeSectionAdded    = "section_added"
	ChangeSectionRemoved  = "section_removed"
	ChangeSectionModified = "section_modified"
)

// Change is one structural difference between two versions
type Change struct {
	Type   string `json:"type"`
	Path   string `json:"path"`
	Detail string `json:"detail,omitempty"`
}

// DiffResult summarizes the differences between two frozen versions
type DiffResult struct {
	BaseVersion    int      `json:"base_version"`
	CompareVersion int      `json:"compare_version"`
	Identical      bool     `json:"identical"`
	Changes        []Change `json:"changes"`
}

// Diff compares two policy documents structurally: top-level header fields
// by value, sections by title, and within matched sections the subsection
// count. Section bodies are not diffed line by line.
func Diff(base, compare json.RawMessage, baseVersion, compareVersion int) (*DiffResult, error) {
	var baseDoc, compareDoc map[string]interface{}
	if err := json.Unmarshal(base, &baseDoc); err != nil {
		return nil, fmt.Errorf("failed to parse base document: %w", err)
	}
	if err := json.Unmarshal(compare, &compareDoc); err != nil {
		return nil, fmt.Errorf("failed to parse compare document: %w", err)
	}

	result := &DiffResult{
		BaseVersion:    baseVersion,
		CompareVersion: compareVersion,
		Changes:        []Change{},
	}

	result.Changes = append(result.Changes, diffHeaders(baseDoc, compareDoc)...)
	result.Changes = append(result.Changes, diffSections(sections(baseDoc), sections(compareDoc))...)
	result.Identical = len(result.Changes) == 0
	return result, nil
}

// diffHeaders compares top-level fields other than the section list.
// Keys are visited in sorted order so output is deterministic.
func diffHeaders(base, compare map[string]interface{}) []Change {
	keys := map[string]struct{}{}
	for k := range base {
		keys[k] = struct{}{}
	}
	for k := range compare {
		keys[k] = struct{}{}
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		if k == "sections" {
			continue
		}
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var changes []Change
	for _, k := range sorted {
		bv, inBase := base[k]
		cv, inCompare := compare[k]
		if inBase && inCompare && reflect.DeepEqual(bv, cv) {
			continue
		}
		changes = append(changes, Change{
			Type:   ChangeFieldModified,
			Path:   k,
			Detail: fmt.Sprintf("changed from %v to %v", bv, cv),
		})
	}
	return changes
}

// diffSections matches sections by title and reports additions, removals
// and subsection count changes
func diffSections(base, compare []map[string]interface{}) []Change {
	baseByTitle := sectionIndex(base)
	compareByTitle := sectionIndex(compare)

	var changes []Change
	for _, section := range base {
		title := sectionTitle(section)
		if _, ok := compareByTitle[title]; !ok {
			changes = append(changes, Change{Type: ChangeSectionRemoved, Path: title})
		}
	}
	for _, section := range compare {
		title := sectionTitle(section)
		baseSection, ok := baseByTitle[title]
		if !ok {
			changes = append(changes, Change{Type: ChangeSectionAdded, Path: title})
			continue
		}
		baseCount := subsectionCount(baseSection)
		compareCount := subsectionCount(section)
		if baseCount != compareCount {
			changes = append(changes, Change{
				Type:   ChangeSectionModified,
				Path:   title,
				Detail: fmt.Sprintf("subsections changed from %d to %d", baseCount, compareCount),
			})
		}
	}
	return changes
}

func sections(doc map[string]interface{}) []map[string]interface{} {
	raw, ok := doc["sections"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		if section, ok := item.(map[string]interface{}); ok {
			out = append(out, section)
		}
	}
	return out
}

func sectionIndex(list []map[string]interface{}) map[string]map[string]interface{} {
	index := make(map[string]map[string]interface{}, len(list))
	for _, section := range list {
		index[sectionTitle(section)] = section
	}
	return index
}

func sectionTitle(section map[string]interface{}) string {
	if title, ok := section["title"].(string); ok {
		return title
	}
	return ""
}

func subsectionCount(section map[string]interface{}) int {
	if subs, ok := section["subsections"].([]interface{}); ok {
		return len(subs)
	}
	return 0
}
