package checklist

import "fmt"

// ApplicableCategories returns the scope categories named exactly by the
// given work descriptions, de-duplicated, in ScopeCategories order.
func ApplicableCategories(works []string) []string {
	seen := make(map[string]bool, len(works))
	for _, work := range works {
		seen[work] = true
	}
	out := make([]string, 0, len(ScopeCategories))
	for _, category := range ScopeCategories {
		if seen[category] {
			out = append(out, category)
		}
	}
	return out
}

// Filter keeps the two fixed categories plus the requested extra ones.
// Extra categories absent from the template are skipped; missing fixed
// categories make the template unusable.
func Filter(template *Node, categories []string) (*Node, error) {
	if !template.IsGroup() {
		return nil, ErrMalformedTemplate
	}
	filtered := map[string]*Node{}
	for _, fixed := range []string{CategoryOffSiteFixed, CategoryOnSiteFixed} {
		node, ok := template.Child(fixed)
		if !ok || !node.IsGroup() {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformedTemplate, fixed)
		}
		filtered[fixed] = node
	}
	for _, category := range categories {
		if category == CategoryOffSiteFixed || category == CategoryOnSiteFixed {
			continue
		}
		node, ok := template.Child(category)
		if !ok || !node.IsGroup() {
			continue
		}
		filtered[category] = node
	}
	return Group(filtered), nil
}

// TaskKey identifies one checklist task within a project.
type TaskKey struct {
	Type    string
	Subtype string
}

// Pairs lists every (category, subcategory) pair of a filtered template in
// a stable order.
func Pairs(filtered *Node) []TaskKey {
	var pairs []TaskKey
	for _, category := range filtered.Keys() {
		node, _ := filtered.Child(category)
		for _, subtype := range node.Keys() {
			pairs = append(pairs, TaskKey{Type: category, Subtype: subtype})
		}
	}
	return pairs
}

// TaskState is the stored state of one task.
type TaskState struct {
	TaskID        int64
	Type          string
	Subtype       string
	Completed     bool
	HasComments   bool
	HasAttachment bool
}

// Item is a template subcategory with its task state laid over it.
type Item struct {
	Questions     *Node  `json:"questions"`
	TaskID        *int64 `json:"taskid,omitempty"`
	Completed     *bool  `json:"completed,omitempty"`
	HasComments   *bool  `json:"has_comments,omitempty"`
	HasAttachment *bool  `json:"has_attachment,omitempty"`
}

// View is the checklist shape returned to clients: category -> subcategory -> item.
type View map[string]map[string]Item

// TaskCategories returns the distinct task types in first-seen order.
func TaskCategories(tasks []TaskState) []string {
	seen := map[string]bool{}
	var out []string
	for _, task := range tasks {
		if seen[task.Type] {
			continue
		}
		seen[task.Type] = true
		out = append(out, task.Type)
	}
	return out
}

// Overlay builds the client view of a filtered template, attaching each
// task's flags to its matching subcategory. Tasks whose pair is no longer
// in the template are dropped.
func Overlay(filtered *Node, tasks []TaskState) View {
	view := View{}
	for _, category := range filtered.Keys() {
		node, _ := filtered.Child(category)
		items := map[string]Item{}
		for _, subtype := range node.Keys() {
			child, _ := node.Child(subtype)
			items[subtype] = Item{Questions: child}
		}
		view[category] = items
	}
	for _, task := range tasks {
		items, ok := view[task.Type]
		if !ok {
			continue
		}
		item, ok := items[task.Subtype]
		if !ok {
			continue
		}
		taskID := task.TaskID
		completed := task.Completed
		hasComments := task.HasComments
		hasAttachment := task.HasAttachment
		item.TaskID = &taskID
		item.Completed = &completed
		item.HasComments = &hasComments
		item.HasAttachment = &hasAttachment
		items[task.Subtype] = item
	}
	return view
}
