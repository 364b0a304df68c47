// Package checklist models the safety checklist template and the per-project
// task view built from it.
package checklist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

const (
	CategoryOffSiteFixed = "OffSiteFixed"
	CategoryOnSiteFixed  = "OnSiteFixed"
)

// ScopeCategories are the scope work types that pull extra template
// categories into a project checklist.
var ScopeCategories = []string{"Lifting", "Transportation", "Forklift"}

var ErrMalformedTemplate = errors.New("invalid or missing checklist template")

// Node is either a leaf holding a list of questions or a group of named
// child nodes. The zero value is an empty leaf.
type Node struct {
	questions []string
	children  map[string]*Node
}

func Leaf(questions ...string) *Node {
	if questions == nil {
		questions = []string{}
	}
	return &Node{questions: questions}
}

func Group(children map[string]*Node) *Node {
	if children == nil {
		children = map[string]*Node{}
	}
	return &Node{children: children}
}

func (n *Node) IsGroup() bool {
	return n != nil && n.children != nil
}

func (n *Node) Questions() []string {
	if n == nil || n.IsGroup() {
		return nil
	}
	return n.questions
}

func (n *Node) Child(name string) (*Node, bool) {
	if !n.IsGroup() {
		return nil, false
	}
	child, ok := n.children[name]
	return child, ok
}

// Keys returns child names in sorted order; empty for leaves.
func (n *Node) Keys() []string {
	if !n.IsGroup() {
		return nil
	}
	keys := make([]string, 0, len(n.children))
	for key := range n.children {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// QuestionCount counts every question below n.
func (n *Node) QuestionCount() int {
	if n == nil {
		return 0
	}
	if !n.IsGroup() {
		return len(n.questions)
	}
	total := 0
	for _, child := range n.children {
		total += child.QuestionCount()
	}
	return total
}

func (n *Node) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return ErrMalformedTemplate
	}
	switch trimmed[0] {
	case '[':
		var questions []string
		if err := json.Unmarshal(trimmed, &questions); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedTemplate, err)
		}
		*n = *Leaf(questions...)
		return nil
	case '{':
		var children map[string]*Node
		if err := json.Unmarshal(trimmed, &children); err != nil {
			return err
		}
		for key, child := range children {
			if child == nil {
				return fmt.Errorf("%w: %q is null", ErrMalformedTemplate, key)
			}
		}
		*n = *Group(children)
		return nil
	default:
		return fmt.Errorf("%w: unexpected %q", ErrMalformedTemplate, trimmed[0])
	}
}

func (n *Node) MarshalJSON() ([]byte, error) {
	if n.IsGroup() {
		return json.Marshal(n.children)
	}
	return json.Marshal(n.Questions())
}

// ParseTemplate decodes a template document. The root and every top-level
// category must be groups.
func ParseTemplate(data []byte) (*Node, error) {
	var root Node
	if err := json.Unmarshal(data, &root); err != nil {
		if errors.Is(err, ErrMalformedTemplate) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedTemplate, err)
	}
	if !root.IsGroup() {
		return nil, fmt.Errorf("%w: root must be an object", ErrMalformedTemplate)
	}
	for _, key := range root.Keys() {
		category, _ := root.Child(key)
		if !category.IsGroup() {
			return nil, fmt.Errorf("%w: category %q must be an object", ErrMalformedTemplate, key)
		}
	}
	return &root, nil
}
