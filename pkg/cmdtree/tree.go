// Package cmdtree defines the command tree of the routectl shell.
//
// The tree drives tab completion, ? help and command lookup for both the
// local shell and the remote one, so a new command is added here once.
package cmdtree

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/psaab/iproute2/pkg/grammar"
)

// Source supplies the dynamic values offered during completion.
type Source interface {
	TableNames() []string
}

// Node defines a completion tree node with description, children, and optional dynamic values.
type Node struct {
	Desc      string
	Children  map[string]*Node
	DynamicFn func(src Source) []string
	// Freeform nodes take any number of trailing words and keep offering
	// DynamicFn values for each of them.
	Freeform bool
}

// Candidate holds a command name and its description for display.
type Candidate struct {
	Name string
	Desc string
}

func routeWords(Source) []string { return grammar.Vocabulary() }

func tableNames(src Source) []string {
	if src == nil {
		return nil
	}
	return src.TableNames()
}

func routeArg(desc string) *Node {
	return &Node{Desc: desc, DynamicFn: routeWords, Freeform: true}
}

func tableArg(desc string, children map[string]*Node) *Node {
	return &Node{Desc: desc, DynamicFn: tableNames, Children: children}
}

// OperationalTree defines tab completion for the shell.
var OperationalTree = map[string]*Node{
	"parse": routeArg("Parse a route and print its canonical form"),
	"show": {Desc: "Show information", Children: map[string]*Node{
		"tree":    routeArg("Show the parse tree of a route"),
		"command": routeArg("Show the ip command line for a route"),
		"options": {Desc: "Show parser options"},
		"keywords": {Desc: "Show grammar keywords", Children: map[string]*Node{
			"node-spec": {Desc: "Route selector keywords"},
			"nexthop":   {Desc: "Next-hop keywords"},
			"options":   {Desc: "Tuning option keywords"},
		}},
		"frr":       tableArg("Show a table as FRR static routes", nil),
		"interface": {Desc: "Show interface state and addresses"},
		"tables":    {Desc: "Show route tables"},
		"table":     tableArg("Show routes of a table", nil),
		"terse":     tableArg("Show a table in terse form", nil),
	}},
	"set": {Desc: "Change parser options", Children: map[string]*Node{
		"multipath": {Desc: "Accept repeated nexthop groups", Children: map[string]*Node{
			"on":  {Desc: "Parse every nexthop group"},
			"off": {Desc: "Parse a single next hop"},
		}},
		"duplicates": {Desc: "Repeated option keyword policy", Children: map[string]*Node{
			"first":  {Desc: "Keep the first occurrence"},
			"last":   {Desc: "Keep the last occurrence"},
			"reject": {Desc: "Fail the parse"},
		}},
		"trailing": {Desc: "Unclaimed token policy", Children: map[string]*Node{
			"reject": {Desc: "Fail the parse"},
			"allow":  {Desc: "Keep them as the remainder"},
		}},
	}},
	"table": {Desc: "Manage route tables", Children: map[string]*Node{
		"create": {Desc: "Create an empty table <name> [description]"},
		"add": tableArg("Add a route to a table", map[string]*Node{
			"<route>": routeArg("Route to add"),
		}),
		"delete": tableArg("Delete a route from a table by key prefix", nil),
		"export": tableArg("Write a table into an frr.conf managed section <name> <file> [vrf]", nil),
		"load":   tableArg("Load routes from a file <name> <file>", nil),
		"save":   tableArg("Save a table to the store", nil),
		"drop":   tableArg("Drop a table", nil),
	}},
	"help": {Desc: "Show help"},
	"exit": {Desc: "Exit the shell"},
	"quit": {Desc: "Exit the shell"},
}

// --- Helper functions ---

// KeysFromTree returns a sorted list of keys from a Node map.
func KeysFromTree(tree map[string]*Node) []string {
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HelpCandidates returns Candidates from a tree's children for help display.
// Placeholder entries such as "<route>" are left out.
func HelpCandidates(tree map[string]*Node) []Candidate {
	candidates := make([]Candidate, 0, len(tree))
	for name, node := range tree {
		if isPlaceholder(name) {
			continue
		}
		candidates = append(candidates, Candidate{Name: name, Desc: node.Desc})
	}
	return candidates
}

func isPlaceholder(name string) bool {
	return strings.HasPrefix(name, "<")
}

// position is where a word list leaves the tree walk.
type position struct {
	children        map[string]*Node
	node            *Node
	dynamicConsumed bool
}

// walk follows words through tree. A word that is not a static child is
// taken as a dynamic value of the current node, then the walk continues
// into its placeholder child if it has one. ok is false when a word
// cannot be placed.
func walk(tree map[string]*Node, words []string) (pos position, ok bool) {
	pos.children = tree
	for _, w := range words {
		pos.dynamicConsumed = false
		if pos.node != nil && pos.node.Freeform {
			continue
		}
		node, found := pos.children[w]
		if !found {
			// Not a static child: a dynamic value of the parent, followed
			// by its placeholder child if any.
			if pos.node == nil || pos.node.DynamicFn == nil {
				return pos, false
			}
			pos.dynamicConsumed = true
			if next := placeholder(pos.children); next != nil {
				pos.node = next
				pos.children = next.Children
				pos.dynamicConsumed = false
			}
			continue
		}
		pos.node = node
		pos.children = node.Children
	}
	return pos, true
}

func placeholder(children map[string]*Node) *Node {
	for name, n := range children {
		if isPlaceholder(name) {
			return n
		}
	}
	return nil
}

func (pos position) candidates(src Source) []Candidate {
	var out []Candidate
	for name, node := range pos.children {
		if isPlaceholder(name) {
			continue
		}
		out = append(out, Candidate{Name: name, Desc: node.Desc})
	}
	if pos.node != nil && pos.node.DynamicFn != nil && (!pos.dynamicConsumed || pos.node.Freeform) {
		desc := "(table)"
		if pos.node.Freeform {
			desc = "(keyword)"
		}
		for _, name := range pos.node.DynamicFn(src) {
			out = append(out, Candidate{Name: name, Desc: desc})
		}
	}
	return out
}

// CompleteFromTree walks the tree to find completion candidates for the given words and partial.
func CompleteFromTree(tree map[string]*Node, words []string, partial string, src Source) []string {
	pos, ok := walk(tree, words)
	if !ok {
		return nil
	}
	cands := pos.candidates(src)
	names := make([]string, 0, len(cands))
	for _, c := range cands {
		names = append(names, c.Name)
	}
	return FilterPrefix(names, partial)
}

// CompleteFromTreeWithDesc walks the tree returning name+description pairs.
func CompleteFromTreeWithDesc(tree map[string]*Node, words []string, partial string, src Source) []Candidate {
	pos, ok := walk(tree, words)
	if !ok {
		return nil
	}
	var out []Candidate
	for _, c := range pos.candidates(src) {
		if strings.HasPrefix(c.Name, partial) {
			out = append(out, c)
		}
	}
	return out
}

// LookupDesc finds the description for a candidate name given the command path words.
func LookupDesc(words []string, name string) string {
	pos, ok := walk(OperationalTree, words)
	if !ok {
		return ""
	}
	if node, ok := pos.children[name]; ok {
		return node.Desc
	}
	return ""
}

// Resolve returns the node a complete command path ends on, or nil.
func Resolve(tree map[string]*Node, words []string) *Node {
	pos, ok := walk(tree, words)
	if !ok {
		return nil
	}
	return pos.node
}

// WriteHelp prints aligned completion candidates to w.
// The entire output is built as a single string and written in one call
// so that readline's wrapWriter triggers only one Refresh cycle.
func WriteHelp(w io.Writer, candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })
	maxWidth := 20
	for _, c := range candidates {
		if len(c.Name)+2 > maxWidth {
			maxWidth = len(c.Name) + 2
		}
	}
	var sb strings.Builder
	sb.WriteString("Possible completions:\n")
	for _, c := range candidates {
		if c.Desc != "" {
			fmt.Fprintf(&sb, "  %-*s %s\n", maxWidth, c.Name, c.Desc)
		} else {
			fmt.Fprintf(&sb, "  %s\n", c.Name)
		}
	}
	io.WriteString(w, sb.String())
}

// PrintTreeHelp prints self-generating help from a tree path.
func PrintTreeHelp(w io.Writer, header string, tree map[string]*Node, path ...string) {
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintln(w, header)
	current := tree
	for _, p := range path {
		node, ok := current[p]
		if !ok || node.Children == nil {
			return
		}
		current = node.Children
	}
	WriteHelp(w, HelpCandidates(current))
}

// CommonPrefix returns the longest shared prefix among the given strings.
func CommonPrefix(items []string) string {
	if len(items) == 0 {
		return ""
	}
	prefix := items[0]
	for _, s := range items[1:] {
		for !strings.HasPrefix(s, prefix) {
			prefix = prefix[:len(prefix)-1]
			if prefix == "" {
				return ""
			}
		}
	}
	return prefix
}

// KeysOf returns an unsorted list of keys from a Node map.
func KeysOf(m map[string]*Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// FilterPrefix returns only items that start with the given prefix.
func FilterPrefix(items []string, prefix string) []string {
	if prefix == "" {
		return items
	}
	var result []string
	for _, item := range items {
		if strings.HasPrefix(item, prefix) {
			result = append(result, item)
		}
	}
	return result
}
