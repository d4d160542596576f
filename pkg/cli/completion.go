package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chzyer/readline"

	"github.com/psaab/iproute2/pkg/cmdtree"
)

// pipeFilters defines the available pipe filter names and descriptions.
var pipeFilters = []cmdtree.Candidate{
	{Name: "count", Desc: "Count occurrences"},
	{Name: "except", Desc: "Show only text that does not match a pattern"},
	{Name: "find", Desc: "Search for first occurrence of pattern"},
	{Name: "last", Desc: "Display end of output only"},
	{Name: "match", Desc: "Show only text that matches a pattern"},
}

// completePipeFilter returns pipe filter candidates matching the partial prefix.
// Returns handled=false if the line doesn't contain a pipe.
func completePipeFilter(text string) (candidates []cmdtree.Candidate, handled bool) {
	idx := strings.LastIndex(text, "|")
	if idx < 0 {
		return nil, false
	}
	after := strings.TrimSpace(text[idx+1:])
	if after == "" {
		return pipeFilters, true
	}
	// A complete filter name was typed; its argument is freeform.
	if strings.HasSuffix(text, " ") {
		return nil, true
	}
	for _, f := range pipeFilters {
		if strings.HasPrefix(f.Name, after) {
			candidates = append(candidates, f)
		}
	}
	return candidates, true
}

// candidatesFor returns the completion candidates for the text before the
// cursor and the partial word they complete.
func (c *CLI) candidatesFor(text string) ([]cmdtree.Candidate, string) {
	trailingSpace := strings.HasSuffix(text, " ")
	if cands, ok := completePipeFilter(text); ok {
		partial := ""
		if !trailingSpace {
			partial = strings.TrimSpace(text[strings.LastIndex(text, "|")+1:])
		}
		return cands, partial
	}
	words := strings.Fields(text)
	partial := ""
	if !trailingSpace && len(words) > 0 {
		partial = words[len(words)-1]
		words = words[:len(words)-1]
	}
	return cmdtree.CompleteFromTreeWithDesc(cmdtree.OperationalTree, words, partial, c), partial
}

type completer struct {
	cli *CLI
}

var _ readline.AutoCompleter = (*completer)(nil)

func (cp *completer) Do(line []rune, pos int) ([][]rune, int) {
	cands, partial := cp.cli.candidatesFor(string(line[:pos]))
	if len(cands) == 0 {
		return nil, 0
	}
	names := make([]string, len(cands))
	for i, cd := range cands {
		names[i] = cd.Name
	}
	sort.Strings(names)

	if len(names) == 1 {
		return [][]rune{[]rune(names[0][len(partial):] + " ")}, len(partial)
	}

	// Multiple matches: show descriptions above prompt.
	cmdtree.WriteHelp(cp.cli.rl.Stdout(), cands)

	suffix := cmdtree.CommonPrefix(names)[len(partial):]
	if suffix == "" {
		return nil, 0
	}
	return [][]rune{[]rune(suffix)}, len(partial)
}

// helpListener prints the candidates for the current position when '?'
// is typed, then removes the '?' from the line.
func (c *CLI) helpListener(line []rune, pos int, key rune) ([]rune, int, bool) {
	if key != '?' || pos < 1 {
		return line, pos, false
	}
	clean := make([]rune, 0, len(line)-1)
	clean = append(clean, line[:pos-1]...)
	clean = append(clean, line[pos:]...)
	text := string(clean[:pos-1])

	cands, _ := c.candidatesFor(text)
	if len(cands) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "  (no help available)")
		return clean, pos - 1, true
	}
	cmdtree.WriteHelp(c.rl.Stdout(), cands)
	return clean, pos - 1, true
}
