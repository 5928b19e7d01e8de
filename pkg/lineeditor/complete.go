package lineeditor

import (
	"sort"
	"strings"
)

// Completer supplies tab completions. Complete receives the word being typed
// and returns the ordered set of suffixes that would complete it.
type Completer interface {
	Complete(prefix string) []string
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(prefix string) []string

// Complete calls f(prefix).
func (f CompleterFunc) Complete(prefix string) []string {
	return f(prefix)
}

// WordCompleter completes against a fixed vocabulary.
type WordCompleter struct {
	words []string
}

// NewWordCompleter returns a Completer over words. Duplicates are removed and
// the vocabulary is kept sorted so suffixes come back in a stable order.
func NewWordCompleter(words []string) *WordCompleter {
	seen := make(map[string]struct{}, len(words))
	uniq := make([]string, 0, len(words))
	for _, w := range words {
		if _, ok := seen[w]; ok || w == "" {
			continue
		}
		seen[w] = struct{}{}
		uniq = append(uniq, w)
	}
	sort.Strings(uniq)
	return &WordCompleter{words: uniq}
}

// Complete returns the suffixes of every word that starts with prefix.
// Exact matches are omitted.
func (c *WordCompleter) Complete(prefix string) []string {
	var out []string
	for _, w := range c.words {
		if len(w) > len(prefix) && strings.HasPrefix(w, prefix) {
			out = append(out, w[len(prefix):])
		}
	}
	return out
}

// Completion is the outcome of completing a line.
type Completion struct {
	// Insert is the text to add at the cursor.
	Insert string
	// Candidates lists what remains of each suffix after Insert. It is empty
	// when the completion is unambiguous.
	Candidates []string
}

// CompleteLine completes the last word of line: the text after the final
// space. A single suffix is inserted whole; several suffixes insert their
// longest common prefix and report the rest as candidates.
func CompleteLine(c Completer, line string) Completion {
	if c == nil {
		return Completion{}
	}
	word := line
	if i := strings.LastIndexByte(line, ' '); i >= 0 {
		word = line[i+1:]
	}

	suffixes := c.Complete(word)
	switch len(suffixes) {
	case 0:
		return Completion{}
	case 1:
		return Completion{Insert: suffixes[0]}
	}

	common := longestCommonPrefix(suffixes)
	rest := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		rest = append(rest, s[len(common):])
	}
	return Completion{Insert: common, Candidates: rest}
}

func longestCommonPrefix(items []string) string {
	if len(items) == 0 {
		return ""
	}
	prefix := items[0]
	for _, s := range items[1:] {
		for !strings.HasPrefix(s, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
		if prefix == "" {
			break
		}
	}
	// Do not split a multi-byte rune.
	for len(prefix) > 0 && !isRuneBoundary(items[0], len(prefix)) {
		prefix = prefix[:len(prefix)-1]
	}
	return prefix
}

func isRuneBoundary(s string, i int) bool {
	return i >= len(s) || s[i]&0xC0 != 0x80
}

// FormatCandidates lays candidates out in columns for a terminal width
// columns wide. Rows are separated by CRLF so the listing renders correctly
// in raw mode.
func FormatCandidates(candidates []string, width int) string {
	if len(candidates) == 0 {
		return ""
	}
	cell := 0
	for _, c := range candidates {
		cell = max(cell, len(c))
	}
	cell += 2
	perRow := 1
	if width > cell {
		perRow = width / cell
	}

	var b strings.Builder
	for i, c := range candidates {
		if i > 0 && i%perRow == 0 {
			b.WriteString("\r\n")
		}
		b.WriteString(c)
		if (i+1)%perRow != 0 && i != len(candidates)-1 {
			b.WriteString(strings.Repeat(" ", cell-len(c)))
		}
	}
	b.WriteString("\r\n")
	return b.String()
}
