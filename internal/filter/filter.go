// Package filter reduces raw session transcripts to bounded, transmittable
// text and decides whether a session is worth retaining at all.
package filter

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	DefaultMaxCodeBlockLines = 30
	DefaultMaxLineLength     = 1000
)

// Options configures the filter pipeline.
type Options struct {
	MaxCodeBlockLines int
	MaxLineLength     int
}

// DefaultOptions returns default filtering options.
func DefaultOptions() Options {
	return Options{
		MaxCodeBlockLines: DefaultMaxCodeBlockLines,
		MaxLineLength:     DefaultMaxLineLength,
	}
}

// rule is one pattern/placeholder pair. Rules are data so each replacement
// is independently testable.
type rule struct {
	name        string
	re          *regexp.Regexp
	placeholder string
}

// blockRules replace structured bulk blocks (tool output, file reads,
// search results, command stdout) with positional placeholders.
var blockRules = []rule{
	{"tool-result", regexp.MustCompile(`(?s)<tool[-_]result>.*?</tool[-_]result>`), "[Tool result filtered]"},
	{"file-contents", regexp.MustCompile(`(?s)<file[-_]contents>.*?</file[-_]contents>`), "[File contents filtered]"},
	{"search-results", regexp.MustCompile(`(?s)<search[-_]results>.*?</search[-_]results>`), "[Search results filtered]"},
	{"command-output", regexp.MustCompile(`(?s)<command[-_]output>.*?</command[-_]output>`), "[Command output filtered]"},
}

// noiseRules strip or collapse unstructured noise. System reminders vanish
// entirely; the rest leave placeholders.
var noiseRules = []rule{
	{"system-reminder", regexp.MustCompile(`(?s)<system-reminder>.*?</system-reminder>`), ""},
	{"base64", regexp.MustCompile(`[A-Za-z0-9+/]{256,}={0,2}`), "[Base64 data filtered]"},
	{"inline-json", regexp.MustCompile(`\{"[^\n]{800,}\}`), "[JSON data filtered]"},
	{"diff", regexp.MustCompile(`(?m)^@@[^\n]*@@[^\n]*\n(?:[+\- ][^\n]*\n?)+`), "[Diff filtered]\n"},
	{"stack-trace", regexp.MustCompile(`(?m)^([^\n]*(?:Error:|Exception:|panic:|Traceback \(most recent call last\):)[^\n]*)\n(?:(?:\s+at\s|\s+File\s|goroutine\s|\t)[^\n]*\n?)+`), "$1\n[Stack trace filtered]\n"},
}

var (
	fencedBlockRe = regexp.MustCompile("(?s)```([a-zA-Z0-9+#._-]*)\n(.*?)```")
	newlineRunRe  = regexp.MustCompile(`\n{4,}`)
	codeBlockPH   = regexp.MustCompile(`\[Code block: \d+ lines of [^\]]+\]`)
)

// Placeholders lists every fixed placeholder the pipeline can emit, in the
// order the skip heuristic counts them.
var Placeholders = []string{
	"[Tool result filtered]",
	"[File contents filtered]",
	"[Search results filtered]",
	"[Command output filtered]",
	"[Base64 data filtered]",
	"[JSON data filtered]",
	"[Diff filtered]",
	"[Stack trace filtered]",
}

// Filter runs the pipeline stages in fixed order. Pure and deterministic;
// no stage re-expands an earlier stage's placeholder.
func Filter(raw string, opts Options) string {
	if opts.MaxCodeBlockLines <= 0 {
		opts.MaxCodeBlockLines = DefaultMaxCodeBlockLines
	}
	if opts.MaxLineLength <= 0 {
		opts.MaxLineLength = DefaultMaxLineLength
	}

	text := raw
	for _, r := range blockRules {
		text = r.re.ReplaceAllString(text, r.placeholder)
	}
	for _, r := range noiseRules {
		text = r.re.ReplaceAllString(text, r.placeholder)
	}
	text = summarizeCodeBlocks(text, opts.MaxCodeBlockLines)
	text = truncateLines(text, opts.MaxLineLength)
	text = newlineRunRe.ReplaceAllString(text, "\n\n\n")
	return text
}

// summarizeCodeBlocks replaces fenced code blocks longer than maxLines with
// a one-line summary. Shorter blocks pass through untouched.
func summarizeCodeBlocks(text string, maxLines int) string {
	return fencedBlockRe.ReplaceAllStringFunc(text, func(block string) string {
		m := fencedBlockRe.FindStringSubmatch(block)
		lang, body := m[1], m[2]
		lines := strings.Count(body, "\n")
		if !strings.HasSuffix(body, "\n") && body != "" {
			lines++
		}
		if lines <= maxLines {
			return block
		}
		if lang == "" {
			lang = "code"
		}
		return fmt.Sprintf("[Code block: %d lines of %s]", lines, lang)
	})
}

// truncateLines bounds any single line to maxLen, independent of overall
// transcript length.
func truncateLines(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	lines := strings.Split(text, "\n")
	changed := false
	for i, line := range lines {
		if len(line) > maxLen {
			lines[i] = line[:maxLen] + "... [truncated]"
			changed = true
		}
	}
	if !changed {
		return text
	}
	return strings.Join(lines, "\n")
}

// CountPlaceholders counts pipeline placeholders in filtered text,
// including code-block summaries. Linear in the text size.
func CountPlaceholders(text string) int {
	n := 0
	for _, p := range Placeholders {
		n += strings.Count(text, p)
	}
	n += len(codeBlockPH.FindAllStringIndex(text, -1))
	return n
}
