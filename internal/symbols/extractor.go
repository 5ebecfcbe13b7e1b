// Package symbols extracts named declarations from source text.
//
// Extraction is heuristic: each supported language has a fixed set of
// regular expressions for common declaration idioms. Unusual formatting may be
// missed. Unknown languages fall back to frequent identifiers.
package symbols

import (
	"context"
	"regexp"
	"strings"
)

const (
	// DefaultMinFrequency is the number of occurrences an identifier needs in
	// generic extraction.
	DefaultMinFrequency = 3

	// minIdentifierLength drops short tokens such as loop variables.
	minIdentifierLength = 3

	// maxSymbolLength drops matches that cannot be real identifiers.
	maxSymbolLength = 100

	// chunkLines is the number of lines scanned between cancellation checks.
	chunkLines = 2048
)

var (
	identifierPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
	blockLinePattern  = regexp.MustCompile(`(?m)^(?:\t| {4})([A-Za-z_]\w*)\b`)
)

// commonWords are keywords and fillers excluded from generic extraction.
var commonWords = map[string]bool{
	"the": true, "and": true, "for": true, "not": true, "you": true, "are": true,
	"with": true, "this": true, "that": true, "from": true, "return": true,
	"true": true, "false": true, "null": true, "nil": true, "none": true,
	"else": true, "then": true, "end": true, "function": true, "var": true,
	"let": true, "const": true, "def": true, "class": true, "import": true,
	"export": true, "public": true, "private": true, "static": true,
	"void": true, "int": true, "string": true, "new": true, "while": true,
	"if": true, "in": true, "is": true, "of": true, "to": true, "or": true,
	"but": true, "use": true, "using": true, "self": true, "include": true,
	"define": true, "echo": true, "fi": true, "done": true, "do": true,
	"set": true, "get": true, "type": true, "http": true, "https": true, "www": true,
}

// Extractor produces tagged symbols ("kind:Name") for a piece of source text.
type Extractor interface {
	Extract(ctx context.Context, content, language string) ([]string, error)
}

// RegexExtractor is the heuristic Extractor.
type RegexExtractor struct {
	minFrequency int
}

// NewRegexExtractor creates an extractor. A non-positive minFrequency uses
// DefaultMinFrequency.
func NewRegexExtractor(minFrequency int) *RegexExtractor {
	if minFrequency <= 0 {
		minFrequency = DefaultMinFrequency
	}
	return &RegexExtractor{minFrequency: minFrequency}
}

var defaultExtractor = NewRegexExtractor(DefaultMinFrequency)

// ExtractSymbols runs the default extractor.
func ExtractSymbols(ctx context.Context, content, language string) ([]string, error) {
	return defaultExtractor.Extract(ctx, content, language)
}

// Extract returns the sorted, unique symbols found in content. Empty content
// yields an empty list. On cancellation the context error is returned and no
// symbols.
func (e *RegexExtractor) Extract(ctx context.Context, content, language string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return []string{}, nil
	}

	lang, ok := rules[canonicalLanguage(language)]
	if !ok {
		return e.extractGeneric(ctx, content)
	}

	found := newSymbolSet()
	for _, chunk := range splitLineChunks(content, chunkLines) {
		for _, pattern := range lang.patterns {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			for _, m := range pattern.re.FindAllStringSubmatch(chunk, -1) {
				if pattern.reject != nil && pattern.reject(m) {
					continue
				}
				found.add(pattern.kind, pattern.name(m))
			}
		}
	}

	for _, block := range lang.blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, m := range block.re.FindAllStringSubmatch(content, -1) {
			for _, line := range blockLinePattern.FindAllStringSubmatch(m[1], -1) {
				found.add(block.kind, line[1])
			}
		}
	}

	return found.sorted(), nil
}

// extractGeneric keeps identifiers that occur at least minFrequency times.
func (e *RegexExtractor) extractGeneric(ctx context.Context, content string) ([]string, error) {
	counts := make(map[string]int)
	for _, chunk := range splitLineChunks(content, chunkLines) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, token := range identifierPattern.FindAllString(chunk, -1) {
			if len(token) < minIdentifierLength || commonWords[strings.ToLower(token)] {
				continue
			}
			counts[token]++
		}
	}

	found := newSymbolSet()
	for token, n := range counts {
		if n >= e.minFrequency {
			found.add(KindIdentifier, token)
		}
	}
	return found.sorted(), nil
}

// lastGroup returns the last non-empty submatch, which holds the name.
func lastGroup(m []string) string {
	for i := len(m) - 1; i > 0; i-- {
		if m[i] != "" {
			return m[i]
		}
	}
	return ""
}

// splitLineChunks splits s into pieces of at most n lines without breaking a line.
func splitLineChunks(s string, n int) []string {
	var chunks []string
	for len(s) > 0 {
		end, lines := 0, 0
		for end < len(s) && lines < n {
			i := strings.IndexByte(s[end:], '\n')
			if i < 0 {
				end = len(s)
				break
			}
			end += i + 1
			lines++
		}
		chunks = append(chunks, s[:end])
		s = s[end:]
	}
	return chunks
}
