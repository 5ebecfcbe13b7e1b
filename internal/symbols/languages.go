package symbols

import (
	"regexp"
	"sort"
	"strings"
)

// Symbol kinds used as tag prefixes, e.g. "class:Foo".
const (
	KindClass      = "class"
	KindInterface  = "interface"
	KindEnum       = "enum"
	KindStruct     = "struct"
	KindRecord     = "record"
	KindMethod     = "method"
	KindFunction   = "function"
	KindNamespace  = "namespace"
	KindPackage    = "package"
	KindModule     = "module"
	KindType       = "type"
	KindTrait      = "trait"
	KindImpl       = "impl"
	KindVariable   = "variable"
	KindConstant   = "constant"
	KindIdentifier = "identifier"
)

// symbolPattern captures a declaration name. The name is submatch group, or
// the last non-empty submatch when group is 0; reject, when set, drops
// matches on the full submatch list.
type symbolPattern struct {
	kind   string
	re     *regexp.Regexp
	group  int
	reject func(m []string) bool
}

func (sp symbolPattern) name(m []string) string {
	if sp.group > 0 {
		return m[sp.group]
	}
	return lastGroup(m)
}

// blockPattern finds a grouped declaration block, e.g. Go's "const ( ... )",
// and tags every leading identifier of its body lines.
type blockPattern struct {
	kind string
	re   *regexp.Regexp
}

// languageRules defines the heuristics for one language.
type languageRules struct {
	patterns []symbolPattern
	blocks   []blockPattern
}

// controlWords are tokens that look like a return type or name in a method
// pattern but introduce statements or declarations instead.
var controlWords = map[string]bool{
	"if": true, "for": true, "foreach": true, "while": true, "switch": true,
	"catch": true, "return": true, "new": true, "else": true, "using": true,
	"lock": true, "class": true, "interface": true, "enum": true, "struct": true,
	"record": true, "throw": true, "await": true, "yield": true, "delegate": true,
	"event": true, "operator": true, "sizeof": true, "typeof": true,
}

func rejectControlWords(m []string) bool {
	for _, s := range m[1:] {
		if controlWords[s] {
			return true
		}
	}
	return false
}

func p(kind, expr string) symbolPattern {
	return symbolPattern{kind: kind, re: regexp.MustCompile(expr)}
}

func pr(kind, expr string, reject func([]string) bool) symbolPattern {
	return symbolPattern{kind: kind, re: regexp.MustCompile(expr), reject: reject}
}

// named takes the name from a fixed group, for patterns that also capture
// what follows the name.
func named(sp symbolPattern, group int) symbolPattern {
	sp.group = group
	return sp
}

const (
	csModifiers   = `(?:(?:public|private|protected|internal|static|abstract|sealed|partial|readonly|ref|unsafe|new|file)\s+)*`
	javaModifiers = `(?:(?:public|private|protected|static|final|abstract|sealed|non-sealed|strictfp)\s+)*`
	rustVis       = `(?:pub(?:\([^)]*\))?\s+)?`
)

var csharpRules = languageRules{
	patterns: []symbolPattern{
		p(KindNamespace, `(?m)^\s*namespace\s+([\w.]+)`),
		p(KindClass, `(?m)^\s*`+csModifiers+`class\s+(\w+)`),
		p(KindInterface, `(?m)^\s*`+csModifiers+`interface\s+(\w+)`),
		p(KindEnum, `(?m)^\s*`+csModifiers+`enum\s+(\w+)`),
		p(KindStruct, `(?m)^\s*`+csModifiers+`(?:record\s+)?struct\s+(\w+)`),
		p(KindRecord, `(?m)^\s*`+csModifiers+`record\s+(?:class\s+)?(\w+)`),
		pr(KindMethod, `(?m)^\s*(?:(?:public|private|protected|internal|static|virtual|override|abstract|async|sealed|extern|unsafe|new|partial)\s+)+([\w<>\[\],.?]+)\s+(\w+)\s*(?:<[^>]*>)?\s*\(`, rejectControlWords),
	},
}

var javaRules = languageRules{
	patterns: []symbolPattern{
		p(KindPackage, `(?m)^\s*package\s+([\w.]+)\s*;`),
		p(KindClass, `(?m)^\s*`+javaModifiers+`class\s+(\w+)`),
		p(KindInterface, `(?m)^\s*`+javaModifiers+`interface\s+(\w+)`),
		p(KindEnum, `(?m)^\s*`+javaModifiers+`enum\s+(\w+)`),
		p(KindRecord, `(?m)^\s*`+javaModifiers+`record\s+(\w+)`),
		pr(KindMethod, `(?m)^\s*(?:(?:public|private|protected|static|final|abstract|synchronized|native|default|strictfp)\s+)+(?:<[^>]+>\s+)?([\w<>\[\],.?]+)\s+(\w+)\s*\(`, rejectControlWords),
	},
}

var kotlinRules = languageRules{
	patterns: []symbolPattern{
		p(KindPackage, `(?m)^\s*package\s+([\w.]+)`),
		p(KindClass, `(?m)^\s*(?:(?:public|private|protected|internal|open|abstract|sealed|data|enum|inner|value|annotation)\s+)*class\s+(\w+)`),
		p(KindInterface, `(?m)^\s*(?:(?:public|private|protected|internal|sealed|fun)\s+)*interface\s+(\w+)`),
		p(KindClass, `(?m)^\s*(?:(?:public|private|protected|internal|data|companion)\s+)*object\s+(\w+)`),
		p(KindFunction, `(?m)^\s*(?:(?:public|private|protected|internal|open|override|suspend|inline|operator|infix|tailrec|abstract)\s+)*fun\s+(?:<[^>]+>\s+)?(?:[\w.]+\.)?(\w+)\s*\(`),
	},
}

var cRules = languageRules{
	patterns: []symbolPattern{
		pr(KindFunction, `(?m)^\s*(?:static\s+|inline\s+|extern\s+)*([\w*]+)\s+\**(\w+)\s*\([^;{]*\)\s*\{`, rejectControlWords),
		p(KindStruct, `(?m)\bstruct\s+(\w+)\s*\{`),
		p(KindEnum, `(?m)\benum\s+(\w+)\s*\{`),
		p(KindConstant, `(?m)^\s*#\s*define\s+(\w+)`),
		p(KindType, `(?m)^\s*typedef\s+[^;{]*?\b(\w+)\s*;`),
	},
}

var cppRules = languageRules{
	patterns: []symbolPattern{
		p(KindNamespace, `(?m)^\s*namespace\s+([\w:]+)`),
		p(KindClass, `(?m)^\s*(?:template\s*<[^>]*>\s*)?class\s+(\w+)\s*(?:final\s*)?[:{]`),
		p(KindStruct, `(?m)^\s*(?:template\s*<[^>]*>\s*)?struct\s+(\w+)\s*(?:final\s*)?[:{]`),
		p(KindEnum, `(?m)\benum\s+(?:class\s+|struct\s+)?(\w+)`),
		pr(KindFunction, `(?m)^\s*(?:static\s+|inline\s+|virtual\s+|constexpr\s+|extern\s+)*([\w:*&<>]+)\s+[*&]*([\w:~]+)\s*\([^;{]*\)\s*(?:const\s*)?(?:noexcept\s*)?(?:override\s*)?\{`, rejectControlWords),
		p(KindConstant, `(?m)^\s*#\s*define\s+(\w+)`),
	},
}

var javascriptRules = languageRules{
	patterns: []symbolPattern{
		p(KindFunction, `(?m)\bfunction\s*\*?\s*(\w+)\s*\(`),
		p(KindClass, `(?m)\bclass\s+(\w+)`),
		p(KindFunction, `(?m)\b(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s+)?(?:\([^)]*\)|\w+)\s*=>`),
		p(KindFunction, `(?m)\b(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s+)?function\b`),
	},
}

var typescriptRules = languageRules{
	patterns: append([]symbolPattern{
		p(KindInterface, `(?m)^\s*(?:export\s+)?(?:declare\s+)?interface\s+(\w+)`),
		p(KindType, `(?m)^\s*(?:export\s+)?(?:declare\s+)?type\s+(\w+)\s*(?:<[^>]*>)?\s*=`),
		p(KindEnum, `(?m)^\s*(?:export\s+)?(?:declare\s+)?(?:const\s+)?enum\s+(\w+)`),
		p(KindFunction, `(?m)\b(?:const|let|var)\s+(\w+)\s*(?::\s*[^=]+)?=\s*(?:async\s+)?\([^)]*\)\s*(?::\s*[^=]+)?=>`),
		p(KindNamespace, `(?m)^\s*(?:export\s+)?(?:declare\s+)?namespace\s+([\w.]+)`),
	}, javascriptRules.patterns...),
}

var pythonRules = languageRules{
	patterns: []symbolPattern{
		p(KindFunction, `(?m)^\s*(?:async\s+)?def\s+(\w+)`),
		p(KindClass, `(?m)^\s*class\s+(\w+)`),
		p(KindFunction, `(?m)^(\w+)\s*=\s*lambda\b`),
	},
}

var rubyRules = languageRules{
	patterns: []symbolPattern{
		p(KindMethod, `(?m)^\s*def\s+(?:self\.)?(\w+[?!=]?)`),
		p(KindClass, `(?m)^\s*class\s+([A-Z]\w*(?:::[A-Z]\w*)*)`),
		p(KindModule, `(?m)^\s*module\s+([A-Z]\w*(?:::[A-Z]\w*)*)`),
		p(KindFunction, `(?m)\b(?:define_method|lambda)\s*\(?\s*:(\w+)`),
	},
}

var goRules = languageRules{
	patterns: []symbolPattern{
		p(KindPackage, `(?m)^package\s+(\w+)`),
		p(KindFunction, `(?m)^func\s+(\w+)\s*[\[(]`),
		p(KindMethod, `(?m)^func\s*\([^)]*\)\s*(\w+)\s*[\[(]`),
		p(KindStruct, `(?m)^\s*type\s+(\w+)(?:\[[^\]]*\])?\s+struct\b`),
		p(KindInterface, `(?m)^\s*type\s+(\w+)(?:\[[^\]]*\])?\s+interface\b`),
		named(pr(KindType, `(?m)^\s*type\s+(\w+)(?:\[[^\]]*\])?\s+(?:=\s*)?(\*?[\w.\[\]]+)`, func(m []string) bool {
			return m[2] == "struct" || m[2] == "interface"
		}), 1),
		p(KindVariable, `(?m)^var\s+(\w+)`),
		p(KindConstant, `(?m)^const\s+(\w+)`),
	},
	blocks: []blockPattern{
		{kind: KindVariable, re: regexp.MustCompile(`(?ms)^var\s*\((.*?)^\)`)},
		{kind: KindConstant, re: regexp.MustCompile(`(?ms)^const\s*\((.*?)^\)`)},
		{kind: KindType, re: regexp.MustCompile(`(?ms)^type\s*\((.*?)^\)`)},
	},
}

var rustRules = languageRules{
	patterns: []symbolPattern{
		p(KindFunction, `(?m)^\s*`+rustVis+`(?:(?:const|async|unsafe|extern\s+"[^"]*")\s+)*fn\s+(\w+)`),
		p(KindStruct, `(?m)^\s*`+rustVis+`struct\s+(\w+)`),
		p(KindEnum, `(?m)^\s*`+rustVis+`enum\s+(\w+)`),
		p(KindTrait, `(?m)^\s*`+rustVis+`(?:unsafe\s+)?trait\s+(\w+)`),
		p(KindType, `(?m)^\s*`+rustVis+`type\s+(\w+)`),
		p(KindModule, `(?m)^\s*`+rustVis+`mod\s+(\w+)`),
		p(KindImpl, `(?m)^\s*(?:unsafe\s+)?impl(?:<[^>]*>)?\s+(?:[\w:]+(?:<[^>]*>)?\s+for\s+)?([\w:]+)`),
		p(KindConstant, `(?m)^\s*`+rustVis+`(?:const|static)\s+(?:mut\s+)?(\w+)\s*:`),
	},
}

// rules maps canonical language tags to their heuristics.
var rules = map[string]languageRules{
	"csharp":     csharpRules,
	"java":       javaRules,
	"kotlin":     kotlinRules,
	"c":          cRules,
	"cpp":        cppRules,
	"javascript": javascriptRules,
	"typescript": typescriptRules,
	"python":     pythonRules,
	"ruby":       rubyRules,
	"go":         goRules,
	"rust":       rustRules,
}

// aliases maps extension style tags to canonical language tags.
var aliases = map[string]string{
	"cs":     "csharp",
	"c#":     "csharp",
	"kt":     "kotlin",
	"kts":    "kotlin",
	"h":      "c",
	"hpp":    "cpp",
	"cc":     "cpp",
	"cxx":    "cpp",
	"c++":    "cpp",
	"js":     "javascript",
	"jsx":    "javascript",
	"mjs":    "javascript",
	"cjs":    "javascript",
	"ts":     "typescript",
	"tsx":    "typescript",
	"py":     "python",
	"rb":     "ruby",
	"golang": "go",
	"rs":     "rust",
}

// canonicalLanguage normalises a tag or extension to a key of rules.
func canonicalLanguage(tag string) string {
	tag = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "."))
	if canonical, ok := aliases[tag]; ok {
		return canonical
	}
	return tag
}

// IsLanguageSupported reports whether tag has dedicated extraction rules.
func IsLanguageSupported(tag string) bool {
	_, ok := rules[canonicalLanguage(tag)]
	return ok
}

// SupportedLanguages returns the canonical tags with dedicated rules, sorted.
func SupportedLanguages() []string {
	langs := make([]string, 0, len(rules))
	for lang := range rules {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}
