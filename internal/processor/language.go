package processor

import (
	"path"
	"sort"
	"strings"
)

// LanguageText is the language of files with an unknown extension.
const LanguageText = "text"

var extensionLanguages = map[string]string{
	".cs":    "csharp",
	".java":  "java",
	".kt":    "kotlin",
	".kts":   "kotlin",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".cxx":   "cpp",
	".hpp":   "cpp",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".cjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".py":    "python",
	".rb":    "ruby",
	".go":    "go",
	".rs":    "rust",
	".php":   "php",
	".swift": "swift",
	".scala": "scala",
	".sh":    "shell",
	".bash":  "shell",
	".ps1":   "powershell",
	".sql":   "sql",
	".md":    "markdown",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".xml":   "xml",
	".html":  "html",
	".css":   "css",
	".toml":  "toml",
	".proto": "protobuf",
	".txt":   LanguageText,
}

// DetectLanguage maps a file path to a language tag by extension. It never
// fails: unknown extensions map to LanguageText.
func DetectLanguage(filePath string) string {
	if lang, ok := extensionLanguages[FileExtension(filePath)]; ok {
		return lang
	}
	return LanguageText
}

// FileExtension returns the lower-cased extension of filePath including the
// leading dot, or "" when there is none.
func FileExtension(filePath string) string {
	return strings.ToLower(path.Ext(filePathBase(filePath)))
}

// NormalizeExtension lower-cases ext and adds the leading dot.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}

// KnownExtensions returns every extension in the language table, sorted.
func KnownExtensions() []string {
	exts := make([]string, 0, len(extensionLanguages))
	for ext := range extensionLanguages {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func filePathBase(filePath string) string {
	return path.Base(strings.ReplaceAll(filePath, "\\", "/"))
}
