// Package language names the language codes the recognition backends
// accept, for display in the configuration wizard.
package language

// Language pairs a backend language code with its display names.
type Language struct {
	Code       string // e.g. "en", "zh", "yue"
	Name       string // English name
	NativeName string // Native name
}

// Auto represents auto-detection - used when no language is pinned.
var Auto = Language{Code: "", Name: "Auto-detect", NativeName: ""}

// languages is the master list across both backends.
var languages = []Language{
	{Code: "ar", Name: "Arabic", NativeName: "العربية"},
	{Code: "zh", Name: "Chinese", NativeName: "中文"},
	{Code: "yue", Name: "Cantonese", NativeName: "粵語"},
	{Code: "cs", Name: "Czech", NativeName: "Čeština"},
	{Code: "da", Name: "Danish", NativeName: "Dansk"},
	{Code: "en", Name: "English", NativeName: "English"},
	{Code: "fil", Name: "Filipino", NativeName: "Filipino"},
	{Code: "fi", Name: "Finnish", NativeName: "Suomi"},
	{Code: "fr", Name: "French", NativeName: "Français"},
	{Code: "de", Name: "German", NativeName: "Deutsch"},
	{Code: "hi", Name: "Hindi", NativeName: "हिन्दी"},
	{Code: "is", Name: "Icelandic", NativeName: "Íslenska"},
	{Code: "id", Name: "Indonesian", NativeName: "Bahasa Indonesia"},
	{Code: "it", Name: "Italian", NativeName: "Italiano"},
	{Code: "ja", Name: "Japanese", NativeName: "日本語"},
	{Code: "ko", Name: "Korean", NativeName: "한국어"},
	{Code: "ms", Name: "Malay", NativeName: "Bahasa Melayu"},
	{Code: "no", Name: "Norwegian", NativeName: "Norsk"},
	{Code: "pl", Name: "Polish", NativeName: "Polski"},
	{Code: "pt", Name: "Portuguese", NativeName: "Português"},
	{Code: "ru", Name: "Russian", NativeName: "Русский"},
	{Code: "es", Name: "Spanish", NativeName: "Español"},
	{Code: "sv", Name: "Swedish", NativeName: "Svenska"},
	{Code: "th", Name: "Thai", NativeName: "ไทย"},
	{Code: "tr", Name: "Turkish", NativeName: "Türkçe"},
	{Code: "uk", Name: "Ukrainian", NativeName: "Українська"},
	{Code: "vi", Name: "Vietnamese", NativeName: "Tiếng Việt"},
}

// codeIndex maps language codes to their Language structs for fast lookup
var codeIndex map[string]Language

func init() {
	codeIndex = make(map[string]Language, len(languages)+1)
	codeIndex[""] = Auto
	for _, lang := range languages {
		codeIndex[lang.Code] = lang
	}
}

// FromCode returns the Language for the given code.
// Returns Auto if code is not found.
func FromCode(code string) Language {
	if lang, ok := codeIndex[code]; ok {
		return lang
	}
	return Auto
}

// Display renders a code as "code - Name (NativeName)" for menus. Unknown
// codes come back unchanged.
func Display(code string) string {
	lang, ok := codeIndex[code]
	if !ok || code == "" {
		return code
	}
	label := lang.Code + " - " + lang.Name
	if lang.NativeName != "" && lang.NativeName != lang.Name {
		label += " (" + lang.NativeName + ")"
	}
	return label
}

// IsValidCode returns true if the code is recognized (including empty for auto)
func IsValidCode(code string) bool {
	_, ok := codeIndex[code]
	return ok
}
