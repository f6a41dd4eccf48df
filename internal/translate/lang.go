package translate

import "strings"

// langNames maps language codes to the English names used in prompts.
// Unknown codes pass through unchanged.
var langNames = map[string]string{
	"JA": "Japanese",
	"EN": "English",
	"ZH": "Chinese",
	"KO": "Korean",
	"FR": "French",
	"DE": "German",
	"ES": "Spanish",
	"IT": "Italian",
	"PT": "Portuguese",
	"RU": "Russian",
	"VI": "Vietnamese",
	"TH": "Thai",
	"ID": "Indonesian",
}

// LangName returns the prompt-facing name for a language code.
func LangName(code string) string {
	if name, ok := langNames[strings.ToUpper(code)]; ok {
		return name
	}
	return code
}
