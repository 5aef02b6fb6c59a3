package preferences

import (
	"sort"
	"strings"
	"unicode"

	"github.com/ent0n29/speakbot/internal/store"
)

// DefaultLanguage is used until a user picks an accent or language.
var DefaultLanguage = store.LanguageProfile{
	RecognitionLocale: "en-US",
	SynthesisLocale:   "en-US",
	SynthesisVoice:    "en-US-JennyNeural",
}

func profile(locale, voice string) store.LanguageProfile {
	return store.LanguageProfile{RecognitionLocale: locale, SynthesisLocale: locale, SynthesisVoice: voice}
}

var languageTable = map[string]store.LanguageProfile{
	"english":          DefaultLanguage,
	"英语":               DefaultLanguage,
	"us female":        DefaultLanguage,
	"美国女性":             DefaultLanguage,
	"us male":          profile("en-US", "en-US-GuyNeural"),
	"美国男性":             profile("en-US", "en-US-GuyNeural"),
	"uk female":        profile("en-GB", "en-GB-SoniaNeural"),
	"英国女性":             profile("en-GB", "en-GB-SoniaNeural"),
	"uk male":          profile("en-GB", "en-GB-RyanNeural"),
	"英国男性":             profile("en-GB", "en-GB-RyanNeural"),
	"india female":     profile("en-IN", "en-IN-NeerjaNeural"),
	"印度女性":             profile("en-IN", "en-IN-NeerjaNeural"),
	"india male":       profile("en-IN", "en-IN-PrabhatNeural"),
	"印度男性":             profile("en-IN", "en-IN-PrabhatNeural"),
	"singapore female": profile("en-SG", "en-SG-LunaNeural"),
	"新加坡女性":            profile("en-SG", "en-SG-LunaNeural"),
	"singapore male":   profile("en-SG", "en-SG-WayneNeural"),
	"新加坡男性":            profile("en-SG", "en-SG-WayneNeural"),
	"german":           profile("de-DE", "de-DE-KatjaNeural"),
	"德语":               profile("de-DE", "de-DE-KatjaNeural"),
	"spanish":          profile("es-ES", "es-ES-ElviraNeural"),
	"西班牙语":             profile("es-ES", "es-ES-ElviraNeural"),
	"french":           profile("fr-FR", "fr-FR-DeniseNeural"),
	"法语":               profile("fr-FR", "fr-FR-DeniseNeural"),
	"japanese":         profile("ja-JP", "ja-JP-NanamiNeural"),
	"日语":               profile("ja-JP", "ja-JP-NanamiNeural"),
	"korean":           profile("ko-KR", "ko-KR-SunHiNeural"),
	"韩语":               profile("ko-KR", "ko-KR-SunHiNeural"),
	"chinese":          profile("zh-CN", "zh-CN-XiaoxiaoNeural"),
	"中文":               profile("zh-CN", "zh-CN-XiaoxiaoNeural"),
}

// LookupLanguage resolves a language or accent name, ignoring case and
// surrounding space.
func LookupLanguage(name string) (store.LanguageProfile, bool) {
	p, ok := languageTable[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// LanguageNames lists the Latin-script names accepted by SetLanguage.
func LanguageNames() []string {
	names := make([]string, 0, len(languageTable)/2)
	for name := range languageTable {
		if isLatin(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func isLatin(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
