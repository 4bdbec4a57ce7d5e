package stoplist

import (
	"sort"
	"strings"
)

// Manager holds stop words per language plus a language-neutral set that
// applies everywhere (configured extras, feed boilerplate, etc.).
type Manager struct {
	common map[string]struct{}
	langs  map[string]map[string]struct{}
}

// NewManager creates a manager preloaded with the built-in language lists and
// the given language-neutral extras.
func NewManager(extra []string) *Manager {
	m := &Manager{
		common: make(map[string]struct{}, len(extra)),
		langs:  make(map[string]map[string]struct{}, len(builtin)),
	}
	for lang, words := range builtin {
		set := make(map[string]struct{}, len(words))
		for _, w := range words {
			set[w] = struct{}{}
		}
		m.langs[lang] = set
	}
	for _, w := range extra {
		m.Add(w)
	}
	return m
}

// IsStop reports whether token is a stop word in any known language.
func (m *Manager) IsStop(token string) bool {
	token = strings.ToLower(token)
	if _, ok := m.common[token]; ok {
		return true
	}
	for _, set := range m.langs {
		if _, ok := set[token]; ok {
			return true
		}
	}
	return false
}

// IsStopIn reports whether token is a stop word for lang. Unknown languages
// fall back to IsStop.
func (m *Manager) IsStopIn(lang, token string) bool {
	set, ok := m.langs[lang]
	if !ok {
		return m.IsStop(token)
	}
	token = strings.ToLower(token)
	if _, ok := m.common[token]; ok {
		return true
	}
	_, ok = set[token]
	return ok
}

// Add adds a language-neutral stop word.
func (m *Manager) Add(token string) {
	token = strings.ToLower(strings.TrimSpace(token))
	if token == "" {
		return
	}
	m.common[token] = struct{}{}
}

// Remove drops a token from every list.
func (m *Manager) Remove(token string) {
	token = strings.ToLower(token)
	delete(m.common, token)
	for _, set := range m.langs {
		delete(set, token)
	}
}

// All returns every stop word, sorted.
func (m *Manager) All() []string {
	seen := make(map[string]struct{}, len(m.common))
	for w := range m.common {
		seen[w] = struct{}{}
	}
	for _, set := range m.langs {
		for w := range set {
			seen[w] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for w := range seen {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// Languages returns the language codes with a built-in list, sorted.
func (m *Manager) Languages() []string {
	out := make([]string, 0, len(m.langs))
	for lang := range m.langs {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// Vote returns the language whose stop words cover the largest share of
// tokens, and that share. Ties resolve to the lexicographically smaller code
// so the answer is stable.
func (m *Manager) Vote(tokens []string) (string, float64) {
	if len(tokens) == 0 {
		return "", 0
	}
	best, bestShare := "", 0.0
	for _, lang := range m.Languages() {
		set := m.langs[lang]
		hits := 0
		for _, tok := range tokens {
			if _, ok := set[strings.ToLower(tok)]; ok {
				hits++
			}
		}
		share := float64(hits) / float64(len(tokens))
		if share > bestShare {
			best, bestShare = lang, share
		}
	}
	return best, bestShare
}

var builtin = map[string][]string{
	"en": {
		"a", "about", "after", "all", "also", "an", "and", "any", "are", "as", "at", "be", "been",
		"before", "being", "but", "by", "can", "could", "did", "do", "does", "for", "from", "had",
		"has", "have", "he", "her", "his", "how", "i", "if", "in", "into", "is", "it", "its", "just",
		"more", "most", "new", "no", "not", "of", "on", "one", "or", "other", "our", "out", "over",
		"said", "says", "she", "so", "some", "than", "that", "the", "their", "them", "then", "there",
		"these", "they", "this", "those", "to", "up", "was", "we", "were", "what", "when", "where",
		"which", "while", "who", "will", "with", "would", "you", "your",
	},
	"de": {
		"aber", "als", "am", "an", "auch", "auf", "aus", "bei", "bis", "das", "dass", "dem", "den",
		"der", "des", "die", "durch", "ein", "eine", "einem", "einen", "einer", "es", "für", "gegen",
		"hat", "hatte", "ich", "im", "in", "ist", "mit", "nach", "nicht", "noch", "nur", "oder",
		"sein", "sich", "sie", "sind", "so", "um", "und", "uns", "unter", "vom", "von", "vor", "war",
		"was", "wenn", "werden", "wie", "wird", "wir", "zu", "zum", "zur",
	},
	"ru": {
		"а", "без", "бы", "был", "была", "были", "было", "в", "во", "вот", "все", "всё", "для", "до",
		"его", "ее", "её", "если", "есть", "же", "за", "и", "из", "или", "им", "их", "к", "как", "ко",
		"когда", "ли", "мы", "на", "над", "не", "него", "нет", "но", "о", "об", "он", "она", "они",
		"от", "по", "под", "после", "при", "с", "со", "так", "также", "то", "того", "только", "у",
		"уже", "что", "это", "этот", "я",
	},
	"uk": {
		"а", "але", "без", "був", "була", "були", "було", "в", "від", "він", "вона", "вони", "все",
		"для", "до", "є", "з", "за", "и", "і", "із", "їх", "й", "як", "який", "яка", "які", "на",
		"над", "не", "ні", "о", "от", "по", "після", "при", "про", "та", "також", "те", "ти", "то",
		"у", "це", "цей", "що", "щоб", "я",
	},
	"fr": {
		"au", "aux", "avec", "ce", "ces", "dans", "de", "des", "du", "elle", "en", "est", "et", "il",
		"ils", "je", "la", "le", "les", "leur", "lui", "mais", "ne", "nous", "on", "ont", "ou", "par",
		"pas", "pour", "qu", "que", "qui", "sa", "se", "ses", "son", "sont", "sur", "un", "une",
		"vous",
	},
	"es": {
		"al", "como", "con", "de", "del", "el", "en", "es", "esta", "este", "fue", "ha", "la", "las",
		"lo", "los", "más", "mas", "no", "o", "para", "pero", "por", "que", "se", "sin", "sobre",
		"su", "sus", "un", "una", "y",
	},
	"it": {
		"al", "alla", "che", "con", "da", "dal", "dei", "del", "della", "di", "e", "gli", "il", "in",
		"la", "le", "nel", "nella", "non", "per", "più", "si", "sono", "su", "tra", "un", "una",
	},
	"pt": {
		"ao", "as", "com", "da", "das", "de", "do", "dos", "em", "era", "foi", "mais", "mas", "na",
		"no", "nos", "os", "para", "pela", "pelo", "por", "que", "se", "sem", "um", "uma",
	},
}
