// Package normalize canonicalizes raw entity names into stable identity keys
// and classifies whether a name denotes a human individual.
package normalize

import (
	"sort"
	"strings"
	"unicode"
)

// corporateSuffixes is ordered longest first so "incorporated" wins over "inc".
var corporateSuffixes = func() []string {
	s := []string{
		"inc", "incorporated", "corp", "corporation", "llc", "ltd",
		"limited", "co", "company", "gmbh", "sarl", "sa", "plc",
	}
	sort.SliceStable(s, func(i, j int) bool { return len(s[i]) > len(s[j]) })
	return s
}()

var nonPersonKeywords = map[string]struct{}{
	"accounts payable": {}, "payable": {}, "receivable": {}, "billing": {},
	"department": {}, "dept": {}, "manager": {}, "director": {}, "officer": {},
	"support": {}, "help": {}, "desk": {}, "service": {}, "customer": {},
	"team": {}, "group": {}, "committee": {}, "board": {}, "council": {},
	"agency": {}, "irs": {}, "tax": {}, "government": {}, "city": {},
	"state": {}, "county": {}, "unknown": {}, "n/a": {}, "none": {},
}

// Name returns the identity key for a raw entity name. An empty result means
// the name carries no identity and no node may be created for it.
func Name(name string) string {
	s := strings.TrimSpace(strings.ToLower(name))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	words := strings.Fields(b.String())
	if len(words) == 0 {
		return ""
	}

	last := words[len(words)-1]
	for _, suffix := range corporateSuffixes {
		if last == suffix {
			words = words[:len(words)-1]
			break
		}
	}
	return strings.Join(words, " ")
}

// IsLikelyPerson reports whether name looks like an individual rather than a
// role, department or generic party.
func IsLikelyPerson(name string) bool {
	s := strings.TrimSpace(strings.ToLower(name))
	if s == "" {
		return false
	}
	if strings.HasPrefix(s, "the ") {
		return false
	}
	if _, ok := nonPersonKeywords[s]; ok {
		return false
	}
	for _, word := range strings.Fields(s) {
		if _, ok := nonPersonKeywords[word]; ok {
			return false
		}
	}
	return true
}

// NodeID builds the id of an entity node: owner, type and the normalized
// name with spaces removed. It returns "" when the name normalizes to nothing.
func NodeID(owner, entityType, name string) string {
	key := Name(name)
	if key == "" {
		return ""
	}
	return owner + ":" + entityType + ":" + strings.ReplaceAll(key, " ", "")
}

// Relation upper-snake-cases a relation verb. Blank input yields RELATED_TO.
func Relation(relation string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToUpper(strings.TrimSpace(relation)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		return "RELATED_TO"
	}
	return b.String()
}
