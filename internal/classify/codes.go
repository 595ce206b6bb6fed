package classify

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/joseph-ayodele/ocr-watcher/constants"
)

// Code is a reference identifier found in OCR text. After Autocorrect it renders
// as PREFIX-DD-DDDD.
type Code string

// MaxJoinedLength leaves room for ".pdf" inside the filename budget.
const MaxJoinedLength = constants.MaxFilenameLength - len(".pdf")

var candidateRE = regexp.MustCompile(`(?i)(?:P0|PO|SPO|RNWS|SGR|SSR) ?\d?-?\d{1,2}-\d{1,4}`)

// Numeric groups also accept the letters OCR confuses with digits; they are
// mapped back by digitFixer.
var canonicalRE = regexp.MustCompile(`^([A-Z]+)-?([0-9OISBZG]{1,2})-?([0-9OISBZG]{1,4})`)

// Known OCR misreads of a prefix. Checked in order, first match wins; keep is
// the number of leading bytes replaced.
var prefixFixes = []struct {
	from, to string
	keep     int
}{
	{"P0-", "PO", 2},
	{"PQ-", "PO", 2},
	{"RNW-", "RNWS", 3},
	{"5P0-", "SPO", 3},
	{"56R-", "SGR", 3},
}

var digitFixer = strings.NewReplacer("O", "0", "I", "1", "S", "5", "B", "8", "Z", "2", "G", "6")

// The middle group of these prefixes always starts with 2.
var lockedPrefixes = map[string]struct{}{
	"PO": {}, "SPO": {}, "RNWS": {}, "SGR": {}, "SSR": {},
}

// FindCandidates returns every raw code-like match in text, uppercased, in order
// of appearance.
func FindCandidates(text string) []string {
	matches := candidateRE.FindAllString(text, -1)
	for i, m := range matches {
		matches[i] = strings.ToUpper(m)
	}
	return matches
}

// Autocorrect normalizes one candidate. Input that cannot be parsed after the
// prefix fixes is returned unchanged (minus whitespace).
func Autocorrect(candidate string) string {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, candidate)

	for _, fix := range prefixFixes {
		if strings.HasPrefix(s, fix.from) {
			s = fix.to + s[fix.keep:]
			break
		}
	}

	m := canonicalRE.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	prefix := m[1]
	mid := digitFixer.Replace(zeroPad(m[2], 2))
	tail := digitFixer.Replace(zeroPad(m[3], 4))

	if _, ok := lockedPrefixes[prefix]; ok {
		mid = "2" + mid[1:]
	}
	return prefix + "-" + mid + "-" + tail
}

// Extract finds, normalizes, deduplicates and sorts the codes in text.
func Extract(text string) []Code {
	set := map[Code]struct{}{}
	for _, c := range FindCandidates(text) {
		set[Code(Autocorrect(c))] = struct{}{}
	}
	codes := make([]Code, 0, len(set))
	for c := range set {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// JoinCodes joins codes with "_" and truncates the result to MaxJoinedLength.
func JoinCodes(codes []Code) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = string(c)
	}
	joined := strings.Join(parts, "_")
	if len(joined) > MaxJoinedLength {
		joined = joined[:MaxJoinedLength]
	}
	return joined
}

// TargetName is the filename a classified document is stored under: the joined
// codes plus ".pdf", or the original basename when nothing matched.
func TargetName(codes []Code, originalBase string) string {
	if len(codes) == 0 {
		return originalBase
	}
	return JoinCodes(codes) + ".pdf"
}

func zeroPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
