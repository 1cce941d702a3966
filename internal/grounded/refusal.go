package grounded

import (
	"strings"
	"unicode"
)

// maxRefusalWords bounds how long a lead-in refusal may be. Longer outputs
// that start with a hedge usually go on to answer.
const maxRefusalWords = 30

// refusalLeadIns are normalized openings models use instead of the exact
// refusal phrase.
var refusalLeadIns = []string{
	"i dont know",
	"i do not know",
	"i dont have enough information",
	"i do not have enough information",
	"i dont have information",
	"i do not have information",
	"i dont have any information",
	"i do not have any information",
	"i cannot answer",
	"i cant answer",
	"i am unable to answer",
	"im unable to answer",
	"i am not able to answer",
	"im not able to answer",
	"i am not sure",
	"im not sure",
	"i dont have that",
	"i do not have that",
	"i dont have details",
	"i do not have details",
	"i could not find",
	"i couldnt find",
	"i cannot find",
	"i cant find",
	"i am unable to find",
	"im unable to find",
	"i am not able to find",
	"im not able to find",
	"i cannot help",
	"i cant help",
	"i am unable to help",
	"im unable to help",
	"i dont see",
	"i do not see",
	"the context does not",
	"the context doesnt",
	"the provided context does not",
	"the provided context doesnt",
	"the given context does not",
	"the given context doesnt",
	"the documents do not",
	"the documents dont",
	"the provided documents do not",
	"the provided documents dont",
	"the passages do not",
	"the passages dont",
	"the provided information does not",
	"the provided information doesnt",
	"there is no information",
	"theres no information",
	"no information is available",
	"that information is not available",
	"that information isnt available",
	"this information is not available",
	"this information isnt available",
	"the information is not available",
	"the information isnt available",
}

// apologies are stripped from the front of an answer before matching, as
// many times as they repeat ("sorry, unfortunately ...").
var apologies = []string{"i am sorry", "im sorry", "i am afraid", "im afraid", "sorry", "unfortunately"}

var normalizedRefusal = normalize(Refusal)

// IsRefusal reports whether a model answer declines to answer: either the
// fixed refusal phrase up to case, quotes, punctuation and spacing, or a
// short answer opening with a known refusal lead-in. An answer that cites a
// passage marker is never a lead-in refusal.
func IsRefusal(text string) bool {
	n := normalize(text)
	if n == "" || n == normalizedRefusal {
		return true
	}
	if len(strings.Fields(n)) > maxRefusalWords || markerRef.MatchString(text) {
		return false
	}
	n = stripApologies(n)
	if n == normalizedRefusal {
		return true
	}
	for _, lead := range refusalLeadIns {
		if n == lead || strings.HasPrefix(n, lead+" ") {
			return true
		}
	}
	return false
}

func stripApologies(n string) string {
	for stripped := true; stripped; {
		stripped = false
		for _, a := range apologies {
			if rest, ok := strings.CutPrefix(n, a+" "); ok {
				n, stripped = rest, true
				break
			}
		}
	}
	return n
}

// normalize lowercases s, folds curly quotes, drops punctuation and collapses
// whitespace.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("‘", "'", "’", "'", "“", `"`, "”", `"`).Replace(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			return -1
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
