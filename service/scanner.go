package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/amramadan/legartis-coding-challenge/model"
)

// ScanResult is one detection verdict of a document against a clause type.
type ScanResult struct {
	ClauseTypeID uint
	Detected     bool
}

// matchPattern reports whether a single pattern matches the document text.
// Literal patterns use case-insensitive substring containment; regex
// patterns are matched case-insensitively anywhere in the text. Matching is
// uniform across all call sites: case folding only, no multiline mode.
// A pattern that is not a valid regular expression fails the match with an
// error rather than silently reporting false.
func matchPattern(text string, p *model.ClausePattern) (bool, error) {
	if p.IsRegex {
		re, err := regexp.Compile("(?i)" + p.Pattern)
		if err != nil {
			return false, fmt.Errorf("invalid regex pattern %q: %w", p.Pattern, err)
		}
		return re.MatchString(text), nil
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(p.Pattern)), nil
}

// ScanText scans document text against an ordered clause-type catalog and
// returns one result per clause type, in input order, none skipped. A clause
// type is detected if any of its patterns matches (short-circuit OR); one
// with no patterns is never detected. Pure function: the same text and
// catalog snapshot always yield identical results, and nothing is persisted
// here.
func ScanText(text string, clauseTypes []model.ClauseType) ([]ScanResult, error) {
	results := make([]ScanResult, 0, len(clauseTypes))
	for i := range clauseTypes {
		ct := &clauseTypes[i]

		detected := false
		for j := range ct.Patterns {
			ok, err := matchPattern(text, &ct.Patterns[j])
			if err != nil {
				return nil, fmt.Errorf("clause type %d (%s): %w", ct.ID, ct.Name, err)
			}
			if ok {
				detected = true
				break
			}
		}

		results = append(results, ScanResult{ClauseTypeID: ct.ID, Detected: detected})
	}
	return results, nil
}
