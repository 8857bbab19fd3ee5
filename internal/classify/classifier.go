package classify

import (
	"regexp"
	"strings"
)

// Label is a job-type classification
type Label string

const (
	Free     Label = "Free"
	Billable Label = "Billable"
	Unknown  Label = "Unknown"
)

// DefaultThreshold is the score a phrase must strictly exceed to be accepted
const DefaultThreshold = 90

// blankPhrase stands in for a job type with no usable text
const blankPhrase = "blank"

// maxPlainStatement caps a plain problem statement, in characters
const maxPlainStatement = 100

var (
	boldStatementPattern  = regexp.MustCompile(`(?is)PROBLEM STATEMENT(?:\s*\(Statement\))?:\s*<b>(.*?)</b>`)
	plainStatementPattern = regexp.MustCompile(`(?i)PROBLEM STATEMENT(?:\s*\(Statement\))?:\s*(.+)`)
	tagPattern            = regexp.MustCompile(`</?[^>]+>`)
	whitespacePattern     = regexp.MustCompile(`\s+`)
)

// Rule lists the phrases that identify one label
type Rule struct {
	Label   Label
	Phrases []string
}

// Result describes how a piece of notes text was classified
type Result struct {
	Label     Label
	Score     float64 // Best score seen across all rules
	Phrase    string  // Phrase that produced Score
	JobText   string  // Text the rules were matched against
	Ambiguous bool    // No phrase exceeded the threshold
}

// Classifier matches notes against an ordered rule set. It holds no
// per-task state and is safe to reuse across tasks.
type Classifier struct {
	rules     []compiledRule
	threshold float64
}

type compiledRule struct {
	label   Label
	phrases []string
}

// New builds a classifier. Phrases are normalized once up front; rule order
// decides ties.
func New(rules []Rule, threshold float64) *Classifier {
	c := &Classifier{threshold: threshold}
	for _, r := range rules {
		cr := compiledRule{label: r.Label}
		for _, p := range r.Phrases {
			if n := Normalize(p); n != "" {
				cr.phrases = append(cr.phrases, n)
			}
		}
		c.rules = append(c.rules, cr)
	}
	return c
}

// Extract pulls the job-type text out of raw task notes: the bold problem
// statement, then the plain one, then the whole notes body.
func Extract(notes string) string {
	if m := boldStatementPattern.FindStringSubmatch(notes); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := plainStatementPattern.FindStringSubmatch(notes); m != nil {
		text := tagPattern.ReplaceAllString(strings.TrimSpace(m[1]), "")
		if r := []rune(text); len(r) > maxPlainStatement {
			text = string(r[:maxPlainStatement])
		}
		return strings.TrimSpace(text)
	}
	text := tagPattern.ReplaceAllString(notes, " ")
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}

// Classify extracts the job type from notes and scores it
func (c *Classifier) Classify(notes string) Result {
	return c.ClassifyText(Extract(notes))
}

// ClassifyText scores already-extracted job-type text against every rule.
func (c *Classifier) ClassifyText(jobText string) Result {
	subject := Normalize(jobText)
	if subject == "" {
		subject = blankPhrase
	}

	res := Result{Label: Unknown, JobText: jobText}
	var bestLabel Label
	for _, rule := range c.rules {
		for _, phrase := range rule.phrases {
			score := PartialRatio(subject, phrase)
			// strict comparison keeps the earlier label on a tie
			if score > res.Score {
				res.Score = score
				res.Phrase = phrase
				bestLabel = rule.label
			}
		}
	}

	if res.Score > c.threshold {
		res.Label = bestLabel
	} else {
		res.Ambiguous = true
	}
	return res
}
