package pattern

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"ctgov-compliance-be/pkg/extract"
	"ctgov-compliance-be/pkg/filter"
	"ctgov-compliance-be/pkg/refdata"
	"ctgov-compliance-be/pkg/schema"
)

// Fixed windows for the fuzzy relative phrases.
const (
	dueSoonDays          = 30
	recentCompletionDays = 30
)

const genericReprompt = "I couldn't identify any trial filters in that. " +
	"Try an organization, an NCT number, a compliance status, or a date range " +
	"(e.g. \"overdue trials for Acme\" or \"completed in the last 30 days\")."

// Extractor is the rule-based natural-language-to-filter mapper. It is a
// pure function of the message, the prior spec, the reference snapshot and
// the injected clock; relative date phrases are resolved to absolute ISO
// dates here, never downstream.
type Extractor struct {
	refs   refdata.Provider
	now    func() time.Time
	logger *log.Logger
}

var _ extract.Extractor = &Extractor{}

func NewExtractor(refs refdata.Provider, now func() time.Time, logger *log.Logger) *Extractor {
	return &Extractor{refs: refs, now: now, logger: logger}
}

var (
	nctRe    = regexp.MustCompile(`(?i)\bNCT\d{8}\b`)
	statusRe = regexp.MustCompile(`\b(non-compliant|noncompliant|incompliant|compliant|overdue|late)\b`)
	quoteRe  = regexp.MustCompile(`"([^"]{2,})"`)

	lastNDaysRe  = regexp.MustCompile(`\blast (\d+) days?\b`)
	nextNDaysRe  = regexp.MustCompile(`\bnext (\d+) days?\b`)
	dueSoonRe    = regexp.MustCompile(`\bdue soon\b`)
	recentDoneRe = regexp.MustCompile(`\brecent(?:ly)? complet(?:ions|ed)\b`)
	startAfterRe = regexp.MustCompile(`\b(?:started|sponsored|begun) after (\d{4})\b`)
	startBeforeRe = regexp.MustCompile(`\b(?:started|sponsored|begun) before (\d{4})\b`)
	doneAfterRe  = regexp.MustCompile(`\bcompleted after (\d{4})\b`)
	doneBeforeRe = regexp.MustCompile(`\bcompleted before (\d{4})\b`)
)

// fillerWords are discarded before the leftover text is considered a title
// candidate.
var fillerWords = map[string]bool{
	"show": true, "me": true, "list": true, "find": true, "search": true,
	"display": true, "give": true, "get": true, "all": true, "any": true,
	"trial": true, "trials": true, "study": true, "studies": true,
	"for": true, "the": true, "a": true, "an": true, "of": true, "in": true,
	"with": true, "by": true, "from": true, "and": true, "that": true,
	"are": true, "is": true, "please": true, "which": true, "status": true,
	"only": true, "ones": true, "one": true, "those": true, "them": true,
	"due": true, "days": true, "day": true, "soon": true, "what": true,
	"anything": true, "titled": true, "named": true, "called": true,
	"completed": true, "started": true, "begun": true, "sponsored": true,
}

// Extract maps one message onto filter candidates, category by category, and
// merges the outcome onto the prior spec. Categories run in fixed precedence
// (NCT id, status keywords, relative dates, reference lists/title); the
// first match within a category wins, and categories are independent.
func (e *Extractor) Extract(ctx context.Context, req extract.Request) (*extract.Result, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return &extract.Result{
			Clarification: genericReprompt,
			Partial:       req.Prior.Clone(),
		}, nil
	}

	candidates := make(map[string]string)
	residual := strings.ToLower(message)

	// 1. NCT identifier always wins over a free-text title guess.
	if m := nctRe.FindString(message); m != "" {
		candidates[schema.FieldNCTID] = strings.ToUpper(m)
		residual = strings.Replace(residual, strings.ToLower(m), " ", 1)
	}

	// 2. Compliance status keywords.
	residual = e.extractStatus(residual, candidates)

	// 3. Relative date phrases, resolved to absolute ISO at extraction time.
	residual = e.extractDates(residual, candidates)

	// 4. Organization / user email via reference lists, leftover text as a
	// title candidate.
	snapshot := e.snapshot(ctx)

	org, orgTies, rest := matchReference(residual, snapshot.Organizations)
	if len(orgTies) > 1 {
		return e.clarifyTie("organizations", orgTies, candidates, req.Prior), nil
	}
	if org != "" {
		candidates[schema.FieldOrganization] = org
		residual = rest
	}

	email, emailTies, rest := matchReference(residual, snapshot.UserEmails)
	if len(emailTies) > 1 {
		return e.clarifyTie("users", emailTies, candidates, req.Prior), nil
	}
	if email != "" {
		candidates[schema.FieldUserEmail] = email
		residual = rest
	}

	if title := e.extractTitle(message, residual); title != "" {
		candidates[schema.FieldTitle] = title
	}

	if len(candidates) == 0 {
		return &extract.Result{
			Clarification: genericReprompt,
			Partial:       req.Prior.Clone(),
		}, nil
	}

	spec, diags := filter.Build(candidates)
	merged := filter.Merge(req.Prior, spec)

	if e.logger != nil {
		e.logger.Printf("[PATTERN] Extracted %d candidate(s) -> fields %v", len(candidates), merged.Fields())
	}

	return &extract.Result{Spec: merged, Diagnostics: diags}, nil
}

// extractStatus maps status keywords onto the compliance enum. "overdue" and
// "late" both mean incompliant with a due date already in the past: open
// lower bound, upper bound yesterday.
func (e *Extractor) extractStatus(residual string, candidates map[string]string) string {
	matches := statusRe.FindAllString(residual, -1)
	if len(matches) == 0 {
		return residual
	}

	seen := make(map[string]bool)
	var statuses []string
	pastDue := false
	for _, token := range matches {
		mapped := schema.StatusIncompliant
		if token == "compliant" {
			mapped = schema.StatusCompliant
		}
		if token == "overdue" || token == "late" {
			pastDue = true
		}
		if !seen[mapped] {
			seen[mapped] = true
			statuses = append(statuses, mapped)
		}
		residual = strings.Replace(residual, token, " ", 1)
	}

	candidates[schema.FieldComplianceStatus] = strings.Join(statuses, ",")
	if pastDue {
		candidates[schema.FieldDateType] = schema.DateTypeDue
		candidates[schema.FieldDateTo] = iso(e.now().AddDate(0, 0, -1))
	}
	return residual
}

type datePhrase struct {
	re    *regexp.Regexp
	apply func(e *Extractor, groups []string, candidates map[string]string)
}

var datePhrases = []datePhrase{
	{lastNDaysRe, func(e *Extractor, g []string, c map[string]string) {
		n, _ := strconv.Atoi(g[1])
		today := e.now()
		setRange(c, schema.DateTypeCompletion, iso(today.AddDate(0, 0, -n)), iso(today))
	}},
	{nextNDaysRe, func(e *Extractor, g []string, c map[string]string) {
		n, _ := strconv.Atoi(g[1])
		today := e.now()
		setRange(c, schema.DateTypeDue, iso(today), iso(today.AddDate(0, 0, n)))
	}},
	{dueSoonRe, func(e *Extractor, g []string, c map[string]string) {
		today := e.now()
		setRange(c, schema.DateTypeDue, iso(today), iso(today.AddDate(0, 0, dueSoonDays)))
	}},
	{recentDoneRe, func(e *Extractor, g []string, c map[string]string) {
		today := e.now()
		setRange(c, schema.DateTypeCompletion, iso(today.AddDate(0, 0, -recentCompletionDays)), iso(today))
	}},
	{startAfterRe, func(e *Extractor, g []string, c map[string]string) {
		c[schema.FieldDateType] = schema.DateTypeStart
		c[schema.FieldDateFrom] = g[1] + "-01-01"
		delete(c, schema.FieldDateTo)
	}},
	{startBeforeRe, func(e *Extractor, g []string, c map[string]string) {
		c[schema.FieldDateType] = schema.DateTypeStart
		c[schema.FieldDateTo] = g[1] + "-12-31"
		delete(c, schema.FieldDateFrom)
	}},
	{doneAfterRe, func(e *Extractor, g []string, c map[string]string) {
		c[schema.FieldDateType] = schema.DateTypeCompletion
		c[schema.FieldDateFrom] = g[1] + "-01-01"
		delete(c, schema.FieldDateTo)
	}},
	{doneBeforeRe, func(e *Extractor, g []string, c map[string]string) {
		c[schema.FieldDateType] = schema.DateTypeCompletion
		c[schema.FieldDateTo] = g[1] + "-12-31"
		delete(c, schema.FieldDateFrom)
	}},
}

// extractDates resolves the first matching relative phrase. An explicit
// phrase overrides the implicit past-due window a status keyword may have
// set.
func (e *Extractor) extractDates(residual string, candidates map[string]string) string {
	for _, p := range datePhrases {
		if groups := p.re.FindStringSubmatch(residual); groups != nil {
			p.apply(e, groups, candidates)
			return strings.Replace(residual, groups[0], " ", 1)
		}
	}
	return residual
}

func setRange(c map[string]string, dateType, from, to string) {
	c[schema.FieldDateType] = dateType
	c[schema.FieldDateFrom] = from
	c[schema.FieldDateTo] = to
}

// extractTitle prefers an explicitly quoted phrase; otherwise whatever
// non-filler text survived the earlier categories becomes a contains-filter
// candidate.
func (e *Extractor) extractTitle(original, residual string) string {
	if m := quoteRe.FindStringSubmatch(original); m != nil {
		return strings.TrimSpace(m[1])
	}

	var kept []string
	for _, word := range strings.Fields(residual) {
		trimmed := strings.Trim(word, ".,;:!?")
		if trimmed == "" || fillerWords[trimmed] {
			continue
		}
		kept = append(kept, trimmed)
	}
	leftover := strings.Join(kept, " ")
	if len(leftover) < 3 {
		return ""
	}
	return leftover
}

// matchReference resolves a reference list mention two ways: a full name
// appearing in the residual text (longest wins), or failing that, a message
// token appearing inside reference names. Either way, distinct names that
// match with equal strength are returned as ties for clarification instead
// of guessed.
func matchReference(residual string, names []string) (best string, ties []string, rest string) {
	bestLen := 0
	for _, name := range names {
		lower := strings.ToLower(strings.TrimSpace(name))
		if lower == "" || !strings.Contains(residual, lower) {
			continue
		}
		switch {
		case len(lower) > bestLen:
			bestLen = len(lower)
			best = name
			ties = []string{name}
		case len(lower) == bestLen && !contains(ties, name):
			ties = append(ties, name)
		}
	}
	if len(ties) > 1 {
		sort.Strings(ties)
		return "", ties, residual
	}
	if best != "" {
		rest = strings.Replace(residual, strings.ToLower(best), " ", 1)
		return best, ties, rest
	}
	return matchReferenceByToken(residual, names)
}

// matchReferenceByToken handles partial mentions ("trials for mercy") by
// looking for residual tokens inside the reference names. The longest
// matching token decides; a token shared by several names is ambiguous.
func matchReferenceByToken(residual string, names []string) (best string, ties []string, rest string) {
	bestToken := ""
	for _, word := range strings.Fields(residual) {
		token := strings.Trim(word, ".,;:!?")
		if len(token) < 3 || fillerWords[token] || len(token) <= len(bestToken) {
			continue
		}
		var matched []string
		for _, name := range names {
			if strings.Contains(strings.ToLower(name), token) && !contains(matched, name) {
				matched = append(matched, name)
			}
		}
		if len(matched) > 0 {
			bestToken = token
			ties = matched
		}
	}
	switch {
	case len(ties) > 1:
		sort.Strings(ties)
		return "", ties, residual
	case len(ties) == 1:
		return ties[0], ties, strings.Replace(residual, bestToken, " ", 1)
	default:
		return "", nil, residual
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// clarifyTie reports an ambiguous reference match. Everything unambiguous
// that was already extracted is preserved in the partial spec so the answer
// merges instead of starting over.
func (e *Extractor) clarifyTie(kind string, ties []string, candidates map[string]string, prior *filter.Spec) *extract.Result {
	partial, diags := filter.Build(candidates)
	if e.logger != nil {
		e.logger.Printf("[PATTERN] Ambiguous %s match: %v", kind, ties)
	}
	return &extract.Result{
		Clarification: fmt.Sprintf("I found several matching %s: %s. Which one did you mean?",
			kind, strings.Join(ties, ", ")),
		Partial:     filter.Merge(prior, partial),
		Diagnostics: diags,
	}
}

func (e *Extractor) snapshot(ctx context.Context) *refdata.Snapshot {
	snap, err := e.refs.Snapshot(ctx)
	if err != nil || snap == nil {
		if e.logger != nil {
			e.logger.Printf("[WARN] Reference snapshot unavailable: %v", err)
		}
		return &refdata.Snapshot{}
	}
	return snap
}

func iso(t time.Time) string {
	return t.Format("2006-01-02")
}
