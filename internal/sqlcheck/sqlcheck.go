// Package sqlcheck gates translated SQL before execution. The check is
// judgment-only: a statement is either allowed or rejected with a reason,
// never rewritten into something the user did not ask for.
package sqlcheck

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/schema"
)

type Reason string

const (
	ReasonNone              Reason = ""
	ReasonNonRead           Reason = "non-read"
	ReasonUnknownIdentifier Reason = "unknown-identifier"
	ReasonInjectionRisk     Reason = "injection-risk"
)

type Options struct {
	// AllowMutation admits single-statement INSERT, UPDATE, DELETE and MERGE.
	// DDL and engine commands stay rejected in every mode.
	AllowMutation bool
}

type Verdict struct {
	Allowed  bool
	Reason   Reason
	Detail   string
	Warnings []string

	// Normalized is the statement with trailing semicolons removed; it is
	// what gets executed and displayed.
	Normalized string

	// Mutation marks an allowed data-modifying statement.
	Mutation bool
}

// MetricLabel flattens the verdict for counters.
func (v Verdict) MetricLabel() string {
	if v.Allowed {
		return "allowed"
	}
	switch v.Reason {
	case ReasonNonRead:
		return "non_read"
	case ReasonUnknownIdentifier:
		return "unknown_identifier"
	case ReasonInjectionRisk:
		return "injection_risk"
	default:
		return "rejected"
	}
}

var (
	tautologyNumeric = regexp.MustCompile(`\bor\s+1\s*=\s*1\b`)
	tautologyLiteral = regexp.MustCompile(`\bor\s+''\s*=\s*''`)
)

var mutationVerbs = map[string]bool{
	"insert": true,
	"update": true,
	"delete": true,
	"merge":  true,
}

// Check validates one statement against the snapshot. When the snapshot is
// truncated the unknown-identifier check cannot be trusted and is skipped
// with a warning instead of guessing.
func Check(stmt string, snap schema.Snapshot, opts Options) Verdict {
	normalized := stripTrailingSemicolons(stmt)
	if normalized == "" {
		return reject(normalized, ReasonNonRead, "empty statement")
	}

	scrub, info := scrubStatement(normalized)
	if info.unterminatedLiteral {
		return reject(normalized, ReasonInjectionRisk, "unterminated string literal")
	}
	if info.unterminatedComment {
		return reject(normalized, ReasonInjectionRisk, "unterminated comment")
	}
	if info.hasComment {
		return reject(normalized, ReasonInjectionRisk, "comment tokens are not allowed")
	}
	if strings.Contains(scrub, ";") {
		return reject(normalized, ReasonInjectionRisk, "multiple statements are not allowed")
	}

	lowered := strings.ToLower(scrub)
	if tautologyNumeric.MatchString(lowered) || tautologyLiteral.MatchString(lowered) {
		return reject(normalized, ReasonInjectionRisk, "always-true filter pattern")
	}

	tokens := tokenize(scrub)
	if len(tokens) == 0 {
		return reject(normalized, ReasonNonRead, "empty statement")
	}

	verdict := Verdict{Allowed: true, Normalized: normalized}
	switch verb := tokens[0]; verb {
	case "select":
	case "with":
		if mutating := firstMutationVerb(tokens); mutating != "" {
			if !opts.AllowMutation {
				return reject(normalized, ReasonNonRead, fmt.Sprintf("statement is not a read-only query (contains %q)", mutating))
			}
			verdict.Mutation = true
		}
	case "insert", "update", "delete", "merge":
		if !opts.AllowMutation {
			return reject(normalized, ReasonNonRead, fmt.Sprintf("statement is not a read-only query (starts with %q)", verb))
		}
		verdict.Mutation = true
	default:
		return reject(normalized, ReasonNonRead, fmt.Sprintf("statement is not a read-only query (starts with %q)", verb))
	}

	if snap.Truncated {
		verdict.Warnings = append(verdict.Warnings, "identifier check skipped: schema snapshot truncated")
		return verdict
	}

	ctes := collectCTENames(tokens)
	refs := collectTableRefs(tokens)
	for _, ref := range refs {
		name := ref
		if idx := strings.LastIndex(name, "."); idx >= 0 {
			name = name[idx+1:]
		}
		if ctes[name] {
			continue
		}
		if _, ok := snap.Lookup(name); !ok {
			return reject(normalized, ReasonUnknownIdentifier, fmt.Sprintf("unknown table %q", name))
		}
	}
	if tokens[0] == "select" {
		if name, bad := unknownColumnRef(tokens, ctes, refs, snap); bad {
			return reject(normalized, ReasonUnknownIdentifier, fmt.Sprintf("unknown column %q", name))
		}
	}
	return verdict
}

func reject(normalized string, reason Reason, detail string) Verdict {
	return Verdict{Reason: reason, Detail: detail, Normalized: normalized}
}

func firstMutationVerb(tokens []string) string {
	for _, tok := range tokens {
		if mutationVerbs[tok] {
			return tok
		}
	}
	return ""
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

type scrubInfo struct {
	hasComment          bool
	unterminatedLiteral bool
	unterminatedComment bool
}

// scrubStatement blanks string literal contents and removes comments so the
// remaining text can be inspected token-wise. Double-quoted identifiers are
// kept, they are names, not data.
func scrubStatement(stmt string) (string, scrubInfo) {
	var (
		b    strings.Builder
		info scrubInfo
	)
	const (
		stateNormal = iota
		stateSingle
		stateDouble
		stateLineComment
		stateBlockComment
	)
	state := stateNormal
	for i := 0; i < len(stmt); i++ {
		c := stmt[i]
		switch state {
		case stateNormal:
			switch {
			case c == '\'':
				state = stateSingle
				b.WriteString("''")
			case c == '"':
				state = stateDouble
				b.WriteByte(c)
			case c == '-' && i+1 < len(stmt) && stmt[i+1] == '-':
				info.hasComment = true
				state = stateLineComment
				i++
			case c == '/' && i+1 < len(stmt) && stmt[i+1] == '*':
				info.hasComment = true
				state = stateBlockComment
				i++
			default:
				b.WriteByte(c)
			}
		case stateSingle:
			if c == '\'' {
				if i+1 < len(stmt) && stmt[i+1] == '\'' {
					i++
					continue
				}
				state = stateNormal
			}
		case stateDouble:
			b.WriteByte(c)
			if c == '"' {
				if i+1 < len(stmt) && stmt[i+1] == '"' {
					b.WriteByte(stmt[i+1])
					i++
					continue
				}
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				b.WriteByte(c)
			}
		case stateBlockComment:
			if c == '*' && i+1 < len(stmt) && stmt[i+1] == '/' {
				state = stateNormal
				i++
			}
		}
	}
	switch state {
	case stateSingle:
		info.unterminatedLiteral = true
	case stateDouble:
		info.unterminatedLiteral = true
	case stateBlockComment:
		info.unterminatedComment = true
	}
	return b.String(), info
}

// tokenize splits scrubbed SQL into lowercase word tokens plus the
// punctuation the reference checks care about. Quoted identifiers lose
// their quotes; qualified names keep their dots.
func tokenize(scrub string) []string {
	var tokens []string
	i := 0
	for i < len(scrub) {
		c := scrub[i]
		switch {
		case c == '(' || c == ')' || c == ',':
			tokens = append(tokens, string(c))
			i++
		case c == '"':
			j := i + 1
			var ident strings.Builder
			for j < len(scrub) {
				if scrub[j] == '"' {
					if j+1 < len(scrub) && scrub[j+1] == '"' {
						ident.WriteByte('"')
						j += 2
						continue
					}
					j++
					break
				}
				ident.WriteByte(scrub[j])
				j++
			}
			tokens = append(tokens, strings.ToLower(ident.String()))
			i = j
		case isWordChar(c):
			j := i
			for j < len(scrub) && isWordChar(scrub[j]) {
				j++
			}
			tokens = append(tokens, strings.ToLower(scrub[i:j]))
			i = j
		default:
			i++
		}
	}
	return tokens
}

func isWordChar(c byte) bool {
	return c == '_' || c == '.' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

var clauseStopWords = map[string]bool{
	"select": true, "where": true, "group": true, "order": true, "having": true,
	"limit": true, "offset": true, "on": true, "using": true, "join": true,
	"inner": true, "left": true, "right": true, "full": true, "cross": true,
	"natural": true, "union": true, "except": true, "intersect": true,
	"set": true, "values": true, "as": true, "with": true, "lateral": true,
	"window": true, "qualify": true, "returning": true,
}

func isTableIdent(tok string) bool {
	if tok == "" || tok == "(" || tok == ")" || tok == "," {
		return false
	}
	if clauseStopWords[tok] {
		return false
	}
	c := tok[0]
	return c == '_' || c == '"' || (c >= 'a' && c <= 'z')
}

// collectCTENames gathers names defined by WITH clauses so references to
// them are not mistaken for unknown tables.
func collectCTENames(tokens []string) map[string]bool {
	ctes := map[string]bool{}
	i := 0
	for i < len(tokens) {
		if tokens[i] != "with" {
			i++
			continue
		}
		j := i + 1
		if j < len(tokens) && tokens[j] == "recursive" {
			j++
		}
		for j+2 < len(tokens) && isTableIdent(tokens[j]) && tokens[j+1] == "as" && tokens[j+2] == "(" {
			ctes[tokens[j]] = true
			depth := 0
			k := j + 2
			for k < len(tokens) {
				if tokens[k] == "(" {
					depth++
				}
				if tokens[k] == ")" {
					depth--
					if depth == 0 {
						break
					}
				}
				k++
			}
			j = k + 1
			if j < len(tokens) && tokens[j] == "," {
				j++
			} else {
				break
			}
		}
		i = j
	}
	return ctes
}

// collectTableRefs walks the token stream for identifiers in table
// positions: FROM lists, JOINs, INSERT INTO, UPDATE targets and MERGE
// sources. Subqueries and table functions are skipped, as is the FROM
// inside calls like EXTRACT(YEAR FROM ts).
func collectTableRefs(tokens []string) []string {
	var refs []string
	var funcParens []bool
	inFunc := func() bool {
		return len(funcParens) > 0 && funcParens[len(funcParens)-1]
	}
	prev := ""
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch tok {
		case "(":
			call := isTableIdent(prev)
			if i+1 < len(tokens) && (tokens[i+1] == "select" || tokens[i+1] == "with") {
				call = false
			}
			funcParens = append(funcParens, call)
		case ")":
			if len(funcParens) > 0 {
				funcParens = funcParens[:len(funcParens)-1]
			}
		case "from":
			if !inFunc() {
				i = collectFromList(tokens, i+1, &refs)
			}
		case "join", "into", "using":
			if ref, ok := tableRefAt(tokens, i+1); ok {
				refs = append(refs, ref)
			}
		case "update":
			if i+2 < len(tokens) && isTableIdent(tokens[i+1]) && tokens[i+2] == "set" {
				refs = append(refs, tokens[i+1])
			}
		}
		prev = tok
	}
	return refs
}

// collectFromList consumes a comma-separated FROM list, skipping aliases,
// and returns the index of the last consumed token.
func collectFromList(tokens []string, start int, refs *[]string) int {
	i := start
	for {
		ref, ok := tableRefAt(tokens, i)
		if !ok {
			return i - 1
		}
		*refs = append(*refs, ref)
		i++
		if i < len(tokens) && tokens[i] == "as" {
			i++
		}
		if i < len(tokens) && isTableIdent(tokens[i]) {
			i++ // alias
		}
		if i < len(tokens) && tokens[i] == "," {
			i++
			continue
		}
		return i - 1
	}
}

func tableRefAt(tokens []string, i int) (string, bool) {
	if i >= len(tokens) {
		return "", false
	}
	tok := tokens[i]
	if !isTableIdent(tok) {
		return "", false
	}
	if i+1 < len(tokens) && tokens[i+1] == "(" {
		return "", false // table function such as read_parquet(...)
	}
	return tok, true
}

// columnStopWords are tokens that appear in expression positions without
// being column references: operators spelled as words, CAST target types,
// EXTRACT date parts and ORDER/FETCH clause keywords.
var columnStopWords = map[string]bool{
	"from": true, "and": true, "or": true, "not": true, "in": true,
	"is": true, "null": true, "like": true, "ilike": true, "similar": true,
	"between": true, "exists": true, "distinct": true, "all": true,
	"any": true, "some": true, "case": true, "when": true, "then": true,
	"else": true, "end": true, "true": true, "false": true, "asc": true,
	"desc": true, "nulls": true, "first": true, "last": true, "by": true,
	"cast": true, "extract": true, "interval": true, "filter": true,
	"over": true, "partition": true, "rows": true, "range": true,
	"preceding": true, "following": true, "unbounded": true,
	"current": true, "row": true, "escape": true, "collate": true,
	"at": true, "zone": true, "fetch": true, "next": true, "only": true,
	"current_date": true, "current_time": true, "current_timestamp": true,

	"year": true, "month": true, "day": true, "hour": true, "minute": true,
	"second": true, "millisecond": true, "microsecond": true,
	"quarter": true, "week": true, "epoch": true, "dow": true, "doy": true,
	"isodow": true,

	"varchar": true, "text": true, "char": true, "int": true,
	"integer": true, "bigint": true, "smallint": true, "tinyint": true,
	"hugeint": true, "numeric": true, "decimal": true, "real": true,
	"float": true, "double": true, "precision": true, "boolean": true,
	"bool": true, "date": true, "time": true, "timestamp": true,
	"timestamptz": true, "blob": true, "bytea": true, "uuid": true,
	"json": true, "jsonb": true,
}

// unknownColumnRef looks for column identifiers the snapshot does not
// know. It only runs for a plain single-table SELECT with no CTEs and no
// subqueries; anything more involved has too many binding scopes to judge
// without a real parser, and a false rejection would block a legitimate
// query.
func unknownColumnRef(tokens []string, ctes map[string]bool, refs []string, snap schema.Snapshot) (string, bool) {
	if len(ctes) > 0 || len(refs) != 1 {
		return "", false
	}
	selects := 0
	for _, tok := range tokens {
		if tok == "select" {
			selects++
		}
	}
	if selects != 1 {
		return "", false
	}

	ref := refs[0]
	tableName := ref
	if idx := strings.LastIndex(tableName, "."); idx >= 0 {
		tableName = tableName[idx+1:]
	}
	table, ok := snap.Lookup(tableName)
	if !ok {
		return "", false
	}

	// Names that may appear in expressions without being columns of the
	// table: the table itself, its FROM alias and any AS output aliases.
	allowed := map[string]bool{ref: true, tableName: true}
	if alias, ok := fromAlias(tokens); ok {
		allowed[alias] = true
	}
	for i, tok := range tokens {
		if tok == "as" && i+1 < len(tokens) && isTableIdent(tokens[i+1]) {
			allowed[tokens[i+1]] = true
		}
	}

	for i, tok := range tokens {
		if !isColumnCandidate(tok) || allowed[tok] {
			continue
		}
		if i+1 < len(tokens) && tokens[i+1] == "(" {
			continue // function call
		}
		if i > 0 && tokens[i-1] == "as" {
			continue
		}
		name := tok
		if idx := strings.LastIndex(name, "."); idx >= 0 {
			if !allowed[name[:idx]] {
				continue // unrecognized qualifier, leave it to the engine
			}
			name = name[idx+1:]
		}
		if allowed[name] {
			continue
		}
		if _, ok := table.Column(name); !ok {
			return name, true
		}
	}
	return "", false
}

// fromAlias returns the alias after the first FROM table, with or without
// AS. The FROM inside calls like EXTRACT(YEAR FROM ts) does not count.
func fromAlias(tokens []string) (string, bool) {
	var funcParens []bool
	inFunc := func() bool {
		return len(funcParens) > 0 && funcParens[len(funcParens)-1]
	}
	prev := ""
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch tok {
		case "(":
			call := isTableIdent(prev)
			if i+1 < len(tokens) && (tokens[i+1] == "select" || tokens[i+1] == "with") {
				call = false
			}
			funcParens = append(funcParens, call)
		case ")":
			if len(funcParens) > 0 {
				funcParens = funcParens[:len(funcParens)-1]
			}
		case "from":
			if inFunc() {
				break
			}
			j := i + 1
			if _, ok := tableRefAt(tokens, j); !ok {
				return "", false
			}
			j++
			if j < len(tokens) && tokens[j] == "as" {
				j++
			}
			if j < len(tokens) && isTableIdent(tokens[j]) {
				return tokens[j], true
			}
			return "", false
		}
		prev = tok
	}
	return "", false
}

func isColumnCandidate(tok string) bool {
	if tok == "" {
		return false
	}
	c := tok[0]
	if c != '_' && (c < 'a' || c > 'z') {
		return false
	}
	return !clauseStopWords[tok] && !columnStopWords[tok]
}
