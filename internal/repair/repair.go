// Package repair implements the C8 Repair Controller (spec.md §4.8): a
// bounded loop that classifies why a candidate failed and, for
// recoverable classes, builds the surgical prompt delta that targets
// the exact failure rather than regenerating from scratch.
package repair

import (
	"strings"

	"nlsql/internal/apperr"
	"nlsql/internal/evaluator"
	"nlsql/internal/prompt"
	"nlsql/internal/schema"
	"nlsql/internal/sqltoken"
	"nlsql/internal/validator"
)

// Plan is what the repair controller decided to do with a failed
// candidate: either give up (Recoverable == false) or append Delta to
// the next generation round's prompt.
type Plan struct {
	Recoverable bool
	Delta       prompt.Delta
	Reason      string
}

// Classify inspects a losing Evaluated candidate (spec.md §4.8) and
// decides whether the failure is repairable, building the exact delta
// the next attempt's prompt needs. packet is the request's retrieved
// schema packet, whose AllowedTables must never be widened by a repair
// delta (spec.md §4.5).
func Classify(ev evaluator.Evaluated, packet *schema.Packet) Plan {
	if v, ok := firstFailFastViolation(ev.ValidatorResult); ok {
		return Plan{Recoverable: false, Reason: "fail_fast violation: " + string(v.Rule)}
	}

	if unknown, ok := firstUnknownTableViolation(ev.ValidatorResult); ok {
		return Plan{
			Recoverable: true,
			Reason:      "unknown table: " + unknown.Table,
			Delta: prompt.UnknownTableDelta{
				OffendingTable: unknown.Table,
				AllowedTables:  allowedTableNames(packet),
			},
		}
	}

	if ev.ProbeResult.Err != nil {
		classified, ok := apperr.As(ev.ProbeResult.Err)
		if !ok {
			return Plan{Recoverable: false, Reason: "unclassified EXPLAIN failure"}
		}
		if !classified.Recoverable() {
			return Plan{Recoverable: false, Reason: "non-recoverable probe error: " + string(classified.Kind)}
		}
		return classifyRecoverableProbeError(classified, ev, packet)
	}

	return Plan{Recoverable: false, Reason: "candidate failed for an unclassified reason"}
}

func classifyRecoverableProbeError(classified *apperr.Error, ev evaluator.Evaluated, packet *schema.Packet) Plan {
	switch classified.Kind {
	case apperr.KindUnknownColumn:
		return planColumnWhitelist(classified.Message, ev.NormalizedSQL, packet)
	case apperr.KindUnknownTable:
		table := extractQuotedIdentifier(classified.Message)
		return Plan{
			Recoverable: true,
			Reason:      "EXPLAIN reported unknown table",
			Delta: prompt.UnknownTableDelta{
				OffendingTable: table,
				AllowedTables:  allowedTableNames(packet),
			},
		}
	case apperr.KindSyntaxError, apperr.KindTypeMismatch:
		return Plan{
			Recoverable: true,
			Reason:      "EXPLAIN reported a dialect/syntax error",
			Delta: prompt.DialectSyntaxDelta{
				ErrorClass: string(classified.Kind),
				ErrorText:  classified.Message,
				PriorSQL:   ev.NormalizedSQL,
			},
		}
	case apperr.KindGenerationFailed:
		return Plan{Recoverable: true, Reason: "generation call failed, retry"}
	default:
		return Plan{Recoverable: false, Reason: "recoverable kind with no repair strategy: " + string(classified.Kind)}
	}
}

// planColumnWhitelist resolves the offending column's alias back to a
// table using the failed SQL's own FROM/JOIN list (spec.md §4.8
// "surgical whitelist"), then builds a ColumnWhitelistDelta naming that
// table's real columns and its one-hop FK neighbors. If the alias can't
// be resolved, falls back to a non-recoverable plan rather than
// guessing a table and risking prompt drift.
func planColumnWhitelist(errMessage, priorSQL string, packet *schema.Packet) Plan {
	tokens := sqltoken.Tokenize(priorSQL)
	bindings := sqltoken.ExtractTableAliases(tokens)
	columnName := extractQuotedIdentifier(errMessage)

	aliasOrTable := findQualifyingAlias(sqltoken.SignificantTokens(tokens), columnName)
	if aliasOrTable == "" && len(bindings) == 1 {
		aliasOrTable = bindings[0].Alias
	}

	tableName, ok := sqltoken.ResolveAlias(bindings, aliasOrTable)
	if !ok {
		return Plan{Recoverable: false, Reason: "could not resolve alias for undefined column error"}
	}

	pt, ok := findPacketTable(packet, tableName)
	if !ok {
		return Plan{Recoverable: false, Reason: "resolved table is not in the allowed schema packet"}
	}

	return Plan{
		Recoverable: true,
		Reason:      "unknown column on " + tableName,
		Delta: prompt.ColumnWhitelistDelta{
			Table:     pt.Table,
			Columns:   pt.Columns,
			Neighbors: oneHopNeighbors(packet, tableName),
		},
	}
}

// findQualifyingAlias scans sig for an "alias . columnName" reference
// and returns the alias, so an undefined-column error (which names only
// the bare column) can be traced back to the table the generator meant.
func findQualifyingAlias(sig []sqltoken.Token, columnName string) string {
	if columnName == "" {
		return ""
	}
	for i := 0; i+2 < len(sig); i++ {
		if sig[i].Kind != sqltoken.KindIdentifier {
			continue
		}
		if sig[i+1].Kind != sqltoken.KindPunctuation || sig[i+1].Text != "." {
			continue
		}
		if sig[i+2].Kind != sqltoken.KindIdentifier || !strings.EqualFold(sig[i+2].Text, columnName) {
			continue
		}
		return sig[i].Text
	}
	return ""
}

func findPacketTable(packet *schema.Packet, tableName string) (schema.PacketTable, bool) {
	for _, t := range packet.Tables {
		if strings.EqualFold(t.Table.TableName, tableName) {
			return t, true
		}
	}
	return schema.PacketTable{}, false
}

// oneHopNeighbors returns the packet tables directly FK-connected to
// tableName, so a column-whitelist delta can suggest a join instead of
// inventing a column.
func oneHopNeighbors(packet *schema.Packet, tableName string) []schema.PacketTable {
	neighborNames := map[string]bool{}
	for _, e := range packet.Edges {
		if strings.EqualFold(e.FromTable, tableName) {
			neighborNames[strings.ToLower(e.ToTable)] = true
		}
		if strings.EqualFold(e.ToTable, tableName) {
			neighborNames[strings.ToLower(e.FromTable)] = true
		}
	}
	var out []schema.PacketTable
	for _, t := range packet.Tables {
		if neighborNames[strings.ToLower(t.Table.TableName)] {
			out = append(out, t)
		}
	}
	return out
}

func allowedTableNames(packet *schema.Packet) []string {
	names := make([]string, 0, len(packet.Tables))
	for _, t := range packet.Tables {
		names = append(names, t.Table.TableName)
	}
	return names
}

func firstFailFastViolation(r validator.Result) (validator.Violation, bool) {
	for _, v := range r.Violations {
		if v.Action == validator.ActionFailFast {
			return v, true
		}
	}
	return validator.Violation{}, false
}

func firstUnknownTableViolation(r validator.Result) (validator.Violation, bool) {
	for _, v := range r.Violations {
		if v.Rule == validator.RuleUnknownTable {
			return v, true
		}
	}
	return validator.Violation{}, false
}

// extractQuotedIdentifier pulls the first double-quoted substring out of
// a Postgres error message ("column \"bogus\" does not exist"), the
// convention pq/Postgres uses for offending identifiers.
func extractQuotedIdentifier(message string) string {
	start := strings.IndexByte(message, '"')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(message[start+1:], '"')
	if end < 0 {
		return ""
	}
	return message[start+1 : start+1+end]
}
