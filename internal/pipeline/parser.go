package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dvloznov/finance-categorizer/internal/domain"
	"github.com/dvloznov/finance-categorizer/internal/logger"
)

// ConfidencePolicy decides what happens to entries whose confidence is outside [0,1].
type ConfidencePolicy int

const (
	// ConfidenceDrop discards the entry.
	ConfidenceDrop ConfidencePolicy = iota
	// ConfidenceClamp pins the value to the nearest bound.
	ConfidenceClamp
)

// ParseConfidencePolicy maps "drop" or "clamp" to a policy.
func ParseConfidencePolicy(s string) (ConfidencePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop":
		return ConfidenceDrop, nil
	case "clamp":
		return ConfidenceClamp, nil
	}
	return ConfidenceDrop, fmt.Errorf("unknown confidence policy %q", s)
}

func (p ConfidencePolicy) String() string {
	if p == ConfidenceClamp {
		return "clamp"
	}
	return "drop"
}

// ParseResult holds the entries that survived validation.
type ParseResult struct {
	Results []domain.CategorizationResult
	Dropped int
}

// ResponseParser extracts categorization entries from raw model text.
// It validates structure only; semantic correctness is the prompt's job.
type ResponseParser struct {
	Policy ConfidencePolicy
}

// Parse takes the text between the first '{' and the last '}' as the payload.
// A missing brace pair, invalid JSON or a missing ResultsKey list fails with
// domain.ErrUnparsableResponse. Invalid entries are dropped and counted.
func (p ResponseParser) Parse(ctx context.Context, raw string) (*ParseResult, error) {
	log := logger.FromContext(ctx)

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in model output", domain.ErrUnparsableResponse)
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUnparsableResponse, err)
	}

	list, ok := payload[ResultsKey]
	if !ok || isNull(list) {
		return nil, fmt.Errorf("%w: missing %q", domain.ErrUnparsableResponse, ResultsKey)
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(list, &entries); err != nil {
		return nil, fmt.Errorf("%w: %q is not a list: %w", domain.ErrUnparsableResponse, ResultsKey, err)
	}

	out := &ParseResult{Results: make([]domain.CategorizationResult, 0, len(entries))}
	for i, entry := range entries {
		res, err := p.parseEntry(entry)
		if err != nil {
			out.Dropped++
			log.Warn().
				Int("entry_index", i).
				Err(err).
				Msg("Dropping invalid model entry")
			continue
		}
		out.Results = append(out.Results, res)
	}

	return out, nil
}

func (p ResponseParser) parseEntry(raw json.RawMessage) (domain.CategorizationResult, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return domain.CategorizationResult{}, fmt.Errorf("entry is not an object")
	}

	var res domain.CategorizationResult

	idRaw, ok := fields["transaction_id"]
	if !ok || isNull(idRaw) {
		return res, fmt.Errorf("missing transaction_id")
	}
	if err := json.Unmarshal(idRaw, &res.TransactionID); err != nil {
		return res, fmt.Errorf("transaction_id is not a string")
	}
	if strings.TrimSpace(res.TransactionID) == "" {
		return res, fmt.Errorf("empty transaction_id")
	}

	var err error
	if res.Category, err = optionalStringField(fields, "category"); err != nil {
		return res, fmt.Errorf("%s: %w", res.TransactionID, err)
	}
	if res.Subcategory, err = optionalStringField(fields, "subcategory"); err != nil {
		return res, fmt.Errorf("%s: %w", res.TransactionID, err)
	}

	confRaw, ok := fields["confidence"]
	if !ok || isNull(confRaw) {
		return res, fmt.Errorf("%s: missing confidence", res.TransactionID)
	}
	if err := json.Unmarshal(confRaw, &res.Confidence); err != nil {
		return res, fmt.Errorf("%s: confidence is not a number", res.TransactionID)
	}
	if res.Confidence < 0 || res.Confidence > 1 {
		if p.Policy != ConfidenceClamp {
			return res, fmt.Errorf("%s: confidence %v outside [0,1]", res.TransactionID, res.Confidence)
		}
		res.Confidence = min(max(res.Confidence, 0), 1)
	}

	return res, nil
}

// optionalStringField reads a string field where absent or null means "".
func optionalStringField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%s is not a string", name)
	}
	return strings.TrimSpace(s), nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
