package pipeline

import (
	"context"
	"testing"
	"unicode/utf8"

	"github.com/dvloznov/finance-categorizer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseParser_ExtractsObjectFromCommentary(t *testing.T) {
	raw := "Sure! {\"categorizedTransactions\": [{\"transaction_id\":\"a\",\"category\":\"Food\",\"subcategory\":\"Groceries\",\"confidence\":0.9}]} Thanks"

	got, err := ResponseParser{}.Parse(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, got.Results, 1)
	assert.Equal(t, domain.CategorizationResult{
		TransactionID: "a", Category: "Food", Subcategory: "Groceries", Confidence: 0.9,
	}, got.Results[0])
	assert.Zero(t, got.Dropped)
}

func TestResponseParser_Unparsable(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no braces", "I could not categorize these transactions."},
		{"empty", ""},
		{"reversed braces", "} nothing {"},
		{"invalid json", "{\"categorizedTransactions\": [ }"},
		{"missing key", "{\"transactions\": []}"},
		{"null list", "{\"categorizedTransactions\": null}"},
		{"list is object", "{\"categorizedTransactions\": {\"transaction_id\": \"a\"}}"},
		{"top level array", "[{\"transaction_id\": \"a\"}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResponseParser{}.Parse(context.Background(), tt.raw)
			assert.ErrorIs(t, err, domain.ErrUnparsableResponse)
		})
	}
}

func TestResponseParser_EmptyListIsNotAnError(t *testing.T) {
	got, err := ResponseParser{}.Parse(context.Background(), "{\"categorizedTransactions\": []}")
	require.NoError(t, err)
	assert.Empty(t, got.Results)
}

func TestResponseParser_DropsInvalidEntries(t *testing.T) {
	raw := `{"categorizedTransactions": [
		{"transaction_id": "ok", "category": "Food", "subcategory": "Groceries", "confidence": 0.8},
		{"category": "Food", "subcategory": "Groceries", "confidence": 0.8},
		{"transaction_id": 42, "category": "Food", "confidence": 0.5},
		{"transaction_id": "  ", "category": "Food", "confidence": 0.5},
		{"transaction_id": "noconf", "category": "Food", "subcategory": "Groceries"},
		{"transaction_id": "strconf", "category": "Food", "confidence": "high"},
		{"transaction_id": "badcat", "category": 7, "confidence": 0.5},
		"not an object",
		{"transaction_id": "high", "category": "Food", "confidence": 1.4},
		{"transaction_id": "low", "category": "Food", "confidence": -0.1},
		{"transaction_id": "unsure", "category": null, "confidence": 0}
	]}`

	got, err := ResponseParser{Policy: ConfidenceDrop}.Parse(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, got.Results, 2)
	assert.Equal(t, "ok", got.Results[0].TransactionID)
	assert.Equal(t, domain.CategorizationResult{TransactionID: "unsure"}, got.Results[1])
	assert.Equal(t, 9, got.Dropped)
}

func TestResponseParser_ClampPolicy(t *testing.T) {
	raw := `{"categorizedTransactions": [
		{"transaction_id": "high", "category": "Food", "confidence": 1.4},
		{"transaction_id": "low", "category": "Food", "confidence": -0.1}
	]}`

	got, err := ResponseParser{Policy: ConfidenceClamp}.Parse(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, got.Results, 2)
	assert.Equal(t, 1.0, got.Results[0].Confidence)
	assert.Equal(t, 0.0, got.Results[1].Confidence)
	assert.Zero(t, got.Dropped)
}

func TestResponseParser_CodeFences(t *testing.T) {
	raw := "```json\n{\"categorizedTransactions\": [{\"transaction_id\": \"a\", \"category\": \"Food\", \"subcategory\": \"\", \"confidence\": 1}]}\n```"

	got, err := ResponseParser{}.Parse(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "", got.Results[0].Subcategory)
}

func TestParseConfidencePolicy(t *testing.T) {
	p, err := ParseConfidencePolicy("Clamp")
	require.NoError(t, err)
	assert.Equal(t, ConfidenceClamp, p)

	p, err = ParseConfidencePolicy("")
	require.NoError(t, err)
	assert.Equal(t, ConfidenceDrop, p)

	_, err = ParseConfidencePolicy("round")
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))

	// "é" is two bytes and "€" three; no cut may land inside either.
	s := "café €12 déjà vu"
	for n := 0; n < len(s); n++ {
		got := truncate(s, n)
		assert.True(t, utf8.ValidString(got), "cut at %d: %q", n, got)
		assert.LessOrEqual(t, len(got), n+len("..."))
	}
	assert.Equal(t, "caf...", truncate(s, 4))
}
