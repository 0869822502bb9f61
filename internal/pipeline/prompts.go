package pipeline

import (
	"encoding/json"
	"strings"

	"github.com/dvloznov/finance-categorizer/internal/domain"
)

// promptTransaction is the subset of a record shown to the model.
type promptTransaction struct {
	TransactionID string `json:"transaction_id"`
	Date          string `json:"date"`
	Amount        string `json:"amount"`
	Merchant      string `json:"merchant"`
	Description   string `json:"description"`
}

// PromptBuilder renders a categorization request. Output depends only on its inputs.
type PromptBuilder struct{}

// Build renders the taxonomy, the batch and the output contract into one prompt.
func (PromptBuilder) Build(records []*domain.TransactionRecord, taxonomy *domain.TaxonomyModel) string {
	txs := make([]promptTransaction, 0, len(records))
	for _, r := range records {
		txs = append(txs, promptTransaction{
			TransactionID: r.TransactionID,
			Date:          r.Date,
			Amount:        r.Amount,
			Merchant:      r.Merchant,
			Description:   r.Description,
		})
	}
	// Marshalling plain string fields cannot fail.
	txJSON, _ := json.MarshalIndent(txs, "", "  ")

	var b strings.Builder
	b.WriteString("You are a financial transaction categorization expert.\n")
	b.WriteString("Assign each transaction below a category and subcategory from the user's taxonomy.\n\n")

	b.WriteString("Use ONLY the following Categories and Subcategories:\n\n")
	b.WriteString(taxonomy.Render())
	b.WriteString("\n\n")

	b.WriteString("TRANSACTIONS:\n")
	b.Write(txJSON)
	b.WriteString("\n\n")

	b.WriteString("RULES:\n")
	b.WriteString("1. Return ONLY one raw JSON object. No Markdown, no code fences, no text before or after it.\n")
	b.WriteString("2. Use ONLY category/subcategory pairs listed above. Category must match EXACTLY (case-sensitive).\n")
	b.WriteString("3. If a category shows \"(no subcategories)\", use empty string \"\" for subcategory.\n")
	b.WriteString("4. Copy each transaction_id back EXACTLY as given. Never invent, shorten or merge ids.\n")
	b.WriteString("5. confidence is a number between 0 and 1 saying how sure you are of the assignment.\n")
	b.WriteString("6. If you are unsure, do NOT guess: use \"\" for category and subcategory and 0 for confidence.\n")
	b.WriteString("7. Return exactly one entry per transaction.\n\n")

	b.WriteString("Output format:\n")
	b.WriteString("{\n")
	b.WriteString("  \"" + ResultsKey + "\": [\n")
	b.WriteString("    {\"transaction_id\": \"<id from input>\", \"category\": \"<category>\", \"subcategory\": \"<subcategory>\", \"confidence\": 0.95}\n")
	b.WriteString("  ]\n")
	b.WriteString("}\n")

	return b.String()
}
