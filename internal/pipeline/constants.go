package pipeline

import "time"

const (
	// DefaultModelName is the default Gemini model used for categorization.
	DefaultModelName = "gemini-2.5-flash"

	// ResultsKey is the top-level field of the model response holding the entries.
	ResultsKey = "categorizedTransactions"

	// maxLoggedResponse caps how much raw model text is copied into logs.
	maxLoggedResponse = 2000
)

// Default collaborator timeouts, used when Options leaves one unset.
const (
	DefaultSourceTimeout   = 30 * time.Second
	DefaultStoreTimeout    = 30 * time.Second
	DefaultTaxonomyTimeout = 10 * time.Second
	DefaultModelTimeout    = 2 * time.Minute
)
