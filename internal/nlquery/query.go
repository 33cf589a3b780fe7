// Package nlquery turns a natural-language search request into the
// structured ParsedQuery the query builder (C14) composes into a hybrid
// search (§3.8, §4.13).
package nlquery

// QueryType selects which retrieval path C14 composes.
type QueryType string

const (
	QueryKeyword      QueryType = "keyword"
	QuerySemantic     QueryType = "semantic"
	QueryHybrid       QueryType = "hybrid"
	QueryImage        QueryType = "image"
	QueryMetadataOnly QueryType = "metadata_only"
)

// TemporalFilter is either a relative token awaiting resolution or an
// explicit absolute range; Relative, if set, takes precedence and is
// resolved by resolveTemporalFilter before the filter reaches C14.
type TemporalFilter struct {
	Relative string // one of the eight relative tokens, or ""

	// Explicit absolute bounds, ISO-8601 date strings (YYYY-MM-DD). Used
	// verbatim when Relative is empty.
	DateGTE string
	DateLTE string
}

// Filters mirrors the filter surface named in §3.8: everything here is
// optional and additive, translated into vectorstore.Filters by C14.
type Filters struct {
	Sender       string
	Participants []string
	IsDM         *bool
	IsGroupChat  *bool

	Year       int // 0 means unset
	Month      int // 0 means unset
	Months     []int
	DayOfWeek  string // lowercased
	HourGTE    *int   // 0..23
	HourLTE    *int   // 0..23
	HasImage   *bool

	Temporal *TemporalFilter

	// TimestampGTE/TimestampLTE are absolute Unix-second bounds, either
	// passed straight through from Temporal.DateGTE/DateLTE or produced
	// by resolveTemporalFilter against Temporal.Relative.
	TimestampGTE *int64
	TimestampLTE *int64
}

// Exclusions mirrors §4.9.4's must-not clauses, expressed in terms of the
// natural-language references C14 still has to resolve via C11.
type Exclusions struct {
	IsDMWith string
	SenderNot string
	ChatNot   string
}

// Boost names a field/value pair that should raise a result's score
// without constraining the match, per §4.9.5.
type Boost struct {
	Field string
	Value bool
	Score float64
}

// ParsedQuery is the structured intent C13 produces from a raw
// natural-language string (§3.8). It is a transient value: never stored,
// rebuilt fresh on every search call.
type ParsedQuery struct {
	QueryType QueryType

	// SemanticQuery is the text to embed when QueryType needs a vector.
	SemanticQuery string
	// KeywordQuery is matched against the analyzed text field.
	KeywordQuery string

	// FromPerson/WithPerson/AboutPerson are raw natural-language person
	// references ("mom", "john"); C14 resolves them via C11 before
	// building vectorstore.Filters/Exclusions.
	FromPerson  string
	WithPerson  string
	AboutPerson string

	Filters    Filters
	Exclusions Exclusions
	Boosts     []Boost

	// Reasoning is a short explanation the model gives for how it read
	// the request; surfaced in verbose search output, never required.
	Reasoning string
}
