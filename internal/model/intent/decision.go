package intent

// Kind tags the routing decision for a user turn.
type Kind string

const (
	AnswerFromContext Kind = "answer_from_context"
	Summarize         Kind = "summarize"
	ProductSearch     Kind = "product_search"
)

// Decision is the router's tagged result. URL is only set for Summarize.
type Decision struct {
	Kind Kind   `json:"kind"`
	URL  string `json:"url,omitempty"`
}

// SummarizeURL builds a Summarize decision.
func SummarizeURL(url string) Decision {
	return Decision{Kind: Summarize, URL: url}
}

// Answer is the default decision: answer from retrieved context.
func Answer() Decision {
	return Decision{Kind: AnswerFromContext}
}

// Product forces the product-search branch.
func Product() Decision {
	return Decision{Kind: ProductSearch}
}

// IsSummarize reports whether the decision asks for a page summary.
func (d Decision) IsSummarize() bool {
	return d.Kind == Summarize
}
