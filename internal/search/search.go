package search

// Result is a single page hit returned to the caller.
type Result struct {
	ID      string `json:"id"`
	WorldID string `json:"worldId"`
	Title   string `json:"title"`
	Emoji   string `json:"emoji"`
	Snippet string `json:"snippet"`
}

// Query describes a search request. Searches never cross worlds.
type Query struct {
	WorldID string
	Text    string
	Limit   int
	Offset  int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// PageRecord is the data we index for a page.
type PageRecord struct {
	ID      string `json:"id"`
	WorldID string `json:"worldId"`
	Title   string `json:"title"`
	Icon    string `json:"icon"`
}

func (q Query) normalizedLimit() int {
	if q.Limit <= 0 {
		return 20
	}
	if q.Limit > 100 {
		return 100
	}
	return q.Limit
}

func (q Query) normalizedOffset() int {
	if q.Offset < 0 {
		return 0
	}
	return q.Offset
}
