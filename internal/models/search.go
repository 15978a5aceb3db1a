package models

// WebSearchResult is one hit from the optional web search feeding context
// assembly
type WebSearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}
