package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultProject  ResultType = "project"
	ResultDecision ResultType = "decision"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	ProjectID int64      `json:"projectid"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// ProjectRecord is the data we index for a project.
type ProjectRecord struct {
	ID        string `json:"id"`
	ProjectID int64  `json:"projectId"`
	Name      string `json:"name"`
	Client    string `json:"client"`
	Stage     string `json:"stage"`
}

// DecisionRecord is the data we index for an approval decision.
type DecisionRecord struct {
	ID        string `json:"id"`
	ProjectID int64  `json:"projectId"`
	FileType  string `json:"fileType"`
	Status    string `json:"status"`
	Role      string `json:"role"`
	Comments  string `json:"comments"`
}
