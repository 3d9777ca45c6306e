// Package sdk is a thin HTTP client for the casedex API.
//
// A Client submits case documents for ingestion, runs hybrid searches, and
// reads health and token budget state:
//
//	client := sdk.New("http://localhost:8080", sdk.WithAPIKey("secret"))
//	hits, err := client.Search(ctx, &sdk.SearchRequest{Term: "brain injury"})
package sdk
