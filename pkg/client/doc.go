// Package client is a Go client for the ragdex HTTP API.
//
//	c, _ := client.New("http://localhost:8080", client.WithAPIKey(os.Getenv("RAGDEX_API_KEY")))
//
//	res, _ := c.Search(ctx, client.SearchRequest{Query: "vpn setup", Method: "hybrid", K: 5})
//	for _, hit := range res.Results {
//	    fmt.Println(hit.ID, hit.Score)
//	}
//
// Answers can be buffered or streamed token by token:
//
//	final, err := c.QueryStream(ctx, client.QueryRequest{Question: "How do I reset my password?"},
//	    func(ev client.StreamEvent) error {
//	        fmt.Print(ev.Token)
//	        return nil
//	    })
//
// Non-2xx responses and terminal stream error events are returned as *APIError, which
// matches the package sentinels with errors.Is.
package client
