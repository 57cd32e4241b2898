package types

// ChatResponse is the non-streaming success body.
type ChatResponse struct {
	Text string `json:"text"`
}
