package types

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Citation is one source reference attached to an assistant message.
// Numbers are 1-based and dense, matching appearance order in the text.
type Citation struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Date   string `json:"date,omitempty"`
}

// citationWire tolerates the number arriving as either a JSON number or a
// string ("1"), which upstream emits inconsistently.
type citationWire struct {
	Number json.RawMessage `json:"number"`
	Title  string          `json:"title"`
	URL    string          `json:"url"`
	Date   string          `json:"date,omitempty"`
}

func (c *Citation) UnmarshalJSON(data []byte) error {
	var w citationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.Title = w.Title
	c.URL = w.URL
	c.Date = w.Date
	c.Number = 0
	if len(w.Number) == 0 {
		return nil
	}
	var n int
	if err := json.Unmarshal(w.Number, &n); err == nil {
		c.Number = n
		return nil
	}
	var s string
	if err := json.Unmarshal(w.Number, &s); err != nil {
		return fmt.Errorf("citation number: %s", w.Number)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("citation number %q: %w", s, err)
	}
	c.Number = n
	return nil
}
