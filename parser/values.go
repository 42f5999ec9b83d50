package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Storefront JSON is loosely typed: ids arrive as numbers or strings, prices
// as strings or numbers, tags as a list or a comma separated string. The
// types below accept every shape seen in the wild.

var null = []byte("null")

// ID is a platform identifier kept as its decimal text.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, null) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Decimal is a price or measure kept as text, e.g. "19.99".
type Decimal string

func (d *Decimal) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, null) {
		*d = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = Decimal(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("decimal: %w", err)
	}
	*d = Decimal(n.String())
	return nil
}

// Cents is an integer amount of minor currency units.
type Cents int64

func (c *Cents) UnmarshalJSON(b []byte) error {
	var d Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	if d == "" {
		*c = 0
		return nil
	}
	f, err := strconv.ParseFloat(string(d), 64)
	if err != nil {
		return fmt.Errorf("cents: %w", err)
	}
	*c = Cents(math.Round(f))
	return nil
}

// TagList accepts ["a","b"] or "a, b".
type TagList []string

func (t *TagList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, null) {
		*t = nil
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = SplitTags(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	*t = list
	return nil
}

// Text accepts a plain string or a WordPress {"rendered": "..."} object.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, null) {
		*t = ""
		return nil
	}
	if b[0] == '{' {
		var rendered struct {
			Rendered string `json:"rendered"`
		}
		if err := json.Unmarshal(b, &rendered); err != nil {
			return err
		}
		*t = Text(rendered.Rendered)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("text: %w", err)
	}
	*t = Text(s)
	return nil
}

// SplitTags splits a comma separated tag string, dropping blanks.
func SplitTags(s string) []string {
	var tags []string
	for _, part := range strings.Split(s, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
