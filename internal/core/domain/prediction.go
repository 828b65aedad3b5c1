package domain

import (
	"bytes"
	"encoding/json"
)

// AffiliationEntry is one raw affiliation string of an author. RORID stays nil
// until an organization matcher fills it.
type AffiliationEntry struct {
	Affiliation string  `json:"affiliation"`
	RORID       *string `json:"ror_id"`
}

type AuthorAffiliation struct {
	Name         string             `json:"name"`
	Affiliations []AffiliationEntry `json:"affiliations"`
}

// PredictionDocument is one JSON Lines record of the TEI export. Field order
// is part of the output contract.
type PredictionDocument struct {
	ArxivID    string              `json:"arxiv_id"`
	DOI        string              `json:"doi"`
	Prediction []AuthorAffiliation `json:"prediction"`
}

// Normalized returns a copy whose prediction and affiliation lists are never
// nil.
func (d PredictionDocument) Normalized() PredictionDocument {
	out := d
	out.Prediction = make([]AuthorAffiliation, len(d.Prediction))
	for i, author := range d.Prediction {
		if author.Affiliations == nil {
			author.Affiliations = []AffiliationEntry{}
		}
		out.Prediction[i] = author
	}
	return out
}

// MarshalJSON keeps empty lists as [] instead of null and leaves &, < and >
// unescaped. Callers encoding with html escaping on still get it applied.
func (d PredictionDocument) MarshalJSON() ([]byte, error) {
	type alias PredictionDocument
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(alias(d.Normalized())); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// SourceRecord is one row of the input record list.
type SourceRecord struct {
	DOI    string
	Fields map[string]string
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// AffiliationParse is one line of the model-based affiliation parse output.
type AffiliationParse struct {
	Source     string `json:"source"`
	Prediction []any  `json:"prediction"`
}
