// Package fencedjson recovers the JSON answer a model wraps in a fenced code
// block.
package fencedjson

import (
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/cometadata/preprint-affiliations/internal/core/domain"
)

// The opening fence may carry a json tag; the body is the shortest span up to
// a closing fence on its own line.
var fencedBlockPattern = regexp.MustCompile("(?i)```(?:json)?\\s*\\n([\\s\\S]*?)\\n```")

// Recover parses the body of the first fenced block in output. It fails with
// domain.ErrNoFencedBlock when there is no block and domain.ErrInvalidJSON
// when the body is not exactly one JSON value. Numbers decode as json.Number.
func Recover(output string) (any, error) {
	m := fencedBlockPattern.FindStringSubmatch(output)
	if m == nil {
		return nil, domain.WrapError(domain.ErrNoFencedBlock, "recover fenced json", errors.New("no ``` block in model output"))
	}
	body := strings.TrimSpace(m[1])

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidJSON, "recover fenced json", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, domain.WrapError(domain.ErrInvalidJSON, "recover fenced json", errors.New("trailing data after json value"))
	}
	return value, nil
}

// Decoder adapts Recover to ports.ResponseDecoder.
type Decoder struct{}

func (Decoder) Decode(output string) (any, error) {
	return Recover(output)
}
