package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var arxivDOIPattern = regexp.MustCompile(`arxiv\.(.+)(?:\.pdf)?$`)

// ArxivIDFromDOI returns the bare arXiv id embedded in a DOI such as
// "10.48550/arXiv.2301.00001". The DOI is trimmed and lower-cased before
// matching and a trailing ".pdf" is dropped.
func ArxivIDFromDOI(doi string) (string, error) {
	m := arxivDOIPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(doi)))
	if m == nil {
		return "", WrapError(ErrMalformedDOI, "arxiv id from doi", fmt.Errorf("unable to extract arxiv id from doi: %s", doi))
	}
	id := strings.TrimSuffix(m[1], ".pdf")
	if id == "" {
		return "", WrapError(ErrMalformedDOI, "arxiv id from doi", fmt.Errorf("empty arxiv id in doi: %s", doi))
	}
	return id, nil
}

// ArxivIDFilenameFromDOI is the filesystem-safe form of ArxivIDFromDOI.
func ArxivIDFilenameFromDOI(doi string) (string, error) {
	id, err := ArxivIDFromDOI(doi)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(id, "/", "_"), nil
}

func CanonicalArxivID(id string) string {
	return "arXiv:" + id
}
