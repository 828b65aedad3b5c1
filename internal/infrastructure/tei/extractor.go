// Package tei reads article authorship out of Grobid TEI XML.
package tei

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/beevik/etree"

	"github.com/cometadata/preprint-affiliations/internal/core/domain"
)

// Namespace is the TEI P5 namespace used by Grobid.
const Namespace = "http://www.tei-c.org/ns/1.0"

var (
	dummyNotePath      = etree.MustCompilePath("./" + step("note", "@type='dummy_author'"))
	persNamePath       = etree.MustCompilePath("./" + step("persName"))
	firstForenamePath  = etree.MustCompilePath("./" + step("forename", "@type='first'"))
	surnamePath        = etree.MustCompilePath("./" + step("surname"))
	affiliationPath    = etree.MustCompilePath("./" + step("affiliation"))
	rawAffiliationPath = etree.MustCompilePath("./" + step("note", "@type='raw_affiliation'"))
)

// step builds a namespace-qualified path step with optional extra filters.
func step(tag string, filters ...string) string {
	var sb strings.Builder
	sb.WriteString(tag)
	for _, f := range filters {
		sb.WriteString("[" + f + "]")
	}
	sb.WriteString("[namespace-uri()='" + Namespace + "']")
	return sb.String()
}

type Extractor struct {
	logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

func (e *Extractor) Extract(teiXML string) ([]domain.AuthorAffiliation, error) {
	return extract(teiXML, e.logger)
}

// Extract returns the authors of the analytic (article-level) bibliographic
// section in document order. Placeholder authors and authors without a usable
// name are left out.
func Extract(teiXML string) ([]domain.AuthorAffiliation, error) {
	return extract(teiXML, slog.Default())
}

func extract(teiXML string, logger *slog.Logger) ([]domain.AuthorAffiliation, error) {
	root, err := readRoot(teiXML)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTEIParse, "read tei xml", err)
	}

	prediction := make([]domain.AuthorAffiliation, 0)
	for _, author := range analyticAuthors(root) {
		if author.FindElementPath(dummyNotePath) != nil {
			continue
		}

		pers := author.FindElementPath(persNamePath)
		if pers == nil {
			continue
		}

		name := joinName(
			childText(pers, firstForenamePath),
			childText(pers, surnamePath),
		)
		if name == "" {
			continue
		}

		rawAffiliation := ""
		aff := author.FindElementPath(affiliationPath)
		logger.Debug("tei affiliation lookup", "author", name, "found", aff != nil)
		if aff != nil {
			note := aff.FindElementPath(rawAffiliationPath)
			logger.Debug("tei raw affiliation lookup", "author", name, "found", note != nil)
			if note != nil {
				rawAffiliation = strings.TrimSpace(innerText(note))
			}
		}

		record := domain.AuthorAffiliation{
			Name:         name,
			Affiliations: []domain.AffiliationEntry{},
		}
		if rawAffiliation != "" {
			record.Affiliations = append(record.Affiliations, domain.AffiliationEntry{Affiliation: rawAffiliation})
		}
		prediction = append(prediction, record)
	}
	return prediction, nil
}

// readRoot parses a complete XML document: exactly one root element, with
// only whitespace, comments and processing instructions around it.
func readRoot(teiXML string) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(teiXML); err != nil {
		return nil, err
	}

	var root *etree.Element
	for _, tok := range doc.Child {
		switch t := tok.(type) {
		case *etree.Element:
			if root != nil {
				return nil, fmt.Errorf("extra root element <%s> after <%s>", t.Tag, root.Tag)
			}
			root = t
		case *etree.CharData:
			if strings.TrimSpace(t.Data) != "" {
				return nil, fmt.Errorf("text outside the root element: %q", strings.TrimSpace(t.Data))
			}
		}
	}
	if root == nil {
		return nil, errors.New("no root element")
	}
	return root, nil
}

// analyticAuthors returns the TEI author children of every TEI analytic
// element below root, visiting elements in document order.
func analyticAuthors(root *etree.Element) []*etree.Element {
	var authors []*etree.Element
	var walk func(*etree.Element)
	walk = func(el *etree.Element) {
		for _, child := range el.ChildElements() {
			if isTEI(child, "analytic") {
				for _, author := range child.ChildElements() {
					if isTEI(author, "author") {
						authors = append(authors, author)
					}
				}
			}
			walk(child)
		}
	}
	walk(root)
	return authors
}

func isTEI(el *etree.Element, tag string) bool {
	return el.Tag == tag && el.NamespaceURI() == Namespace
}

func joinName(first, surname string) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{strings.TrimSpace(first), strings.TrimSpace(surname)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// childText is the leading text of the first element matched by path.
func childText(e *etree.Element, path etree.Path) string {
	child := e.FindElementPath(path)
	if child == nil {
		return ""
	}
	return child.Text()
}

// innerText concatenates every character data node below e in document
// order, nested elements included.
func innerText(e *etree.Element) string {
	var sb strings.Builder
	var walk func(*etree.Element)
	walk = func(el *etree.Element) {
		for _, tok := range el.Child {
			switch t := tok.(type) {
			case *etree.CharData:
				sb.WriteString(t.Data)
			case *etree.Element:
				walk(t)
			}
		}
	}
	walk(e)
	return sb.String()
}
