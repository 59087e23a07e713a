package fetch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Kind selects how a response body is interpreted.
type Kind int

const (
	// KindAuto treats urls that look like api endpoints as structured, everything else as markup.
	KindAuto Kind = iota
	KindStructured
	KindMarkup
)

func (k Kind) String() string {
	switch k {
	case KindStructured:
		return "structured"
	case KindMarkup:
		return "markup"
	}
	return "auto"
}

// ParseKind is the inverse of Kind.String, the empty string is KindAuto.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "auto":
		return KindAuto, nil
	case "structured":
		return KindStructured, nil
	case "markup":
		return KindMarkup, nil
	}
	return KindAuto, fmt.Errorf("unknown payload kind %q", s)
}

// Shape selects what a markup fetch returns, structured fetches ignore it.
type Shape int

const (
	// ShapeURL returns only the final url after redirects.
	ShapeURL Shape = iota
	ShapeDocument
	ShapeDocumentWithURL
)

func (s Shape) String() string {
	switch s {
	case ShapeDocument:
		return "document"
	case ShapeDocumentWithURL:
		return "document-url"
	}
	return "url"
}

// ParseShape is the inverse of Shape.String, the empty string is ShapeURL.
func ParseShape(s string) (Shape, error) {
	switch s {
	case "", "url":
		return ShapeURL, nil
	case "document":
		return ShapeDocument, nil
	case "document-url":
		return ShapeDocumentWithURL, nil
	}
	return ShapeURL, fmt.Errorf("unknown result shape %q", s)
}

// Request is a single fetch. A non-nil Form turns the request into a POST.
type Request struct {
	URL   string
	Form  url.Values
	Kind  Kind
	Shape Shape
}

func (r Request) Method() string {
	if r.Form != nil {
		return http.MethodPost
	}
	return http.MethodGet
}

func (r Request) resolvedKind() Kind {
	if r.Kind != KindAuto {
		return r.Kind
	}
	if strings.Contains(r.URL, "api") {
		return KindStructured
	}
	return KindMarkup
}

// Payload is a decoded structured response. Raw keeps the body as it was received, including
// the key order of objects.
type Payload struct {
	Raw   json.RawMessage
	Value any
}

// Decode unmarshals the raw payload into out.
func (p Payload) Decode(out any) error {
	return json.Unmarshal(p.Raw, out)
}

// Field returns a top level field of an object payload.
func (p Payload) Field(key string) (any, bool) {
	obj, ok := p.Value.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := obj[key]
	return v, ok
}

// Outcome is the result of one fetch, which fields are set depends on the request's kind and
// shape. It is never cached or shared between calls.
type Outcome struct {
	Payload  *Payload
	Document *goquery.Document
	FinalURL string
}

// Empty reports whether the outcome carries no result at all.
func (o Outcome) Empty() bool {
	return o.Payload == nil && o.Document == nil && o.FinalURL == ""
}
