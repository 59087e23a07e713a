// Package fetch implements the retrying fetch primitive: one request against one session,
// bounded retries with a fixed backoff, and classification of whatever came back.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"esimassist-backend/internal/components/assert"
	"esimassist-backend/internal/components/chrono"
	"esimassist-backend/internal/components/telemetry"
	"esimassist-backend/internal/session"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("esimassist/fetch")

const (
	report_fetch_attempt   = "fetch.attempt"
	report_fetch_exhausted = "fetch.exhausted"
)

const (
	DefaultMaxAttempts = 5
	DefaultBackoff     = 5 * time.Second
)

type Options struct {
	// MaxAttempts bounds the attempts made by a single call, it defaults to DefaultMaxAttempts.
	MaxAttempts int
	// Backoff is waited between attempts that failed transiently, it defaults to
	// DefaultBackoff.
	Backoff time.Duration
}

// Fetcher makes requests on behalf of the auth layer. It keeps no state between calls so a
// single value is shared by every target.
type Fetcher struct {
	opts  Options
	sleep chrono.SleepAPI
	tel   telemetry.API
}

func NewFetcher(opts Options, sleep chrono.SleepAPI, tel telemetry.API) Fetcher {
	assert.NotNil(sleep)
	assert.NotNil(tel)

	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	} else if opts.Backoff == 0 {
		opts.Backoff = DefaultBackoff
	}

	return Fetcher{
		opts:  opts,
		sleep: sleep,
		tel:   telemetry.NewScopedAPI("fetch", tel),
	}
}

// Attempt performs req with s, retrying transient failures. It returns a ClassifiedError
// whose kind is KindSessionExpired, KindUpstream or KindExhausted, or ctx.Err() if ctx is
// done first.
func (f Fetcher) Attempt(ctx context.Context, s *session.Session, req Request) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "fetch:Attempt")
	defer span.End()

	span.SetAttributes(
		attribute.String("url", req.URL),
		attribute.String("method", req.Method()),
		attribute.String("target", string(s.Target)),
		attribute.String("kind", req.resolvedKind().String()),
	)

	var last error
	for attempt := 1; attempt <= f.opts.MaxAttempts; attempt++ {
		span.SetAttributes(attribute.Int("attempts", attempt))

		out, err := f.attemptOnce(ctx, s, req)
		if err == nil {
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			span.SetStatus(codes.Error, ctxErr.Error())
			return Outcome{}, ctxErr
		}

		var classified *ClassifiedError
		if !errors.As(err, &classified) || classified.Kind != KindTransient {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Outcome{}, err
		}

		last = err
		f.tel.ReportWarning(report_fetch_attempt, err, attempt)
		if attempt == f.opts.MaxAttempts {
			break
		}
		if err := f.sleep.Sleep(ctx, f.opts.Backoff); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return Outcome{}, err
		}
	}

	err := &ClassifiedError{
		Kind:   KindExhausted,
		Reason: fmt.Sprintf("gave up after %d attempts", f.opts.MaxAttempts),
		URL:    req.URL,
		Err:    last,
	}
	f.tel.ReportWarning(report_fetch_exhausted, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return Outcome{}, err
}

func (f Fetcher) attemptOnce(ctx context.Context, s *session.Session, req Request) (Outcome, error) {
	r := s.Http.R().SetContext(ctx)
	if req.Form != nil {
		r.SetFormDataFromValues(req.Form)
	}
	res, err := r.Execute(req.Method(), req.URL)
	if err != nil {
		return Outcome{}, transient("request failed", err)
	}

	final := FinalURL(res, req.URL)
	if err := ClassifyResponse(final, res.StatusCode()); err != nil {
		return Outcome{}, err
	}

	if req.resolvedKind() == KindStructured {
		payload, err := decodeStructured(req.URL, res.Body())
		if err != nil {
			var classified *ClassifiedError
			if errors.As(err, &classified) {
				classified.URL = req.URL
			}
			return Outcome{}, err
		}
		return Outcome{Payload: payload, FinalURL: final}, nil
	}

	doc, err := parseMarkup(res.Body())
	if err != nil {
		return Outcome{}, err
	}
	if HasLoginForm(doc) {
		return Outcome{}, &ClassifiedError{
			Kind:   KindSessionExpired,
			Reason: "login form served in place of the page",
			URL:    final,
		}
	}

	switch req.Shape {
	case ShapeDocument:
		return Outcome{Document: doc}, nil
	case ShapeDocumentWithURL:
		return Outcome{Document: doc, FinalURL: final}, nil
	}
	return Outcome{FinalURL: final}, nil
}

// FinalURL returns the url a response was served from after following redirects, or
// fallback if the response does not carry it.
func FinalURL(res *resty.Response, fallback string) string {
	if res == nil || res.RawResponse == nil || res.RawResponse.Request == nil ||
		res.RawResponse.Request.URL == nil {
		return fallback
	}
	return res.RawResponse.Request.URL.String()
}

// decodeStructured decodes body regardless of the declared content type.
func decodeStructured(link string, body []byte) (*Payload, error) {
	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return nil, transient("decode structured response", err)
	}
	if value == nil {
		return nil, transient("structured response is null", nil)
	}
	if err := ClassifyPayload(value); err != nil {
		return nil, err
	}

	raw := json.RawMessage(body)
	if returnsFirstElement(link) {
		var list []json.RawMessage
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, transient("structured response is not a list", err)
		}
		if len(list) == 0 {
			return nil, transient("structured response is an empty list", nil)
		}
		raw = list[0]
		value = nil
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, transient("decode first element", err)
		}
	}

	return &Payload{Raw: raw, Value: value}, nil
}

var errEmptyDocument = errors.New("empty document")

// parseMarkup parses body, retrying once without its first byte since some pages are
// served with a stray leading character. A blank body is a parse failure.
func parseMarkup(body []byte) (*goquery.Document, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, transient("parse markup", errEmptyDocument)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err == nil {
		return doc, nil
	}
	if len(body) > 0 {
		doc, retryErr := goquery.NewDocumentFromReader(bytes.NewReader(body[1:]))
		if retryErr == nil {
			return doc, nil
		}
		err = retryErr
	}
	return nil, transient("parse markup", err)
}
