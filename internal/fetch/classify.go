package fetch

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
)

// The upstream signals session state only through urls and markup, every marker it uses
// lives here so callers never inspect raw responses themselves.
const (
	loginFormXPath     = `//*[@id="command"]`
	loginFormAction    = "login.html"
	loginSuccessMarker = "index.html?act=login"
	// responses of this endpoint family are a list, only its first element is returned
	firstElementFamily = "apiBattles"
)

var (
	// redirects here mean an anti-bot challenge was served instead of the page
	challengeMarkers = []string{"google.com"}
	expiredMarkers   = []string{"notLoggedIn", "error"}
)

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// ClassifyResponse maps the final url and status of a response to nil when its body should be
// read, or to the error describing why it should not.
func ClassifyResponse(finalURL string, status int) error {
	if containsAny(finalURL, challengeMarkers) || status == http.StatusForbidden {
		return &ClassifiedError{
			Kind:   KindTransient,
			Reason: fmt.Sprintf("anti-bot challenge (status %d)", status),
			URL:    finalURL,
		}
	}
	if containsAny(finalURL, expiredMarkers) {
		return &ClassifiedError{
			Kind:   KindSessionExpired,
			Reason: "redirected to a not logged in page",
			URL:    finalURL,
		}
	}
	if status != http.StatusOK {
		return &ClassifiedError{
			Kind:   KindTransient,
			Reason: fmt.Sprintf("unexpected status %d", status),
			URL:    finalURL,
		}
	}
	return nil
}

// ClassifyPayload returns an upstream error if a decoded object carries an "error" field.
func ClassifyPayload(value any) error {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	reported, ok := obj["error"]
	if !ok {
		return nil
	}
	reason, ok := reported.(string)
	if !ok {
		reason = fmt.Sprint(reported)
	}
	return &ClassifiedError{Kind: KindUpstream, Reason: reason}
}

// HasLoginForm reports whether the document is the login page served in place of the
// requested one.
func HasLoginForm(doc *goquery.Document) bool {
	if doc == nil || len(doc.Nodes) == 0 {
		return false
	}
	forms, err := htmlquery.QueryAll(doc.Nodes[0], loginFormXPath)
	if err != nil {
		return false
	}
	for _, form := range forms {
		if strings.Contains(htmlquery.SelectAttr(form, "action"), loginFormAction) {
			return true
		}
	}
	return false
}

// LoginSucceeded reports whether the url a login post ended on means the login worked.
func LoginSucceeded(finalURL string) bool {
	return strings.Contains(finalURL, loginSuccessMarker)
}

func returnsFirstElement(link string) bool {
	return strings.Contains(link, firstElementFamily)
}
