package service

import "encoding/json"

type FetchRequest struct {
	Url string `json:"url"`
	// Form makes the fetch a POST with these values.
	Form map[string][]string `json:"form,omitempty"`
	// Kind is one of auto, structured or markup.
	Kind string `json:"kind,omitempty"`
	// Shape is one of url, document or document-url.
	Shape string `json:"shape,omitempty"`
}

type FetchResponse struct {
	FinalUrl string          `json:"final_url,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	// Document is the fetched page rendered back to html.
	Document string `json:"document,omitempty"`
}

type StopRequest struct {
	Channel string `json:"channel"`
	Command string `json:"command"`
}

type ShouldStopResponse struct {
	Stop bool `json:"stop"`
}

type RequestStopResponse struct {
	// Running is false if the operation was not running, nothing was stopped then.
	Running bool `json:"running"`
}
