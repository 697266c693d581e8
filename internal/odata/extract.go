package odata

import (
	"encoding/json"
	"regexp"
	"strings"
)

// odataErrorBody mirrors the v2 error envelope plus the SAP
// innererror extension.
type odataErrorBody struct {
	Error struct {
		Code    string          `json:"code"`
		Message json.RawMessage `json:"message"`
		Details []struct {
			Message string `json:"message"`
		} `json:"details"`
		InnerError struct {
			Message      string `json:"message"`
			ErrorDetails []struct {
				Message string `json:"message"`
			} `json:"errordetails"`
			Application struct {
				MessageText string `json:"message_text"`
			} `json:"application"`
		} `json:"innererror"`
	} `json:"error"`
}

var xmlMessageRegex = regexp.MustCompile(`(?s)<message[^>]*>(.*?)</message>`)

const maxRawErrorText = 500

// ExtractUpstreamError turns a non-2xx response body into an
// UpstreamError, trying the JSON envelope first, then an XML
// <message>, then the raw text.
func ExtractUpstreamError(status int, body []byte) *UpstreamError {
	ue := &UpstreamError{Status: status}

	if msg, code, details, ok := extractJSONError(body); ok {
		ue.Message = msg
		ue.Code = code
		ue.Details = details
		return ue
	}

	if m := xmlMessageRegex.FindSubmatch(body); m != nil {
		ue.Message = strings.TrimSpace(string(m[1]))
		return ue
	}

	text := strings.TrimSpace(string(body))
	if len(text) > maxRawErrorText {
		text = text[:maxRawErrorText] + "..."
	}
	if text == "" {
		text = "no error details provided"
	}
	ue.Message = text
	return ue
}

func extractJSONError(body []byte) (message, code string, details []string, ok bool) {
	var parsed odataErrorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", "", nil, false
	}
	e := parsed.Error
	code = e.Code

	// message may be {"lang":..,"value":..} or a bare string.
	if len(e.Message) > 0 {
		var wrapped struct {
			Value string `json:"value"`
		}
		if err := json.Unmarshal(e.Message, &wrapped); err == nil && wrapped.Value != "" {
			message = wrapped.Value
		} else {
			var plain string
			if err := json.Unmarshal(e.Message, &plain); err == nil {
				message = plain
			}
		}
	}

	if message == "" {
		message = e.InnerError.Message
	}
	if message == "" {
		for _, d := range e.Details {
			if d.Message != "" {
				message = d.Message
				break
			}
		}
	}
	if message == "" {
		message = e.InnerError.Application.MessageText
	}

	for _, d := range e.InnerError.ErrorDetails {
		if d.Message != "" && d.Message != message {
			details = append(details, d.Message)
		}
	}
	if message == "" && len(details) > 0 {
		message = strings.Join(details, "; ")
		details = nil
	}

	return message, code, details, message != "" || code != ""
}
