package hcl

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

const (
	// ContentTypeHCL is the custom MIME type for HCL configuration
	ContentTypeHCL = "application/vnd.hcl"

	// ContentTypeJSON is the standard MIME type for JSON
	ContentTypeJSON = "application/json"
)

// hclMediaTypes are the Content-Type values accepted as HCL
var hclMediaTypes = map[string]bool{
	ContentTypeHCL:    true,
	"application/hcl": true,
	"text/x-hcl":      true,
}

// DetectContentType determines if the content is JSON or HCL based on content-type header and content inspection
func DetectContentType(r *http.Request) (string, error) {
	if contentType := r.Header.Get("Content-Type"); contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			if hclMediaTypes[mediaType] {
				return ContentTypeHCL, nil
			}
			if mediaType == ContentTypeJSON {
				return ContentTypeJSON, nil
			}
		}
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read request body: %w", err)
	}

	// Reset the body so it can be read again later
	r.Body = io.NopCloser(bytes.NewBuffer(body))

	return DetectContent(body), nil
}

// DetectContent guesses the format of a config body. JSON starts with { or [;
// anything else that parses as HCL is HCL. JSON is the fallback.
func DetectContent(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ContentTypeJSON
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return ContentTypeJSON
	}
	if IsHCL(trimmed) {
		return ContentTypeHCL
	}
	return ContentTypeJSON
}

// IsHCLBasedOnExtension checks if the filename has an HCL extension
func IsHCLBasedOnExtension(filename string) bool {
	return strings.HasSuffix(filename, ".hcl") ||
		strings.HasSuffix(filename, ".pipeline")
}
