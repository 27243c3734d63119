package http

import (
	"fmt"
	"net/url"
)

// BuildURL joins a base URL, a path and query parameters into a full URL.
// Query keys are encoded in sorted order, so the same inputs always produce
// the same URL string.
func BuildURL(baseURL, path string, queryParams map[string]string) (string, error) {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("error parsing base URL: %w", err)
	}

	parsedURL.Path = path

	q := url.Values{}
	for key, value := range queryParams {
		q.Set(key, value)
	}
	parsedURL.RawQuery = q.Encode()

	return parsedURL.String(), nil
}
