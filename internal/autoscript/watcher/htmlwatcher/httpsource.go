package htmlwatcher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
)

// HTTPSource fetches the document at URL on every poll, using a shared
// http.Client so TCP connections are reused across polls.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// NewHTTPSource returns a Source polling url with client, or a sane default
// client if client is nil.
func NewHTTPSource(url string, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{URL: url, Client: client}
}

// Fetch implements Source.
func (s *HTTPSource) Fetch() (string, string, error) {
	resp, err := s.Client.Get(s.URL)
	if err != nil {
		return "", "", fmt.Errorf("htmlwatcher: fetch %s: %w", s.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("htmlwatcher: fetch %s: status %d", s.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("htmlwatcher: read body: %w", err)
	}

	sum := sha256.Sum256(body)
	return string(body), hex.EncodeToString(sum[:]), nil
}

// PageURL implements URLSource.
func (s *HTTPSource) PageURL() string {
	return s.URL
}
