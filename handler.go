package afetch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/net/html/charset"
)

// decodeResponse applies the selected response handler to a raw
// response. For ResponseTypeRaw the body is left unconsumed and the
// caller owns closing it; every other handler drains and closes it.
func decodeResponse(resp *http.Response, rt ResponseType) (*Response, error) {
	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Type:       rt,
	}

	if rt == ResponseTypeRaw {
		out.Raw = resp
		return out, nil
	}

	body, err := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("closing response body: %w", closeErr)
	}
	out.Bytes = body

	switch rt {
	case ResponseTypeBytes:
		return out, nil
	case ResponseTypeText:
		out.Text = decodeText(body, resp.Header.Get("Content-Type"))
		return out, nil
	case ResponseTypeJSON:
		if err := json.Unmarshal(body, &out.JSON); err != nil {
			return nil, fmt.Errorf("parsing JSON response: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown response type %q", rt)
	}
}

// decodeText converts body bytes to a string honouring the charset
// declared in the Content-Type header, with UTF-8 as the fallback.
func decodeText(body []byte, contentType string) string {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return string(body)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}

// responseFromEntry rebuilds a replayable *http.Response from a cache
// entry so cached and dispatched responses decode identically.
func responseFromEntry(entry *CacheEntry) *http.Response {
	return &http.Response{
		StatusCode: entry.StatusCode,
		Header:     entry.Header.Clone(),
		Body:       io.NopCloser(bytes.NewReader(entry.Body)),
	}
}

// entryFromResponse snapshots a response into a cache entry, restoring
// the body for downstream decoding.
func entryFromResponse(resp *http.Response) (*CacheEntry, error) {
	var body []byte
	if resp.Body != nil {
		var err error
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading response body for cache: %w", err)
		}
		_ = resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(body))
	}
	return &CacheEntry{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}
