package main

import (
	"bufio"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptrace"
	"net/http/httputil"
	"os"
	"path/filepath"
)

type ResponseWrapper struct {
	*http.Response
	Text string
}

// creates a key that is unique to the given `http.Request` URL (including query parameters),
// hashed to an MD5 string.
// the result can be safely used as a filename.
func MakeCacheKey(r *http.Request) string {
	// inconsistent case and url params etc will cause cache misses
	key := r.URL.String()
	md5sum := md5.Sum([]byte(key))
	return hex.EncodeToString(md5sum[:])
}

// a `http.RoundTripper` that stores successful responses on disk and replays them.
// only useful during development, where the same few hundred requests are made over and over.
type FileCachingRequest struct {
	Dir       string
	Transport http.RoundTripper
}

// returns a path like "/path/to/cache-dir/711f20df1f76da140218e51445a6fc47"
func (x FileCachingRequest) CachePath(cache_key string) string {
	return filepath.Join(x.Dir, cache_key)
}

// reads the cached response as if it were the result of `httputil.DumpResponse`,
// a status code, followed by a series of headers, followed by the response body.
func (x FileCachingRequest) ReadCacheEntry(cache_key string, req *http.Request) (*http.Response, error) {
	fh, err := os.Open(x.CachePath(cache_key))
	if err != nil {
		return nil, err
	}
	resp, err := http.ReadResponse(bufio.NewReader(fh), req)
	if err != nil {
		fh.Close()
		return nil, err
	}
	resp.Body = readCloser{resp.Body, fh}
	return resp, nil
}

// closes the response body and the cache file underneath it.
type readCloser struct {
	io.ReadCloser
	fh *os.File
}

func (rc readCloser) Close() error {
	err := rc.ReadCloser.Close()
	rc.fh.Close()
	return err
}

func (x FileCachingRequest) transport() http.RoundTripper {
	if x.Transport == nil {
		return http.DefaultTransport
	}
	return x.Transport
}

func (x FileCachingRequest) RoundTrip(req *http.Request) (*http.Response, error) {
	cache_key := MakeCacheKey(req)
	cache_path := x.CachePath(cache_key)
	cached_resp, err := x.ReadCacheEntry(cache_key, req)
	if err == nil {
		slog.Debug("cache HIT", "url", req.URL, "cache-path", cache_path)
		return cached_resp, nil
	}

	slog.Debug("cache MISS", "url", req.URL, "cache-path", cache_path, "error", err)

	resp, err := x.transport().RoundTrip(req)
	if err != nil {
		// do not cache error response, pass through
		slog.Error("error with transport, pass through")
		return resp, err
	}

	// rate limited and failed responses must never be replayed.
	if resp.StatusCode != 200 {
		slog.Debug("non-200 response, pass through", "code", resp.StatusCode)
		return resp, nil
	}

	dumped_bytes, err := httputil.DumpResponse(resp, true)
	if err != nil {
		slog.Warn("failed to dump response to bytes", "error", err)
		return resp, nil
	}

	err = os.WriteFile(cache_path, dumped_bytes, 0o644)
	if err != nil {
		slog.Warn("failed to write cache file", "cache-path", cache_path, "error", err)
		return resp, nil
	}

	cached_resp, err = x.ReadCacheEntry(cache_key, req)
	if err != nil {
		slog.Warn("failed to read cache file", "error", err)
		return resp, nil
	}
	resp.Body.Close()
	return cached_resp, nil
}

// client trace to log whether the request's underlying tcp connection was re-used
func trace_context() context.Context {
	client_tracer := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			slog.Debug("HTTP connection reuse", "reused", info.Reused, "remote", info.Conn.RemoteAddr())
		},
	}
	return httptrace.WithClientTrace(context.Background(), client_tracer)
}

// builds the http client used for every request.
// when `cache_dir` is non-empty responses are cached there.
func new_client(cache_dir string) (*http.Client, error) {
	client := &http.Client{}
	if cache_dir == "" {
		return client, nil
	}
	err := os.MkdirAll(cache_dir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	client.Transport = &FileCachingRequest{Dir: cache_dir}
	return client, nil
}

func download(url string, headers map[string]string) (ResponseWrapper, error) {
	slog.Debug("HTTP GET", "url", url)
	empty_response := ResponseWrapper{}

	// ---

	req, err := http.NewRequestWithContext(trace_context(), http.MethodGet, url, nil)
	if err != nil {
		return empty_response, fmt.Errorf("failed to create request: %w", err)
	}
	for header, header_val := range headers {
		req.Header.Set(header, header_val)
	}

	// ---

	client := STATE.Client
	resp, err := client.Do(req)
	if err != nil {
		return empty_response, fmt.Errorf("failed to fetch '%s': %w", url, err)
	}
	defer resp.Body.Close()

	// ---

	content_bytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty_response, fmt.Errorf("failed to read response body: %w", err)
	}

	return ResponseWrapper{
		Response: resp,
		Text:     string(content_bytes),
	}, nil
}
