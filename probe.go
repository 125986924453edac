package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/snabb/httpreaderat"

	bufra "github.com/avvmoto/buf-readerat"
)

// how much of the start of a file is read looking for a banner comment.
const BANNER_WINDOW = 1024

// what we learn about a library's latest file without downloading all of it.
type LatestFile struct {
	Size   int64
	Banner string
}

// "/*! jQuery v3.7.1 | (c) OpenJS Foundation */\n..." => "jQuery v3.7.1 | (c) OpenJS Foundation"
// returns an empty string if the text doesn't open with a block comment.
func extract_banner(text string) string {
	text = strings.TrimPrefix(text, "\uFEFF")
	text = strings.TrimLeft(text, " \t\r\n")
	if !strings.HasPrefix(text, "/*") {
		return ""
	}
	end := strings.Index(text, "*/")
	if end == -1 {
		// comment runs past the window
		return ""
	}
	body := strings.TrimPrefix(text[2:end], "!")
	line_list := []string{}
	for _, line := range strings.Split(body, "\n") {
		line = trim(strings.TrimPrefix(trim(line), "*"))
		if line != "" {
			line_list = append(line_list, line)
		}
	}
	return strings.Join(line_list, " ")
}

// finds the size of the file at `url` and the banner comment at the start of it, if any,
// using HTTP range requests so only the first few bytes are transferred.
func probe_latest(url string) (LatestFile, error) {
	empty_response := LatestFile{}

	req, err := http.NewRequestWithContext(trace_context(), http.MethodGet, url, nil)
	if err != nil {
		return empty_response, fmt.Errorf("failed to create request: %w", err)
	}

	// a 'readerat' is an implementation of the built-in Go interface `io.ReaderAt`,
	// that provides a means to jump around within the bytes of a remote file using
	// HTTP Range requests.
	http_readerat, err := httpreaderat.New(STATE.Client, req, nil)
	if err != nil {
		return empty_response, fmt.Errorf("failed to create a HTTPReaderAt: %w", err)
	}

	size := http_readerat.Size()
	if size == 0 {
		return LatestFile{}, nil
	}
	window := min(size, BANNER_WINDOW)

	// a 'buffered readerat' remembers the bytes read of a `io.ReaderAt` implementation,
	// so the window is fetched in a single request.
	buffered_http_readerat := bufra.NewBufReaderAt(http_readerat, int(window))

	head := make([]byte, window)
	_, err = buffered_http_readerat.ReadAt(head, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return empty_response, fmt.Errorf("failed to read start of file: %w", err)
	}

	return LatestFile{
		Size:   size,
		Banner: extract_banner(string(head)),
	}, nil
}
