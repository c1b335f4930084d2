package gateway

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/edi-link/dispatch-gateway/internal/api"
	"github.com/edi-link/dispatch-gateway/internal/config"
)

// errBodyTooLarge signals that the request body exceeded the configured cap,
// surfaced by handlers as a 413 response.
type errBodyTooLarge struct{}

func (errBodyTooLarge) Error() string { return "request body too large" }

// writeBodyError maps a readRawBody failure to the appropriate HTTP status,
// giving every handler the same body-error behavior.
func writeBodyError(w http.ResponseWriter, err error) {
	if _, ok := err.(errBodyTooLarge); ok {
		api.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large", nil)
		return
	}
	api.WriteError(w, http.StatusBadRequest, "could not read request body", nil)
}

// readRawBody reads the request body honoring both Content-Length and
// chunked transfer encoding, enforcing a fixed size cap across either mode.
// This mirrors the upstream gateway's own manual body reader, which predates
// any framework's body-limiting middleware.
func readRawBody(r *http.Request) ([]byte, error) {
	if strings.Contains(strings.ToLower(r.Header.Get("Transfer-Encoding")), "chunked") {
		return readChunkedBody(r.Body)
	}
	return readLengthDelimitedBody(r)
}

func readLengthDelimitedBody(r *http.Request) ([]byte, error) {
	if r.ContentLength <= 0 {
		if r.ContentLength == 0 {
			return nil, nil
		}
		// Unknown length with no chunked encoding: read up to the cap and
		// detect overflow with one extra byte.
		return readCapped(r.Body)
	}
	if r.ContentLength > config.MaxRequestBodyBytes {
		return nil, errBodyTooLarge{}
	}
	data := make([]byte, r.ContentLength)
	if _, err := io.ReadFull(r.Body, data); err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	return data, nil
}

func readCapped(r io.Reader) ([]byte, error) {
	limited := io.LimitReader(r, config.MaxRequestBodyBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	if int64(len(data)) > config.MaxRequestBodyBytes {
		return nil, errBodyTooLarge{}
	}
	return data, nil
}

// readChunkedBody manually decodes an HTTP/1.1 chunked transfer-encoded
// body: a sequence of "<hex-size>[;ext]\r\n<data>\r\n" chunks terminated by a
// zero-size chunk and an optional trailer section, enforcing the size cap as
// chunks accumulate.
func readChunkedBody(body io.Reader) ([]byte, error) {
	reader := bufio.NewReader(body)
	var out []byte

	for {
		sizeLine, err := reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("reading chunk size: %w", err)
		}
		sizeLine = strings.TrimRight(sizeLine, "\r\n")
		if idx := strings.IndexByte(sizeLine, ';'); idx >= 0 {
			sizeLine = sizeLine[:idx]
		}
		size, err := strconv.ParseInt(strings.TrimSpace(sizeLine), 16, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chunk size: %w", err)
		}

		if size == 0 {
			// Consume trailer headers up to the terminating blank line.
			for {
				line, err := reader.ReadString('\n')
				if err != nil {
					return nil, fmt.Errorf("reading trailer: %w", err)
				}
				if strings.TrimRight(line, "\r\n") == "" {
					break
				}
			}
			break
		}

		if int64(len(out))+size > config.MaxRequestBodyBytes {
			return nil, errBodyTooLarge{}
		}

		chunk := make([]byte, size)
		if _, err := io.ReadFull(reader, chunk); err != nil {
			return nil, fmt.Errorf("reading chunk data: %w", err)
		}
		out = append(out, chunk...)

		// Consume the trailing CRLF after each chunk's data.
		if _, err := reader.Discard(2); err != nil {
			return nil, fmt.Errorf("reading chunk terminator: %w", err)
		}
	}

	return out, nil
}
