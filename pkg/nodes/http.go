package nodes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

// maxResponseBody bounds how much of a remote response is read into memory.
const maxResponseBody = 10 << 20

// Response is a fully read HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Do sends req and maps failures onto the node error taxonomy: deadlines become TimeoutError,
// 401/403 become AuthError and every other failure becomes RemoteError.
func Do(client *http.Client, req *http.Request) (*Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, transportError(req, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, transportError(req, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Status: resp.StatusCode, Body: string(body)}
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, &RemoteError{Status: resp.StatusCode, Body: string(body)}
	}

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func transportError(req *http.Request, err error) error {
	op := fmt.Sprintf("%s %s", req.Method, req.URL.Redacted())

	if errors.Is(req.Context().Err(), context.Canceled) {
		return req.Context().Err()
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &TimeoutError{Op: op, Err: err}
	}

	return &RemoteError{Err: fmt.Errorf("%s: %w", op, err)}
}
