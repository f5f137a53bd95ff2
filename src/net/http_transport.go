package net

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MalekiRe/nexus-social/src/common"
	"github.com/MalekiRe/nexus-social/src/identity"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds a single push when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// maxErrorBody limits how much of a rejected response is read back.
const maxErrorBody = 4096

// ErrRejected is wrapped in the error returned when a peer refused the message
// itself, e.g. with a 4xx status. Retrying the same message will not change the
// answer.
var ErrRejected = errors.New("rejected by peer")

// IsPermanent reports whether a failed push should not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrRejected)
}

// HTTPTransport pushes federation messages as JSON POST requests.
type HTTPTransport struct {
	client *http.Client
	logger *logrus.Entry
}

// NewHTTPTransport returns a transport whose requests are abandoned after
// timeout.
func NewHTTPTransport(timeout time.Duration, logger *logrus.Entry) *HTTPTransport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	return &HTTPTransport{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Push implements the Transport interface.
func (t *HTTPTransport) Push(ctx context.Context, target identity.Identity, route string, body []byte) error {
	url := target.BaseURL() + "/" + route

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return common.WrapErr("Delivery", common.DeliveryFailed, url, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()

	resp, err := t.client.Do(req)
	if err != nil {
		return common.WrapErr("Delivery", common.DeliveryFailed, url, err)
	}
	defer resp.Body.Close()

	t.logger.WithFields(logrus.Fields{
		"url":      url,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("Push")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	cause := fmt.Errorf("%s: %s", resp.Status, readProblem(resp.Body))

	if rejectedStatus(resp.StatusCode) {
		cause = fmt.Errorf("%w: %v", ErrRejected, cause)
	}

	return common.WrapErr("Delivery", common.DeliveryFailed, url, cause)
}

// Close implements the Transport interface.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// rejectedStatus reports whether a response status refuses the message for
// good. 408 and 429 only ask the sender to come back later.
func rejectedStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return code >= 400 && code < 500
}

// readProblem extracts the problem field of an error response, falling back to
// the raw body.
func readProblem(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))

	if problem := jsoniter.Get(b, "problem").ToString(); problem != "" {
		return problem
	}

	return string(bytes.TrimSpace(b))
}
