package channel

import (
	"fmt"
	"io"
	"net/http"
)

// readErrorBody reads a bounded prefix of an error response body for
// the failure reason.
func readErrorBody(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return string(body)
}

// classifyHTTPStatus maps a provider response status to a classified
// send failure. Rate limiting and server errors are transient; any
// other non-2xx status is a permanent rejection of this message.
func classifyHTTPStatus(provider string, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return TransientError(
			fmt.Sprintf("%s API error: status %d", provider, resp.StatusCode),
			fmt.Errorf("body: %s", readErrorBody(resp)),
		)
	default:
		return PermanentError(
			fmt.Sprintf("%s rejected message: status %d", provider, resp.StatusCode),
			fmt.Errorf("body: %s", readErrorBody(resp)),
		)
	}
}
