package simulator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// httpCall is the host side of Functions.makeHttpRequest. Failures are
// reported to the script as values, never as Go errors.
func (e *execution) httpCall(config map[string]interface{}) map[string]interface{} {
	failed := func(code, format string, args ...interface{}) map[string]interface{} {
		msg := fmt.Sprintf(format, args...)
		e.log.Debug("simulated http request failed", "code", code, "message", msg)
		return map[string]interface{}{"failed": true, "code": code, "message": msg}
	}

	e.httpRequests++
	if e.httpRequests > e.limits.MaxHTTPRequests {
		return failed("ERR_LIMIT", "HTTP request limit of %d exceeded", e.limits.MaxHTTPRequests)
	}

	rawURL, _ := config["url"].(string)
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return failed("ERR_INVALID_URL", "invalid URL %q", rawURL)
	}
	if params, ok := config["params"].(map[string]interface{}); ok && len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			q.Set(k, fmt.Sprint(v))
		}
		u.RawQuery = q.Encode()
	}

	timeout := e.limits.MaxHTTPDuration
	switch t := config["timeout"].(type) {
	case int64:
		timeout = time.Duration(t) * time.Millisecond
	case float64:
		timeout = time.Duration(t * float64(time.Millisecond))
	}
	if timeout <= 0 || timeout > e.limits.MaxHTTPDuration {
		timeout = e.limits.MaxHTTPDuration
	}

	ctx, cancel := context.WithTimeout(e.ctx, timeout)
	defer cancel()

	method, _ := config["method"].(string)
	data, _ := config["data"].(string)
	var body io.Reader
	if data != "" {
		body = strings.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), u.String(), body)
	if err != nil {
		return failed("ERR_BAD_REQUEST", "%v", err)
	}
	if data != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if headers, ok := config["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			req.Header.Set(k, fmt.Sprint(v))
		}
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return failed("ECONNABORTED", "timeout of %dms exceeded", timeout.Milliseconds())
		}
		return failed("ERR_NETWORK", "%v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, e.limits.MaxHTTPResponseBytes+1))
	if err != nil {
		return failed("ERR_NETWORK", "reading response: %v", err)
	}
	if int64(len(respBody)) > e.limits.MaxHTTPResponseBytes {
		return failed("ERR_FR_MAX_BODY_LENGTH_EXCEEDED", "response exceeds %d bytes", e.limits.MaxHTTPResponseBytes)
	}

	e.log.Debug("simulated http request",
		"method", req.Method,
		"host", u.Host,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	headers := make(map[string]interface{}, len(resp.Header))
	for k, v := range resp.Header {
		headers[strings.ToLower(k)] = strings.Join(v, ", ")
	}

	return map[string]interface{}{
		"failed":     false,
		"status":     resp.StatusCode,
		"statusText": http.StatusText(resp.StatusCode),
		"headers":    headers,
		"body":       string(respBody),
		"json":       gjson.ValidBytes(respBody),
	}
}
