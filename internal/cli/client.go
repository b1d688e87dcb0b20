package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/imrishuroy/go-collection-sync/internal/jobs"
	"github.com/imrishuroy/go-collection-sync/internal/jobstatus"
	"github.com/imrishuroy/go-collection-sync/internal/syncsession"
)

const userHeader = "X-User-Id"

// APIError is a non 2xx answer from the api.
type APIError struct {
	StatusCode int
	Code       string          `json:"error"`
	Msg        string          `json:"msg"`
	Rows       json.RawMessage `json:"rows"`
	Fields     json.RawMessage `json:"fields"`
}

func (e *APIError) Error() string {
	s := fmt.Sprintf("api returned %d %s", e.StatusCode, e.Code)
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	for _, details := range []json.RawMessage{e.Rows, e.Fields} {
		if len(details) > 0 {
			s += " " + string(details)
		}
	}
	return s
}

type client struct {
	opts *RootOptions
}

func (c client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.opts.APIURL, "/")+path, body)
	if err != nil {
		return nil, fmt.Errorf("can't build http request: %w", err)
	}
	if c.opts.UserID != "" {
		req.Header.Set(userHeader, c.opts.UserID)
	}
	return req, nil
}

func (c client) do(req *http.Request, out any) error {
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("can't send request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("can't decode response: %w", err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	apiErr := &APIError{StatusCode: resp.StatusCode}
	_ = json.NewDecoder(resp.Body).Decode(apiErr)
	return apiErr
}

func (c client) importCSV(ctx context.Context, data []byte, idempotencyKey string) (jobs.Receipt, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/sync/csv", bytes.NewReader(data))
	if err != nil {
		return jobs.Receipt{}, err
	}
	req.Header.Set("Content-Type", "text/csv")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	var r jobs.Receipt
	return r, c.do(req, &r)
}

func (c client) session(ctx context.Context, id string) (syncsession.View, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/sync/sessions/"+id, nil)
	if err != nil {
		return syncsession.View{}, err
	}
	var v syncsession.View
	return v, c.do(req, &v)
}

// watch calls fn for every status frame until the stream ends.
func (c client) watch(ctx context.Context, jobID string, fn func(jobstatus.Event) error) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/sync/jobs/"+jobID+"/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("can't open status stream: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}

	return readEvents(resp.Body, func(name, data string) error {
		if name != "status" {
			return nil
		}
		var ev jobstatus.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("can't decode status frame: %w", err)
		}
		return fn(ev)
	})
}

// readEvents splits a text/event-stream body into (event, data) frames.
func readEvents(r io.Reader, fn func(name, data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)

	var name string
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				if err := fn(name, strings.Join(data, "\n")); err != nil {
					return err
				}
			}
			name, data = "", nil
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("can't read status stream: %w", err)
	}
	return nil
}
