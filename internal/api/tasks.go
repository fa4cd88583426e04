package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
)

// ListTasks returns the tasks visible to the current user.
func (c *Client) ListTasks(ctx context.Context, q TaskQuery) ([]Task, error) {
	query := url.Values{}
	if q.Status != "" {
		query.Set("status", q.Status)
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	var out struct {
		Tasks []Task `json:"tasks"`
		Count int    `json:"count"`
	}
	err := c.doJSON(ctx, request{method: http.MethodGet, route: "/api/tasks", path: "/api/tasks", query: query}, &out)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return out.Tasks, nil
}

// Classify asks the server to queue an uploaded task.
func (c *Client) Classify(ctx context.Context, jobID string) error {
	err := c.doJSON(ctx, request{
		method: http.MethodPost,
		route:  "/api/classify/{id}",
		path:   "/api/classify/" + url.PathEscape(jobID),
	}, nil)
	if err != nil {
		return fmt.Errorf("start %s: %w", jobID, err)
	}
	return nil
}

// DeleteTask cancels a processing task or deletes any other. It returns the
// server's message.
func (c *Client) DeleteTask(ctx context.Context, jobID string) (string, error) {
	var out messageResponse
	err := c.doJSON(ctx, request{
		method: http.MethodDelete,
		route:  "/api/tasks/{id}",
		path:   "/api/tasks/" + url.PathEscape(jobID),
	}, &out)
	if err != nil {
		return "", fmt.Errorf("delete %s: %w", jobID, err)
	}
	return out.Message, nil
}

// Download streams the classified workbook for jobID into w.
func (c *Client) Download(ctx context.Context, jobID string, w io.Writer) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.send(ctx, request{
		method: http.MethodGet,
		route:  "/api/download/{id}",
		path:   "/api/download/" + url.PathEscape(jobID),
	})
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", jobID, err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return n, fmt.Errorf("download %s: %w", jobID, &NetworkError{Kind: Timeout, Err: err})
		}
		return n, fmt.Errorf("download %s: %w", jobID, err)
	}
	return n, nil
}

// Upload sends a workbook as multipart form data with its topic.
func (c *Client) Upload(ctx context.Context, filename string, content io.Reader, topicID string) (UploadResult, error) {
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		err := writeUploadForm(form, filename, content, topicID)
		if err == nil {
			err = form.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	var out UploadResult
	err := c.doJSON(ctx, request{
		method:      http.MethodPost,
		route:       "/api/upload",
		path:        "/api/upload",
		rawBody:     pr,
		contentType: form.FormDataContentType(),
	}, &out)
	_ = pr.Close()
	if err != nil {
		return UploadResult{}, fmt.Errorf("upload %s: %w", filepath.Base(filename), err)
	}
	return out, nil
}

func writeUploadForm(form *multipart.Writer, filename string, content io.Reader, topicID string) error {
	if err := form.WriteField("topic_id", topicID); err != nil {
		return err
	}
	part, err := form.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, content)
	return err
}
