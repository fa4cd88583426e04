package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

func (c *Client) ListTopics(ctx context.Context) ([]Topic, error) {
	var out struct {
		Topics []Topic `json:"topics"`
	}
	if err := c.doJSON(ctx, request{method: http.MethodGet, route: "/api/topics", path: "/api/topics"}, &out); err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	return out.Topics, nil
}

func (c *Client) GetTopic(ctx context.Context, topicID string) (Topic, error) {
	var out Topic
	err := c.doJSON(ctx, request{
		method: http.MethodGet,
		route:  "/api/topics/{id}",
		path:   "/api/topics/" + url.PathEscape(topicID),
	}, &out)
	if err != nil {
		return Topic{}, fmt.Errorf("get topic %s: %w", topicID, err)
	}
	return out, nil
}

// CreateTopic returns the new topic's identifier.
func (c *Client) CreateTopic(ctx context.Context, in TopicInput) (string, error) {
	var out struct {
		TopicID string `json:"topic_id"`
	}
	if err := c.doJSON(ctx, request{method: http.MethodPost, route: "/api/topics", path: "/api/topics", body: in}, &out); err != nil {
		return "", fmt.Errorf("create topic: %w", err)
	}
	return out.TopicID, nil
}

func (c *Client) UpdateTopic(ctx context.Context, topicID string, patch TopicPatch) error {
	err := c.doJSON(ctx, request{
		method: http.MethodPut,
		route:  "/api/topics/{id}",
		path:   "/api/topics/" + url.PathEscape(topicID),
		body:   patch,
	}, nil)
	if err != nil {
		return fmt.Errorf("update topic %s: %w", topicID, err)
	}
	return nil
}

func (c *Client) DeleteTopic(ctx context.Context, topicID string) error {
	err := c.doJSON(ctx, request{
		method: http.MethodDelete,
		route:  "/api/topics/{id}",
		path:   "/api/topics/" + url.PathEscape(topicID),
	}, nil)
	if err != nil {
		return fmt.Errorf("delete topic %s: %w", topicID, err)
	}
	return nil
}
