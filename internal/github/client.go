package github

import (
	"context"
	"net/http"
	"time"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"
)

// Client wraps the GitHub API client with rate limiting support
type Client struct {
	*github.Client
}

// NewClient creates a GitHub client that waits out rate limits.
// An empty token gives an unauthenticated client (60 requests/hour), which
// is enough for enriching a few dozen projects.
func NewClient(ctx context.Context, token string) (*Client, error) {
	// Handles primary and secondary (abuse detection) rate limits by
	// sleeping until the limit resets.
	rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(
		&http.Transport{ResponseHeaderTimeout: 30 * time.Second},
	)
	if err != nil {
		return nil, err
	}

	ghClient := github.NewClient(rateLimiter)
	if token != "" {
		ghClient = ghClient.WithAuthToken(token)
	}

	return &Client{Client: ghClient}, nil
}
