// ABOUTME: Google Gmail API client construction for the email source
// ABOUTME: Creates an authenticated Gmail service from a stored OAuth token
package sync

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// NewGmailClient creates a Gmail API service from a stored token. The
// oauth2 client refreshes the token transparently.
func NewGmailClient(token *oauth2.Token) (*gmail.Service, error) {
	if token == nil {
		return nil, fmt.Errorf("token cannot be nil")
	}

	config := NewOAuthConfig()
	client := config.Client(context.Background(), token)

	service, err := gmail.NewService(context.Background(), option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return service, nil
}
