package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/pmtool/internal/client/auth"
)

func (c *Cli) runStatus(ctx context.Context) error {
	c.io.Println("=== Authentication Status ===")
	c.io.Println()

	session, err := c.authService.Stored(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrNotAuthenticated) {
			c.io.Println("Status: Not authenticated")
			c.io.Println()
			c.io.Println("Run 'pmctl login' to authenticate.")
			return nil
		}
		return fmt.Errorf("failed to check authentication: %w", err)
	}

	c.io.Println("Status: Authenticated")
	c.io.Printf("Email:   %s\n", session.Email)
	c.io.Printf("User ID: %s\n", session.UserID)
	if session.Server != "" {
		c.io.Printf("Server:  %s\n", session.Server)
	}

	if session.ExpiresAt == 0 {
		return nil
	}

	expiresAt := time.Unix(session.ExpiresAt, 0)
	c.io.Printf("Token expires: %s\n", expiresAt.Format(time.RFC3339))
	if remaining := time.Until(expiresAt); remaining > 0 {
		c.io.Printf("Time remaining: %s\n", remaining.Round(time.Second))
	} else {
		c.io.Println("⚠️  Token has expired. Please login again.")
	}

	return nil
}
