/**
 * @description
 * This file provides a client for the customer reference service. The
 * linking core only needs read-only customer data: the caller's identity is
 * already established by the auth middleware, so this client exists solely
 * to fetch display attributes (names, email) for the presentation side
 * channel.
 */
package customerclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Customer carries the display attributes of a customer.
type Customer struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Client provides methods to interact with the customer reference service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new customer service client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetCustomer retrieves one customer's display attributes. The bearer token
// from the original request is forwarded for authentication.
func (c *Client) GetCustomer(ctx context.Context, customerID, authToken string) (*Customer, error) {
	url := fmt.Sprintf("%s/customers/%s", c.baseURL, customerID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if authToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", authToken))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("Error calling customer service: %v", err)
		return nil, fmt.Errorf("failed to call customer service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("Customer service returned status %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("customer service returned status %d", resp.StatusCode)
	}

	var customer Customer
	if err := json.Unmarshal(body, &customer); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &customer, nil
}
