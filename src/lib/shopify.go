package lib

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const adminApiVersion = "2024-10"

const metafieldsSetMutation = `
mutation metafieldsSet($metafields: [MetafieldsSetInput!]!) {
	metafieldsSet(metafields: $metafields) {
		metafields { id }
		userErrors { field message }
	}
}`

// TokenProvider resolves the offline Admin API access token for a shop.
type TokenProvider func(shop string) (string, error)

// AdminGateway pushes committed balance changes into the shop's customer
// metafields through the Shopify Admin GraphQL API.
type AdminGateway struct {
	client *http.Client
	tokens TokenProvider
}

func NewAdminGateway() *AdminGateway {
	return &AdminGateway{
		client: &http.Client{Timeout: 10 * time.Second},
		tokens: func(shop string) (string, error) {
			token := os.Getenv("SHOPIFY_ACCESS_TOKEN")
			if token == "" {
				return "", fmt.Errorf("no access token configured for %s", shop)
			}
			return token, nil
		},
	}
}

func NewAdminGatewayWithTokens(tokens TokenProvider) *AdminGateway {
	g := NewAdminGateway()
	g.tokens = tokens
	return g
}

// RefreshCustomerBalance writes the customer's current store-credit balance
// to the credit_notes.balance metafield and refreshes the local cache.
func (g *AdminGateway) RefreshCustomerBalance(ctx context.Context, shop string, customerID string, balance decimal.Decimal) error {
	token, err := g.tokens(shop)
	if err != nil {
		return err
	}
	body, err := json.Marshal(map[string]any{
		"query": metafieldsSetMutation,
		"variables": map[string]any{
			"metafields": []map[string]any{
				{
					"ownerId":   customerGID(customerID),
					"namespace": "credit_notes",
					"key":       "balance",
					"type":      "number_decimal",
					"value":     balance.StringFixed(2),
				},
			},
		},
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("https://%s/admin/api/%s/graphql.json", shop, adminApiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", token)

	res, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		InvalidateCustomerBalance(shop, customerID)
		return fmt.Errorf("admin api returned %d: %s", res.StatusCode, string(raw))
	}
	if errs := gjson.GetBytes(raw, "data.metafieldsSet.userErrors"); errs.Exists() && len(errs.Array()) > 0 {
		InvalidateCustomerBalance(shop, customerID)
		return fmt.Errorf("metafieldsSet failed: %s", errs.Raw)
	}

	CacheCustomerBalance(shop, customerID, balance)
	log.Printf("Refreshed balance metafield for customer [%s] on %s\n", customerID, shop)
	return nil
}

func customerGID(customerID string) string {
	if strings.HasPrefix(customerID, "gid://") {
		return customerID
	}
	return fmt.Sprintf("gid://shopify/Customer/%s", customerID)
}
