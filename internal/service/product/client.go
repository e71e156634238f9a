package product

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zhouzirui/docchat/backend/internal/model/product"
)

// ErrProductSearch wraps every failure of the product search API.
var ErrProductSearch = errors.New("product search failed")

const (
	defaultURL   = "https://websosanh.vn/search-api/get-search-product"
	detailPrefix = "https://websosanh.vn"
	defaultLimit = 3
)

// Config controls the product search client.
type Config struct {
	URL     string
	Limit   int
	Timeout time.Duration
}

// Client queries the websosanh.vn price comparison search.
type Client struct {
	url        string
	limit      int
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	url := cfg.URL
	if url == "" {
		url = defaultURL
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		url:        url,
		limit:      limit,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type searchRequest struct {
	StartOffset                int      `json:"startOffset"`
	NumRow                     int      `json:"numRow"`
	DefaultRow                 int      `json:"defaultRow"`
	CategoryIDs                []int    `json:"categoryIds"`
	MerchantIDs                []int    `json:"merchantIds"`
	RegionIDs                  []int    `json:"regionIds"`
	IsGetResult                bool     `json:"isGetResult"`
	NumPromotedCustomerProduct int      `json:"numPromotedCustomerProduct"`
	PropertyFilters            []string `json:"propertyFilters"`
	PropertyRangeFilters       []string `json:"propertyRangeFilters"`
	Keyword                    string   `json:"keyword"`
	ProductType                string   `json:"productType"`
	IsAppend                   bool     `json:"isAppend"`
	PageIndex                  int      `json:"pageIndex"`
	IsDesktop                  bool     `json:"isDesktop"`
}

type searchResponse struct {
	SearchProductModels []searchProduct `json:"searchProductModels"`
}

type searchProduct struct {
	ProductID        flexString `json:"productId"`
	Image            flexString `json:"image"`
	ProductName      flexString `json:"productName"`
	Price            flexString `json:"price"`
	DetailURL        flexString `json:"detailUrl"`
	MerchantDomain   flexString `json:"merchantDomain"`
	MerchantLogoPath flexString `json:"merchantLogoPath"`
	Provins          flexString `json:"provins"`
	IsOutOfStock     bool       `json:"isOutOfStock"`
}

// flexString accepts JSON strings, numbers and null.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*f = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", trimmed)
	}
	if i, err := n.Int64(); err == nil {
		*f = flexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = flexString(n.String())
	return nil
}

// Search returns the first Limit products matching keyword.
func (c *Client) Search(ctx context.Context, keyword string) ([]product.Product, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("%w: empty keyword", ErrProductSearch)
	}

	body, err := json.Marshal(searchRequest{
		DefaultRow:           40,
		CategoryIDs:          []int{},
		MerchantIDs:          []int{},
		RegionIDs:            []int{},
		IsGetResult:          true,
		PropertyFilters:      []string{},
		PropertyRangeFilters: []string{},
		Keyword:              keyword,
		ProductType:          "0",
		IsAppend:             true,
		PageIndex:            1,
		IsDesktop:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrProductSearch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProductSearch, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProductSearch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrProductSearch, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrProductSearch, err)
	}

	models := result.SearchProductModels
	if len(models) > c.limit {
		models = models[:c.limit]
	}

	products := make([]product.Product, 0, len(models))
	for _, m := range models {
		products = append(products, product.Product{
			ID:               string(m.ProductID),
			Name:             string(m.ProductName),
			Image:            string(m.Image),
			Price:            string(m.Price),
			MerchantDomain:   string(m.MerchantDomain),
			MerchantLogoPath: string(m.MerchantLogoPath),
			Region:           string(m.Provins),
			IsOutOfStock:     m.IsOutOfStock,
			DirectURL:        detailURL(string(m.DetailURL)),
		})
	}

	log.Printf("[product] keyword=%q returned %d products", keyword, len(products))
	return products, nil
}

func detailURL(path string) string {
	if path == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return detailPrefix + path
}
