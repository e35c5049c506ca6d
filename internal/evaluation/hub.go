// internal/evaluation/hub.go
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mwiater/supportbot/internal/logging"
)

// hubPageSize is the largest page the datasets-server rows endpoint returns.
const hubPageSize = 100

type hubRowsResponse struct {
	Rows []struct {
		RowIdx int            `json:"row_idx"`
		Row    map[string]any `json:"row"`
	} `json:"rows"`
	NumRowsTotal int `json:"num_rows_total"`
}

// FetchHubDataset downloads the first n rows of a Hugging Face dataset split through the
// datasets-server rows API at baseURL.
func FetchHubDataset(ctx context.Context, client *http.Client, baseURL, dataset, split string, n int) ([]Item, error) {
	if n <= 0 {
		return nil, fmt.Errorf("sample count must be positive, got %d", n)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if split == "" {
		split = "train"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	var docs []map[string]any
	for offset := 0; len(docs) < n; {
		length := min(hubPageSize, n-len(docs))
		page, err := fetchHubPage(ctx, client, baseURL, dataset, split, offset, length)
		if err != nil {
			return nil, err
		}
		for _, r := range page.Rows {
			docs = append(docs, r.Row)
		}
		offset += len(page.Rows)
		if len(page.Rows) == 0 || (page.NumRowsTotal > 0 && offset >= page.NumRowsTotal) {
			break
		}
	}

	items, err := itemsFromDocs(docs)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", dataset, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("dataset %s returned no rows", dataset)
	}
	return items, nil
}

func fetchHubPage(ctx context.Context, client *http.Client, baseURL, dataset, split string, offset, length int) (hubRowsResponse, error) {
	q := url.Values{}
	q.Set("dataset", dataset)
	q.Set("config", "default")
	q.Set("split", split)
	q.Set("offset", strconv.Itoa(offset))
	q.Set("length", strconv.Itoa(length))
	endpoint := baseURL + "/rows?" + q.Encode()

	logging.LogRequest("BOT->HUB", baseURL, dataset, map[string]string{"method": http.MethodGet, "url": endpoint})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return hubRowsResponse{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return hubRowsResponse{}, fmt.Errorf("fetch dataset rows: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return hubRowsResponse{}, err
	}
	logging.LogRequest("HUB->BOT", baseURL, dataset, fmt.Sprintf("%d bytes", len(body)))

	if resp.StatusCode != http.StatusOK {
		return hubRowsResponse{}, fmt.Errorf("datasets-server: /rows returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var page hubRowsResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return hubRowsResponse{}, fmt.Errorf("decode /rows response: %w", err)
	}
	return page, nil
}
