package estimator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultSizeEndpoint = "https://datasets-server.huggingface.co/size"

// HubDatasetSizer resolves dataset example counts from the hub's dataset-size
// endpoint. Lookup failures are reported to the caller, which falls back to
// fixed defaults.
type HubDatasetSizer struct {
	endpoint   string
	httpClient *http.Client
}

// NewHubDatasetSizer creates a sizer against the public endpoint when
// endpoint is empty.
func NewHubDatasetSizer(endpoint string) *HubDatasetSizer {
	if endpoint == "" {
		endpoint = defaultSizeEndpoint
	}
	return &HubDatasetSizer{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sizeResponse struct {
	Size struct {
		Dataset struct {
			NumRows int `json:"num_rows"`
		} `json:"dataset"`
	} `json:"size"`
}

// DatasetSize returns the approximate example count for a dataset.
func (s *HubDatasetSizer) DatasetSize(ctx context.Context, dataset string) (int, error) {
	reqURL := fmt.Sprintf("%s?dataset=%s", s.endpoint, url.QueryEscape(dataset))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("dataset size lookup returned %d", resp.StatusCode)
	}

	var parsed sizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, err
	}
	if parsed.Size.Dataset.NumRows <= 0 {
		return 0, fmt.Errorf("dataset size unavailable for %s", dataset)
	}
	return parsed.Size.Dataset.NumRows, nil
}

var _ DatasetSizer = (*HubDatasetSizer)(nil)
