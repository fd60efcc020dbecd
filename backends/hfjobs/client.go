// Package hfjobs implements the direct training-submission backend.
package hfjobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/phuslu/log"

	"finetune-orchestrator/backends"
	"finetune-orchestrator/core/models"
)

const defaultEndpoint = "https://huggingface.co/api/jobs"

// Client submits jobs to the hub's training-job API. An empty token marks the
// backend as unavailable, which the orchestrator treats as a fallback signal.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// NewClient creates a new direct-submission client. endpoint may be empty to
// use the public API.
func NewClient(endpoint, token string) *Client {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		token:    token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name returns the backend identifier.
func (c *Client) Name() models.Backend {
	return models.BackendDirectAPI
}

// Available reports whether an API token is configured.
func (c *Client) Available() bool {
	return c.token != ""
}

// hyperparameters mirrors the API's training configuration block.
type hyperparameters struct {
	NumTrainEpochs          int     `json:"num_train_epochs"`
	PerDeviceTrainBatchSize int     `json:"per_device_train_batch_size"`
	LearningRate            string  `json:"learning_rate"`
	WarmupRatio             float64 `json:"warmup_ratio"`
	LoggingSteps            int     `json:"logging_steps"`
	SaveSteps               int     `json:"save_steps"`
}

type submitPayload struct {
	ModelNameOrPath string          `json:"model_name_or_path"`
	DatasetName     string          `json:"dataset_name"`
	TrainingType    string          `json:"training_type"`
	Hardware        string          `json:"hardware"`
	Hyperparameters hyperparameters `json:"hyperparameters"`
}

type jobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// Submit creates a training job and returns its opaque handle.
func (c *Client) Submit(ctx context.Context, req backends.SubmitRequest) (*backends.Submission, error) {
	if !c.Available() {
		return nil, backends.ErrUnavailable
	}

	payload := submitPayload{
		ModelNameOrPath: req.Model,
		DatasetName:     req.Dataset,
		TrainingType:    string(req.Method),
		Hardware:        req.Hardware,
		Hyperparameters: hyperparameters{
			NumTrainEpochs:          req.Epochs,
			PerDeviceTrainBatchSize: req.BatchSize,
			LearningRate:            configOr(req.Config, "learning_rate", "2e-5"),
			WarmupRatio:             0.1,
			LoggingSteps:            10,
			SaveSteps:               500,
		},
	}

	var resp jobResponse
	if err := c.do(ctx, http.MethodPost, c.endpoint, payload, &resp); err != nil {
		return nil, err
	}
	if resp.JobID == "" {
		return nil, fmt.Errorf("submission accepted but no job id returned")
	}

	log.Info().Str("backend", string(c.Name())).Str("job_id", resp.JobID).Msg("Training job submitted")

	return &backends.Submission{
		Ref:        resp.JobID,
		MonitorURL: fmt.Sprintf("https://huggingface.co/jobs/%s", resp.JobID),
	}, nil
}

// Status fetches the backend-native status for a job handle.
func (c *Client) Status(ctx context.Context, ref string) (*backends.RawStatus, error) {
	if !c.Available() {
		return nil, backends.ErrUnavailable
	}

	var resp jobResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/%s", c.endpoint, ref), nil, &resp); err != nil {
		return nil, err
	}

	return &backends.RawStatus{
		Status:  resp.Status,
		HTMLURL: fmt.Sprintf("https://huggingface.co/jobs/%s", ref),
	}, nil
}

// Cancel stops a running job.
func (c *Client) Cancel(ctx context.Context, ref string) error {
	if !c.Available() {
		return backends.ErrUnavailable
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("%s/%s/cancel", c.endpoint, ref), nil, nil)
}

func (c *Client) do(ctx context.Context, method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s returned %d: %s", method, url, resp.StatusCode, string(data))
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func configOr(config map[string]string, key, fallback string) string {
	if v, ok := config[key]; ok && v != "" {
		return v
	}
	return fallback
}

var _ backends.TrainingBackend = (*Client)(nil)
