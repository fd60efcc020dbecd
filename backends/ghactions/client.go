// Package ghactions implements the workflow-dispatch training backend.
package ghactions

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/phuslu/log"
	"golang.org/x/oauth2"

	"finetune-orchestrator/backends"
	"finetune-orchestrator/core/models"
)

// Client triggers a training workflow via workflow_dispatch. The dispatch call
// returns nothing, so the newly created run is discovered by listing the
// workflow's runs immediately after dispatch.
type Client struct {
	gh           *github.Client
	owner        string
	repo         string
	workflowFile string
	ref          string
	configured   bool
}

// Options configures the workflow-dispatch backend.
type Options struct {
	Token        string
	Owner        string
	Repo         string
	WorkflowFile string // e.g. "train-model.yml"
	Ref          string // branch to dispatch against, e.g. "main"
}

// NewClient creates a workflow-dispatch client. A missing token or repository
// leaves the backend unavailable rather than failing construction.
func NewClient(opts Options) *Client {
	c := &Client{
		owner:        opts.Owner,
		repo:         opts.Repo,
		workflowFile: opts.WorkflowFile,
		ref:          opts.Ref,
	}
	if c.workflowFile == "" {
		c.workflowFile = "train-model.yml"
	}
	if c.ref == "" {
		c.ref = "main"
	}
	if opts.Token == "" || opts.Owner == "" || opts.Repo == "" {
		return c
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: opts.Token},
	)
	tc := oauth2.NewClient(context.Background(), ts)
	c.gh = github.NewClient(tc)
	c.configured = true
	return c
}

// Name returns the backend identifier.
func (c *Client) Name() models.Backend {
	return models.BackendWorkflowDispatch
}

// Available reports whether a token and repository are configured.
func (c *Client) Available() bool {
	return c.configured
}

// Submit dispatches the training workflow and resolves the created run.
func (c *Client) Submit(ctx context.Context, req backends.SubmitRequest) (*backends.Submission, error) {
	if !c.Available() {
		return nil, backends.ErrUnavailable
	}

	configJSON, err := json.Marshal(req.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	dispatchedAt := time.Now().UTC()
	event := github.CreateWorkflowDispatchEventRequest{
		Ref: c.ref,
		Inputs: map[string]interface{}{
			"model_name":      req.Model,
			"dataset":         req.Dataset,
			"training_method": string(req.Method),
			"hardware":        req.Hardware,
			"config_json":     string(configJSON),
		},
	}

	_, err = c.gh.Actions.CreateWorkflowDispatchEventByFileName(ctx, c.owner, c.repo, c.workflowFile, event)
	if err != nil {
		return nil, fmt.Errorf("workflow dispatch failed: %w", err)
	}

	run, err := c.findDispatchedRun(ctx, dispatchedAt)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("backend", string(c.Name())).
		Int64("run_id", run.GetID()).
		Str("workflow", c.workflowFile).
		Msg("Training workflow dispatched")

	return &backends.Submission{
		Ref:         strconv.FormatInt(run.GetID(), 10),
		WorkflowURL: run.GetHTMLURL(),
	}, nil
}

// findDispatchedRun polls the run listing until a run created at or after the
// dispatch shows up. Runs take a moment to materialize after the dispatch call.
func (c *Client) findDispatchedRun(ctx context.Context, dispatchedAt time.Time) (*github.WorkflowRun, error) {
	opts := &github.ListWorkflowRunsOptions{
		ListOptions: github.ListOptions{PerPage: 5},
	}

	// Allow for clock skew between this host and the API.
	cutoff := dispatchedAt.Add(-30 * time.Second)

	var newest *github.WorkflowRun
	for attempt := 0; attempt < 5; attempt++ {
		runs, _, err := c.gh.Actions.ListWorkflowRunsByFileName(ctx, c.owner, c.repo, c.workflowFile, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list workflow runs: %w", err)
		}

		for _, run := range runs.WorkflowRuns {
			if newest == nil || run.GetCreatedAt().After(newest.GetCreatedAt().Time) {
				newest = run
			}
			if !run.GetCreatedAt().Before(cutoff) {
				return run, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	if newest != nil {
		return newest, nil
	}
	return nil, fmt.Errorf("dispatched workflow run not found for %s", c.workflowFile)
}

// Status fetches a run's (status, conclusion) pair.
func (c *Client) Status(ctx context.Context, ref string) (*backends.RawStatus, error) {
	if !c.Available() {
		return nil, backends.ErrUnavailable
	}

	runID, err := ParseRunID(ref)
	if err != nil {
		return nil, err
	}

	run, _, err := c.gh.Actions.GetWorkflowRunByID(ctx, c.owner, c.repo, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow run %d: %w", runID, err)
	}

	return &backends.RawStatus{
		Status:     run.GetStatus(),
		Conclusion: run.GetConclusion(),
		HTMLURL:    run.GetHTMLURL(),
	}, nil
}

// Cancel requests cancellation of a run.
func (c *Client) Cancel(ctx context.Context, ref string) error {
	if !c.Available() {
		return backends.ErrUnavailable
	}

	runID, err := ParseRunID(ref)
	if err != nil {
		return err
	}

	_, err = c.gh.Actions.CancelWorkflowRunByID(ctx, c.owner, c.repo, runID)
	if err != nil {
		return fmt.Errorf("failed to cancel workflow run %d: %w", runID, err)
	}
	return nil
}

// ParseRunID recovers the numeric run id from a backend ref or a namespaced
// job id. This is the single place an external id is parsed out of a string.
func ParseRunID(ref string) (int64, error) {
	raw := strings.TrimPrefix(ref, models.WorkflowIDPrefix)
	runID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid workflow run id %q", ref)
	}
	return runID, nil
}

var _ backends.TrainingBackend = (*Client)(nil)
