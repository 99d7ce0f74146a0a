package mlflow

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gidra39/mlflow-promote/types"

	"github.com/pkg/errors"
)

// GetExperimentByName returns nil without an error when no experiment has
// that name.
func (c *Client) GetExperimentByName(ctx context.Context, name string) (*types.Experiment, error) {
	var resp types.GetExperimentResponse
	err := c.do(ctx, http.MethodGet, "/experiments/get-by-name", url.Values{"experiment_name": {name}}, nil, &resp)
	if IsErrorCode(err, ErrorCodeResourceDoesNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &resp.Experiment, nil
}

func (c *Client) CreateExperiment(ctx context.Context, name string) (string, error) {
	var resp types.CreateExperimentResponse
	if err := c.do(ctx, http.MethodPost, "/experiments/create", nil, types.CreateExperimentRequest{Name: name}, &resp); err != nil {
		return "", err
	}
	if resp.ExperimentID == "" {
		return "", errors.Errorf("experiments/create returned no id for %q", name)
	}
	return resp.ExperimentID, nil
}

// SearchRuns returns a single page of runs; callers bound it with MaxResults.
func (c *Client) SearchRuns(ctx context.Context, req types.SearchRunsRequest) ([]types.Run, error) {
	var resp types.SearchRunsResponse
	if err := c.do(ctx, http.MethodPost, "/runs/search", nil, req, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

func (c *Client) CreateRegisteredModel(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/registered-models/create", nil, types.CreateRegisteredModelRequest{Name: name}, nil)
}

func (c *Client) CreateModelVersion(ctx context.Context, req types.CreateModelVersionRequest) (*types.ModelVersion, error) {
	var resp types.ModelVersionResponse
	if err := c.do(ctx, http.MethodPost, "/model-versions/create", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp.ModelVersion, nil
}

// RegisterModel creates the registered model when it is missing and then a
// new version of it pointing at source. Every call mints a new version.
func (c *Client) RegisterModel(ctx context.Context, name, source, runID string, tags []types.Tag) (*types.ModelVersion, error) {
	if err := c.CreateRegisteredModel(ctx, name); err != nil {
		if !IsErrorCode(err, ErrorCodeResourceExists) {
			return nil, errors.Wrapf(err, "failed to create registered model %q", name)
		}
		c.logger.Debug().Str("model", name).Msg("registered model already exists")
	} else {
		c.logger.Info().Str("model", name).Msg("created registered model")
	}

	mv, err := c.CreateModelVersion(ctx, types.CreateModelVersionRequest{
		Name:   name,
		Source: source,
		RunID:  runID,
		Tags:   tags,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create a version of %q", name)
	}
	return mv, nil
}

func (c *Client) GetModelVersion(ctx context.Context, name, version string) (*types.ModelVersion, error) {
	var resp types.ModelVersionResponse
	q := url.Values{"name": {name}, "version": {version}}
	if err := c.do(ctx, http.MethodGet, "/model-versions/get", q, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.ModelVersion, nil
}

// SetRegisteredModelAlias points alias at version, replacing any previous
// target.
func (c *Client) SetRegisteredModelAlias(ctx context.Context, name, alias, version string) error {
	return c.do(ctx, http.MethodPost, "/registered-models/alias", nil, types.SetAliasRequest{
		Name:    name,
		Alias:   alias,
		Version: version,
	}, nil)
}
