package promote

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/gidra39/mlflow-promote/types"
)

// fakeBackend is an in-memory tracking server and registry. It honours the
// subset of search semantics the promoter relies on: the FINISHED filter,
// stable metric ordering with missing values last, and MaxResults.
type fakeBackend struct {
	experiments map[string]string
	nextExpID   int
	runs        map[string][]types.Run

	// pendingPolls is how many status reads return PENDING before READY.
	// A negative value means the version never becomes ready.
	pendingPolls int
	failStatus   bool
	statusReads  int

	versions map[string][]types.ModelVersion
	aliases  map[string]map[string]string

	getExperimentErr error
	createExpErr     error
	searchErr        error
	recentSearchErr  error
	registerErr      error
	aliasErr         error

	searches    []types.SearchRunsRequest
	registered  []types.CreateModelVersionRequest
	aliasCalls  []types.SetAliasRequest
	createdExps []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		experiments: map[string]string{},
		nextExpID:   100,
		runs:        map[string][]types.Run{},
		versions:    map[string][]types.ModelVersion{},
		aliases:     map[string]map[string]string{},
	}
}

func (f *fakeBackend) addExperiment(name, id string, runs ...types.Run) {
	f.experiments[name] = id
	f.runs[id] = append(f.runs[id], runs...)
}

func run(id, status string, metrics map[string]float64) types.Run {
	r := types.Run{Info: types.RunInfo{RunID: id, Status: status, ArtifactURI: "dbfs:/databricks/mlflow-tracking/" + id + "/artifacts"}}
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.Data.Metrics = append(r.Data.Metrics, types.Metric{Key: k, Value: metrics[k]})
	}
	return r
}

func (f *fakeBackend) GetExperimentByName(_ context.Context, name string) (*types.Experiment, error) {
	if f.getExperimentErr != nil {
		return nil, f.getExperimentErr
	}
	id, ok := f.experiments[name]
	if !ok {
		return nil, nil
	}
	return &types.Experiment{ExperimentID: id, Name: name}, nil
}

func (f *fakeBackend) CreateExperiment(_ context.Context, name string) (string, error) {
	if f.createExpErr != nil {
		return "", f.createExpErr
	}
	f.nextExpID++
	id := strconv.Itoa(f.nextExpID)
	f.experiments[name] = id
	f.createdExps = append(f.createdExps, name)
	return id, nil
}

func (f *fakeBackend) SearchRuns(_ context.Context, req types.SearchRunsRequest) ([]types.Run, error) {
	f.searches = append(f.searches, req)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.recentSearchErr != nil && req.RunViewType == types.ViewAll {
		return nil, f.recentSearchErr
	}

	var out []types.Run
	for _, id := range req.ExperimentIDs {
		for _, r := range f.runs[id] {
			if strings.Contains(req.Filter, types.RunStatusFinished) && r.Info.Status != types.RunStatusFinished {
				continue
			}
			out = append(out, r)
		}
	}

	if len(req.OrderBy) > 0 && strings.HasPrefix(req.OrderBy[0], "metrics.") {
		fields := strings.Fields(req.OrderBy[0])
		key := strings.Trim(strings.TrimPrefix(fields[0], "metrics."), "`")
		desc := len(fields) > 1 && fields[1] == "DESC"
		sort.SliceStable(out, func(i, j int) bool {
			vi, iok := out[i].Metric(key)
			vj, jok := out[j].Metric(key)
			switch {
			case !iok:
				return false
			case !jok:
				return true
			case desc:
				return vi > vj
			default:
				return vi < vj
			}
		})
	}

	if req.MaxResults > 0 && len(out) > req.MaxResults {
		out = out[:req.MaxResults]
	}
	return out, nil
}

func (f *fakeBackend) RegisterModel(_ context.Context, name, source, runID string, tags []types.Tag) (*types.ModelVersion, error) {
	f.registered = append(f.registered, types.CreateModelVersionRequest{Name: name, Source: source, RunID: runID, Tags: tags})
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	mv := types.ModelVersion{
		Name:    name,
		Version: strconv.Itoa(len(f.versions[name]) + 1),
		Source:  source,
		RunID:   runID,
		Status:  types.VersionStatusPending,
		Tags:    tags,
	}
	f.versions[name] = append(f.versions[name], mv)
	return &mv, nil
}

func (f *fakeBackend) GetModelVersion(_ context.Context, name, version string) (*types.ModelVersion, error) {
	f.statusReads++
	for _, mv := range f.versions[name] {
		if mv.Version != version {
			continue
		}
		switch {
		case f.failStatus:
			mv.Status = types.VersionStatusFailed
			mv.StatusMessage = "artifact missing"
		case f.pendingPolls >= 0 && f.statusReads > f.pendingPolls:
			mv.Status = types.VersionStatusReady
		}
		return &mv, nil
	}
	return nil, &notFound{name: name, version: version}
}

func (f *fakeBackend) SetRegisteredModelAlias(_ context.Context, name, alias, version string) error {
	f.aliasCalls = append(f.aliasCalls, types.SetAliasRequest{Name: name, Alias: alias, Version: version})
	if f.aliasErr != nil {
		return f.aliasErr
	}
	if f.aliases[name] == nil {
		f.aliases[name] = map[string]string{}
	}
	f.aliases[name][alias] = version
	return nil
}

type notFound struct{ name, version string }

func (e *notFound) Error() string { return "no version " + e.version + " of " + e.name }

type recordingNotifier struct {
	messages []string
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, message string) error {
	n.messages = append(n.messages, message)
	return n.err
}
