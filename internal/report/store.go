package report

import (
	"fmt"

	"github.com/TobiSchelling/linkscope/internal/database"
	"github.com/TobiSchelling/linkscope/internal/pipeline"
)

// Save persists a finished pipeline result. Analysis runs also store their
// authority scores.
func Save(db *database.DB, kind database.Kind, result any) (string, error) {
	siteURL, status := describe(result)
	if status == "" {
		return "", fmt.Errorf("cannot store %T", result)
	}

	run, err := database.NewRun(kind, siteURL, status, Summary(result), result)
	if err != nil {
		return "", err
	}
	if r, ok := result.(*pipeline.Report); ok {
		return db.SaveRun(run, r.Authority)
	}
	return db.SaveRun(run, nil)
}

// SaveFailure records a run that aborted before producing a result.
func SaveFailure(db *database.DB, kind database.Kind, siteURL string, runErr error) (string, error) {
	run, err := database.NewRun(kind, siteURL, string(pipeline.StatusFailed), runErr.Error(),
		map[string]string{"error": runErr.Error()})
	if err != nil {
		return "", err
	}
	return db.SaveRun(run, nil)
}

// Load returns a stored run and its decoded result. The result is nil for
// failed runs, which carry no payload beyond the error.
func Load(db *database.DB, id string) (*database.Run, any, error) {
	run, err := db.GetRun(id)
	if err != nil {
		return nil, nil, err
	}
	if run == nil {
		return nil, nil, fmt.Errorf("run %s not found", id)
	}
	if run.Status == string(pipeline.StatusFailed) {
		return run, nil, nil
	}

	var result any
	switch run.Kind {
	case database.KindAnalysis:
		result = &pipeline.Report{}
	case database.KindPage:
		result = &pipeline.PageAnalysis{}
	case database.KindRoadmap, database.KindReplication:
		result = &pipeline.Roadmap{}
	default:
		return nil, nil, fmt.Errorf("run %s has unknown kind %q", id, run.Kind)
	}
	if err := run.Decode(result); err != nil {
		return nil, nil, err
	}
	return run, result, nil
}

// LoadRoadmap returns the roadmap stored under id, for replication.
func LoadRoadmap(db *database.DB, id string) (*pipeline.Roadmap, error) {
	run, result, err := Load(db, id)
	if err != nil {
		return nil, err
	}
	rm, ok := result.(*pipeline.Roadmap)
	if !ok {
		return nil, fmt.Errorf("run %s is a %s run with status %s, not a roadmap", id, run.Kind, run.Status)
	}
	return rm, nil
}

// Render returns the Markdown for a stored run.
func Render(run *database.Run, result any) (string, error) {
	if result == nil {
		var failed struct {
			Error string `json:"error"`
		}
		_ = run.Decode(&failed)
		return fmt.Sprintf("# %s run failed\n\n%s\n\n%s\n", run.Kind, run.SiteURL, failed.Error), nil
	}
	return Markdown(result)
}

func describe(result any) (siteURL, status string) {
	switch r := result.(type) {
	case *pipeline.Report:
		return r.SiteURL, string(r.Status)
	case *pipeline.PageAnalysis:
		return r.SiteURL, string(r.Status)
	case *pipeline.Roadmap:
		return r.SiteURL, string(r.Status)
	}
	return "", ""
}
