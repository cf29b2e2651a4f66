package data

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/target/runboard/internal/domain/model"
	apperrors "github.com/target/runboard/internal/errors"
)

// mutation is applied to a loaded record before it is written back as a whole.
type mutation func(rec *model.JobRecord) error

func encodeRecord(rec *model.JobRecord) ([]byte, error) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "encode job %s", rec.Job.ID)
	}
	return data, nil
}

func decodeRecord(id model.JobID, data []byte) (*model.JobRecord, error) {
	var rec model.JobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, apperrors.Wrapf(fmt.Errorf("%w: %w", ErrRecordCorrupt, err),
			apperrors.ErrCodeInternal, "decode job %s", id)
	}
	if rec.Logs == nil {
		rec.Logs = []model.Step{}
	}
	if rec.KeyDetails == nil {
		rec.KeyDetails = map[string]string{}
	}
	if rec.SidebarArtifacts == nil {
		rec.SidebarArtifacts = []model.Artifact{}
	}
	return &rec, nil
}

func sortSummaries(in []model.JobSummary) {
	sort.Slice(in, func(i, j int) bool { return in[i].ID < in[j].ID })
}

func matchesStatus(s model.JobSummary, status model.JobStatus) bool {
	return s.Status == status.DisplayName()
}
