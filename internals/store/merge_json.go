package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// mergeRecordJSON is the wire form of MergeRecord. Kind selects how Merge
// decodes.
type mergeRecordJSON struct {
	ID           string          `json:"id"`
	WorkspaceID  string          `json:"workspace_id"`
	RepoID       string          `json:"repo_id"`
	TargetBranch string          `json:"target_branch"`
	Kind         MergeKind       `json:"kind"`
	Merge        json.RawMessage `json:"merge"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (m MergeRecord) MarshalJSON() ([]byte, error) {
	out := mergeRecordJSON{
		ID:           m.ID,
		WorkspaceID:  m.WorkspaceID,
		RepoID:       m.RepoID,
		TargetBranch: m.TargetBranch,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		Merge:        json.RawMessage("null"),
	}
	if m.Merge != nil {
		out.Kind = m.Merge.Kind()
		raw, err := json.Marshal(m.Merge)
		if err != nil {
			return nil, err
		}
		out.Merge = raw
	}
	return json.Marshal(out)
}

func (m *MergeRecord) UnmarshalJSON(data []byte) error {
	var in mergeRecordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*m = MergeRecord{
		ID:           in.ID,
		WorkspaceID:  in.WorkspaceID,
		RepoID:       in.RepoID,
		TargetBranch: in.TargetBranch,
		CreatedAt:    in.CreatedAt,
		UpdatedAt:    in.UpdatedAt,
	}
	switch in.Kind {
	case "":
		return nil
	case MergeKindDirect:
		var direct DirectMerge
		if err := json.Unmarshal(in.Merge, &direct); err != nil {
			return err
		}
		m.Merge = &direct
	case MergeKindPR:
		var pr PRMerge
		if err := json.Unmarshal(in.Merge, &pr); err != nil {
			return err
		}
		m.Merge = &pr
	default:
		return fmt.Errorf("unknown merge kind %q", in.Kind)
	}
	return nil
}
