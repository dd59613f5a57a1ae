package schemas

import (
	"path/filepath"

	z "github.com/Oudwins/zog"
)

type WorkspaceRepoRequest struct {
	RepoID     string `json:"repo_id" zog:"repo_id"`
	BaseBranch string `json:"base_branch,omitempty" zog:"base_branch"`
}

type WorkspaceStartRequest struct {
	TaskID    string                 `json:"task_id" zog:"task_id"`
	Executor  string                 `json:"executor" zog:"executor"`
	Variant   string                 `json:"variant,omitempty" zog:"variant"`
	Mode      string                 `json:"mode,omitempty" zog:"mode"`
	AgentName string                 `json:"agent_name,omitempty" zog:"agent_name"`
	Repos     []WorkspaceRepoRequest `json:"repos" zog:"repos"`
}

var WorkspaceStartSchema = z.Struct(z.Shape{
	"TaskID":    z.String().Required(z.Message("task_id is required")).Trim(),
	"Executor":  z.String().Required(z.Message("executor is required")).Trim(),
	"Variant":   z.String().Optional().Trim(),
	"Mode":      z.String().Optional().Trim(),
	"AgentName": z.String().Optional().Trim(),
	"Repos": z.Slice(z.Struct(z.Shape{
		"RepoID":     z.String().Required(z.Message("repo_id is required")).Trim(),
		"BaseBranch": z.String().Optional().Trim(),
	})).Min(1, z.Message("at least one repo is required")).Required(z.Message("repos is required")),
})

type SessionCompleteRequest struct {
	Status string `json:"status"`
}

func cleanPathTransform(valPtr *string, c z.Ctx) error {
	*valPtr = filepath.Clean(*valPtr)
	return nil
}
