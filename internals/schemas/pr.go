package schemas

import (
	z "github.com/Oudwins/zog"
)

type PushRequest struct {
	RepoID string `json:"repo_id" zog:"repo_id"`
	Force  bool   `json:"force,omitempty" zog:"force"`
}

var PushSchema = z.Struct(z.Shape{
	"RepoID": z.String().Required(z.Message("repo_id is required")).Trim(),
})

type CreatePRRequest struct {
	RepoID       string `json:"repo_id" zog:"repo_id"`
	Title        string `json:"title" zog:"title"`
	Body         string `json:"body,omitempty" zog:"body"`
	TargetBranch string `json:"target_branch,omitempty" zog:"target_branch"`
	Draft        bool   `json:"draft,omitempty" zog:"draft"`
}

var CreatePRSchema = z.Struct(z.Shape{
	"RepoID":       z.String().Required(z.Message("repo_id is required")).Trim(),
	"Title":        z.String().Required(z.Message("title is required")).Trim(),
	"Body":         z.String().Optional(),
	"TargetBranch": z.String().Optional().Trim(),
	"Draft":        z.Bool().Optional(),
})

type RefreshPRRequest struct {
	RepoID string `json:"repo_id" zog:"repo_id"`
}

var RefreshPRSchema = z.Struct(z.Shape{
	"RepoID": z.String().Required(z.Message("repo_id is required")).Trim(),
})

type DirectMergeRequest struct {
	RepoID       string `json:"repo_id" zog:"repo_id"`
	CommitHash   string `json:"commit_hash" zog:"commit_hash"`
	TargetBranch string `json:"target_branch,omitempty" zog:"target_branch"`
}

var DirectMergeSchema = z.Struct(z.Shape{
	"RepoID":       z.String().Required(z.Message("repo_id is required")).Trim(),
	"CommitHash":   z.String().Required(z.Message("commit_hash is required")).Trim(),
	"TargetBranch": z.String().Optional().Trim(),
})
