// Package schemas holds the request and response bodies shared by forged
// and its clients, with the zog schemas that normalise them.
package schemas

import (
	z "github.com/Oudwins/zog"
)

type ProjectCreateRequest struct {
	Name string `json:"name" zog:"name"`
}

var ProjectCreateSchema = z.Struct(z.Shape{
	"Name": z.String().Required(z.Message("name is required")).Trim(),
})

type RepoCreateRequest struct {
	Name                string `json:"name,omitempty" zog:"name"`
	Path                string `json:"path" zog:"path"`
	RemoteURL           string `json:"remote_url,omitempty" zog:"remote_url"`
	DefaultTargetBranch string `json:"default_target_branch,omitempty" zog:"default_target_branch"`
}

var RepoCreateSchema = z.Struct(z.Shape{
	"Name":                z.String().Optional().Trim(),
	"Path":                z.String().Required(z.Message("path is required")).Trim().Transform(cleanPathTransform),
	"RemoteURL":           z.String().Optional().Trim(),
	"DefaultTargetBranch": z.String().Optional().Trim(),
})
