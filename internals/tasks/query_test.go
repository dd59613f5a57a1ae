package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/Oudwins/taskforge/internals/errs"
	"github.com/Oudwins/taskforge/internals/store"
	"github.com/Oudwins/taskforge/internals/testutil"
)

func TestListFiltersAndSorts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clock := testutil.NewClock()
	f.store.SetClock(clock.Now)

	for _, title := range []string{"beta", "Alpha", "gamma"} {
		f.create(t, title)
		clock.Advance(1000)
	}
	inReview := store.TaskStatusInReview
	all, _ := f.svc.List(ctx, ListParams{ProjectID: f.project.ID})
	if len(all) != 3 || all[0].Title != "gamma" {
		t.Fatalf("default sort should be created_at desc: %+v", all)
	}
	if _, err := f.svc.Update(ctx, all[0].ID, UpdateParams{Status: &inReview}); err != nil {
		t.Fatalf("update: %v", err)
	}

	byTitle, err := f.svc.List(ctx, ListParams{ProjectID: f.project.ID, SortBy: "title", Order: "ASC"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if byTitle[0].Title != "Alpha" || byTitle[2].Title != "gamma" {
		t.Fatalf("title sort wrong: %s %s %s", byTitle[0].Title, byTitle[1].Title, byTitle[2].Title)
	}

	filtered, err := f.svc.List(ctx, ListParams{ProjectID: f.project.ID, Statuses: []string{"inreview"}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Title != "gamma" {
		t.Fatalf("status filter wrong: %+v", filtered)
	}

	page, err := f.svc.List(ctx, ListParams{ProjectID: f.project.ID, Limit: 1, Offset: 1, SortBy: "title", Order: "asc"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 1 || page[0].Title != "beta" {
		t.Fatalf("pagination wrong: %+v", page)
	}
}

func TestListRejectsMalformedFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []ListParams{
		{ProjectID: f.project.ID, Statuses: []string{"blocked"}},
		{ProjectID: f.project.ID, SortBy: "priority"},
		{ProjectID: f.project.ID, Order: "sideways"},
		{ProjectID: f.project.ID, Limit: -1},
		{ProjectID: f.project.ID, Offset: -1},
		{},
	}
	for i, params := range cases {
		if _, err := f.svc.List(ctx, params); !errors.Is(err, errs.InvalidInput) {
			t.Fatalf("case %d err = %v, want InvalidInput", i, err)
		}
	}
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "Fix auth bug")
	desc := "the LOGIN page breaks"
	if _, err := f.svc.Create(ctx, CreateParams{ProjectID: f.project.ID, Title: "UI", Description: &desc}); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.create(t, "Docs")

	found, err := f.svc.Search(ctx, f.project.ID, "login", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 1 || found[0].Title != "UI" {
		t.Fatalf("unexpected: %+v", found)
	}
	found, _ = f.svc.Search(ctx, f.project.ID, "AUTH", 0)
	if len(found) != 1 {
		t.Fatalf("search should be case-insensitive")
	}
	if _, err := f.svc.Search(ctx, f.project.ID, "  ", 0); !errors.Is(err, errs.InvalidInput) {
		t.Fatalf("empty query err = %v", err)
	}
}

func TestCommentsValidateBeforeWriting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, "Discuss")

	if _, err := f.svc.AddComment(ctx, task.ID, "   ", "alice"); !errors.Is(err, errs.InvalidInput) {
		t.Fatalf("blank content err = %v", err)
	}
	if _, err := f.svc.AddComment(ctx, task.ID, "hi", ""); !errors.Is(err, errs.InvalidInput) {
		t.Fatalf("blank author err = %v", err)
	}
	if _, err := f.svc.AddComment(ctx, "missing", "hi", "alice"); !errors.Is(err, errs.NotFound) {
		t.Fatalf("missing task err = %v", err)
	}
	for _, content := range []string{"first", "second"} {
		if _, err := f.svc.AddComment(ctx, task.ID, content, "alice"); err != nil {
			t.Fatalf("comment: %v", err)
		}
	}
	comments, err := f.svc.ListComments(ctx, task.ID)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(comments) != 2 || comments[0].Content != "first" {
		t.Fatalf("unexpected comments: %+v", comments)
	}
}

func TestActivityLogIsAppendOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, "Work")

	summary := "opened a PR"
	if _, err := f.svc.AppendActivity(ctx, task.ID, ActivityParams{AgentName: "codex", Action: "started"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := f.svc.AppendActivity(ctx, task.ID, ActivityParams{AgentName: "codex", Action: "pr", Summary: &summary}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := f.svc.AppendActivity(ctx, task.ID, ActivityParams{AgentName: "", Action: "x"}); !errors.Is(err, errs.InvalidInput) {
		t.Fatalf("blank agent err = %v", err)
	}

	entries, err := f.svc.ListActivity(ctx, task.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].Action != "started" || entries[1].Summary == nil {
		t.Fatalf("unexpected activity: %+v", entries)
	}
}
