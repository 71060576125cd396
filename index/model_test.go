package index

import (
	"testing"
)

func TestFilterByTags(t *testing.T) {
	projects := func() []Project {
		return []Project{
			{ID: "a", Name: "api", Tags: []string{"go", "backend"}},
			{ID: "b", Name: "web", Tags: []string{"ts", "frontend"}},
			{ID: "c", Name: "ops", Tags: []string{"go", "backend", "infra"}},
			{ID: "d", Name: "docs"},
		}
	}

	tests := []struct {
		name     string
		required []string
		wantIDs  []ProjectID
	}{
		{"empty requirement keeps everything", nil, []ProjectID{"a", "b", "c", "d"}},
		{"single tag", []string{"go"}, []ProjectID{"a", "c"}},
		{"all tags must match", []string{"go", "infra"}, []ProjectID{"c"}},
		{"no match", []string{"go", "frontend"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterByTags(projects(), tt.required)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("FilterByTags() returned %d projects, want %d", len(got), len(tt.wantIDs))
			}
			for i, want := range tt.wantIDs {
				if got[i].ID != want {
					t.Errorf("result[%d].ID = %q, want %q", i, got[i].ID, want)
				}
			}
		})
	}
}

func TestProjectCloneDetachesTags(t *testing.T) {
	p := Project{ID: "a", Tags: []string{"go"}}
	c := p.Clone()
	c.Tags[0] = "rust"

	if p.Tags[0] != "go" {
		t.Fatalf("original tags changed to %q after mutating the clone", p.Tags[0])
	}
}

func TestHasTag(t *testing.T) {
	p := Project{Tags: []string{"go", "cli"}}
	if !p.HasTag("cli") {
		t.Error("HasTag(cli) = false, want true")
	}
	if p.HasTag("web") {
		t.Error("HasTag(web) = true, want false")
	}
}

func TestTagColorHex(t *testing.T) {
	c := TagColor{R: 255, G: 136, B: 0, A: 255}
	if got := c.Hex(); got != "#ff8800" {
		t.Fatalf("Hex() = %q, want %q", got, "#ff8800")
	}
}

func TestNewProjectIDIsUnique(t *testing.T) {
	if NewProjectID() == NewProjectID() {
		t.Fatal("NewProjectID() returned the same value twice")
	}
}
