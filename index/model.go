// Package index maintains the in-memory project table and its inverted
// tag index, the visible tag registry, and the mutation and persistence
// coordinators that keep both consistent with the tag source on disk.
package index

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProjectID uniquely identifies a project record. IDs are stable across
// rescans: a rediscovered path keeps its previous ID.
type ProjectID string

// NewProjectID returns a fresh random ID.
func NewProjectID() ProjectID {
	return ProjectID(uuid.NewString())
}

// Project is one indexed directory and everything known about it.
type Project struct {
	ID            ProjectID `json:"id"`
	Name          string    `json:"name"`
	Path          string    `json:"path"`
	Tags          []string  `json:"tags,omitempty"`
	ModTime       time.Time `json:"mtime"`
	Size          int64     `json:"size"`
	Created       time.Time `json:"created,omitempty"`
	GitCommits    int       `json:"git_commits,omitempty"`
	GitLastCommit time.Time `json:"git_last_commit,omitempty"`
}

// Clone returns a copy that shares no mutable state with the receiver.
func (p Project) Clone() Project {
	out := p
	if p.Tags != nil {
		out.Tags = make([]string, len(p.Tags))
		copy(out.Tags, p.Tags)
	}
	return out
}

// HasTag reports whether the project carries tag.
func (p Project) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// TagColor is a display color for a tag, four channels in 0-255 plus an
// optional human-readable name.
type TagColor struct {
	R    uint8  `json:"r"`
	G    uint8  `json:"g"`
	B    uint8  `json:"b"`
	A    uint8  `json:"a"`
	Name string `json:"name,omitempty"`
}

// Hex renders the color as #rrggbb for terminal styling.
func (c TagColor) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// TagCount pairs a tag with the number of projects carrying it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// FilterByTags keeps projects carrying every required tag. An empty
// requirement filters nothing out. The result aliases the input slice.
func FilterByTags(projects []Project, required []string) []Project {
	if len(required) == 0 {
		return projects
	}
	out := projects[:0]
	for _, p := range projects {
		match := true
		for _, tag := range required {
			if !p.HasTag(tag) {
				match = false
				break
			}
		}
		if match {
			out = append(out, p)
		}
	}
	return out
}
