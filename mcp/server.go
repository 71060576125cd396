// Package mcp provides an MCP (Model Context Protocol) server for
// projdex. This allows AI agents to query and edit the project index as
// a native tool.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/alpkeskin/gotoon"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/projdex/projdex/config"
	"github.com/projdex/projdex/index"
	"github.com/projdex/projdex/indexer"
	"github.com/projdex/projdex/loader"
	"github.com/projdex/projdex/store"
	"github.com/projdex/projdex/tags"
)

// Server wraps the MCP server over one projdex workspace.
type Server struct {
	mcpServer     *server.MCPServer
	workspaceRoot string
}

// ProjectSummary is a lightweight project record for MCP output.
type ProjectSummary struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Path string   `json:"path"`
	Tags []string `json:"tags,omitempty"`
}

// TagSummary pairs a tag with its project count for MCP output.
type TagSummary struct {
	Tag    string `json:"tag"`
	Count  int    `json:"count"`
	Color  string `json:"color,omitempty"`
	Hidden bool   `json:"hidden,omitempty"`
}

// MutationSummary reports a settled tag-wide mutation.
type MutationSummary struct {
	Tag       string `json:"tag"`
	NewTag    string `json:"new_tag,omitempty"`
	Affected  int    `json:"affected"`
	Recovered bool   `json:"recovered,omitempty"`
}

// ScanSummary reports a completed rebuild.
type ScanSummary struct {
	Discovered int    `json:"discovered"`
	Added      int    `json:"added"`
	Kept       int    `json:"kept"`
	Removed    int    `json:"removed"`
	Duration   string `json:"duration"`
}

// IndexStatus represents the current state of the index.
type IndexStatus struct {
	WorkspaceRoot string   `json:"workspace_root"`
	Backend       string   `json:"backend"`
	TagSource     string   `json:"tag_source"`
	WatchedDirs   []string `json:"watched_dirs"`
	Projects      int      `json:"projects"`
	Tags          int      `json:"tags"`
	CacheEntries  int      `json:"cache_entries"`
	Selection     []string `json:"selection,omitempty"`
	LastSave      string   `json:"last_save,omitempty"`
}

// encodeOutput encodes data in the specified format (json or toon).
func encodeOutput(data any, format string) (string, error) {
	switch format {
	case "toon":
		return gotoon.Encode(data)
	default: // "json"
		jsonBytes, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", err
		}
		return string(jsonBytes), nil
	}
}

// NewServer creates a new MCP server for the given workspace root.
func NewServer(workspaceRoot string) (*Server, error) {
	s := &Server{
		workspaceRoot: workspaceRoot,
	}

	s.mcpServer = server.NewMCPServer(
		"projdex",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s, nil
}

// registerTools registers all projdex tools with the MCP server.
func (s *Server) registerTools() {
	// projdex_list_projects tool
	listProjectsTool := mcp.NewTool("projdex_list_projects",
		mcp.WithDescription("List indexed projects with their tags. Optionally filter by a tag or by the persisted tag selection."),
		mcp.WithString("tag",
			mcp.Description("Only return projects carrying this tag (optional)"),
		),
		mcp.WithBoolean("selected",
			mcp.Description("Only return projects matching the persisted tag selection (default: false)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of projects to return (default: all)"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(listProjectsTool, s.handleListProjects)

	// projdex_projects_for_tag tool
	projectsForTagTool := mcp.NewTool("projdex_projects_for_tag",
		mcp.WithDescription("Return every project carrying the given tag."),
		mcp.WithString("tag",
			mcp.Required(),
			mcp.Description("Tag to look up"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(projectsForTagTool, s.handleProjectsForTag)

	// projdex_tags_for_project tool
	tagsForProjectTool := mcp.NewTool("projdex_tags_for_project",
		mcp.WithDescription("Return the tags on one project. The project may be referenced by path, name, or ID prefix."),
		mcp.WithString("project",
			mcp.Required(),
			mcp.Description("Project reference: path, name, or ID prefix"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(tagsForProjectTool, s.handleTagsForProject)

	// projdex_list_tags tool
	listTagsTool := mcp.NewTool("projdex_list_tags",
		mcp.WithDescription("List every known tag with its project count, color, and hidden state."),
		mcp.WithBoolean("include_hidden",
			mcp.Description("Include tags hidden from default listings (default: false)"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(listTagsTool, s.handleListTags)

	// projdex_tag_project tool
	tagProjectTool := mcp.NewTool("projdex_tag_project",
		mcp.WithDescription("Add a tag to a project. The tag is written to the project directory itself, then the index is updated."),
		mcp.WithString("project",
			mcp.Required(),
			mcp.Description("Project reference: path, name, or ID prefix"),
		),
		mcp.WithString("tag",
			mcp.Required(),
			mcp.Description("Tag to add"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(tagProjectTool, s.handleTagProject)

	// projdex_untag_project tool
	untagProjectTool := mcp.NewTool("projdex_untag_project",
		mcp.WithDescription("Remove a tag from a project."),
		mcp.WithString("project",
			mcp.Required(),
			mcp.Description("Project reference: path, name, or ID prefix"),
		),
		mcp.WithString("tag",
			mcp.Required(),
			mcp.Description("Tag to remove"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(untagProjectTool, s.handleUntagProject)

	// projdex_rename_tag tool
	renameTagTool := mcp.NewTool("projdex_rename_tag",
		mcp.WithDescription("Rename a tag across every project. The tag's color, hidden state, and selection membership move with it."),
		mcp.WithString("old_tag",
			mcp.Required(),
			mcp.Description("Current tag name"),
		),
		mcp.WithString("new_tag",
			mcp.Required(),
			mcp.Description("New tag name"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(renameTagTool, s.handleRenameTag)

	// projdex_delete_tag tool
	deleteTagTool := mcp.NewTool("projdex_delete_tag",
		mcp.WithDescription("Delete a tag from every project carrying it."),
		mcp.WithString("tag",
			mcp.Required(),
			mcp.Description("Tag to delete"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(deleteTagTool, s.handleDeleteTag)

	// projdex_rebuild_index tool
	rebuildIndexTool := mcp.NewTool("projdex_rebuild_index",
		mcp.WithDescription("Rescan the watched directories and rebuild the index. Unchanged directories are served from the metadata cache."),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(rebuildIndexTool, s.handleRebuildIndex)

	// projdex_index_status tool
	indexStatusTool := mcp.NewTool("projdex_index_status",
		mcp.WithDescription("Check the health and status of the projdex index. Returns project and tag counts plus workspace configuration."),
		mcp.WithString("format",
			mcp.Description("Output format: 'json' (default) or 'toon' (token-efficient)"),
		),
	)
	s.mcpServer.AddTool(indexStatusTool, s.handleIndexStatus)
}

// openEngine builds a fresh engine per tool call so agents observe
// state written by a concurrently running watch daemon.
func (s *Server) openEngine(ctx context.Context) (*index.Engine, *config.Config, error) {
	cfg, err := config.Load(s.workspaceRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	var st index.SnapshotStore
	switch cfg.Store.Backend {
	case "", "json":
		st = store.NewJSONStore(config.GetConfigDir(s.workspaceRoot))
	case "sqlite":
		st, err = store.NewSQLiteStore(cfg.GetSQLitePath(s.workspaceRoot))
	case "postgres":
		if cfg.Store.Postgres.DSN == "" {
			return nil, nil, fmt.Errorf("store.postgres.dsn is required for the postgres backend")
		}
		st, err = store.NewPostgresStore(ctx, cfg.Store.Postgres.DSN, s.workspaceRoot)
	default:
		return nil, nil, fmt.Errorf("unknown storage backend: %s", cfg.Store.Backend)
	}
	if err != nil {
		return nil, nil, err
	}

	var src tags.TagSource
	if cfg.Tags.Source == "sidecar" {
		src = tags.NewSidecarSource()
	} else {
		src = tags.NewXattrSource()
	}

	eng, err := index.New(index.Options{
		Source:      src,
		Store:       st,
		CacheMaxAge: time.Duration(cfg.Cache.MaxAgeMinutes) * time.Minute,
		SaveDelay:   time.Duration(cfg.SaveCfg.DebounceMs) * time.Millisecond,
		WatchedDirs: cfg.WatchedDirs,
	})
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	if err := eng.LoadState(ctx); err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("failed to load index state: %w", err)
	}
	return eng, cfg, nil
}

// closeEngine flushes pending mutations and saves. The tool result has
// already been produced by the time this runs, so failures only log.
func (s *Server) closeEngine(eng *index.Engine) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := eng.Close(ctx); err != nil {
		log.Printf("Warning: failed to close index: %v", err)
	}
}

func (s *Server) handleListProjects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag := request.GetString("tag", "")
	selected := request.GetBool("selected", false)
	limit := request.GetInt("limit", 0)
	format := request.GetString("format", "json")

	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}

	eng, _, err := s.openEngine(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer s.closeEngine(eng)

	var projects []index.Project
	if tag != "" {
		projects = eng.ProjectsForTag(tag)
	} else {
		projects = eng.AllProjects()
	}
	if selected {
		projects = index.FilterByTags(projects, eng.Selection())
	}

	summaries := projectSummaries(projects)
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}

	output, err := encodeOutput(summaries, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode results: %v", err)), nil
	}
	return mcp.NewToolResultText(output), nil
}

func (s *Server) handleProjectsForTag(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag, err := request.RequireString("tag")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("tag parameter is required: %v", err)), nil
	}
	format := request.GetString("format", "json")
	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}

	eng, _, err := s.openEngine(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer s.closeEngine(eng)

	output, err := encodeOutput(projectSummaries(eng.ProjectsForTag(tag)), format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode results: %v", err)), nil
	}
	return mcp.NewToolResultText(output), nil
}

func (s *Server) handleTagsForProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("project parameter is required: %v", err)), nil
	}
	format := request.GetString("format", "json")
	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}

	eng, _, err := s.openEngine(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer s.closeEngine(eng)

	p, err := eng.FindProject(ref)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	output, err := encodeOutput(ProjectSummary{
		ID:   string(p.ID),
		Name: p.Name,
		Path: p.Path,
		Tags: p.Tags,
	}, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode results: %v", err)), nil
	}
	return mcp.NewToolResultText(output), nil
}

func (s *Server) handleListTags(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	includeHidden := request.GetBool("include_hidden", false)
	format := request.GetString("format", "json")
	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}

	eng, _, err := s.openEngine(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer s.closeEngine(eng)

	counts := make(map[string]int)
	for _, tc := range eng.AllTags() {
		counts[tc.Tag] = tc.Count
	}
	for _, tag := range eng.KnownTags() {
		if _, ok := counts[tag]; !ok {
			counts[tag] = 0
		}
	}

	summaries := make([]TagSummary, 0, len(counts))
	for tag, count := range counts {
		hidden := eng.IsTagHidden(tag)
		if hidden && !includeHidden {
			continue
		}
		entry := TagSummary{Tag: tag, Count: count, Hidden: hidden}
		if c, ok := eng.TagColor(tag); ok {
			entry.Color = c.Hex()
		}
		summaries = append(summaries, entry)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Tag < summaries[j].Tag })

	output, err := encodeOutput(summaries, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode results: %v", err)), nil
	}
	return mcp.NewToolResultText(output), nil
}

func (s *Server) handleTagProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handleProjectTagEdit(ctx, request, true)
}

func (s *Server) handleUntagProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handleProjectTagEdit(ctx, request, false)
}

func (s *Server) handleProjectTagEdit(ctx context.Context, request mcp.CallToolRequest, add bool) (*mcp.CallToolResult, error) {
	ref, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("project parameter is required: %v", err)), nil
	}
	tag, err := request.RequireString("tag")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("tag parameter is required: %v", err)), nil
	}
	format := request.GetString("format", "json")
	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}

	eng, _, err := s.openEngine(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer s.closeEngine(eng)

	p, err := eng.FindProject(ref)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if add {
		err = eng.AddTagToProject(ctx, p.ID, tag)
	} else {
		err = eng.RemoveTagFromProject(ctx, p.ID, tag)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update tags: %v", err)), nil
	}

	updated, _ := eng.Project(p.ID)
	output, err := encodeOutput(ProjectSummary{
		ID:   string(updated.ID),
		Name: updated.Name,
		Path: updated.Path,
		Tags: updated.Tags,
	}, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode results: %v", err)), nil
	}
	return mcp.NewToolResultText(output), nil
}

func (s *Server) handleRenameTag(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	oldTag, err := request.RequireString("old_tag")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("old_tag parameter is required: %v", err)), nil
	}
	newTag, err := request.RequireString("new_tag")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("new_tag parameter is required: %v", err)), nil
	}
	format := request.GetString("format", "json")
	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}

	eng, _, err := s.openEngine(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer s.closeEngine(eng)

	result, err := awaitMutation(eng, func() error {
		return eng.RenameTagEverywhere(ctx, oldTag, newTag)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("rename failed: %v", err)), nil
	}

	output, err := encodeOutput(MutationSummary{
		Tag:       oldTag,
		NewTag:    newTag,
		Affected:  result.Affected,
		Recovered: result.Recovered,
	}, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode results: %v", err)), nil
	}
	return mcp.NewToolResultText(output), nil
}

func (s *Server) handleDeleteTag(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag, err := request.RequireString("tag")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("tag parameter is required: %v", err)), nil
	}
	format := request.GetString("format", "json")
	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}

	eng, _, err := s.openEngine(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer s.closeEngine(eng)

	result, err := awaitMutation(eng, func() error {
		return eng.DeleteTagEverywhere(ctx, tag)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("delete failed: %v", err)), nil
	}

	output, err := encodeOutput(MutationSummary{
		Tag:       tag,
		Affected:  result.Affected,
		Recovered: result.Recovered,
	}, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode results: %v", err)), nil
	}
	return mcp.NewToolResultText(output), nil
}

func (s *Server) handleRebuildIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format := request.GetString("format", "json")
	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}

	eng, cfg, err := s.openEngine(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer s.closeEngine(eng)

	ldr := loader.New(eng.Source(), eng.Cache(), loader.Config{
		ChunkSize:   cfg.Loader.ChunkSize,
		MaxParallel: cfg.Loader.MaxParallel,
	})
	rules := make([]indexer.Rule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		rules = append(rules, indexer.Rule{Pattern: r.Pattern, Tags: r.Tags})
	}
	ix := indexer.New(eng, ldr, indexer.Config{
		ExtraIgnore: cfg.Ignore,
		Rules:       rules,
	})

	stats, err := ix.Rebuild(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("rebuild failed: %v", err)), nil
	}

	output, err := encodeOutput(ScanSummary{
		Discovered: stats.Discovered,
		Added:      stats.Added,
		Kept:       stats.Kept,
		Removed:    stats.Removed,
		Duration:   stats.Duration.Round(time.Millisecond).String(),
	}, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode results: %v", err)), nil
	}
	return mcp.NewToolResultText(output), nil
}

func (s *Server) handleIndexStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format := request.GetString("format", "json")
	if format != "json" && format != "toon" {
		return mcp.NewToolResultError("format must be 'json' or 'toon'"), nil
	}

	eng, cfg, err := s.openEngine(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer s.closeEngine(eng)

	stats := eng.Stats()
	status := IndexStatus{
		WorkspaceRoot: s.workspaceRoot,
		Backend:       cfg.Store.Backend,
		TagSource:     cfg.Tags.Source,
		WatchedDirs:   eng.WatchedDirs(),
		Projects:      stats.Projects,
		Tags:          stats.Tags,
		CacheEntries:  stats.CacheEntries,
		Selection:     eng.Selection(),
	}
	if !stats.LastSave.IsZero() {
		status.LastSave = stats.LastSave.Format(time.RFC3339)
	}

	output, err := encodeOutput(status, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode results: %v", err)), nil
	}
	return mcp.NewToolResultText(output), nil
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

func projectSummaries(projects []index.Project) []ProjectSummary {
	sort.Slice(projects, func(i, j int) bool {
		return strings.ToLower(projects[i].Name) < strings.ToLower(projects[j].Name)
	})
	out := make([]ProjectSummary, 0, len(projects))
	for _, p := range projects {
		out = append(out, ProjectSummary{
			ID:   string(p.ID),
			Name: p.Name,
			Path: p.Path,
			Tags: p.Tags,
		})
	}
	return out
}

// awaitMutation starts a tag-wide mutation and blocks until its
// background phase settles.
func awaitMutation(eng *index.Engine, start func() error) (index.MutationResult, error) {
	var result index.MutationResult
	eng.SetOnMutationComplete(func(r index.MutationResult) { result = r })

	if err := start(); err != nil {
		return index.MutationResult{}, err
	}
	eng.Wait()

	if result.Err != nil {
		return result, result.Err
	}
	return result, nil
}
