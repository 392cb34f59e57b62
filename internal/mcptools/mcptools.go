// Package mcptools exposes the clustering engine as MCP tools.
//
// Six tools are registered on the server returned by [NewServer]:
//   - "list_clusters"   — read the stored cluster set for a day.
//   - "cluster_day"     — full clustering run over the whole day.
//   - "cluster_new"     — incremental run over unclustered transcripts.
//   - "merge_clusters"  — combine two or more clusters into one.
//   - "rename_cluster"  — replace one cluster's title.
//   - "delete_cluster"  — remove a cluster; its members become unclustered.
//
// Results are returned as JSON text content. All handlers are safe for
// concurrent use as long as the engine is.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/palaverhq/palaver/internal/cluster"
	"github.com/palaverhq/palaver/pkg/types"
)

// Clusterer is the engine surface the tools drive. *cluster.Engine
// satisfies it.
type Clusterer interface {
	Clusters(ctx context.Context, ownerRef, date string) (*cluster.Result, error)
	ClusterFull(ctx context.Context, ownerRef, date string) (*cluster.Result, error)
	ClusterNew(ctx context.Context, ownerRef, date string, exclude []string) (*cluster.Result, error)
	MergeClusters(ctx context.Context, ownerRef, date string, clusterIDs []string) (*cluster.Result, error)
	RenameCluster(ctx context.Context, ownerRef, date, clusterID, title string) (*cluster.Result, error)
	DeleteCluster(ctx context.Context, ownerRef, date, clusterID string) (*cluster.Result, error)
}

var _ Clusterer = (*cluster.Engine)(nil)

// dayArgs is the owner/date pair every tool takes.
type dayArgs struct {
	// OwnerRef identifies the user whose transcripts are clustered.
	OwnerRef string `json:"owner_ref" jsonschema:"the owner whose transcripts to operate on"`

	// Date is the calendar day, formatted YYYY-MM-DD.
	Date string `json:"date" jsonschema:"the day to operate on, formatted YYYY-MM-DD"`
}

// validate checks the common fields before any engine work happens.
func (a dayArgs) validate(tool string) error {
	if a.OwnerRef == "" {
		return fmt.Errorf("mcptools: %s: owner_ref must not be empty", tool)
	}
	if _, err := time.Parse(types.DateFormat, a.Date); err != nil {
		return fmt.Errorf("mcptools: %s: invalid date %q, want YYYY-MM-DD", tool, a.Date)
	}
	return nil
}

type clusterNewArgs struct {
	dayArgs
	// Exclude lists transcript ids to skip for this run only.
	Exclude []string `json:"exclude,omitempty" jsonschema:"transcript ids to leave unclustered for this run"`
}

type mergeArgs struct {
	dayArgs
	// ClusterIDs names the clusters to combine, first one keeps its position.
	ClusterIDs []string `json:"cluster_ids" jsonschema:"two or more cluster ids to combine into one"`
}

type renameArgs struct {
	dayArgs
	// ClusterID names the cluster to retitle.
	ClusterID string `json:"cluster_id" jsonschema:"the id of the cluster to rename"`

	// Title is the replacement title.
	Title string `json:"title" jsonschema:"the new cluster title"`
}

type deleteArgs struct {
	dayArgs
	// ClusterID names the cluster to remove.
	ClusterID string `json:"cluster_id" jsonschema:"the id of the cluster to delete"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Handler constructors
// ─────────────────────────────────────────────────────────────────────────────

// resultContent encodes an engine result as JSON text content.
func resultContent(res *cluster.Result) (*mcpsdk.CallToolResult, error) {
	js, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("mcptools: encode result: %w", err)
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(js)}},
	}, nil
}

// makeListClustersHandler returns the handler for "list_clusters".
func makeListClustersHandler(eng Clusterer) mcpsdk.ToolHandlerFor[dayArgs, any] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, a dayArgs) (*mcpsdk.CallToolResult, any, error) {
		if err := a.validate("list_clusters"); err != nil {
			return nil, nil, err
		}
		res, err := eng.Clusters(ctx, a.OwnerRef, a.Date)
		if err != nil {
			return nil, nil, fmt.Errorf("mcptools: list_clusters: %w", err)
		}
		out, err := resultContent(res)
		return out, nil, err
	}
}

// makeClusterDayHandler returns the handler for "cluster_day".
func makeClusterDayHandler(eng Clusterer) mcpsdk.ToolHandlerFor[dayArgs, any] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, a dayArgs) (*mcpsdk.CallToolResult, any, error) {
		if err := a.validate("cluster_day"); err != nil {
			return nil, nil, err
		}
		res, err := eng.ClusterFull(ctx, a.OwnerRef, a.Date)
		if err != nil {
			return nil, nil, fmt.Errorf("mcptools: cluster_day: %w", err)
		}
		out, err := resultContent(res)
		return out, nil, err
	}
}

// makeClusterNewHandler returns the handler for "cluster_new".
func makeClusterNewHandler(eng Clusterer) mcpsdk.ToolHandlerFor[clusterNewArgs, any] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, a clusterNewArgs) (*mcpsdk.CallToolResult, any, error) {
		if err := a.validate("cluster_new"); err != nil {
			return nil, nil, err
		}
		res, err := eng.ClusterNew(ctx, a.OwnerRef, a.Date, a.Exclude)
		if err != nil {
			return nil, nil, fmt.Errorf("mcptools: cluster_new: %w", err)
		}
		out, err := resultContent(res)
		return out, nil, err
	}
}

// makeMergeClustersHandler returns the handler for "merge_clusters".
func makeMergeClustersHandler(eng Clusterer) mcpsdk.ToolHandlerFor[mergeArgs, any] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, a mergeArgs) (*mcpsdk.CallToolResult, any, error) {
		if err := a.validate("merge_clusters"); err != nil {
			return nil, nil, err
		}
		if len(a.ClusterIDs) < 2 {
			return nil, nil, fmt.Errorf("mcptools: merge_clusters: need at least two cluster ids")
		}
		res, err := eng.MergeClusters(ctx, a.OwnerRef, a.Date, a.ClusterIDs)
		if err != nil {
			return nil, nil, fmt.Errorf("mcptools: merge_clusters: %w", err)
		}
		out, err := resultContent(res)
		return out, nil, err
	}
}

// makeRenameClusterHandler returns the handler for "rename_cluster".
func makeRenameClusterHandler(eng Clusterer) mcpsdk.ToolHandlerFor[renameArgs, any] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, a renameArgs) (*mcpsdk.CallToolResult, any, error) {
		if err := a.validate("rename_cluster"); err != nil {
			return nil, nil, err
		}
		if a.ClusterID == "" {
			return nil, nil, fmt.Errorf("mcptools: rename_cluster: cluster_id must not be empty")
		}
		res, err := eng.RenameCluster(ctx, a.OwnerRef, a.Date, a.ClusterID, a.Title)
		if err != nil {
			return nil, nil, fmt.Errorf("mcptools: rename_cluster: %w", err)
		}
		out, err := resultContent(res)
		return out, nil, err
	}
}

// makeDeleteClusterHandler returns the handler for "delete_cluster".
func makeDeleteClusterHandler(eng Clusterer) mcpsdk.ToolHandlerFor[deleteArgs, any] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, a deleteArgs) (*mcpsdk.CallToolResult, any, error) {
		if err := a.validate("delete_cluster"); err != nil {
			return nil, nil, err
		}
		if a.ClusterID == "" {
			return nil, nil, fmt.Errorf("mcptools: delete_cluster: cluster_id must not be empty")
		}
		res, err := eng.DeleteCluster(ctx, a.OwnerRef, a.Date, a.ClusterID)
		if err != nil {
			return nil, nil, fmt.Errorf("mcptools: delete_cluster: %w", err)
		}
		out, err := resultContent(res)
		return out, nil, err
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Server
// ─────────────────────────────────────────────────────────────────────────────

// NewServer builds an MCP server with every clustering tool registered,
// ready to run over a transport of the caller's choice.
func NewServer(eng Clusterer, version string) *mcpsdk.Server {
	s := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "palaver", Version: version}, nil)

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "list_clusters",
		Description: "Read the stored topic clusters for one owner and day, enriched with their member transcripts. Returns an empty cluster list for a day that was never clustered.",
	}, makeListClustersHandler(eng))

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "cluster_day",
		Description: "Run full topic clustering over every transcript of the owner's day and replace the stored cluster set. Slow: each transcript batch is one completion call.",
	}, makeClusterDayHandler(eng))

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "cluster_new",
		Description: "Cluster only the transcripts not yet covered by the stored set and append the resulting clusters. Does nothing (and calls no model) when every transcript is already clustered.",
	}, makeClusterNewHandler(eng))

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "merge_clusters",
		Description: "Combine two or more stored clusters into one. Member ids are united, titles joined with ' + ', and the merged cluster replaces the first named one.",
	}, makeMergeClustersHandler(eng))

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "rename_cluster",
		Description: "Replace the title of one stored cluster. Everything else about the cluster is untouched.",
	}, makeRenameClusterHandler(eng))

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "delete_cluster",
		Description: "Remove one cluster from the stored set. Its member transcripts become unclustered and will be picked up by the next incremental run.",
	}, makeDeleteClusterHandler(eng))

	return s
}
