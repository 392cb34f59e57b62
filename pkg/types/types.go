// Package types defines the shared types used across all Palaver packages.
//
// These types form the lingua franca between the clustering engine, the
// completion providers, the stores, and the HTTP/MCP surfaces. They are
// intentionally minimal: each package defines its own domain types, but
// cross-cutting data structures live here to avoid circular imports.
//
// JSON field names follow the dashboard's wire format: clusters serialize
// with memberIds/startTime/endTime, and the lean persisted form never
// carries transcript text.
package types

import "time"

// DateFormat is the layout for ClusterSet.Date and all date parameters.
const DateFormat = "2006-01-02"

// Transcript is one timestamped fragment of recognized speech text.
// Transcripts are written by the ingestion collaborator and are read-only
// input to the clustering engine; they are never mutated here.
type Transcript struct {
	// ID uniquely identifies the transcript.
	ID string `json:"id"`

	// OwnerRef identifies the user this transcript belongs to.
	OwnerRef string `json:"ownerRef"`

	// OccurredAt is when the fragment was spoken.
	OccurredAt time.Time `json:"occurredAt"`

	// Text is the recognized speech content.
	Text string `json:"text"`
}

// Entity is one named person, place, project, or thing from the user's
// profile. Entities give the completion service context about who and what
// the user talks about.
type Entity struct {
	// Name is the entity's display name.
	Name string `json:"name"`

	// Type classifies the entity (e.g. "person", "project", "place").
	Type string `json:"type"`

	// Relationship describes how the entity relates to the user
	// (e.g. "coworker", "sister"). Empty when unknown.
	Relationship string `json:"relationship,omitempty"`

	// Notes carries free-form user notes about the entity.
	Notes string `json:"notes,omitempty"`

	// Context carries additional free-form context supplied by the profile.
	Context string `json:"context,omitempty"`
}

// UserContext is the optional per-user context blob supplied once per
// clustering run and reused unchanged across all batches of that run.
type UserContext struct {
	// AboutMe is the user's free-text self description. Empty when unset.
	AboutMe string `json:"aboutMe,omitempty"`

	// Entities lists the user's named entities.
	Entities []Entity `json:"entities,omitempty"`
}

// Section is one titled group of bullet points inside a cluster summary.
type Section struct {
	Heading string   `json:"heading"`
	Points  []string `json:"points"`
}

// TopicCluster is a semantically grouped set of transcripts produced by
// interpreting a completion response. This is the lean form: it references
// member transcripts by id only and never carries transcript text.
//
// StartTime and EndTime are always recomputed from the member transcripts'
// OccurredAt values, never taken from model output.
type TopicCluster struct {
	// ID is unique within one cluster-set generation. Pipeline-produced
	// clusters use "batch{i}_topic_{n}"; merged clusters use
	// "merged_{timestamp}".
	ID string `json:"id"`

	// Title is a short, headline-like cluster title.
	Title string `json:"title"`

	// Category is a coarse grouping label. The fallback path always uses
	// "General", which doubles as a degraded-quality signal.
	Category string `json:"category"`

	// Summary is a short prose summary of the conversations in the cluster.
	Summary string `json:"summary"`

	// Sections holds structured summary detail. May be empty.
	Sections []Section `json:"sections"`

	// MemberIDs lists the transcript ids in this cluster. Non-empty, unique
	// within the cluster.
	MemberIDs []string `json:"memberIds"`

	// StartTime is the earliest OccurredAt over member transcripts.
	StartTime time.Time `json:"startTime"`

	// EndTime is the latest OccurredAt over member transcripts.
	EndTime time.Time `json:"endTime"`
}

// EnrichedCluster is a TopicCluster joined with its resolved member
// transcripts, ordered by OccurredAt. It is the display view returned to
// callers and is never persisted.
type EnrichedCluster struct {
	TopicCluster

	// Transcripts are the resolved member transcripts in time order.
	Transcripts []Transcript `json:"transcripts"`
}

// ClusterSet is the full collection of clusters for one owner on one date.
// Exactly one record exists per (OwnerRef, Date); writes replace the whole
// record.
type ClusterSet struct {
	// OwnerRef identifies the user the set belongs to.
	OwnerRef string `json:"ownerRef"`

	// Date is the calendar day in "2006-01-02" form.
	Date string `json:"date"`

	// Clusters holds the lean clusters for the day.
	Clusters []TopicCluster `json:"clusters"`

	// TranscriptionCount is the number of transcripts observed when this
	// record was last written. A mismatch with the current count
	// invalidates the freshness check.
	TranscriptionCount int `json:"transcriptionCount"`

	// UpdatedAt is when this record was last written.
	UpdatedAt time.Time `json:"updatedAt"`
}
