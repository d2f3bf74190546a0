package query

import (
	"sort"
	"sync"
)

type TraceEventKind string

const (
	TraceEventConnectedDocumentIDs TraceEventKind = "connected_document_ids"
	TraceEventCollaboratorIDs      TraceEventKind = "collaborator_ids"
	TraceEventSubgraphNodeIDs      TraceEventKind = "subgraph_node_ids"
	TraceEventCacheHit             TraceEventKind = "cache_hit"
)

// TraceEvent is an extensible event envelope for query tracing.
// Additive changes to this struct are backward compatible for implementers.
type TraceEvent struct {
	Kind TraceEventKind

	Owner   string
	NodeIDs []string
	Key     string
}

// Tracer is a sink for query tracing events.
//
// Implementers can forward events to logs, telemetry, or custom post-processing
// pipelines.
type Tracer interface {
	Record(event TraceEvent)
}

// MultiTracer fan-outs trace events to multiple tracers.
type MultiTracer []Tracer

func (m MultiTracer) Record(event TraceEvent) {
	for _, t := range m {
		if t == nil {
			continue
		}
		t.Record(event)
	}
}

func record(t Tracer, kind TraceEventKind, owner string, ids ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: kind, Owner: owner, NodeIDs: ids})
}

func recordCacheHit(t Tracer, owner, key string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventCacheHit, Owner: owner, Key: key})
}

// QueryTrace collects which documents, collaborators and subgraph nodes a
// query touched. It is safe for concurrent use.
type QueryTrace struct {
	mu sync.Mutex

	connectedDocumentIDs map[string]struct{}
	collaboratorIDs      map[string]struct{}
	subgraphNodeIDs      map[string]struct{}
	cacheHits            int
}

type QueryTraceSnapshot struct {
	ConnectedDocumentIDs []string
	CollaboratorIDs      []string
	SubgraphNodeIDs      []string
	CacheHits            int
}

func NewQueryTrace() *QueryTrace {
	return &QueryTrace{
		connectedDocumentIDs: make(map[string]struct{}),
		collaboratorIDs:      make(map[string]struct{}),
		subgraphNodeIDs:      make(map[string]struct{}),
	}
}

func (t *QueryTrace) Record(event TraceEvent) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var target map[string]struct{}
	switch event.Kind {
	case TraceEventConnectedDocumentIDs:
		target = t.connectedDocumentIDs
	case TraceEventCollaboratorIDs:
		target = t.collaboratorIDs
	case TraceEventSubgraphNodeIDs:
		target = t.subgraphNodeIDs
	case TraceEventCacheHit:
		t.cacheHits++
		return
	default:
		return
	}
	for _, id := range event.NodeIDs {
		if id == "" {
			continue
		}
		target[id] = struct{}{}
	}
}

func (t *QueryTrace) Snapshot() QueryTraceSnapshot {
	if t == nil {
		return QueryTraceSnapshot{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return QueryTraceSnapshot{
		ConnectedDocumentIDs: sortedKeys(t.connectedDocumentIDs),
		CollaboratorIDs:      sortedKeys(t.collaboratorIDs),
		SubgraphNodeIDs:      sortedKeys(t.subgraphNodeIDs),
		CacheHits:            t.cacheHits,
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
