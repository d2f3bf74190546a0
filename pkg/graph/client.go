package graph

import (
	"context"
	"errors"
	"time"

	"github.com/papertrail-ai/papertrail/backend/pkg/leaselock"
	"github.com/papertrail-ai/papertrail/backend/pkg/store"
)

// ErrEmptyOwner is returned when a rebuild is requested without an owner.
var ErrEmptyOwner = errors.New("graph owner is empty")

// RebuildStats summarizes one rebuild pass.
type RebuildStats struct {
	Documents        int           `json:"documents"`
	Nodes            int           `json:"nodes"`
	Edges            int           `json:"edges"`
	SkippedDocuments int           `json:"skipped_documents"`
	Duration         time.Duration `json:"duration"`
}

// RebuildObserver is notified after an owner's graph was replaced. Observer
// errors are logged and never fail the rebuild.
type RebuildObserver interface {
	OnRebuild(ctx context.Context, owner string, stats RebuildStats) error
}

// GraphClient rebuilds per-owner entity graphs from extracted document data.
// Rebuilds for the same owner are serialized through the configured Locker.
//
// A GraphClient should be created using NewGraphClient.
type GraphClient struct {
	storage   store.GraphStorage
	locker    leaselock.Locker
	observers []RebuildObserver
}

// NewGraphClientParams defines the configuration parameters for creating
// a new GraphClient.
//
// Storage is required. Locker defaults to an in-process keyed mutex, which
// is only sufficient when a single process performs rebuilds. Observers run
// in order after every successful rebuild.
type NewGraphClientParams struct {
	Storage   store.GraphStorage
	Locker    leaselock.Locker
	Observers []RebuildObserver
}

// NewGraphClient creates and returns a new GraphClient configured with
// the provided parameters.
//
// Example:
//
//	client, err := graph.NewGraphClient(graph.NewGraphClientParams{
//		Storage: pgStore,
//		Locker:  leaselock.New(pool, leaselock.Options{TTL: 10 * time.Minute, Wait: true}),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	stats, err := client.RebuildGraph(ctx, ownerID)
func NewGraphClient(params NewGraphClientParams) (*GraphClient, error) {
	if params.Storage == nil {
		return nil, errors.New("graph storage is nil")
	}
	locker := params.Locker
	if locker == nil {
		locker = leaselock.NewKeyedMutex()
	}
	return &GraphClient{
		storage:   params.Storage,
		locker:    locker,
		observers: params.Observers,
	}, nil
}

// AddObserver registers an observer for subsequent rebuilds.
func (g *GraphClient) AddObserver(o RebuildObserver) {
	if o != nil {
		g.observers = append(g.observers, o)
	}
}

// LockKey is the exclusion key used for an owner's rebuild.
func LockKey(owner string) string {
	return "graph:" + owner
}
