// Package external declares the collaborator surfaces this engine is
// embedded behind but does not itself implement: an HTTP/REST facade,
// a WebSocket notification hub, a CLI REPL, an authorizer, and a vector
// index. Every type here is an interface (or a trivial stub of one);
// wiring a real server, auth provider, or ANN index is out of scope —
// the engine is a library, not a service.
package external

import (
	"context"
	"errors"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"codenerd/internal/kg"
	"codenerd/internal/persist"
)

// RESTFacade is the shape an HTTP handler layer would implement to
// expose kg.Engine.Exec over a blocking request/response API, offloading
// each call onto a worker pool so one slow query cannot stall the
// listener goroutine.
type RESTFacade interface {
	Exec(ctx context.Context, kgName, src string) (*kg.ExecResult, error)
	LoadCSV(kgName, relation, path string) (int, error)
}

// NotificationHub fans persisted-write notifications out to subscribed
// clients. Subscribe's *websocket.Conn parameter fixes the wire type a
// real implementation would speak without this package itself dialing
// or accepting any connection.
type NotificationHub interface {
	Publish(persist.PersistentNotification)
	Subscribe(conn *websocket.Conn) error
}

// REPL is the shape an interactive command-line front end would
// implement over an *Engine, built around *cobra.Command the way the
// teacher's own CLI entry points are.
type REPL interface {
	Root() *cobra.Command
	Run(ctx context.Context, args []string) error
}

// Authenticator gates an action on a subject, independent of the
// statement dispatch itself.
type Authenticator interface {
	Authorize(ctx context.Context, subject, action string) error
}

// ErrNotImplemented is returned by every method of NullVectorIndex.
var ErrNotImplemented = errors.New("external: not implemented")

// VectorIndex is the opaque similarity-search collaborator the engine
// can be embedded alongside; this package only declares the shape and
// ships NullVectorIndex, never a real approximate-nearest-neighbor
// implementation.
type VectorIndex interface {
	Build(ctx context.Context, relation, column string) error
	Query(ctx context.Context, relation string, vector []float64, k int) ([]int64, error)
	Stats() VectorIndexStats
}

// VectorIndexStats summarizes a VectorIndex's built state.
type VectorIndexStats struct {
	Relation    string
	Column      string
	VectorCount int64
	Dimensions  int
}

// NullVectorIndex is the zero-value VectorIndex: every method reports
// ErrNotImplemented (Stats returns the zero value), for callers that
// need something satisfying the interface before a real index exists.
type NullVectorIndex struct{}

func (NullVectorIndex) Build(ctx context.Context, relation, column string) error {
	return ErrNotImplemented
}

func (NullVectorIndex) Query(ctx context.Context, relation string, vector []float64, k int) ([]int64, error) {
	return nil, ErrNotImplemented
}

func (NullVectorIndex) Stats() VectorIndexStats {
	return VectorIndexStats{}
}
