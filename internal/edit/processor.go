// Package edit implements the per-message edit pipeline: apply a
// client's pending edits to a room's shadow and server copy, persist,
// broadcast, and compute the reply diff that carries the client back up
// to date.
package edit

import (
	"context"
	"errors"
	"log/slog"

	"github.com/serroba/diffsyncd/internal/adapter"
	"github.com/serroba/diffsyncd/internal/diffsync"
	"github.com/serroba/diffsyncd/internal/metrics"
	"github.com/serroba/diffsyncd/internal/room"
	"github.com/serroba/diffsyncd/internal/roomstore"
	"github.com/serroba/diffsyncd/internal/save"
	"github.com/serroba/diffsyncd/internal/transport"
)

// ErrNeedReconnect is emitted to a connection whose id is not tracked in
// the room's client set, e.g. after the server purged its state.
var ErrNeedReconnect = errors.New("Need to re-connect!") //nolint:staticcheck // exact wire text clients match on

// ReconnectEvent is the transport event name carrying ErrNeedReconnect's
// message to the client.
const ReconnectEvent = "error"

// RemoteUpdateEvent is the transport event broadcast to a room whenever
// a processed edit message carried at least one edit, regardless of
// whether any of them were ultimately applied.
const RemoteUpdateEvent = "remoteUpdateIncoming"

// Processor applies inbound edit messages to room state, grounded on
// the same check-permission -> lock -> apply -> persist -> broadcast
// pipeline shape as a single-document collaborative session, generalized
// here to the shadow/backup replay algorithm and to N independent rooms.
type Processor struct {
	Rooms     *roomstore.Store
	Adapter   adapter.Adapter
	Saver     *save.Coalescer
	Transport transport.Transport
	Diff      *diffsync.Engine
	Logger    *slog.Logger
}

// New creates a Processor. logger defaults to slog.Default() if nil.
func New(rooms *roomstore.Store, a adapter.Adapter, saver *save.Coalescer, tr transport.Transport, diff *diffsync.Engine, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Processor{Rooms: rooms, Adapter: a, Saver: saver, Transport: tr, Diff: diff, Logger: logger}
}

// ReplyFunc delivers the computed Reply back to the originating
// connection.
type ReplyFunc func(room.Reply) error

// ReceiveEdit applies conn's inbound edit message and invokes reply with
// the server's outstanding changes. Every path below either completes
// with a reply, emits ErrNeedReconnect for an untracked client, or is a
// documented silent drop. An error is returned only when loading the
// room, the adapter's CheckDiffs call, the reconnect emit or reply
// itself fails; a rejected or mismatched edit is never an error.
func (p *Processor) ReceiveEdit(ctx context.Context, conn transport.Connection, msg room.EditMessage, reply ReplyFunc) error {
	ctx = adapter.WithUserID(ctx, conn.UserID())

	state, err := p.Rooms.GetData(ctx, msg.Room, conn.UserID())
	if err != nil {
		return err
	}

	allowed, err := p.Adapter.CheckDiffs(ctx, msg, state)
	if err != nil {
		return err
	}

	if !allowed {
		return nil
	}

	state.Lock()
	defer state.Unlock()

	clientDoc := state.Client(conn.ID())
	if clientDoc == nil {
		return conn.Emit(ReconnectEvent, ErrNeedReconnect.Error())
	}

	if msg.ServerVersion == clientDoc.Shadow.ServerVersion {
		clientDoc.Edits = nil
	}

	p.applyEdits(msg.Edits, clientDoc, state)
	metrics.EditsProcessed.Add(float64(len(msg.Edits)))

	p.Saver.SaveSnapshot(ctx, msg.Room, conn.UserID(), msg.Edits)

	if len(msg.Edits) > 0 {
		if err := p.Transport.To(msg.Room).Emit(RemoteUpdateEvent, conn.ID()); err != nil {
			p.Logger.Warn("broadcast failed", "room", msg.Room, "error", err)
		}
	}

	return reply(p.sendServerChanges(state, clientDoc))
}

// applyEdits walks msg.Edits in order, applying each one that matches
// the client's current shadow position and skipping (logging) the rest.
func (p *Processor) applyEdits(edits []room.Edit, clientDoc *room.ClientState, state *room.RoomState) {
	for _, e := range edits {
		if e.ServerVersion != clientDoc.Shadow.ServerVersion || e.LocalVersion != clientDoc.Shadow.LocalVersion {
			p.Logger.Debug("edit rejected: version mismatch",
				"expected_server_version", clientDoc.Shadow.ServerVersion,
				"expected_local_version", clientDoc.Shadow.LocalVersion,
				"got_server_version", e.ServerVersion,
				"got_local_version", e.LocalVersion,
			)

			continue
		}

		clientDoc.Backup.Doc = p.Diff.DeepCopy(clientDoc.Shadow.Doc)
		clientDoc.Backup.ServerVersion = clientDoc.Shadow.ServerVersion

		// The same edit.Diff is applied to both the shadow and the
		// server copy; Patch never mutates its delta argument or aliases
		// it into the result, so sharing it here is safe.
		newShadow, err := p.Diff.Patch(clientDoc.Shadow.Doc, e.Diff)
		if err != nil {
			p.Logger.Warn("patch shadow failed", "error", err)

			continue
		}

		clientDoc.Shadow.Doc = newShadow

		newServer, err := p.Diff.Patch(state.ServerCopy, e.Diff)
		if err != nil {
			p.Logger.Warn("patch server copy failed", "error", err)

			continue
		}

		state.ServerCopy = newServer

		if !e.Diff.IsEmpty() {
			clientDoc.Shadow.LocalVersion++
		}
	}
}

// sendServerChanges computes the outstanding diff between clientDoc's
// shadow and the room's current server copy, appends it to the client's
// edit queue when non-empty, and returns the reply to send back.
func (p *Processor) sendServerChanges(state *room.RoomState, clientDoc *room.ClientState) room.Reply {
	diff := p.Diff.Diff(clientDoc.Shadow.Doc, state.ServerCopy)
	basedOn := clientDoc.Shadow.ServerVersion

	if !diff.IsEmpty() {
		clientDoc.Edits = append(clientDoc.Edits, room.Edit{
			ServerVersion: basedOn,
			LocalVersion:  clientDoc.Shadow.LocalVersion,
			Diff:          diff,
		})

		clientDoc.Shadow.ServerVersion++

		newShadow, err := p.Diff.Patch(clientDoc.Shadow.Doc, diff)
		if err != nil {
			p.Logger.Warn("patch shadow with outbound diff failed", "error", err)
		} else {
			clientDoc.Shadow.Doc = newShadow
		}
	}

	return room.Reply{
		LocalVersion:  clientDoc.Shadow.LocalVersion,
		ServerVersion: basedOn,
		Edits:         clientDoc.Edits,
	}
}
