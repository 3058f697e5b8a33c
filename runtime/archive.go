package runtime

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/juju/errors"

	"github.com/warriorguo/flowexec/lock"
	"github.com/warriorguo/flowexec/types"
	"github.com/warriorguo/flowexec/utils"
)

// ArchiveRecord is what a run leaves in cold storage.
type ArchiveRecord struct {
	ExecutionData  json.RawMessage       `json:"execution_data"`
	FlowDefinition *types.FlowDefinition `json:"flow_definition"`
	ArchivedAt     time.Time             `json:"archived_at"`
}

type archivePayload struct {
	tenant string
	data   []byte
}

// archive snapshots the run in the caller goroutine and hands the write to
// the archive pool. Only top-level runs outside loops are archived.
func (e *Executor) archive(ctx context.Context) {
	ed := e.ed
	if ed.Level != 0 || ed.InLoop || e.engine.archive == nil {
		return
	}

	snapshot, err := ed.Snapshot()
	if err != nil {
		e.engine.archiveFailed(ed.RunID, types.NewExecuteFailed(errors.Annotatef(err, "archive file failed")))
		return
	}
	b, err := utils.Serialize(&ArchiveRecord{
		ExecutionData:  snapshot,
		FlowDefinition: e.flow,
		ArchivedAt:     time.Now(),
	})
	if err != nil {
		e.engine.archiveFailed(ed.RunID, types.NewExecuteFailed(errors.Annotatef(err, "archive file failed")))
		return
	}

	e.archiveMu.Lock()
	e.pendingArchive = &archivePayload{tenant: ed.DataIsolation.TenantID, data: b}
	e.archiveMu.Unlock()

	taskCtx := context.WithoutCancel(ctx)
	e.engine.submitArchive(func() {
		e.writeArchive(taskCtx)
	})
}

// writeArchive takes the newest pending snapshot under the archive lock, so
// an older snapshot never overwrites a newer one.
func (e *Executor) writeArchive(ctx context.Context) {
	key := lock.ArchiveKey(ExecutorKind, e.executeLogID)
	token := uuid.NewString()
	locker := e.engine.locker

	ok, err := locker.SpinLock(ctx, key, token, e.engine.opts.ArchiveSpinWait())
	if err != nil || !ok {
		if err != nil {
			err = errors.Annotatef(err, "archive file failed")
		} else {
			err = errors.New("archive file failed")
		}
		e.engine.archiveFailed(e.ed.RunID, types.NewExecuteFailed(err))
		return
	}
	defer locker.Release(ctx, key, token)

	e.archiveMu.Lock()
	payload := e.pendingArchive
	e.pendingArchive = nil
	e.archiveMu.Unlock()
	if payload == nil {
		return
	}

	if err := e.engine.archive.Put(ctx, payload.tenant, e.executeLogID, payload.data); err != nil {
		e.engine.archiveFailed(e.ed.RunID, types.NewExecuteFailed(errors.Annotatef(err, "archive file failed")))
	}
}
