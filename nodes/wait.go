package nodes

import (
	"context"
	"strings"
	"time"

	"github.com/juju/errors"

	"github.com/warriorguo/flowexec/types"
)

// TimeoutConfig is the "timeoutConfig" of a wait node.
type TimeoutConfig struct {
	Enabled  bool   `json:"enabled"`
	Interval int64  `json:"interval"`
	Unit     string `json:"unit"`
}

func unitSeconds(unit string) (int64, error) {
	switch strings.ToLower(unit) {
	case "seconds", "second", "s":
		return 1, nil
	case "minutes", "minute", "m":
		return 60, nil
	case "hours", "hour", "h":
		return 3600, nil
	case "days", "day", "d":
		return 86400, nil
	}
	return 0, errors.NotValidf("timeout unit %q", unit)
}

// Deadline returns the absolute unix timeout counted from now, 0 when the
// timeout is off.
func (c *TimeoutConfig) Deadline(now time.Time) (int64, error) {
	if c == nil || !c.Enabled || c.Interval <= 0 {
		return 0, nil
	}
	secs, err := unitSeconds(c.Unit)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return now.Unix() + c.Interval*secs, nil
}

// WaitRunner suspends the run on first arrival and continues with the new
// trigger data when the run is resumed at it.
type WaitRunner struct {
	waits types.WaitMessageService
	now   func() time.Time
}

func NewWaitRunner(waits types.WaitMessageService, now func() time.Time) *WaitRunner {
	if now == nil {
		now = time.Now
	}
	return &WaitRunner{waits: waits, now: now}
}

func (w *WaitRunner) Execute(ctx context.Context, node *types.Node, vr *types.VertexResult, ed *types.ExecutionData, frontResults types.Data) error {
	if ed.TriggerType == types.TriggerWaitMessage && ed.ResumeNodeID == node.NodeID {
		vr.Result = ed.TriggerData.Clone()
		if vr.Result == nil {
			vr.Result = types.Data{}
		}
		vr.AddDebugLog("resumed", true)
		return nil
	}

	vr.Stop()
	if w.waits == nil {
		return types.NewNodeErrorf("wait_unsupported", "no wait message service").Fatal()
	}
	if ed.InLoop {
		return types.NewNodeErrorf("wait_unsupported", "wait node %s inside a loop", node.NodeID)
	}

	cfg := &TimeoutConfig{}
	if _, exists := node.Config.Get("timeoutConfig"); exists {
		if err := node.Config.GetStruct("timeoutConfig", cfg); err != nil {
			return types.NewNodeErrorf("wait_invalid", "timeoutConfig of %s: %v", node.NodeID, err)
		}
	}
	deadline, err := cfg.Deadline(w.now())
	if err != nil {
		return types.NewNodeErrorf("wait_invalid", "%v", err)
	}

	snapshot, err := ed.Snapshot()
	if err != nil {
		return errors.Trace(err)
	}
	entity := &types.WaitMessageEntity{
		NodeID:         node.NodeID,
		Snapshot:       snapshot,
		Timeout:        deadline,
		ConversationID: ed.ConversationID,
		FlowCode:       ed.FlowCode,
		FlowVersion:    ed.FlowVersion,
		TenantID:       ed.DataIsolation.TenantID,
		CreatedAt:      w.now(),
	}
	if err := w.waits.Save(ctx, entity); err != nil {
		return types.NewNodeErrorf("wait_save_failed", "%v", err).Fatal()
	}

	vr.Result = types.Data{"wait_message_id": entity.ID, "timeout": deadline}
	return nil
}
