package types

import "time"

// ExecuteLogEntity records one top-level execute attempt. Its ID is the run
// lock key.
type ExecuteLogEntity struct {
	ID             string      `json:"id"`
	RunID          string      `json:"run_id"`
	Status         StatusType  `json:"status"`
	Result         Data        `json:"result,omitempty"`
	FlowCode       string      `json:"flow_code,omitempty"`
	FlowVersion    string      `json:"flow_version,omitempty"`
	Creator        string      `json:"creator,omitempty"`
	TriggerType    TriggerType `json:"trigger_type"`
	ConversationID string      `json:"conversation_id,omitempty"`
	TenantID       string      `json:"tenant_id,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// WaitMessageEntity is a suspended run waiting for the next trigger on the
// same conversation/flow/version.
type WaitMessageEntity struct {
	ID       string `json:"id"`
	NodeID   string `json:"node_id"`
	Snapshot []byte `json:"snapshot"`
	// Timeout is an absolute unix time in seconds, 0 when unset.
	Timeout        int64     `json:"timeout,omitempty"`
	ConversationID string    `json:"conversation_id"`
	FlowCode       string    `json:"flow_code"`
	FlowVersion    string    `json:"flow_version"`
	TenantID       string    `json:"tenant_id,omitempty"`
	Handled        bool      `json:"handled"`
	CreatedAt      time.Time `json:"created_at"`
}

func (w *WaitMessageEntity) Expired(now time.Time) bool {
	return w.Timeout > 0 && now.Unix() >= w.Timeout
}
