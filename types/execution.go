package types

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"

	"github.com/warriorguo/flowexec/utils"
)

type DataIsolation struct {
	TenantID         string `json:"tenant_id"`
	OrganizationCode string `json:"organization_code,omitempty"`
	UserID           string `json:"user_id,omitempty"`
}

type ReplyMessage struct {
	NodeID    string    `json:"node_id,omitempty"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	ReplyTypeText  = "text"
	ReplyTypeError = "error"
)

// ExecutionData is threaded through every node of one run. Nested runs get
// their own instance; loop iterations share the outer one.
type ExecutionData struct {
	mu sync.RWMutex

	RunID string `json:"run_id"`
	// ExecuteLogID is the top-level log id and keys the archive.
	ExecuteLogID string `json:"execute_log_id,omitempty"`
	Level        int    `json:"level"`
	ParentRunID  string `json:"parent_run_id,omitempty"`

	TriggerType TriggerType `json:"trigger_type"`
	TriggerData Data        `json:"trigger_data,omitempty"`

	ConversationID       string        `json:"conversation_id,omitempty"`
	OriginConversationID string        `json:"origin_conversation_id,omitempty"`
	TopicID              string        `json:"topic_id,omitempty"`
	DataIsolation        DataIsolation `json:"data_isolation"`

	AgentID     string `json:"agent_id,omitempty"`
	FlowCode    string `json:"flow_code,omitempty"`
	FlowVersion string `json:"flow_version,omitempty"`

	ReplyMessages []ReplyMessage  `json:"reply_messages,omitempty"`
	NodeContexts  map[string]Data `json:"node_contexts,omitempty"`
	Result        Data            `json:"result,omitempty"`

	Stream        bool             `json:"stream"`
	StreamStatus  FlowStreamStatus `json:"stream_status"`
	Debug         bool             `json:"debug,omitempty"`
	Async         bool             `json:"async,omitempty"`
	ExecutionType ExecutionType    `json:"execution_type,omitempty"`
	InLoop        bool             `json:"in_loop,omitempty"`

	// ResumeNodeID is the wait node a restored run re-enters at.
	ResumeNodeID string `json:"-"`

	stream StreamChannel
}

func NewExecutionData(triggerType TriggerType, triggerData Data) *ExecutionData {
	return &ExecutionData{
		RunID:        uuid.NewString(),
		TriggerType:  triggerType,
		TriggerData:  triggerData,
		NodeContexts: make(map[string]Data),
	}
}

// NewChild derives the context for a nested run one level deeper. Identity,
// isolation and the stream channel are inherited; node state and the
// execute log are not.
func (ed *ExecutionData) NewChild(triggerType TriggerType, triggerData Data) *ExecutionData {
	child := NewExecutionData(triggerType, triggerData)
	child.Level = ed.Level + 1
	child.ParentRunID = ed.RunID
	child.ConversationID = ed.ConversationID
	child.OriginConversationID = ed.OriginConversationID
	child.TopicID = ed.TopicID
	child.DataIsolation = ed.DataIsolation
	child.Stream = ed.Stream
	child.StreamStatus = ed.StreamStatus
	child.Debug = ed.Debug
	child.ExecutionType = ed.ExecutionType
	child.InLoop = ed.InLoop
	child.stream = ed.stream
	return child
}

func (ed *ExecutionData) IsLoopReentry() bool {
	return ed.TriggerType == TriggerLoopReentry
}

func (ed *ExecutionData) SaveNodeContext(nodeID string, output Data) {
	ed.mu.Lock()
	defer ed.mu.Unlock()

	if ed.NodeContexts == nil {
		ed.NodeContexts = make(map[string]Data)
	}
	ed.NodeContexts[nodeID] = output
}

func (ed *ExecutionData) NodeContext(nodeID string) (Data, bool) {
	ed.mu.RLock()
	defer ed.mu.RUnlock()

	d, exists := ed.NodeContexts[nodeID]
	return d, exists
}

// NodeContextMap copies the saved context of every node.
func (ed *ExecutionData) NodeContextMap() map[string]Data {
	ed.mu.RLock()
	defer ed.mu.RUnlock()
	return utils.CloneMap(ed.NodeContexts)
}

func (ed *ExecutionData) AddReply(msg ReplyMessage) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	ed.mu.Lock()
	defer ed.mu.Unlock()
	ed.ReplyMessages = append(ed.ReplyMessages, msg)
}

func (ed *ExecutionData) AddReplies(msgs []ReplyMessage) {
	ed.mu.Lock()
	defer ed.mu.Unlock()
	ed.ReplyMessages = append(ed.ReplyMessages, msgs...)
}

func (ed *ExecutionData) Replies() []ReplyMessage {
	ed.mu.RLock()
	defer ed.mu.RUnlock()
	return append([]ReplyMessage(nil), ed.ReplyMessages...)
}

func (ed *ExecutionData) ReplyCount() int {
	ed.mu.RLock()
	defer ed.mu.RUnlock()
	return len(ed.ReplyMessages)
}

// RepliesSince returns the replies appended after the first n.
func (ed *ExecutionData) RepliesSince(n int) []ReplyMessage {
	ed.mu.RLock()
	defer ed.mu.RUnlock()
	if n >= len(ed.ReplyMessages) {
		return nil
	}
	return append([]ReplyMessage(nil), ed.ReplyMessages[n:]...)
}

func (ed *ExecutionData) AttachStream(ch StreamChannel) {
	ed.stream = ch
	ed.Stream = ch != nil
}

func (ed *ExecutionData) StreamChannel() StreamChannel {
	return ed.stream
}

// WriteStream sends a chunk when streaming is on and flips the status to
// Processing on first write. Writes after Finished are dropped.
func (ed *ExecutionData) WriteStream(chunk any) error {
	if !ed.Stream || ed.stream == nil || ed.StreamStatus == StreamFinished {
		return nil
	}
	ed.StreamStatus = StreamProcessing
	return errors.Trace(ed.stream.Write(chunk))
}

// EmitError reports a node failure to the caller: on the stream when
// streaming, otherwise as an error reply.
func (ed *ExecutionData) EmitError(nodeID, message string) error {
	if ed.Stream && ed.stream != nil {
		return ed.WriteStream(Data{"type": ReplyTypeError, "node_id": nodeID, "content": message})
	}
	ed.AddReply(ReplyMessage{NodeID: nodeID, Type: ReplyTypeError, Content: message})
	return nil
}

func (ed *ExecutionData) Snapshot() ([]byte, error) {
	ed.mu.RLock()
	defer ed.mu.RUnlock()

	b, err := utils.Serialize(ed)
	return b, errors.Trace(err)
}

// Restore loads a snapshot taken by Snapshot. Fields bound to the current
// call (run id, nesting, stream, flags, trigger data) are kept.
func (ed *ExecutionData) Restore(b []byte) error {
	saved := &ExecutionData{}
	if err := utils.Unserialize(b, saved); err != nil {
		return errors.Annotatef(err, "restore execution data")
	}

	ed.mu.Lock()
	defer ed.mu.Unlock()

	ed.ReplyMessages = saved.ReplyMessages
	ed.NodeContexts = saved.NodeContexts
	if ed.NodeContexts == nil {
		ed.NodeContexts = make(map[string]Data)
	}
	ed.Result = saved.Result
	if ed.OriginConversationID == "" {
		ed.OriginConversationID = saved.OriginConversationID
	}
	if ed.TopicID == "" {
		ed.TopicID = saved.TopicID
	}
	if ed.AgentID == "" {
		ed.AgentID = saved.AgentID
	}
	ed.TriggerType = TriggerWaitMessage
	return nil
}
