package c2

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	OperationUpdate   = "update"
	OperationDescribe = "describe"
	OperationClear    = "clear"
	OperationRestart  = "restart"

	OperandConfiguration = "configuration"
)

// AgentInfo identifies the sender of a heartbeat.
type AgentInfo struct {
	Identifier string `json:"identifier"`
	AgentClass string `json:"agentClass"`
}

// Heartbeat is what the server kept of one agent heartbeat.
type Heartbeat struct {
	AgentInfo AgentInfo
	Received  time.Time
	Body      map[string]any
}

// Operation is a request the server hands to an agent in a heartbeat response.
type Operation struct {
	Identifier string            `json:"identifier"`
	Operation  string            `json:"operation"`
	Operand    string            `json:"operand,omitempty"`
	Args       map[string]string `json:"args,omitempty"`
}

// Ack is an agent's report on an operation.
type Ack struct {
	OperationID string
	State       string
	Details     string
	Received    time.Time
}

// FlowDocument is a flow served for one agent class.
type FlowDocument struct {
	ContentType string
	Body        []byte
}

// State records the conversation with every agent. It is safe for concurrent use.
type State struct {
	mu         sync.Mutex
	seq        int
	heartbeats []Heartbeat
	acks       []Ack
	flows      map[string]FlowDocument
	pending    map[string][]Operation
	events     []string
}

func NewState() *State {
	return &State{
		flows:   make(map[string]FlowDocument),
		pending: make(map[string][]Operation),
	}
}

// SetFlow makes doc the flow served to agents of class.
func (s *State) SetFlow(class string, doc FlowDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[class] = doc
}

func (s *State) Flow(class string) (FlowDocument, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.flows[class]
	return doc, ok
}

// QueueOperation schedules op for the next heartbeat of agentID and returns its identifier.
func (s *State) QueueOperation(agentID string, op Operation) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if op.Identifier == "" {
		op.Identifier = strconv.Itoa(s.seq)
	}
	s.pending[agentID] = append(s.pending[agentID], op)
	return op.Identifier
}

// PendingOperations counts the queued operations no heartbeat has picked up yet.
func (s *State) PendingOperations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ops := range s.pending {
		n += len(ops)
	}
	return n
}

// recordHeartbeat stores hb and hands out the operations pending for its agent.
func (s *State) recordHeartbeat(hb Heartbeat) []Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats = append(s.heartbeats, hb)
	ops := s.pending[hb.AgentInfo.Identifier]
	delete(s.pending, hb.AgentInfo.Identifier)
	s.events = append(s.events, fmt.Sprintf("heartbeat from %s of class %s", hb.AgentInfo.Identifier, hb.AgentInfo.AgentClass))
	for _, op := range ops {
		s.events = append(s.events, fmt.Sprintf("sent operation %s %s %s", op.Identifier, op.Operation, op.Operand))
	}
	return ops
}

func (s *State) recordAck(ack Ack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acks = append(s.acks, ack)
	s.events = append(s.events, fmt.Sprintf("operation %s acknowledged with state %s", ack.OperationID, ack.State))
}

// Log is the event journal of the server, one line per heartbeat,
// handed out operation and acknowledgement.
func (s *State) Log() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.events, "\n")
}

func (s *State) Heartbeats() []Heartbeat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Heartbeat(nil), s.heartbeats...)
}

func (s *State) Acks() []Ack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Ack(nil), s.acks...)
}

// HeartbeatsFrom counts the heartbeats received from agentID.
func (s *State) HeartbeatsFrom(agentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, hb := range s.heartbeats {
		if hb.AgentInfo.Identifier == agentID {
			n++
		}
	}
	return n
}

// AckFor returns the acknowledgement of an operation, if one arrived.
func (s *State) AckFor(operationID string) (Ack, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.acks {
		if a.OperationID == operationID {
			return a, true
		}
	}
	return Ack{}, false
}
