package c2

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type heartbeatRequest struct {
	Operation string    `json:"operation"`
	AgentInfo AgentInfo `json:"agentInfo"`
}

type heartbeatResponse struct {
	RequestedOperations []Operation `json:"requestedOperations"`
}

type ackRequest struct {
	OperationID    string `json:"operationId"`
	OperationState struct {
		State   string `json:"state"`
		Details string `json:"details"`
	} `json:"operationState"`
}

func (s *Server) register(router *gin.RouterGroup) {
	router.POST("/config/heartbeat", s.Heartbeat)
	router.POST("/config/acknowledge", s.Acknowledge)
	router.GET("/config", s.GetFlow)
}

// Heartbeat records an agent heartbeat and answers with the operations queued for it
// (POST /c2/config/heartbeat)
func (s *Server) Heartbeat(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	var req heartbeatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		s.log.Debugw("heartbeat body is not an object", "error", err)
	}

	ops := s.state.recordHeartbeat(Heartbeat{AgentInfo: req.AgentInfo, Received: time.Now(), Body: raw})
	s.metrics.heartbeats.WithLabelValues(req.AgentInfo.AgentClass).Inc()
	s.log.Debugw("heartbeat", "agent", req.AgentInfo.Identifier, "class", req.AgentInfo.AgentClass, "operations", len(ops))

	if ops == nil {
		ops = []Operation{}
	}
	c.JSON(http.StatusOK, heartbeatResponse{RequestedOperations: ops})
}

// Acknowledge records the outcome of an operation
// (POST /c2/config/acknowledge)
func (s *Server) Acknowledge(c *gin.Context) {
	var req ackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.OperationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing operationId"})
		return
	}

	s.state.recordAck(Ack{
		OperationID: req.OperationID,
		State:       req.OperationState.State,
		Details:     req.OperationState.Details,
		Received:    time.Now(),
	})
	s.metrics.acks.WithLabelValues(req.OperationState.State).Inc()
	s.log.Infow("operation acknowledged", "operation_id", req.OperationID, "state", req.OperationState.State)

	c.Status(http.StatusOK)
}

// GetFlow serves the flow of an agent class
// (GET /c2/config?class=)
func (s *Server) GetFlow(c *gin.Context) {
	class := c.Query("class")
	if class == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing class"})
		return
	}
	doc, ok := s.state.Flow(class)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no flow for class " + class})
		return
	}
	c.Data(http.StatusOK, doc.ContentType, doc.Body)
}
