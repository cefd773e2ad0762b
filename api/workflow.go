package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/account-opening-agents/agent/contract"
	qstashx "github.com/tanpawarit/account-opening-agents/pkg/qstash"
)

const signatureHeader = "Upstash-Signature"

type Publisher interface {
	Publish(ctx context.Context, destination string, body []byte) (string, error)
}

type SignatureVerifier interface {
	Verify(signature string, body []byte, deliveredURL string) error
}

// WorkflowHandler runs the agents, inline or through the QStash queue.
// Queue and Verifier are nil when async runs are disabled.
type WorkflowHandler struct {
	Runner      contractx.WorkflowRunner
	Queue       Publisher
	Verifier    SignatureVerifier
	CallbackURL string
}

func (h *WorkflowHandler) Register(r *gin.Engine) {
	r.POST("/run_ao_agents", h.run)
	r.POST("/run_ao_agents/async", h.enqueue)
	r.POST("/qstash/run_ao_agents", h.callback)
}

type runRequest struct {
	UserID       string          `json:"user_id"`
	ClientID     string          `json:"clientID"`
	ProspectData json.RawMessage `json:"prospect_data"`
	Scenario     string          `json:"scenario"`
}

func (r runRequest) toRunRequest() (contractx.RunRequest, error) {
	out := contractx.RunRequest{
		ClientID: strings.TrimSpace(r.ClientID),
		Scenario: strings.TrimSpace(r.Scenario),
	}
	if len(r.ProspectData) > 0 && string(r.ProspectData) != "null" {
		snapshot, err := decodeProspectData(r.ProspectData)
		if err != nil {
			return contractx.RunRequest{}, err
		}
		out.Snapshot = snapshot
	}
	if out.ClientID == "" && out.Snapshot == nil {
		return contractx.RunRequest{}, fmt.Errorf("%w: clientID or prospect_data is required", contractx.ErrValidation)
	}
	return out, nil
}

func (h *WorkflowHandler) run(c *gin.Context) {
	var req runRequest
	if !bindUser(c, &req, &req.UserID) {
		return
	}
	runReq, err := req.toRunRequest()
	if err != nil {
		Fail(c, "run_ao_agents", err)
		return
	}

	out, err := h.Runner.Run(c.Request.Context(), runReq)
	if err != nil {
		Fail(c, "run_ao_agents", err)
		return
	}
	Ok(c, out)
}

type enqueueResponse struct {
	MessageID string `json:"message_id"`
	ClientID  string `json:"clientID"`
}

func (h *WorkflowHandler) enqueue(c *gin.Context) {
	if h.Queue == nil || strings.TrimSpace(h.CallbackURL) == "" {
		Fail(c, "run_ao_agents_async", qstashx.ErrDisabled)
		return
	}

	var req runRequest
	if !bindUser(c, &req, &req.UserID) {
		return
	}
	runReq, err := req.toRunRequest()
	if err != nil {
		Fail(c, "run_ao_agents_async", err)
		return
	}

	body, err := json.Marshal(runReq)
	if err != nil {
		Fail(c, "run_ao_agents_async", err)
		return
	}
	id, err := h.Queue.Publish(c.Request.Context(), h.CallbackURL, body)
	if err != nil {
		Fail(c, "run_ao_agents_async", err)
		return
	}

	clientID := runReq.ClientID
	if clientID == "" {
		clientID, _ = runReq.Snapshot["clientID"].(string)
	}
	log.Ctx(c.Request.Context()).Info().Str("message_id", id).Str("client_id", clientID).Msg("workflow run enqueued")
	c.JSON(http.StatusAccepted, enqueueResponse{MessageID: id, ClientID: clientID})
}

// callback runs a workflow delivered by QStash. Validation failures are
// answered with 4xx so QStash does not retry them; run failures return 5xx.
func (h *WorkflowHandler) callback(c *gin.Context) {
	if h.Verifier == nil {
		Fail(c, "run_ao_agents_callback", qstashx.ErrDisabled)
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.Verifier.Verify(c.GetHeader(signatureHeader), body, h.CallbackURL); err != nil {
		_ = c.Error(err)
		Error(c, http.StatusUnauthorized, "invalid signature")
		return
	}

	var runReq contractx.RunRequest
	if err := json.Unmarshal(body, &runReq); err != nil {
		Fail(c, "run_ao_agents_callback", fmt.Errorf("%w: %v", contractx.ErrValidation, err))
		return
	}

	out, err := h.Runner.Run(c.Request.Context(), runReq)
	if err != nil {
		Fail(c, "run_ao_agents_callback", err)
		return
	}
	Ok(c, out)
}
