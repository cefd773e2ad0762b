package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	contractx "github.com/tanpawarit/account-opening-agents/agent/contract"
	prospectx "github.com/tanpawarit/account-opening-agents/agent/prospect"
	skillsx "github.com/tanpawarit/account-opening-agents/agent/skills"
)

// ProspectHandler serves the dashboard's CRM operations.
type ProspectHandler struct {
	Store prospectx.Store
	Steps *skillsx.Steps
	// ListPrefix defaults to prospectx.DefaultListPrefix.
	ListPrefix string
}

func (h *ProspectHandler) Register(r *gin.Engine) {
	r.POST("/prospects", h.listProspects)
	r.POST("/update_prospect", h.updateProspect)
	r.POST("/create_prospect", h.createProspect)
}

type listRequest struct {
	UserID string `json:"user_id"`
	Prefix string `json:"prefix"`
}

func (h *ProspectHandler) listProspects(c *gin.Context) {
	var req listRequest
	if !bindUser(c, &req, &req.UserID) {
		return
	}

	prefix := strings.TrimSpace(req.Prefix)
	if prefix == "" {
		prefix = h.ListPrefix
	}
	if prefix == "" {
		prefix = prospectx.DefaultListPrefix
	}

	records, err := h.Store.ListByIDPrefix(c.Request.Context(), prefix)
	if err != nil {
		Fail(c, "load_all_prospects", err)
		return
	}
	Ok(c, records)
}

type updateRequest struct {
	UserID       string          `json:"user_id"`
	ProspectData json.RawMessage `json:"prospect_data"`
}

func (h *ProspectHandler) updateProspect(c *gin.Context) {
	var req updateRequest
	if !bindUser(c, &req, &req.UserID) {
		return
	}

	patch, err := decodeProspectData(req.ProspectData)
	if err != nil {
		Fail(c, "update_prospect", err)
		return
	}
	clientID, _ := patch["clientID"].(string)
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		Fail(c, "update_prospect", fmt.Errorf("%w: prospect_data.clientID is required", contractx.ErrValidation))
		return
	}
	patch["clientID"] = clientID

	ctx := c.Request.Context()
	stored, err := h.Store.GetByID(ctx, clientID)
	if err != nil {
		Fail(c, "update_prospect", err)
		return
	}
	merged, err := prospectx.Merge(stored, patch)
	if err != nil {
		Fail(c, "update_prospect", fmt.Errorf("%w: %v", contractx.ErrValidation, err))
		return
	}
	updated, err := h.Store.Update(ctx, clientID, merged)
	if err != nil {
		Fail(c, "update_prospect", err)
		return
	}
	Ok(c, updated)
}

type createRequest struct {
	UserID string `json:"user_id"`
	skillsx.NewProspect
}

func (h *ProspectHandler) createProspect(c *gin.Context) {
	var req createRequest
	if !bindUser(c, &req, &req.UserID) {
		return
	}

	rec, err := h.Steps.CreateRecord(c.Request.Context(), req.NewProspect)
	if err != nil {
		Fail(c, "create_prospect", err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// bindUser decodes the JSON body into dst and enforces a non-empty user id.
func bindUser(c *gin.Context, dst any, userID *string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if strings.TrimSpace(*userID) == "" {
		Error(c, http.StatusBadRequest, "<user_id> is required!")
		return false
	}
	return true
}

// decodeProspectData accepts prospect_data as a JSON object or as a string
// holding a JSON object.
func decodeProspectData(raw json.RawMessage) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("%w: prospect_data is required", contractx.ErrValidation)
	}
	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, fmt.Errorf("%w: prospect_data: %v", contractx.ErrValidation, err)
		}
		raw = []byte(encoded)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: prospect_data must be an object: %v", contractx.ErrValidation, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: prospect_data must be an object", contractx.ErrValidation)
	}
	return out, nil
}
