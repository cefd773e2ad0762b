package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/account-opening-agents/agent/contract"
	prospectx "github.com/tanpawarit/account-opening-agents/agent/prospect"
	skillsx "github.com/tanpawarit/account-opening-agents/agent/skills"
)

const (
	FuncCreateProspect       = "create_prospect"
	FuncFetchProspectDetails = "fetch_prospect_details"
	FuncFetchProspectByID    = "fetch_prospect_details_by_id"
	FuncCollectKYC           = "collect_kyc_info"
	FuncCollectSOW           = "collect_sow_info"
	FuncExtractDocuments     = "perform_data_management_ai_extraction"
	FuncNameScreening        = "perform_name_screening"
	FuncCreateClientProfile  = "create_client_profile"
	FuncComplianceAssessment = "perform_compliance_risk_assessment"
	FuncAssignFirstLine      = "assign_first_line_of_defence"
	FuncInstructionsComplete = "instructions_complete"
)

const (
	prospectDataArgument        = "prospect_data"
	nameScreeningResultArgument = "name_screening_result"
)

// Catalog registers the account-opening functions against steps.
func Catalog(steps *skillsx.Steps) (*Registry, error) {
	if steps == nil {
		return nil, fmt.Errorf("%w: steps are required", contractx.ErrValidation)
	}
	b := binder{store: steps.Store()}

	return NewRegistry(
		Function{
			Name:        FuncCreateProspect,
			Description: "Create a prospect in the CRM with initial minimal information.",
			Params: map[string]*Param{
				"first_name":      {Type: schema.String, Desc: "First name of the prospect.", Required: true},
				"last_name":       {Type: schema.String, Desc: "Last name of the prospect.", Required: true},
				"dob":             {Type: schema.String, Desc: "Date of birth (YYYY-MM-DD).", Required: true},
				"nationality":     {Type: schema.String, Desc: "ISO 3166 alpha-2 country code.", Required: true},
				"referral_source": {Type: schema.String, Desc: "How the prospect was referred."},
			},
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var in skillsx.NewProspect
				if err := decodeArgs(FuncCreateProspect, args, &in); err != nil {
					return nil, err
				}
				return steps.CreateRecord(ctx, in)
			},
		},
		Function{
			Name:        FuncFetchProspectDetails,
			Description: "Load prospect data from the CRM using the given full name.",
			Params: map[string]*Param{
				"full_name": {Type: schema.String, Desc: "The full name of the prospect (e.g., 'John Doe').", Required: true},
			},
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var in struct {
					FullName string `json:"full_name"`
				}
				if err := decodeArgs(FuncFetchProspectDetails, args, &in); err != nil {
					return nil, err
				}
				return steps.FetchByName(ctx, in.FullName)
			},
		},
		Function{
			Name:        FuncFetchProspectByID,
			Description: "Load prospect data from the CRM using the clientID.",
			Params: map[string]*Param{
				"clientID": {Type: schema.String, Desc: "The client identifier (e.g., 'PROSP1234').", Required: true},
			},
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var in struct {
					ClientID string `json:"clientID"`
				}
				if err := decodeArgs(FuncFetchProspectByID, args, &in); err != nil {
					return nil, err
				}
				return steps.FetchByID(ctx, in.ClientID)
			},
		},
		Function{
			Name:        FuncCollectKYC,
			Description: "KYC Information Collection: checks if mandatory fields are present.",
			Params:      prospectDataParams("A dictionary of prospect data from the CRM.", identityFields()),
			Handler: b.withRecord(FuncCollectKYC, func(ctx context.Context, rec *prospectx.Record, _ map[string]json.RawMessage) (any, error) {
				return steps.CollectKYC(ctx, rec)
			}),
		},
		Function{
			Name:        FuncCollectSOW,
			Description: "Collect declared source of wealth (SOW) from prospect data.",
			Params: prospectDataParams("A dictionary of prospect data from the CRM.", withField(identityFields(),
				"declared_source_of_wealth", &Param{Type: schema.String, Desc: "Declared source(s) of wealth."})),
			Handler: b.withRecord(FuncCollectSOW, func(ctx context.Context, rec *prospectx.Record, _ map[string]json.RawMessage) (any, error) {
				return steps.CollectSOW(ctx, rec)
			}),
		},
		Function{
			Name:        FuncExtractDocuments,
			Description: "Parse attached docs (PDFs, images, etc.) with AI to extract relevant data.",
			Params: prospectDataParams("A dictionary of prospect data that may include 'documents_provided'.", map[string]*Param{
				"clientID": {Type: schema.String, Required: true},
				"documents_provided": {
					Type:     schema.Array,
					Desc:     "A list of documents name provided by the prospect.",
					Required: true,
					Items:    &Param{Type: schema.String},
				},
			}),
			Handler: b.withRecord(FuncExtractDocuments, func(ctx context.Context, rec *prospectx.Record, _ map[string]json.RawMessage) (any, error) {
				return steps.ExtractDocuments(ctx, rec)
			}),
		},
		Function{
			Name:        FuncNameScreening,
			Description: "Randomly decides if the name appears on watchlists or sanctions lists.",
			Params:      prospectDataParams("A dictionary of prospect data containing name fields.", identityFields()),
			Handler: b.withRecord(FuncNameScreening, func(ctx context.Context, rec *prospectx.Record, _ map[string]json.RawMessage) (any, error) {
				return steps.ScreenName(ctx, rec)
			}),
		},
		Function{
			Name:        FuncCreateClientProfile,
			Description: "Create a risk profile for the client based on name screening and nationality.",
			Params: withField(prospectDataParams("Prospect data containing nationality, etc.", map[string]*Param{
				"clientID":    {Type: schema.String, Required: true},
				"nationality": {Type: schema.String, Required: true},
				"risk_level":  {Type: schema.String},
				"risk_score":  {Type: schema.Integer},
			}), nameScreeningResultArgument, &Param{
				Type:     schema.String,
				Desc:     "The result of perform_name_screening function.",
				Required: true,
			}),
			Handler: b.withRecord(FuncCreateClientProfile, func(ctx context.Context, rec *prospectx.Record, args map[string]json.RawMessage) (any, error) {
				var screening string
				if raw, ok := args[nameScreeningResultArgument]; ok {
					if err := json.Unmarshal(raw, &screening); err != nil {
						return nil, fmt.Errorf("%w: %s: %s must be a string", contractx.ErrArgumentParse, FuncCreateClientProfile, nameScreeningResultArgument)
					}
				}
				return steps.EvaluateRisk(ctx, rec, screening)
			}),
		},
		Function{
			Name:        FuncComplianceAssessment,
			Description: "Compliance check to determine if Enhanced Due Diligence is needed.",
			Params: prospectDataParams("Prospect data containing risk_level, status, etc.", map[string]*Param{
				"clientID":              {Type: schema.String, Required: true},
				"name_screening_result": {Type: schema.String, Required: true},
				"risk_level":            {Type: schema.String, Required: true},
			}),
			Handler: b.withRecord(FuncComplianceAssessment, func(ctx context.Context, rec *prospectx.Record, _ map[string]json.RawMessage) (any, error) {
				return steps.AssessCompliance(ctx, rec)
			}),
		},
		Function{
			Name:        FuncAssignFirstLine,
			Description: "Assign the case to a human interface for go/no-go (first line of defence).",
			Params: prospectDataParams("A dictionary containing up-to-date prospect info and status.", map[string]*Param{
				"clientID": {Type: schema.String, Required: true},
			}),
			Handler: b.withRecord(FuncAssignFirstLine, func(ctx context.Context, rec *prospectx.Record, _ map[string]json.RawMessage) (any, error) {
				return steps.AssignFirstLine(ctx, rec)
			}),
		},
		Function{
			Name:        FuncInstructionsComplete,
			Description: "signal that the execution should end.",
			Completion:  true,
			Handler: func(context.Context, json.RawMessage) (any, error) {
				return nil, nil
			},
		},
	)
}

func identityFields() map[string]*Param {
	return map[string]*Param{
		"clientID":    {Type: schema.String, Required: true},
		"firstName":   {Type: schema.String, Required: true},
		"lastName":    {Type: schema.String, Required: true},
		"dateOfBirth": {Type: schema.String, Required: true},
		"nationality": {Type: schema.String, Required: true},
	}
}

func prospectDataParams(desc string, fields map[string]*Param) map[string]*Param {
	return map[string]*Param{
		prospectDataArgument: {
			Type:       schema.Object,
			Desc:       desc,
			Required:   true,
			Properties: fields,
		},
	}
}

func withField(params map[string]*Param, name string, p *Param) map[string]*Param {
	params[name] = p
	return params
}

func decodeArgs(fn string, raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", contractx.ErrArgumentParse, fn, err)
	}
	return nil
}

type recordStep func(ctx context.Context, rec *prospectx.Record, args map[string]json.RawMessage) (any, error)

// binder turns a prospect_data payload into the record a step works on.
type binder struct {
	store prospectx.Store
}

func (b binder) withRecord(fn string, step recordStep) Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args map[string]json.RawMessage
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", contractx.ErrArgumentParse, fn, err)
		}
		rec, err := b.bind(ctx, fn, args[prospectDataArgument])
		if err != nil {
			return nil, err
		}
		return step(ctx, rec, args)
	}
}

// bind loads the stored record for prospect_data.clientID and overlays the
// supplied identity and document fields. Step-owned fields such as status and
// risk level always come from the store. If the load fails the payload alone
// is used.
func (b binder) bind(ctx context.Context, fn string, raw json.RawMessage) (*prospectx.Record, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: %s: %s is required", contractx.ErrArgumentParse, fn, prospectDataArgument)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %s must be an object: %v", contractx.ErrArgumentParse, fn, prospectDataArgument, err)
	}

	clientID, _ := payload["clientID"].(string)
	clientID = strings.TrimSpace(clientID)
	if clientID != "" {
		payload["clientID"] = clientID
		stored, err := b.store.GetByID(ctx, clientID)
		if err == nil {
			rec, err := prospectx.Merge(stored, prospectx.WithoutStepOwned(payload))
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", contractx.ErrArgumentParse, fn, err)
			}
			return rec, nil
		}
		log.Ctx(ctx).Warn().
			Err(err).
			Str("function", fn).
			Str("client_id", clientID).
			Msg("load stored record failed, using supplied payload")
	}

	rec, err := prospectx.FromMap(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", contractx.ErrArgumentParse, fn, err)
	}
	return rec, nil
}
