package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *MeterlineClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *MeterlineClient) *Handlers {
	return &Handlers{client: client}
}

// HandleGetBalance returns the workspace's credit balance.
func (h *Handlers) HandleGetBalance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetWallet(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get balance: %v", err)), nil
	}

	text, err := formatWallet(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse wallet: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetLedger lists recent ledger entries.
func (h *Handlers) HandleGetLedger(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)

	raw, err := h.client.GetLedger(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get ledger: %v", err)), nil
	}

	text, err := formatLedger(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse ledger: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleCalculateCost prices an action without charging.
func (h *Handlers) HandleCalculateCost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actionKind := req.GetString("action_kind", "")
	if actionKind == "" {
		return mcp.NewToolResultError("action_kind is required"), nil
	}
	tokenCount := int64(req.GetInt("token_count", 0))

	raw, err := h.client.PreviewAction(ctx, actionKind, tokenCount)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to calculate cost: %v", err)), nil
	}

	var preview struct {
		Cost       string `json:"cost"`
		Sufficient bool   `json:"sufficient"`
		Balance    string `json:"balance"`
	}
	if err := json.Unmarshal(raw, &preview); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse preview: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Action: %s (%d tokens)\n", actionKind, tokenCount)
	fmt.Fprintf(&sb, "Cost: %s credits\n", preview.Cost)
	fmt.Fprintf(&sb, "Balance: %s credits\n", preview.Balance)
	if preview.Sufficient {
		sb.WriteString("Your balance covers this action.")
	} else {
		sb.WriteString("Insufficient balance. Running this action would fail; top up first.")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleGetPricing returns the active pricing rules.
func (h *Handlers) HandleGetPricing(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetPricing(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get pricing: %v", err)), nil
	}

	text, err := formatPricing(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse pricing: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleCheckAction reports whether the feature gate allows an action.
func (h *Handlers) HandleCheckAction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actionKind := req.GetString("action_kind", "")
	if actionKind == "" {
		return mcp.NewToolResultError("action_kind is required"), nil
	}

	raw, err := h.client.CheckAction(ctx, actionKind)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to check action: %v", err)), nil
	}

	var check struct {
		Allowed bool   `json:"allowed"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal(raw, &check); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse check: %v", err)), nil
	}

	if check.Allowed {
		return mcp.NewToolResultText(fmt.Sprintf("Action '%s' is currently allowed.", actionKind)), nil
	}
	reason := check.Reason
	if reason == "" {
		reason = "feature disabled"
	}
	return mcp.NewToolResultText(fmt.Sprintf("Action '%s' is currently BLOCKED: %s", actionKind, reason)), nil
}

// ---------------------------------------------------------------------------
// Formatters
// ---------------------------------------------------------------------------

func formatWallet(raw json.RawMessage) (string, error) {
	var w struct {
		TenantID string `json:"tenantId"`
		Balance  string `json:"balance"`
		Frozen   bool   `json:"frozen"`
		TotalIn  string `json:"totalIn"`
		TotalOut string `json:"totalOut"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Workspace: %s\n", w.TenantID)
	fmt.Fprintf(&sb, "Balance: %s credits\n", w.Balance)
	fmt.Fprintf(&sb, "Lifetime in: %s credits\n", w.TotalIn)
	fmt.Fprintf(&sb, "Lifetime out: %s credits\n", w.TotalOut)
	if w.Frozen {
		sb.WriteString("\nWARNING: this wallet is FROZEN. Charges will be rejected until an operator unfreezes it.")
	}
	return sb.String(), nil
}

func formatLedger(raw json.RawMessage) (string, error) {
	var page struct {
		Entries []struct {
			ID          string `json:"id"`
			Type        string `json:"type"`
			Amount      string `json:"amount"`
			Reference   string `json:"reference"`
			Description string `json:"description"`
			CreatedAt   string `json:"createdAt"`
		} `json:"entries"`
		HasMore bool `json:"hasMore"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return "", err
	}

	if len(page.Entries) == 0 {
		return "No ledger entries yet.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Recent ledger entries (%d):\n\n", len(page.Entries))
	for _, e := range page.Entries {
		fmt.Fprintf(&sb, "%s  %-12s  %10s", e.CreatedAt, e.Type, e.Amount)
		if e.Description != "" {
			fmt.Fprintf(&sb, "  %s", e.Description)
		}
		if e.Reference != "" {
			fmt.Fprintf(&sb, "  (ref %s)", e.Reference)
		}
		sb.WriteString("\n")
	}
	if page.HasMore {
		sb.WriteString("\nOlder entries exist; raise the limit to see more.")
	}
	return sb.String(), nil
}

func formatPricing(raw json.RawMessage) (string, error) {
	var rules struct {
		CostPerThousandTokens string            `json:"costPerThousandTokens"`
		ActionMultipliers     map[string]string `json:"actionMultipliers"`
		PersonaMultipliers    map[string]string `json:"personaMultipliers"`
		Version               int64             `json:"version"`
	}
	if err := json.Unmarshal(raw, &rules); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Pricing rules (version %d)\n", rules.Version)
	fmt.Fprintf(&sb, "Base rate: %s credits per 1000 tokens\n", rules.CostPerThousandTokens)

	if len(rules.ActionMultipliers) > 0 {
		sb.WriteString("\nAction multipliers:\n")
		for kind, m := range rules.ActionMultipliers {
			fmt.Fprintf(&sb, "  %s: x%s\n", kind, m)
		}
	}
	if len(rules.PersonaMultipliers) > 0 {
		sb.WriteString("\nPersona multipliers:\n")
		for persona, m := range rules.PersonaMultipliers {
			fmt.Fprintf(&sb, "  %s: x%s\n", persona, m)
		}
	}
	sb.WriteString("\nUnknown action kinds and personas default to x1.0.")
	return sb.String(), nil
}
