package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the Meterline MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolGetBalance = mcp.NewTool("get_balance",
	mcp.WithDescription(
		"Check your workspace's current credit balance on Meterline. "+
			"Shows available credits, lifetime top-ups and spend, and whether the wallet is frozen. "+
			"Use this before starting expensive work to avoid failed charges."),
)

var ToolGetLedger = mcp.NewTool("get_ledger",
	mcp.WithDescription(
		"List recent credit ledger entries for your workspace: charges, top-ups, refunds, and adjustments. "+
			"Entries are newest first with signed amounts (charges negative)."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of entries to return (default 20, max 200)")),
)

var ToolCalculateCost = mcp.NewTool("calculate_cost",
	mcp.WithDescription(
		"Calculate what an AI action would cost in credits before running it. "+
			"Applies the current base rate and multipliers for your workspace, and reports "+
			"whether your balance covers it. Nothing is charged."),
	mcp.WithString("action_kind",
		mcp.Required(),
		mcp.Description("Kind of action (e.g. 'ai_reply', 'document_ingest', 'integration_sync')")),
	mcp.WithNumber("token_count",
		mcp.Required(),
		mcp.Description("Estimated number of tokens the action will consume")),
)

var ToolGetPricing = mcp.NewTool("get_pricing",
	mcp.WithDescription(
		"Get the active Meterline pricing rules: base credit cost per 1000 tokens "+
			"and the per-action-kind and per-persona multipliers."),
)

var ToolCheckAction = mcp.NewTool("check_action",
	mcp.WithDescription(
		"Check whether an action kind is currently allowed for your workspace. "+
			"Returns false when a platform kill switch or a workspace-level override "+
			"has disabled the feature category. Check before queuing large batches."),
	mcp.WithString("action_kind",
		mcp.Required(),
		mcp.Description("Kind of action to check (e.g. 'ai_reply')")),
)
