package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the FairShare MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolSendPoints = mcp.NewTool("send_points",
	mcp.WithDescription(
		"Send points from a viewer to a creator. 100 points = $1.00. "+
			"Every transfer is risk-checked against the viewer's trust-scaled limits; "+
			"a flagged transfer is recorded but moves no points, and the reason is returned."),
	mcp.WithString("recipient",
		mcp.Required(),
		mcp.Description("Creator receiving the points (e.g. 'Alice')")),
	mcp.WithNumber("points",
		mcp.Required(),
		mcp.Description("Whole number of points to send, greater than zero")),
	mcp.WithString("sender",
		mcp.Description("Viewer sending the points. Defaults to the configured viewer.")),
)

var ToolGetThresholds = mcp.NewTool("get_thresholds",
	mcp.WithDescription(
		"Get a viewer's current risk limits: suspicious and fraud single-transfer thresholds, "+
			"hourly and daily totals, and the multipliers they were derived from."),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("Viewer name, exactly as registered (case-sensitive)")),
)

var ToolGetProfile = mcp.NewTool("get_profile",
	mcp.WithDescription(
		"Get a viewer's trust profile: account type and age, trust level, "+
			"total gifted points and number of flagged transfers."),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("Viewer name, exactly as registered (case-sensitive)")),
)

var ToolTransactionSummary = mcp.NewTool("transaction_summary",
	mcp.WithDescription(
		"Get ledger totals: number of transfers, flagged count, points recorded and the breakdown by risk level."),
)

var ToolFundFlow = mcp.NewTool("fund_flow",
	mcp.WithDescription(
		"Get fund flow over a trailing window: points moved, average transfer size, transfer count, "+
			"success rate, risk-management and fund-safety scores, and any anomaly alerts."),
	mcp.WithNumber("hours",
		mcp.Description("Window length in hours, 1 to 720 (default 24)")),
)

var ToolCreatorLeaderboard = mcp.NewTool("creator_leaderboard",
	mcp.WithDescription(
		"List creators ranked by engagement score (0.3 x views + likes + 2 x shares) "+
			"with their fair share of rewards and points received."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of creators to return (default 10)")),
)
