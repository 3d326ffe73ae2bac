package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/fairshare/internal/creators"
	"github.com/mbd888/fairshare/internal/ledger"
	"github.com/mbd888/fairshare/internal/risk"
	"github.com/mbd888/fairshare/internal/transfers"
)

const defaultLeaderboardLimit = 10

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client        *FairShareClient
	defaultSender string
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *FairShareClient, defaultSender string) *Handlers {
	return &Handlers{client: client, defaultSender: defaultSender}
}

// HandleSendPoints submits a transfer and reports the risk verdict.
func (h *Handlers) HandleSendPoints(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recipient := req.GetString("recipient", "")
	if recipient == "" {
		return mcp.NewToolResultError("recipient is required"), nil
	}
	sender := req.GetString("sender", h.defaultSender)
	if sender == "" {
		return mcp.NewToolResultError("sender is required (no default viewer configured)"), nil
	}
	points := req.GetFloat("points", 0)
	if points <= 0 || points != math.Trunc(points) || points > math.MaxInt64/2 {
		return mcp.NewToolResultError("points must be a whole number greater than zero"), nil
	}

	raw, err := h.client.SendPoints(ctx, sender, recipient, int64(points))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Transfer failed: %v", err)), nil
	}

	var res transfers.Result
	if err := json.Unmarshal(raw, &res); err != nil || res.Transaction == nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse transfer result: %s", string(raw))), nil
	}
	return mcp.NewToolResultText(formatTransfer(&res)), nil
}

// HandleGetThresholds returns a viewer's current limits.
func (h *Handlers) HandleGetThresholds(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}

	raw, err := h.client.GetThresholds(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get thresholds: %v", err)), nil
	}

	var resp struct {
		UserID     string          `json:"userId"`
		Thresholds risk.Thresholds `json:"thresholds"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse thresholds: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Thresholds for %s:\n", resp.UserID)
	writeThresholds(&sb, resp.Thresholds)
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleGetProfile returns a viewer's trust profile.
func (h *Handlers) HandleGetProfile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}

	raw, err := h.client.GetProfile(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get profile: %v", err)), nil
	}

	var view transfers.ProfileView
	if err := json.Unmarshal(raw, &view); err != nil || view.Profile == nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse profile: %s", string(raw))), nil
	}

	p := view.Profile
	var sb strings.Builder
	fmt.Fprintf(&sb, "Profile for %s:\n", p.UserID)
	fmt.Fprintf(&sb, "  Account type: %s\n", p.AccountType)
	fmt.Fprintf(&sb, "  Account age:  %d days (%s)\n", view.Thresholds.AgeDays, view.Thresholds.AccountAge)
	fmt.Fprintf(&sb, "  Trust level:  %s\n", p.TrustLevel)
	fmt.Fprintf(&sb, "  Total gifted: %d points (%s)\n", p.TotalGifts, risk.FormatUSD(p.TotalGifts))
	fmt.Fprintf(&sb, "  Flagged:      %d\n", p.FlaggedCount)
	if p.LastGiftTime != nil {
		fmt.Fprintf(&sb, "  Last gift:    %s\n", p.LastGiftTime.Format("2006-01-02 15:04 MST"))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleTransactionSummary returns ledger totals.
func (h *Handlers) HandleTransactionSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetSummary(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get summary: %v", err)), nil
	}

	var resp struct {
		Summary ledger.Summary `json:"summary"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse summary: %v", err)), nil
	}

	sum := resp.Summary
	var sb strings.Builder
	sb.WriteString("Ledger summary:\n")
	fmt.Fprintf(&sb, "  Transfers: %d\n", sum.TotalTransactions)
	fmt.Fprintf(&sb, "  Flagged:   %d\n", sum.FlaggedCount)
	fmt.Fprintf(&sb, "  Points:    %d (%s)\n", sum.TotalPoints, risk.FormatUSD(sum.TotalPoints))
	for _, level := range []string{ledger.RiskLow, ledger.RiskMedium, ledger.RiskHigh} {
		fmt.Fprintf(&sb, "  %-9s  %d\n", level+":", sum.ByRiskLevel[level])
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleFundFlow reports fund flow and anomalies over a window.
func (h *Handlers) HandleFundFlow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetFlow(ctx, req.GetInt("hours", 0))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get fund flow: %v", err)), nil
	}

	var resp struct {
		Flow transfers.FlowReport `json:"flow"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse fund flow: %v", err)), nil
	}

	f := resp.Flow
	var sb strings.Builder
	fmt.Fprintf(&sb, "Fund flow, last %dh:\n", f.WindowHours)
	fmt.Fprintf(&sb, "  Points:       %d (%s)\n", f.TotalPoints, risk.FormatUSD(f.TotalPoints))
	fmt.Fprintf(&sb, "  Transfers:    %d (%d flagged)\n", f.Count, f.FlaggedCount)
	fmt.Fprintf(&sb, "  Average:      %.2f points\n", f.AveragePoints)
	fmt.Fprintf(&sb, "  Success rate: %.2f%%\n", f.SuccessRate)
	fmt.Fprintf(&sb, "  Risk score:   %.2f\n", f.RiskScore)
	fmt.Fprintf(&sb, "  Fund safety:  %.2f\n", f.FundSafetyScore)
	if len(f.Alerts) == 0 {
		sb.WriteString("No anomalies.\n")
	}
	for _, a := range f.Alerts {
		fmt.Fprintf(&sb, "  ALERT %s: %s\n", a.Kind, a.Message)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleCreatorLeaderboard lists creators by engagement.
func (h *Handlers) HandleCreatorLeaderboard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", defaultLeaderboardLimit)
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}

	raw, err := h.client.GetLeaderboard(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get leaderboard: %v", err)), nil
	}

	var resp struct {
		Leaderboard []creators.Entry `json:"leaderboard"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse leaderboard: %v", err)), nil
	}
	if len(resp.Leaderboard) == 0 {
		return mcp.NewToolResultText("No creators found."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Top %d creator(s):\n\n", len(resp.Leaderboard))
	for i, e := range resp.Leaderboard {
		fmt.Fprintf(&sb, "%d. %s  score %.1f  fair share %.2f%%  received %d points\n",
			i+1, e.Name, e.EngagementScore, e.FairRewardPercentage, e.PointsReceived)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// --- Formatting helpers ---

func formatTransfer(res *transfers.Result) string {
	tx := res.Transaction
	var sb strings.Builder
	if res.Success {
		fmt.Fprintf(&sb, "Sent %d points (%s) from %s to %s.\n",
			tx.Points, risk.FormatUSD(tx.Points), tx.Sender, tx.Recipient)
	} else {
		fmt.Fprintf(&sb, "Transfer of %d points from %s to %s was FLAGGED and not applied.\n",
			tx.Points, tx.Sender, tx.Recipient)
		fmt.Fprintf(&sb, "Reason: %s\n", tx.Reason)
	}
	fmt.Fprintf(&sb, "Risk level: %s\n", tx.RiskLevel)
	fmt.Fprintf(&sb, "Transaction ID: %s\n", tx.ID)
	sb.WriteString("\nSender limits:\n")
	writeThresholds(&sb, res.Thresholds)
	return sb.String()
}

func writeThresholds(sb *strings.Builder, th risk.Thresholds) {
	fmt.Fprintf(sb, "  Suspicious: %s\n", risk.FormatUSD(th.Suspicious))
	fmt.Fprintf(sb, "  Fraud:      %s\n", risk.FormatUSD(th.Fraud))
	fmt.Fprintf(sb, "  Hourly:     %s\n", risk.FormatUSD(th.Hourly))
	fmt.Fprintf(sb, "  Daily:      %s\n", risk.FormatUSD(th.Daily))
	fmt.Fprintf(sb, "  Trust level: %s (multiplier %.2f = age %.1f, verification %.1f)\n",
		th.TrustLevel, th.CombinedMultiplier, th.AgeMultiplier, th.VerificationMultiplier)
}
