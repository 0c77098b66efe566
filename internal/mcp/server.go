package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"daka/internal/core"
)

// Scheduler is the part of the scheduler the tools use.
type Scheduler interface {
	Tasks() []core.Task
	NextRun(name string) (time.Time, bool)
	RunNow(name string) error
}

// RunStore reads run history.
type RunStore interface {
	ListRuns(ctx context.Context, task string, limit int) ([]*core.Run, error)
}

// GateReader reports task gate state.
type GateReader interface {
	Status(name string) core.GateStatus
}

// MCPServer exposes the task catalogue, manual runs, run history and gate
// state as MCP tools.
type MCPServer struct {
	runs      RunStore
	scheduler Scheduler
	gate      GateReader
	logger    *slog.Logger
	location  *time.Location
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(runs RunStore, scheduler Scheduler, gate GateReader, logger *slog.Logger, location *time.Location) *MCPServer {
	if location == nil {
		location = time.Local
	}
	return &MCPServer{
		runs:      runs,
		scheduler: scheduler,
		gate:      gate,
		logger:    logger,
		location:  location,
	}
}

// Run serves the tools on stdio until stdin closes.
func (s *MCPServer) Run() error {
	mcpServer := server.NewMCPServer(
		"daka",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)

	s.logger.Info("MCP server starting on stdio")
	return server.ServeStdio(mcpServer)
}

func (s *MCPServer) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("daka_list_tasks",
		mcp.WithDescription("列出打卡与日报任务、触发时间、下次执行时间和今日完成情况"),
	), s.handleListTasks)

	mcpServer.AddTool(mcp.NewTool("daka_run_task",
		mcp.WithDescription("立即执行指定任务（今日已完成或正在运行时会被跳过）"),
		mcp.WithString("task",
			mcp.Required(),
			mcp.Description("任务名: checkin_morning, checkin_evening 或 daily_report"),
			mcp.Enum(core.TaskMorningCheckin, core.TaskEveningCheckin, core.TaskDailyReport),
		),
	), s.handleRunTask)

	mcpServer.AddTool(mcp.NewTool("daka_list_runs",
		mcp.WithDescription("查看运行历史"),
		mcp.WithString("task",
			mcp.Description("任务名（可选，默认全部）"),
		),
		mcp.WithNumber("limit",
			mcp.Description("返回的运行记录数量，默认 20"),
			mcp.Min(1),
			mcp.Max(100),
		),
	), s.handleListRuns)

	mcpServer.AddTool(mcp.NewTool("daka_gate_status",
		mcp.WithDescription("查看任务锁文件和今日完成标记"),
	), s.handleGateStatus)

	s.logger.Info("MCP tools registered", "count", 4)
}

func (s *MCPServer) handleListTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tasks := s.scheduler.Tasks()
	var b strings.Builder
	fmt.Fprintf(&b, "共 %d 个任务 (时区 %s):\n\n", len(tasks), s.location)
	for _, t := range tasks {
		st := s.gate.Status(t.Name)
		icon := "⏳"
		if st.RanToday {
			icon = "✅"
		}
		fmt.Fprintf(&b, "%s %s (%s)\n", icon, t.Name, t.Title)
		fmt.Fprintf(&b, "  触发时间: %s\n", t.At())
		if next, ok := s.scheduler.NextRun(t.Name); ok {
			fmt.Fprintf(&b, "  下次执行: %s\n", formatTime(&next, s.location))
		}
		if st.Held {
			fmt.Fprintf(&b, "  正在运行 (PID %d)\n", st.PID)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleRunTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := mcp.ParseString(request, "task", "")
	if err := s.scheduler.RunNow(name); err != nil {
		if errors.Is(err, core.ErrUnknownTask) {
			return mcp.NewToolResultError(fmt.Sprintf("任务不存在: %s", name)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("执行任务失败: %v", err)), nil
	}
	s.logger.Info("manual run queued", "task", name, "via", "mcp")
	return mcp.NewToolResultText(fmt.Sprintf("任务已加入执行队列: %s", name)), nil
}

func (s *MCPServer) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task := mcp.ParseString(request, "task", "")
	limit := int(mcp.ParseFloat64(request, "limit", 20))

	runs, err := s.runs.ListRuns(ctx, task, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("获取运行历史失败: %v", err)), nil
	}
	if len(runs) == 0 {
		return mcp.NewToolResultText("暂无运行记录"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "找到 %d 条运行记录:\n\n", len(runs))
	for _, r := range runs {
		fmt.Fprintf(&b, "[%s] %s %s\n", statusToIcon(r.Status), r.Task, r.ID)
		fmt.Fprintf(&b, "    状态: %s (%s)\n", r.Status, r.Trigger)
		if r.StartedAt != nil {
			fmt.Fprintf(&b, "    开始: %s\n", formatTime(r.StartedAt, s.location))
		}
		if r.EndedAt != nil {
			fmt.Fprintf(&b, "    结束: %s\n", formatTime(r.EndedAt, s.location))
		}
		if r.Error != nil {
			fmt.Fprintf(&b, "    原因: %s\n", truncateString(*r.Error, 120))
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleGateStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var b strings.Builder
	for _, t := range s.scheduler.Tasks() {
		st := s.gate.Status(t.Name)
		fmt.Fprintf(&b, "%s\n", t.Name)
		fmt.Fprintf(&b, "  今日已完成: %t\n", st.RanToday)
		switch {
		case st.Held:
			fmt.Fprintf(&b, "  锁: 持有中 (PID %d)\n", st.PID)
		case st.LockFile:
			fmt.Fprintf(&b, "  锁: 残留锁文件 (PID %d)，未被持有\n", st.PID)
		default:
			b.WriteString("  锁: 无\n")
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func formatTime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "-"
	}
	return t.In(loc).Format("2006-01-02 15:04:05")
}

func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

func statusToIcon(status core.RunStatus) string {
	switch status {
	case core.RunStatusSucceeded:
		return "✅"
	case core.RunStatusFailed:
		return "❌"
	case core.RunStatusSkipped:
		return "⏭️"
	case core.RunStatusRunning:
		return "▶️"
	default:
		return "❓"
	}
}
