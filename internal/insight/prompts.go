package insight

import (
	"fmt"
	"strings"

	"github.com/rendis/nexus/pkg/schema"
)

// Canned replies.
const (
	NoKeySummary    = "API Key not configured. Using simulated analysis: System is stable, throughput at 98%."
	EmptySummary    = "Analysis complete. System nominal."
	FailedSummary   = "Unable to connect to AI Analysis service."
	summaryMaxWords = 50
)

var architectReplies = map[schema.Lang]struct{ ok, failed string }{
	schema.LangEN: {
		ok:     "I have architected **%s** for you. The detailed configuration, including system instructions and toolchain, is shown in the right panel.",
		failed: "Sorry, the architect service is temporarily unavailable.",
	},
	schema.LangZH: {
		ok:     "我已经为您设计了 **%s**。右侧面板显示了详细配置，包括系统指令和工具链。您可以继续修改它。",
		failed: "抱歉，架构生成服务暂时不可用。",
	},
}

// ArchitectReply is the assistant message for a generated config.
func ArchitectReply(lang schema.Lang, name string) string {
	return fmt.Sprintf(replies(lang).ok, name)
}

// ArchitectUnavailable is the assistant message when generation failed.
func ArchitectUnavailable(lang schema.Lang) string {
	return replies(lang).failed
}

func replies(lang schema.Lang) struct{ ok, failed string } {
	r, ok := architectReplies[lang]
	if !ok {
		return architectReplies[schema.LangEN]
	}
	return r
}

func summaryPrompt(logs string, lang schema.Lang) string {
	var b strings.Builder
	b.WriteString("You are an AI Site Reliability Engineer for an Agent Platform.\n")
	b.WriteString("Analyze the following system logs and provide a brief, technical summary of the system health, potential bottlenecks, or suggested optimizations.\n")
	fmt.Fprintf(&b, "Keep it under %d words. Use technical jargon appropriate for an Agent Infra engineer (e.g., latency, token throughput, FSM state).\n", summaryMaxWords)
	if lang == schema.LangZH {
		b.WriteString("Answer in Simplified Chinese.\n")
	}
	b.WriteString("\nLogs:\n")
	b.WriteString(logs)
	return b.String()
}

func architectPrompt(description string, lang schema.Lang) string {
	var b strings.Builder
	b.WriteString("You are an expert AI agent architect.\n")
	b.WriteString("Design a production-ready agent for the request below. Return a JSON object with the fields ")
	b.WriteString("name, role, description, systemPrompt, model, temperature (0-2) and tools (array of tool names).\n")
	if lang == schema.LangZH {
		b.WriteString("Write name, role, description and systemPrompt in Simplified Chinese.\n")
	}
	b.WriteString("\nRequest:\n")
	b.WriteString(description)
	return b.String()
}

// mockAgentConfig is returned when no provider is configured.
func mockAgentConfig(description string, lang schema.Lang) *schema.AgentConfig {
	cfg := &schema.AgentConfig{
		Name:         "Nexus Data Analyst",
		Role:         "Data Analyst",
		Description:  "Simulated agent (API key not configured): " + description,
		SystemPrompt: "You are a data analyst agent. Translate questions into SQL, retrieve supporting documents, and report findings with cited numbers.",
		Model:        DefaultGeminiModel,
		Temperature:  0.2,
		Tools:        []string{"sql_query", "vector_search", "chart_render"},
	}
	if lang == schema.LangZH {
		cfg.Name = "Nexus 数据分析师"
		cfg.Role = "数据分析师"
		cfg.Description = "模拟智能体（未配置 API Key）：" + description
		cfg.SystemPrompt = "你是一名数据分析智能体。将问题转换为 SQL，检索相关文档，并用具体数据报告结论。"
	}
	return cfg
}
