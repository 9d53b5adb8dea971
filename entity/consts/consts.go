package consts

const (
	ReportGraphName  = "deep_dive_report"  // 报告工作流图名称
	SectionGraphName = "deep_dive_section" // 章节研究子图名称
	AnalystGraphName = "deep_dive_analyst" // 计划-执行-重规划图名称
)

// 报告工作流节点名字
const (
	GeneratePlan       = "generate_report_plan"        // 生成报告大纲
	Human              = "human_feedback"              // 人工审核大纲
	RewritePlan        = "rewrite_report_plan"         // 根据反馈重写大纲
	BuildSections      = "build_section_with_research" // 并行研究章节
	GatherSections     = "gather_completed_sections"   // 汇总已完成章节
	WriteFinalSections = "write_final_sections"        // 撰写无需研究的章节
	CompileReport      = "compile_final_report"        // 拼接最终报告
)

// GetReportNodeList 返回报告工作流的节点列表
func GetReportNodeList() []string {
	return []string{
		GeneratePlan,
		Human,
		RewritePlan,
		BuildSections,
		GatherSections,
		WriteFinalSections,
		CompileReport,
	}
}

// 章节研究子图节点名字
const (
	SectionLoad     = "load"
	GenerateQueries = "generate_queries"
	Research        = "research"
	WriteSection    = "write_section"
	GradeSection    = "grade"
	PublishSection  = "publish"
)

// 金融分析循环节点名字
const (
	AnalystPlanner = "planner"
	AnalystAgent   = "agent"
	AnalystReplan  = "replan"
)

// 研究模式
const (
	ModeWebSearch = "web_search" // 仅网络搜索
	ModeHybridRAG = "hybrid_rag" // 内部知识库 + 网络搜索
)

// 章节评分
const (
	GradePass = "pass"
	GradeFail = "fail"
)

// 内部检索流式记录类型，只有 response 参与推理文本
const RecordTypeResponse = "response"

// 搜索失败时的兜底文案
const (
	WebSearchUnavailable      = "Web search could not be completed. Please rely on internal knowledge or proceed with limited information."
	WebSearchFailed           = "Web search encountered an error. Please proceed with available information."
	InternalSearchUnavailable = "Internal knowledge search could not be completed. Please rely on web search or proceed with limited information."
	InternalSearchFailed      = "Internal knowledge search encountered an error. Please proceed with available information."
	DegradedResearchNote      = "\n\nNote: Research for this section encountered technical difficulties. The content is based on limited information."
)

// 搜索错误标记
const (
	SearchErrorPrefix    = "Error:"
	SearchErrorAltPrefix = "An error occurred"
)

// DeepResearch 状态
const (
	StatusToBeStarted = "to_be_started"
	StatusInPlanning  = "in_planning"
	StatusInProgress  = "in_progress"
	StatusCompleted   = "completed"
)

// Workflow 状态
const (
	WorkflowCreated    = "created"
	WorkflowInProgress = "in_progress"
	WorkflowCompleted  = "completed"
)

// Workflow 消息类型
const (
	MessageUser       = "user"
	MessageInstructor = "instructor"
	MessageExecutor   = "executor"
	MessageCortex     = "cortex"
)

// 流式事件类型
const (
	EventStatus          = "status"
	EventMessage         = "message"
	EventComplete        = "complete"
	EventError           = "error"
	EventWorkflowCreated = "workflow_created"
)

// 金融分析循环状态
const (
	StatusWorking   = "Working"
	StatusReasoning = "Reasoning"
)

// ResearchType 报告类型
const ResearchType = "deepdive"

// DefaultReportStructure 默认报告结构
const DefaultReportStructure = `Use this structure to create a report on the user-provided topic:

1. Introduction (no research needed)
   - Brief overview of the topic area

2. Main Body Sections:
   - Each section should focus on a sub-topic of the user-provided topic

3. Conclusion
   - Aim for 1 structural element (either a list of table) that distills the main body sections
   - Provide a concise summary of the report`
