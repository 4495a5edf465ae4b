package delegate

// Tag is a coarse intent category inferred from free text.
type Tag string

const (
	TagConnection  Tag = "connection"
	TagUI          Tag = "ui"
	TagRuntime     Tag = "runtime"
	TagDiagnostics Tag = "diagnostics" // Alias of TagSearch in work methods
	TagSearch      Tag = "search"
	TagAuth        Tag = "auth"
	TagValidate    Tag = "validate"
	TagIntegration Tag = "integration"
	TagCustom      Tag = "custom"
)

// RoleByMethod maps a declared work method to the role label it implies.
var RoleByMethod = map[Tag]string{
	TagConnection:  "Core/Connection",
	TagUI:          "UI/Design",
	TagRuntime:     "Backend/Runtime",
	TagDiagnostics: "Diagnostics/Search",
	TagSearch:      "Diagnostics/Search",
	TagAuth:        "Auth/Login",
	TagValidate:    "Validation/QA",
	TagIntegration: "Integration",
	TagCustom:      "Custom",
}

type tagKeywords struct {
	tag   Tag
	words []string
}

// keywordsByTag lists the keywords that signal each tag. Role labels match
// only the first roleKeywords entries of each list (the English ones).
var keywordsByTag = []tagKeywords{
	{TagConnection, []string{
		"connect", "disconnect", "connection", "lsv2", "inspect",
		"tool table", "preset",
		"접속", "연결", "해제", "툴테이블", "프리셋",
	}},
	{TagUI, []string{
		"ui", "layout", "qss", "style", "dashboard",
		"overlap", "align",
		"디자인", "배치", "정렬", "화면", "가독성",
	}},
	{TagRuntime, []string{
		"runtime", "db", "sqlite", "history", "session",
		"offline", "online",
		"가동률", "로그", "세션", "오프라인",
	}},
	{TagSearch, []string{
		"scan", "search", "snapshot", "value", "address",
		"trend",
		"그래프", "탐색", "검색", "스냅샷", "주소", "값",
	}},
	{TagAuth, []string{
		"auth", "login", "password", "account", "user",
		"인증", "로그인", "비밀번호", "계정",
	}},
	{TagValidate, []string{
		"test", "verify", "validation", "pass/fail",
		"검증", "테스트", "확인", "결과",
	}},
	{TagIntegration, []string{
		"integration", "import", "orchestrator", "runner", "pm",
		"통합", "오케스트레이터", "러너",
	}},
}

const roleKeywords = 5

// parallelHints mark a request that wants every eligible worker.
var parallelHints = []string{
	"all", "전체", "모두", "parallel", "병렬", "분배", "동시", "작업 분배",
}

// reviewHints mark a review or rework request, which must reach the
// standing review lanes.
var reviewHints = []string{
	"claude", "sub agent", "ux", "design", "consistency", "structural",
	"counterexample", "review", "final", "rework", "rerun", "qa",
	"검토", "점검", "재작업", "재실행",
}

// Scoring weights.
const (
	scoreMethodMatch   = 18 // Per intent tag shared with the work method
	scoreRoleGoalMatch = 10 // Per intent tag shared with role/goal text
	scoreAutomated     = 3
	scoreUIEngine      = 8 // ui intent, claude-cli engine
	scoreUIOwner       = 2 // ui intent, owner mentions claude
	scoreValidate      = 5 // validate intent, validation/QA worker
)
