package chatapi_client

const (
	// API Endpoints, formatted with the league id (and message id)
	MessagesEndpoint = "/api/leagues/%s/chat/messages"
	ReadEndpoint     = "/api/leagues/%s/chat/read"
	UnreadEndpoint   = "/api/leagues/%s/chat/unread"
	ReportEndpoint   = "/api/leagues/%s/chat/messages/%s/report"
	MembersEndpoint  = "/api/leagues/%s/chat/members"

	// Query parameters
	LimitParam  = "limit"
	BeforeParam = "before"

	ClientHeader = "X-Client"
	ClientName   = "leaguechat"
)
