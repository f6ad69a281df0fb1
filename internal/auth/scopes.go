package auth

// Known OAuth scopes used by the insights service.
const (
	ScopeMetricsWrite = "metrics:write"
	ScopeMetricsRead  = "metrics:read"
	ScopeInsightsRead = "insights:read"
)
