package domain

// CrisisResource 危机资源（热线、短信线、医院等）
type CrisisResource struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Organization   string       `json:"organization,omitempty"`
	Phone          string       `json:"phone"`
	Text           string       `json:"text,omitempty"`
	Website        string       `json:"website,omitempty"`
	ServiceTypes   []string     `json:"service_types"`
	Hours          string       `json:"hours"` // 24_7 | business_hours | weekends_only | specific_hours
	Languages      []string     `json:"languages"`
	Coverage       CoverageArea `json:"coverage_area"`
	PriorityLevel  int          `json:"priority_level"` // 越小优先级越高
	IsNational     bool         `json:"is_national"`
	IsConfidential bool         `json:"is_confidential"`
	IsFree         bool         `json:"is_free"`
}

// CoverageArea 覆盖范围
type CoverageArea struct {
	Type  string   `json:"type"` // national | state | county | city | zip_code
	Codes []string `json:"codes"`
}

// Hours24x7 全天候服务
const Hours24x7 = "24_7"
