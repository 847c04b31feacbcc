package dto

// ListJobsRequest carries the query parameters of GET /api/v1/jobs
type ListJobsRequest struct {
	Page     int    `form:"page"`
	Limit    int    `form:"limit"`
	Category string `form:"category"`
	Source   string `form:"source"`
	Search   string `form:"search"`
}

// ImportHistoryRequest carries the query parameters of
// GET /api/v1/jobs/import-history
type ImportHistoryRequest struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

type JobDTO struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	JobType     string `json:"jobType"`
	Category    string `json:"category"`
	Salary      string `json:"salary,omitempty"`
	Link        string `json:"link"`
	Source      string `json:"source"`
	PostedDate  string `json:"postedDate"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

type JobListData struct {
	Jobs       []JobDTO `json:"jobs"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	TotalPages int      `json:"totalPages"`
}

type FailedRecordDTO struct {
	SourceID string `json:"sourceId"`
	Reason   string `json:"reason"`
}

type ImportRunDTO struct {
	ID            string            `json:"id"`
	Source        string            `json:"source"`
	URL           string            `json:"url"`
	StartedAt     string            `json:"startedAt"`
	TotalFetched  int               `json:"totalFetched"`
	TotalImported int               `json:"totalImported"`
	NewJobs       int               `json:"newJobs"`
	UpdatedJobs   int               `json:"updatedJobs"`
	FailedJobs    int               `json:"failedJobs"`
	FailedDetails []FailedRecordDTO `json:"failedJobsDetails"`
	DurationMs    int64             `json:"duration"`
	Status        string            `json:"status"`
}

type ImportHistoryData struct {
	Logs       []ImportRunDTO `json:"logs"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	TotalPages int            `json:"totalPages"`
}

// SourceStatsDTO is one row of the per-source aggregation over the run log
type SourceStatsDTO struct {
	Source        string  `json:"source"`
	TotalImports  int     `json:"totalImports"`
	TotalJobs     int     `json:"totalJobs"`
	NewJobs       int     `json:"newJobs"`
	UpdatedJobs   int     `json:"updatedJobs"`
	FailedJobs    int     `json:"failedJobs"`
	AvgDurationMs float64 `json:"avgDuration"`
}
