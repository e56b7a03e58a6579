package dto

type CreateJobRequest struct {
	JobType string   `json:"job_type" binding:"required"`
	TaskIDs []string `json:"task_ids"`
}

type ListJobsRequest struct {
	JobType  string `form:"job_type"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID        string  `json:"job_id"`
	JobType      string  `json:"job_type"`
	Status       string  `json:"status"`
	ErrorMessage *string `json:"error_message,omitempty"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
	CompletedAt  string  `json:"completed_at,omitempty"`
}

type ReportDTO struct {
	ReportID    string `json:"report_id"`
	JobID       string `json:"job_id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Status      string `json:"status"`
	Content     string `json:"content"`
	CreatedAt   string `json:"created_at"`
}

type JobTypesResponse struct {
	JobTypes []string `json:"job_types"`
}

type CleanupResponse struct {
	Attempted int `json:"attempted"`
	Failed    int `json:"failed"`
	Deleted   int `json:"deleted"`
}
