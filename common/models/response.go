package models

type BaseResponse struct {
	Data interface{} `json:"data"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Msg   string `json:"message"`
}

type MetaResponse struct {
	CurrentPage int64 `json:"current_page"`
	LastPage    int64 `json:"last_page"`
	PerPage     int64 `json:"per_page"`
	Total       int64 `json:"total"`
}

type BasePaginationResponse struct {
	Data interface{}  `json:"data"`
	Meta MetaResponse `json:"meta"`
}

// JobAcceptedResponse is returned by the intake endpoints
type JobAcceptedResponse struct {
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

// JobDetailResponse bundles a status record with its event log
type JobDetailResponse struct {
	Status JobStatus  `json:"status"`
	Events []JobEvent `json:"events"`
}
