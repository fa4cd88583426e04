package api

// Identity describes the signed-in account as the server reports it.
type Identity struct {
	Username           string `json:"username"`
	Role               string `json:"role"`
	MustChangePassword bool   `json:"must_change_password"`
}

// LoginResponse is returned by POST /api/auth/login.
type LoginResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	User        Identity `json:"user"`
}

// TaskStats carries processing counters computed by the server.
type TaskStats struct {
	TotalTasks  int     `json:"total_tasks"`
	CacheHits   int     `json:"cache_hits"`
	APICalls    int     `json:"api_calls"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// Task is one classification job as listed by /api/tasks.
type Task struct {
	JobID     string     `json:"job_id"`
	User      string     `json:"user"`
	TopicID   string     `json:"topic_id"`
	TopicName string     `json:"topic_name"`
	Filename  string     `json:"filename"`
	Rows      int        `json:"rows"`
	Status    string     `json:"status"`
	Progress  float64    `json:"progress"`
	Stats     *TaskStats `json:"stats"`
	Error     *string    `json:"error"`
	CreatedAt string     `json:"created_at,omitempty"`
}

// TaskQuery narrows a task listing.
type TaskQuery struct {
	Status string
	Limit  int
}

// UploadResult is returned by POST /api/upload.
type UploadResult struct {
	JobID    string `json:"job_id"`
	Filename string `json:"filename"`
	Rows     int    `json:"rows"`
	Topic    string `json:"topic"`
}

// Topic is a classification configuration. APIKey is only present for admins.
type Topic struct {
	TopicID        string  `json:"topic_id"`
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	LLMProvider    string  `json:"llm_provider"`
	Model          string  `json:"model"`
	APIBaseURL     string  `json:"api_base_url,omitempty"`
	APIKey         string  `json:"api_key,omitempty"`
	PromptTemplate string  `json:"prompt_template,omitempty"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
	CreatedAt      string  `json:"created_at,omitempty"`
	CreatedBy      string  `json:"created_by,omitempty"`
}

// TopicInput is the create payload for a topic.
type TopicInput struct {
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	LLMProvider    string  `json:"llm_provider"`
	Model          string  `json:"model"`
	APIBaseURL     string  `json:"api_base_url"`
	APIKey         string  `json:"api_key"`
	PromptTemplate string  `json:"prompt_template"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
}

// TopicPatch is a partial update; nil fields are left unchanged.
type TopicPatch struct {
	Name           *string  `json:"name,omitempty"`
	Description    *string  `json:"description,omitempty"`
	LLMProvider    *string  `json:"llm_provider,omitempty"`
	Model          *string  `json:"model,omitempty"`
	APIBaseURL     *string  `json:"api_base_url,omitempty"`
	APIKey         *string  `json:"api_key,omitempty"`
	PromptTemplate *string  `json:"prompt_template,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	MaxTokens      *int     `json:"max_tokens,omitempty"`
}

// User is an account as listed by /api/auth/users.
type User struct {
	Username           string `json:"username"`
	Role               string `json:"role"`
	MustChangePassword bool   `json:"must_change_password"`
	CreatedAt          string `json:"created_at,omitempty"`
}

// UserInput is the create payload for an account.
type UserInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type messageResponse struct {
	Message string `json:"message"`
}
