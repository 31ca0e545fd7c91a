package types

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type CredentialCreateRequest struct {
	Provider  string `json:"provider" validate:"required,oneof=openai deepseek moonshot custom"`
	Key       string `json:"key" validate:"required"`
	Name      string `json:"name"`
	BaseURL   string `json:"base_url" validate:"omitempty,url"`
	ModelName string `json:"model_name"`
}

type CredentialUpdateRequest struct {
	Name      *string `json:"name"`
	IsActive  *bool   `json:"is_active"`
	BaseURL   *string `json:"base_url"`
	ModelName *string `json:"model_name"`
	Key       *string `json:"key"`
}

type OptimizeRequest struct {
	Content      string `json:"content" validate:"required"`
	Category     string `json:"category"`
	Provider     string `json:"provider" validate:"omitempty,oneof=openai deepseek moonshot custom"`
	Model        string `json:"model"`
	UseClientAPI bool   `json:"useClientApi"`
	APIKey       string `json:"apiKey"`
	HistoryID    string `json:"historyId" validate:"omitempty,uuid4"`
}

type RateRequest struct {
	Score int `json:"score" validate:"required"`
}
