package cfg

type Cfg struct {
	// Storage configuration
	DBPath     string
	UploadsDir string

	// Application configuration
	ProfilesDir  string
	Port         string
	BaseUrl      string
	WorkerCount  int
	Parallelism  int
	BatchTimeout int
	CacheTTL     int
	APIAccessKey string

	// Provider configuration
	Provider        string
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	MaxTokens       int
	SemrushAPIKey   string
	SemrushDatabase string

	// Application metadata
	UserAgent string
	Debug     bool
	Version   string
}
