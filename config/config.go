package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

type Config struct {
	ProjectDir string `json:"project_dir"`
	ResultsDir string `json:"results_dir"`
	DataDir    string `json:"data_dir"`

	// Operating mode. Settlement failures are tolerated only in development.
	Mode    string `json:"mode"`
	Network string `json:"network"`

	LLMProvider    string  `json:"llm_provider"`
	LLMModel       string  `json:"llm_model"`
	LLMBaseURL     string  `json:"llm_base_url"`
	LLMTemperature float64 `json:"llm_temperature"`
	LLMTimeoutMS   int     `json:"llm_timeout_ms"`
	DeepSeekAPIKey string  `json:"deepseek_api_key"`
	OpenAIAPIKey   string  `json:"openai_api_key"`

	MaxRounds            int     `json:"max_rounds"`
	MarketPriceMin       float64 `json:"market_price_min"`
	MarketPriceMax       float64 `json:"market_price_max"`
	CongestionMultiplier float64 `json:"congestion_multiplier"`
	CounterMin           float64 `json:"counter_min"`
	CounterMax           float64 `json:"counter_max"`

	RelayerURL       string `json:"relayer_url"`
	RelayerTimeoutMS int    `json:"relayer_timeout_ms"`
	ContractAddress  string `json:"contract_address"`
	AgentAPrivateKey string `json:"agent_a_private_key"`
	AgentBPrivateKey string `json:"agent_b_private_key"`

	DBPath       string `json:"db_path"`
	RegistryPath string `json:"registry_path"`
	HTTPAddr     string `json:"http_addr"`

	Timeline Timeline `json:"timeline"`

	Debug            bool `json:"debug"`
	EinoDebugEnabled bool `json:"eino_debug_enabled"`
	EinoDebugPort    int  `json:"eino_debug_port"`
}

// Timeline holds the collision release schedule, in milliseconds.
type Timeline struct {
	CollisionDelayMS    int `json:"collision_delay_ms"`
	NudgeDelayMS        int `json:"nudge_delay_ms"`
	ResumeDelayMS       int `json:"resume_delay_ms"`
	PassDelayMS         int `json:"pass_delay_ms"`
	ArriveDelayMS       int `json:"arrive_delay_ms"`
	SellerResumeDelayMS int `json:"seller_resume_delay_ms"`
	SellerArriveDelayMS int `json:"seller_arrive_delay_ms"`
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (t Timeline) CollisionDelay() time.Duration    { return ms(t.CollisionDelayMS) }
func (t Timeline) NudgeDelay() time.Duration        { return ms(t.NudgeDelayMS) }
func (t Timeline) ResumeDelay() time.Duration       { return ms(t.ResumeDelayMS) }
func (t Timeline) PassDelay() time.Duration         { return ms(t.PassDelayMS) }
func (t Timeline) ArriveDelay() time.Duration       { return ms(t.ArriveDelayMS) }
func (t Timeline) SellerResumeDelay() time.Duration { return ms(t.SellerResumeDelayMS) }
func (t Timeline) SellerArriveDelay() time.Duration { return ms(t.SellerArriveDelayMS) }

// Validate requires non-negative delays and release steps in the order the
// agents move: seller nudges, buyer resumes, passes, arrives, then the seller
// resumes and arrives. Equal delays are allowed.
func (t Timeline) Validate() error {
	if t.CollisionDelayMS < 0 {
		return fmt.Errorf("timeline: collision_delay_ms must not be negative")
	}
	steps := []struct {
		name string
		ms   int
	}{
		{"nudge_delay_ms", t.NudgeDelayMS},
		{"resume_delay_ms", t.ResumeDelayMS},
		{"pass_delay_ms", t.PassDelayMS},
		{"arrive_delay_ms", t.ArriveDelayMS},
		{"seller_resume_delay_ms", t.SellerResumeDelayMS},
		{"seller_arrive_delay_ms", t.SellerArriveDelayMS},
	}
	prev := steps[0]
	if prev.ms < 0 {
		return fmt.Errorf("timeline: %s must not be negative", prev.name)
	}
	for _, step := range steps[1:] {
		if step.ms < prev.ms {
			return fmt.Errorf("timeline: %s (%d) runs before %s (%d)", step.name, step.ms, prev.name, prev.ms)
		}
		prev = step
	}
	return nil
}

func DefaultTimeline() Timeline {
	return Timeline{
		CollisionDelayMS:    2000,
		NudgeDelayMS:        500,
		ResumeDelayMS:       1000,
		PassDelayMS:         2500,
		ArriveDelayMS:       5000,
		SellerResumeDelayMS: 6000,
		SellerArriveDelayMS: 9000,
	}
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()
	cfg := DefaultConfigWithRoot(currentDir)

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg.loadFromEnv()
	return cfg
}

// DefaultConfigWithRoot returns the built-in defaults rooted at dir, without
// consulting the environment.
func DefaultConfigWithRoot(dir string) *Config {
	return &Config{
		ProjectDir: dir,
		ResultsDir: filepath.Join(dir, "results"),
		DataDir:    filepath.Join(dir, "data"),

		Mode:    ModeDevelopment,
		Network: "fuji",

		LLMProvider:    "deepseek",
		LLMModel:       "deepseek-chat",
		LLMTemperature: 1.0,
		LLMTimeoutMS:   15000,

		MaxRounds:            5,
		MarketPriceMin:       200,
		MarketPriceMax:       320,
		CongestionMultiplier: 1.25,
		CounterMin:           100,
		CounterMax:           1000,

		RelayerTimeoutMS: 30000,

		DBPath:       filepath.Join(dir, "data", "rightofway.db"),
		RegistryPath: filepath.Join(dir, "agents.yaml"),
		HTTPAddr:     ":8080",

		Timeline: DefaultTimeline(),

		EinoDebugPort: 52538,
	}
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("PROJECT_DIR"); val != "" {
		c.ProjectDir = val
	}
	if val := os.Getenv("RESULTS_DIR"); val != "" {
		c.ResultsDir = val
	}
	if val := os.Getenv("DATA_DIR"); val != "" {
		c.DataDir = val
	}

	if val := os.Getenv("ROW_MODE"); val != "" {
		c.Mode = strings.ToLower(val)
	}
	if val := os.Getenv("ROW_NETWORK"); val != "" {
		c.Network = strings.ToLower(val)
	}

	if val := os.Getenv("LLM_PROVIDER"); val != "" {
		c.LLMProvider = val
	}
	if val := os.Getenv("LLM_MODEL"); val != "" {
		c.LLMModel = val
	}
	if val := os.Getenv("LLM_BASE_URL"); val != "" {
		c.LLMBaseURL = val
	}
	if val := os.Getenv("LLM_TIMEOUT_MS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.LLMTimeoutMS = v
		}
	}
	if val := os.Getenv("DEEPSEEK_API_KEY"); val != "" {
		c.DeepSeekAPIKey = val
	}
	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		c.OpenAIAPIKey = val
	}

	if val := os.Getenv("MAX_ROUNDS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxRounds = v
		}
	}
	if val := os.Getenv("MARKET_PRICE_MIN"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			c.MarketPriceMin = v
		}
	}
	if val := os.Getenv("MARKET_PRICE_MAX"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			c.MarketPriceMax = v
		}
	}

	if val := os.Getenv("RELAYER_URL"); val != "" {
		c.RelayerURL = val
	}
	if val := os.Getenv("TRAFFIC_AGENT_CONTRACT"); val != "" {
		c.ContractAddress = val
	}
	if val := os.Getenv("AGENT_A_PRIVATE_KEY"); val != "" {
		c.AgentAPrivateKey = val
	}
	if val := os.Getenv("AGENT_B_PRIVATE_KEY"); val != "" {
		c.AgentBPrivateKey = val
	}

	if val := os.Getenv("ROW_DB_PATH"); val != "" {
		c.DBPath = val
	}
	if val := os.Getenv("ROW_REGISTRY_PATH"); val != "" {
		c.RegistryPath = val
	}
	if val := os.Getenv("ROW_HTTP_ADDR"); val != "" {
		c.HTTPAddr = val
	}

	if val := os.Getenv("ROW_DEBUG"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Debug = enabled
		}
	}
	if val := os.Getenv("EINO_DEBUG_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.EinoDebugEnabled = enabled
		}
	}
	if val := os.Getenv("EINO_DEBUG_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.EinoDebugPort = port
		}
	}
}

func (c *Config) Validate() error {
	switch c.Mode {
	case ModeDevelopment, ModeProduction:
	default:
		return fmt.Errorf("invalid mode %q", c.Mode)
	}
	switch c.Network {
	case "fuji", "sepolia":
	default:
		return fmt.Errorf("invalid network %q", c.Network)
	}
	if c.MaxRounds < 1 {
		return fmt.Errorf("max_rounds must be at least 1, got %d", c.MaxRounds)
	}
	if c.MarketPriceMin <= 0 || c.MarketPriceMax < c.MarketPriceMin {
		return fmt.Errorf("invalid market price band [%v, %v]", c.MarketPriceMin, c.MarketPriceMax)
	}
	if c.CongestionMultiplier < 1 {
		return fmt.Errorf("congestion_multiplier must be >= 1, got %v", c.CongestionMultiplier)
	}
	if c.CounterMin <= 0 || c.CounterMax < c.CounterMin {
		return fmt.Errorf("invalid counter band [%v, %v]", c.CounterMin, c.CounterMax)
	}
	if c.LLMTimeoutMS <= 0 {
		return fmt.Errorf("llm_timeout_ms must be positive")
	}
	return c.Timeline.Validate()
}

func (c *Config) IsProduction() bool {
	return c.Mode == ModeProduction
}

func (c *Config) LLMTimeout() time.Duration {
	return ms(c.LLMTimeoutMS)
}

func (c *Config) RelayerTimeout() time.Duration {
	return ms(c.RelayerTimeoutMS)
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.ProjectDir, c.ResultsDir, c.DataDir}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}

func loadConfigFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	*cfg = *DefaultConfigWithRoot(filepath.Dir(path))
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
