package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

const DefaultConfigPath = "configs/config_local.toml"

type MainConfig struct {
	AppName string `toml:"appName"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	// TLSCert/TLSKey enable HTTPS; plain HTTP requests are then redirected
	TLSCert string `toml:"tlsCert"`
	TLSKey  string `toml:"tlsKey"`
}

type MysqlConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	DatabaseName string `toml:"databaseName"`
}

type LogConfig struct {
	LogPath string `toml:"logPath"`
	Level   string `toml:"level"`
}

type JwtConfig struct {
	Key         string   `toml:"key"`
	ExpireHours int      `toml:"expireHours"`
	Issuer      string   `toml:"issuer"`
	AdminUsers  []string `toml:"adminUsers"` // user ids allowed on /admin routes
}

type MilvusConfig struct {
	Address        string `toml:"address"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	DBName         string `toml:"dbName"`
	CollectionName string `toml:"collectionName"`
	VectorDim      int    `toml:"vectorDim"`
	MetricType     string `toml:"metricType"`
}

type KafkaConfig struct {
	Brokers         []string `toml:"brokers"`
	ClientID        string   `toml:"clientID"`
	EmbeddingTopic  string   `toml:"embeddingTopic"`
	ConsumerGroupID string   `toml:"consumerGroupID"`
	Partitions      int32    `toml:"partitions"`
	Replication     int16    `toml:"replication"`
	MaxAttempts     int      `toml:"maxAttempts"`
	RetentionHours  int      `toml:"retentionHours"`
}

type RedisConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"poolSize"`
	MinIdleConns int    `toml:"minIdleConns"`
}

type AIEmbeddingConfig struct {
	Provider        string `toml:"provider"`
	APIKey          string `toml:"apiKey"`
	BaseURL         string `toml:"baseURL"`
	Region          string `toml:"region"`
	Model           string `toml:"model"`
	Dimensions      int    `toml:"dimensions"`
	TimeoutSeconds  int    `toml:"timeoutSeconds"`
	ByAzure         bool   `toml:"byAzure"`
	AzureAPIVersion string `toml:"azureApiVersion"`
}

type AIChatModelConfig struct {
	Provider        string `toml:"provider"`
	APIKey          string `toml:"apiKey"`
	AccessKey       string `toml:"accessKey"`
	SecretKey       string `toml:"secretKey"`
	BaseURL         string `toml:"baseURL"`
	Region          string `toml:"region"`
	Model           string `toml:"model"`
	TimeoutSeconds  int    `toml:"timeoutSeconds"`
	RetryTimes      int    `toml:"retryTimes"`
	ByAzure         bool   `toml:"byAzure"`
	AzureAPIVersion string `toml:"azureApiVersion"`
}

type AIConfig struct {
	Embedding AIEmbeddingConfig `toml:"embedding"`
	ChatModel AIChatModelConfig `toml:"chatModel"`
}

// OrchestratorConfig routing thresholds and request timeouts
type OrchestratorConfig struct {
	HighThreshold            float64 `toml:"highThreshold"`
	MediumThreshold          float64 `toml:"mediumThreshold"`
	MediumBandPolicy         string  `toml:"mediumBandPolicy"` // flag | clarify
	MaxHandlers              int     `toml:"maxHandlers"`
	RequestTimeoutSeconds    int     `toml:"requestTimeoutSeconds"`
	GenerationTimeoutSeconds int     `toml:"generationTimeoutSeconds"`
	EmbeddingTimeoutSeconds  int     `toml:"embeddingTimeoutSeconds"`
	HandlerTimeoutSeconds    int     `toml:"handlerTimeoutSeconds"`
	ClarificationPrompt      string  `toml:"clarificationPrompt"`
	LowConfidenceNote        string  `toml:"lowConfidenceNote"`
	ErrorNotice              string  `toml:"errorNotice"`
}

// ContextConfig context window sizing and importance scoring
type ContextConfig struct {
	TokenBudget        int     `toml:"tokenBudget"`
	HistoryCap         int     `toml:"historyCap"`
	HalfLifeMinutes    float64 `toml:"halfLifeMinutes"`
	RelevanceWeight    float64 `toml:"relevanceWeight"`
	SummarizeThreshold float64 `toml:"summarizeThreshold"`
}

// PrivacyConfig redaction exemptions
type PrivacyConfig struct {
	ExemptCategories []string `toml:"exemptCategories"`
	RetainRawContent bool     `toml:"retainRawContent"`
}

type RetentionRuleConfig struct {
	Category   string `toml:"category"`
	MaxAgeDays int    `toml:"maxAgeDays"`
}

// RetentionConfig per-category max ages; "default" is the catch-all
type RetentionConfig struct {
	Cron      string                `toml:"cron"`
	BatchSize int                   `toml:"batchSize"`
	Rules     []RetentionRuleConfig `toml:"rules"`
}

type Config struct {
	MainConfig         `toml:"mainConfig"`
	MysqlConfig        `toml:"mysqlConfig"`
	JwtConfig          `toml:"jwtConfig"`
	MilvusConfig       `toml:"milvusConfig"`
	KafkaConfig        `toml:"kafkaConfig"`
	AIConfig           `toml:"aiConfig"`
	LogConfig          `toml:"logConfig"`
	RedisConfig        `toml:"redisConfig"`
	OrchestratorConfig `toml:"orchestratorConfig"`
	ContextConfig      `toml:"contextConfig"`
	PrivacyConfig      `toml:"privacyConfig"`
	RetentionConfig    `toml:"retentionConfig"`
}

var (
	config   *Config
	loadOnce sync.Once
)

// Load decodes path, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	conf := new(Config)
	if _, err := toml.DecodeFile(path, conf); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	conf.ApplyDefaults()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Parse is Load for in-memory TOML
func Parse(data string) (*Config, error) {
	conf := new(Config)
	if _, err := toml.Decode(data, conf); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	conf.ApplyDefaults()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// GetConfig lazily loads DefaultConfigPath; on failure the defaults are used.
func GetConfig() *Config {
	loadOnce.Do(func() {
		conf, err := Load(DefaultConfigPath)
		if err != nil {
			log.Printf("load config failed: %v, falling back to defaults", err)
			conf = new(Config)
			conf.ApplyDefaults()
		}
		config = conf
	})
	return config
}

// ApplyDefaults fills every zero value the service depends on.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.MainConfig.AppName) == "" {
		c.MainConfig.AppName = "SecAssist"
	}
	if c.MainConfig.Host == "" {
		c.MainConfig.Host = "0.0.0.0"
	}
	if c.MainConfig.Port <= 0 {
		c.MainConfig.Port = 8000
	}
	if c.MysqlConfig.DatabaseName == "" {
		c.MysqlConfig.DatabaseName = "secassist"
	}
	if c.MilvusConfig.CollectionName == "" {
		c.MilvusConfig.CollectionName = "secassist_messages"
	}
	if c.MilvusConfig.VectorDim <= 0 {
		c.MilvusConfig.VectorDim = 768
	}
	if c.KafkaConfig.EmbeddingTopic == "" {
		c.KafkaConfig.EmbeddingTopic = "secassist.embedding"
	}
	if c.KafkaConfig.ConsumerGroupID == "" {
		c.KafkaConfig.ConsumerGroupID = "secassist-embedding-indexer"
	}
	if c.KafkaConfig.MaxAttempts <= 0 {
		c.KafkaConfig.MaxAttempts = 5
	}
	if c.KafkaConfig.RetentionHours <= 0 {
		c.KafkaConfig.RetentionHours = 24
	}

	o := &c.OrchestratorConfig
	if o.HighThreshold == 0 {
		o.HighThreshold = 0.85
	}
	if o.MediumThreshold == 0 {
		o.MediumThreshold = 0.70
	}
	if o.MediumBandPolicy == "" {
		o.MediumBandPolicy = "flag"
	}
	if o.MaxHandlers <= 0 {
		o.MaxHandlers = 3
	}
	if o.RequestTimeoutSeconds <= 0 {
		o.RequestTimeoutSeconds = 30
	}
	if o.GenerationTimeoutSeconds <= 0 {
		o.GenerationTimeoutSeconds = 15
	}
	if o.EmbeddingTimeoutSeconds <= 0 {
		o.EmbeddingTimeoutSeconds = 10
	}
	if o.HandlerTimeoutSeconds <= 0 {
		o.HandlerTimeoutSeconds = o.GenerationTimeoutSeconds
	}
	if o.ClarificationPrompt == "" {
		o.ClarificationPrompt = "No he podido identificar con seguridad qué necesitas. ¿Puedes concretar si tu consulta trata sobre riesgos, incidentes, cumplimiento normativo, amenazas, informes o una revisión proactiva?"
	}
	if o.LowConfidenceNote == "" {
		o.LowConfidenceNote = "Nota: he interpretado tu consulta con confianza moderada. Si no es lo que buscabas, indícame con más detalle el tema."
	}
	if o.ErrorNotice == "" {
		o.ErrorNotice = "No ha sido posible generar una respuesta en este momento. Inténtalo de nuevo más tarde."
	}

	cc := &c.ContextConfig
	if cc.TokenBudget == 0 {
		cc.TokenBudget = 3000
	}
	if cc.HistoryCap <= 0 {
		cc.HistoryCap = 200
	}
	if cc.HalfLifeMinutes <= 0 {
		cc.HalfLifeMinutes = 30
	}
	if cc.RelevanceWeight == 0 {
		cc.RelevanceWeight = 0.25
	}
	if cc.SummarizeThreshold == 0 {
		cc.SummarizeThreshold = 0.5
	}

	r := &c.RetentionConfig
	if r.Cron == "" {
		r.Cron = "0 3 * * *"
	}
	if r.BatchSize <= 0 {
		r.BatchSize = 500
	}
	hasDefault := false
	for _, rule := range r.Rules {
		if strings.TrimSpace(rule.Category) == "default" {
			hasDefault = true
		}
	}
	if !hasDefault {
		r.Rules = append(r.Rules, RetentionRuleConfig{Category: "default", MaxAgeDays: 90})
	}
}

// Validate rejects configs the orchestrator cannot run with.
func (c *Config) Validate() error {
	o := c.OrchestratorConfig
	if o.MediumThreshold < 0 || o.HighThreshold > 1 || o.MediumThreshold > o.HighThreshold {
		return fmt.Errorf("invalid thresholds: medium=%.2f high=%.2f", o.MediumThreshold, o.HighThreshold)
	}
	switch o.MediumBandPolicy {
	case "flag", "clarify":
	default:
		return fmt.Errorf("invalid mediumBandPolicy %q", o.MediumBandPolicy)
	}
	if c.ContextConfig.TokenBudget < 0 {
		return errors.New("contextConfig.tokenBudget must not be negative")
	}
	seen := make(map[string]struct{}, len(c.RetentionConfig.Rules))
	for _, rule := range c.RetentionConfig.Rules {
		cat := strings.TrimSpace(rule.Category)
		if cat == "" {
			return errors.New("retention rule with empty category")
		}
		if rule.MaxAgeDays <= 0 {
			return fmt.Errorf("retention rule %s: maxAgeDays must be positive", cat)
		}
		if _, dup := seen[cat]; dup {
			return fmt.Errorf("duplicate retention rule %s", cat)
		}
		seen[cat] = struct{}{}
	}
	return nil
}

func (o OrchestratorConfig) RequestTimeout() time.Duration {
	return time.Duration(o.RequestTimeoutSeconds) * time.Second
}

func (o OrchestratorConfig) GenerationTimeout() time.Duration {
	return time.Duration(o.GenerationTimeoutSeconds) * time.Second
}

func (o OrchestratorConfig) EmbeddingTimeout() time.Duration {
	return time.Duration(o.EmbeddingTimeoutSeconds) * time.Second
}

func (o OrchestratorConfig) HandlerTimeout() time.Duration {
	return time.Duration(o.HandlerTimeoutSeconds) * time.Second
}

func (cc ContextConfig) HalfLife() time.Duration {
	return time.Duration(cc.HalfLifeMinutes * float64(time.Minute))
}
