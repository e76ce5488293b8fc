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
	"github.com/sirupsen/logrus"
)

const defaultDataDir = "/data"
const defaultListenAddress = ":8080"
const defaultFailureThreshold = 3

// EngineConfiguration carries every setting the engine and its tools need.
// The tools unmarshal from this configuration to the specific configuration
// they need.
type EngineConfiguration map[string]any

func ReadConfig() EngineConfiguration {
	ec := EngineConfiguration{}

	logLevel := os.Getenv("LOG_LEVEL")
	level := ParseLogLevel(logLevel)
	ec["log_level"] = level.String()
	SetLogLevel(level)

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	ec["data_dir"] = dataDir

	// Read the env file. A missing file is fine, the environment may carry
	// everything already.
	if err := godotenv.Load(filepath.Join(dataDir, ".env")); err != nil {
		logrus.Debugf("No env file loaded from %s: %v", dataDir, err)
	}

	listenAddress := os.Getenv("LISTEN_ADDRESS")
	if listenAddress == "" {
		listenAddress = defaultListenAddress
	}
	ec["listen_address"] = listenAddress

	bufSizeStr := os.Getenv("STATS_BUF_SIZE")
	if bufSizeStr == "" {
		bufSizeStr = "128"
	}
	bufSize, err := strconv.Atoi(bufSizeStr)
	if err != nil {
		logrus.Errorf("Error parsing STATS_BUF_SIZE: %s. Setting to default.", err)
		bufSize = 128
	}
	ec["stats_buf_size"] = uint(bufSize)

	threshold := defaultFailureThreshold
	if s := os.Getenv("FAILURE_THRESHOLD"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			threshold = v
		} else {
			logrus.Errorf("Invalid FAILURE_THRESHOLD %q, using default of %d", s, defaultFailureThreshold)
		}
	}
	ec["failure_threshold"] = threshold

	// Alerting. An empty webhook URL disables alerting entirely.
	ec["alert_webhook_url"] = os.Getenv("ALERT_WEBHOOK_URL")

	serverURL := os.Getenv("SERVER_URL")
	if serverURL == "" {
		serverURL = "http://localhost" + listenAddress
	}
	ec["server_url"] = serverURL

	// API Key for authentication
	apiKey := os.Getenv("API_KEY")
	if apiKey != "" {
		ec["api_key"] = apiKey
	}

	// Execution history cache
	historyMaxSize := 1000
	if s := os.Getenv("HISTORY_MAX_SIZE"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			historyMaxSize = v
		}
	}
	ec["history_max_size"] = historyMaxSize

	historyMaxAge := 600
	if s := os.Getenv("HISTORY_MAX_AGE_SECONDS"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			historyMaxAge = v
		}
	}
	ec["history_max_age_seconds"] = time.Duration(historyMaxAge) * time.Second

	fetchBlacklist := os.Getenv("FETCH_BLACKLIST")
	if fetchBlacklist != "" {
		blacklistURLs := strings.Split(fetchBlacklist, ",")
		for i, u := range blacklistURLs {
			blacklistURLs[i] = strings.TrimSpace(u)
		}
		ec["fetch_blacklist"] = blacklistURLs
	}

	searchAPIURL := os.Getenv("SEARCH_API_URL")
	if searchAPIURL != "" {
		logrus.Info("Search API endpoint configured")
		ec["search_api_url"] = searchAPIURL
	}
	ec["search_api_key"] = os.Getenv("SEARCH_API_KEY")

	ec["profiling_enabled"] = os.Getenv("ENABLE_PPROF") == "true"

	return ec
}

// Unmarshal unmarshals the engine configuration into the supplied interface.
func (ec EngineConfiguration) Unmarshal(v any) error {
	data, err := json.Marshal(ec)
	if err != nil {
		return fmt.Errorf("error marshalling engine configuration: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("error unmarshalling engine configuration: %w", err)
	}

	return nil
}

func (ec EngineConfiguration) DataDir() string {
	return ec.GetString("data_dir", defaultDataDir)
}

func (ec EngineConfiguration) ListenAddress() string {
	return ec.GetString("listen_address", defaultListenAddress)
}

func (ec EngineConfiguration) FailureThreshold() int {
	return ec.GetInt("failure_threshold", defaultFailureThreshold)
}

// GetInt safely extracts an int from EngineConfiguration, with a default fallback
func (ec EngineConfiguration) GetInt(key string, def int) int {
	if v, ok := ec[key]; ok {
		switch val := v.(type) {
		case int:
			return val
		case int64:
			return int(val)
		case float64:
			return int(val)
		case float32:
			return int(val)
		}
	}
	return def
}

func (ec EngineConfiguration) GetDuration(key string, defSecs int) time.Duration {
	// Go does not allow generics in methods :-(
	if v, ok := ec[key]; ok {
		if val, ok := v.(time.Duration); ok {
			return val
		}
	}
	return time.Duration(defSecs) * time.Second
}

func (ec EngineConfiguration) GetString(key string, def string) string {
	if v, ok := ec[key]; ok {
		if val, ok := v.(string); ok && val != "" {
			return val
		}
	}
	return def
}

// GetStringSlice safely extracts a string slice from EngineConfiguration, with a default fallback
func (ec EngineConfiguration) GetStringSlice(key string, def []string) []string {
	if v, ok := ec[key]; ok {
		if val, ok := v.([]string); ok {
			return val
		}
	}
	return def
}

// GetBool safely extracts a bool from EngineConfiguration, with a default fallback
func (ec EngineConfiguration) GetBool(key string, def bool) bool {
	if v, ok := ec[key]; ok {
		if val, ok := v.(bool); ok {
			return val
		}
	}
	return def
}

// GetUint safely extracts a uint from EngineConfiguration, with a default fallback
func (ec EngineConfiguration) GetUint(key string, def uint) uint {
	if v, ok := ec[key]; ok {
		switch val := v.(type) {
		case uint:
			return val
		case int:
			if val >= 0 {
				return uint(val)
			}
		case float64:
			if val >= 0 {
				return uint(val)
			}
		}
	}
	return def
}

// FetchConfig represents the configuration needed by the web-fetch handlers.
type FetchConfig struct {
	Blacklist []string `json:"fetch_blacklist"`
}

// GetFetchConfig constructs a FetchConfig directly from the EngineConfiguration.
func (ec EngineConfiguration) GetFetchConfig() FetchConfig {
	return FetchConfig{
		Blacklist: ec.GetStringSlice("fetch_blacklist", nil),
	}
}

// SearchConfig represents the configuration needed by the web-search handlers.
type SearchConfig struct {
	APIURL string
	APIKey string
}

// GetSearchConfig constructs a SearchConfig directly from the EngineConfiguration.
func (ec EngineConfiguration) GetSearchConfig() SearchConfig {
	return SearchConfig{
		APIURL: ec.GetString("search_api_url", ""),
		APIKey: ec.GetString("search_api_key", ""),
	}
}

// ParseLogLevel parses a string and returns the corresponding logrus.Level.
func ParseLogLevel(logLevel string) logrus.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// SetLogLevel sets the log level for the application.
func SetLogLevel(level logrus.Level) {
	logrus.SetLevel(level)
}
