package config

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"filippo.io/age"
	"github.com/calaguinjaysonjake-prog/personal-financial-tracker/pkg/tracing"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const agePrefix = "age:"

// envAliases maps tracing settings to the OTEL_* variables the tracing
// package has always read.
var envAliases = map[string]string{
	"tracing.grpc_endpoint":   "OTEL_GRPC_ENDPOINT",
	"tracing.auth_key":        "OTEL_AUTH_KEY",
	"tracing.jaeger_endpoint": "OTEL_JAEGER_ENDPOINT",
}

type Config struct {
	Port            string         `mapstructure:"port"`
	MongoURI        string         `mapstructure:"mongo_uri"`
	MongoDatabase   string         `mapstructure:"mongo_database"`
	MongoCollection string         `mapstructure:"mongo_collection"`
	RedisAddress    string         `mapstructure:"redis_address"`
	KafkaBrokers    []string       `mapstructure:"kafka_brokers"`
	KafkaTopic      string         `mapstructure:"kafka_topic"`
	AgeKey          string         `mapstructure:"age_key"`
	Verbose         bool           `mapstructure:"verbose"`
	Tracing         tracing.Config `mapstructure:"tracing"`
}

// Overrides holds command line values; empty fields are ignored.
type Overrides struct {
	Port     string
	MongoURI string
	Verbose  bool
}

// LoadDotEnv copies a .env file into the process environment if one exists.
// Variables already set win.
func LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to load .env")
	}
}

// Load reads settings from defaults, an optional YAML file, the environment
// and finally overrides, in increasing precedence. With an empty path the file
// is searched as config.yaml in the working directory and /etc/<binary>/.
func Load(path string, o Overrides) (*Config, error) {
	v := viper.New()

	v.SetDefault("port", "5000")
	v.SetDefault("mongo_uri", "")
	v.SetDefault("mongo_database", "")
	v.SetDefault("mongo_collection", "transactions")
	v.SetDefault("redis_address", "")
	v.SetDefault("kafka_brokers", []string{})
	v.SetDefault("kafka_topic", "transactions")
	v.SetDefault("age_key", "")
	v.SetDefault("verbose", false)
	v.SetDefault("tracing.grpc_endpoint", "")
	v.SetDefault("tracing.auth_key", "")
	v.SetDefault("tracing.jaeger_endpoint", "")
	v.SetDefault("tracing.environment", "production")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envAliases {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(fmt.Sprintf("/etc/%s/", filepath.Base(os.Args[0])))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		log.Debug().Msg("Config not found - using defaults")
	} else {
		log.Debug().Msgf("Config loaded `%s`", v.ConfigFileUsed())
	}

	if o.Port != "" {
		v.Set("port", o.Port)
	}
	if o.MongoURI != "" {
		v.Set("mongo_uri", o.MongoURI)
	}
	if o.Verbose {
		v.Set("verbose", true)
	}

	identity, err := loadAgeIdentity(v.GetString("age_key"))
	if err != nil {
		return nil, err
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		ageHookFunc(identity),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func loadAgeIdentity(path string) (*age.X25519Identity, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read age key: %w", err)
	}
	// Strip the comment lines age-keygen writes.
	re := regexp.MustCompile(`(?m)^#.*\n`)
	identity, err := age.ParseX25519Identity(strings.TrimSpace(string(re.ReplaceAll(b, nil))))
	if err != nil {
		return nil, fmt.Errorf("parse age key %s: %w", path, err)
	}
	return identity, nil
}

func decodeAge(s string, identity *age.X25519Identity) (string, error) {
	if identity == nil {
		return "", errors.New("encrypted setting found but no age_key is configured")
	}
	enc, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, agePrefix))
	if err != nil {
		return "", fmt.Errorf("decode encrypted setting: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(enc), identity)
	if err != nil {
		return "", fmt.Errorf("decrypt setting: %w", err)
	}
	b := &bytes.Buffer{}
	if _, err := io.Copy(b, r); err != nil {
		return "", fmt.Errorf("decrypt setting: %w", err)
	}
	return b.String(), nil
}

// ageHookFunc decrypts string settings written as "age:<base64 ciphertext>".
func ageHookFunc(identity *age.X25519Identity) mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.String {
			return data, nil
		}
		s := data.(string)
		if !strings.HasPrefix(s, agePrefix) {
			return data, nil
		}
		return decodeAge(s, identity)
	}
}
