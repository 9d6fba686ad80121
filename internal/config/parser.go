// Package config provides configuration file parsing.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fgeck/mongo-s3-backup/internal/models"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables that override config keys,
// e.g. MONGO_S3_BACKUP_STORE_SECRET_KEY for store.secret_key.
const EnvPrefix = "MONGO_S3_BACKUP"

// Parser handles configuration file parsing.
type Parser struct {
	v        *viper.Viper
	warnings []string
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mongo.host", "localhost")
	v.SetDefault("mongo.port", 27017)
	v.SetDefault("store.prefix", "/")
	v.SetDefault("store.region", "us-east-1")
	v.SetDefault("tools.mongodump", "mongodump")
	v.SetDefault("tools.mongorestore", "mongorestore")
	v.SetDefault("tools.tar", "tar")
	v.SetDefault("archive.level", 6)

	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.AppConfig, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.AppConfig, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

// Warnings returns the non-fatal problems found by the last load.
func (p *Parser) Warnings() []string {
	return p.warnings
}

func (p *Parser) parse() (*models.AppConfig, error) {
	p.warnings = nil

	cfg := &models.AppConfig{
		Mongo: p.parseMongo(),
		Store: models.StoreConfig{
			AccessKey: p.str("store.access_key"),
			SecretKey: p.str("store.secret_key"),
			Bucket:    p.str("store.bucket"),
			Prefix:    p.str("store.prefix"),
			Region:    p.str("store.region"),
			Endpoint:  p.str("store.endpoint"),
			PathStyle: p.v.GetBool("store.path_style"),
		},
		Staging: models.StagingSettings{
			TempDir: p.str("staging.temp_dir"),
		},
		Tools: models.ToolSettings{
			Mongodump:    p.str("tools.mongodump"),
			Mongorestore: p.str("tools.mongorestore"),
			Tar:          p.str("tools.tar"),
		},
		Archive: models.ArchiveSettings{
			Native: p.v.GetBool("archive.native"),
			Level:  p.v.GetInt("archive.level"),
		},
		Metrics: models.MetricsSettings{
			Textfile: p.str("metrics.textfile"),
		},
	}

	if cfg.Staging.TempDir == "" {
		cfg.Staging.TempDir = os.TempDir()
	}

	var err error
	if cfg.WOL, err = p.parseWOL(); err != nil {
		return nil, err
	}
	if cfg.SSHShutdown, err = p.parseSSHShutdown(); err != nil {
		return nil, err
	}
	if cfg.Telegram, err = p.parseTelegram(); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (p *Parser) parseMongo() models.MongoConfig {
	cfg := models.MongoConfig{
		Host:     p.str("mongo.host"),
		Port:     p.v.GetInt("mongo.port"),
		Database: p.str("mongo.database"),
		Username: p.str("mongo.username"),
		Password: p.str("mongo.password"),
	}

	// Credentials are only passed to the tools as a pair.
	if (cfg.Username == "") != (cfg.Password == "") {
		p.warnings = append(p.warnings,
			"mongo.username and mongo.password must be set together; connecting without credentials")
		cfg.Username = ""
		cfg.Password = ""
	}

	return cfg
}

func (p *Parser) parseWOL() (*models.WOLConfig, error) {
	if !p.v.IsSet("wol") {
		return nil, nil
	}

	cfg := &models.WOLConfig{
		MACAddress:    p.str("wol.mac_address"),
		BroadcastIP:   p.str("wol.broadcast_ip"),
		PollURL:       p.str("wol.poll_url"),
		Timeout:       p.v.GetDuration("wol.timeout"),
		PollInterval:  p.v.GetDuration("wol.poll_interval"),
		StabilizeWait: p.v.GetDuration("wol.stabilize_wait"),
	}

	if cfg.MACAddress == "" {
		return nil, errors.New("wol.mac_address is required when wol is configured")
	}
	if cfg.BroadcastIP == "" {
		cfg.BroadcastIP = "255.255.255.255"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Second
	}

	return cfg, nil
}

func (p *Parser) parseSSHShutdown() (*models.SSHShutdownConfig, error) {
	if !p.v.IsSet("ssh_shutdown") {
		return nil, nil
	}

	cfg := &models.SSHShutdownConfig{
		Host:          p.str("ssh_shutdown.host"),
		Port:          p.v.GetInt("ssh_shutdown.port"),
		Username:      p.str("ssh_shutdown.username"),
		KeyPath:       p.str("ssh_shutdown.key_path"),
		ShutdownDelay: p.v.GetInt("ssh_shutdown.shutdown_delay"),
		OS:            p.str("ssh_shutdown.os"),
	}

	if cfg.Host == "" {
		return nil, errors.New("ssh_shutdown.host is required when ssh_shutdown is configured")
	}
	if cfg.KeyPath == "" {
		return nil, errors.New("ssh_shutdown.key_path is required when ssh_shutdown is configured")
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Username == "" {
		cfg.Username = "root"
	}
	if cfg.OS == "" {
		cfg.OS = "linux"
	}
	if cfg.OS != "linux" && cfg.OS != "windows" {
		return nil, errors.New("ssh_shutdown.os must be one of: linux, windows")
	}

	return cfg, nil
}

func (p *Parser) parseTelegram() (*models.TelegramConfig, error) {
	if !p.v.IsSet("telegram") {
		return nil, nil
	}

	cfg := &models.TelegramConfig{
		BotToken: p.str("telegram.bot_token"),
		ChatID:   p.str("telegram.chat_id"),
	}

	if cfg.BotToken == "" {
		return nil, errors.New("telegram.bot_token is required when telegram is configured")
	}
	if cfg.ChatID == "" {
		return nil, errors.New("telegram.chat_id is required when telegram is configured")
	}

	return cfg, nil
}

// str reads a string key and expands ${VAR} references.
func (p *Parser) str(key string) string {
	return os.ExpandEnv(p.v.GetString(key))
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.AppConfig) error {
	if cfg == nil {
		return errors.New("configuration is nil")
	}

	required := []struct {
		key   string
		value string
	}{
		{"mongo.database", cfg.Mongo.Database},
		{"store.bucket", cfg.Store.Bucket},
		{"store.access_key", cfg.Store.AccessKey},
		{"store.secret_key", cfg.Store.SecretKey},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.key)
		}
	}

	if strings.ContainsAny(cfg.Mongo.Database, `/\. "$`) {
		return fmt.Errorf("mongo.database %q contains characters MongoDB does not allow", cfg.Mongo.Database)
	}
	if cfg.Mongo.Port < 1 || cfg.Mongo.Port > 65535 {
		return fmt.Errorf("mongo.port must be between 1 and 65535, got %d", cfg.Mongo.Port)
	}
	if cfg.Archive.Level < -2 || cfg.Archive.Level > 9 {
		return fmt.Errorf("archive.level must be between -2 and 9, got %d", cfg.Archive.Level)
	}

	return nil
}
