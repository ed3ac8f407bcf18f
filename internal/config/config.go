package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr           string
	BasePath       string
	DataDir        string
	DBPath         string
	EnvFile        string
	ProbesFile     string
	DockerSocket   string
	DockerDiscover bool
	LogLevel       string

	Store        string
	PostgresDSN  string
	ValkeyAddr   string
	ValkeyPrefix string
	AMQPURL      string
	AMQPQueue    string

	Status StatusPage
	Probes []ProbeSpec
}

// StatusPage holds the options that may change at runtime. The collector
// and the rollup service read them once per cycle or request.
type StatusPage struct {
	Title          string
	RetentionDays  int
	PollInterval   time.Duration
	ShowLatency    bool
	Include        []string
	Exclude        []string
	Template       Template
	LogoURL        string
	AutoRefresh    bool
	ShowFooter     bool
	FooterText     string
	FooterLinkText string
	FooterLinkURL  string
}

type Template string

const (
	TemplateClassic Template = "classic"
	TemplateAxiom   Template = "axiom"
	TemplatePulse   Template = "pulse"
)

func ParseTemplate(s string) (Template, error) {
	switch t := Template(strings.ToLower(strings.TrimSpace(s))); t {
	case TemplateClassic, TemplateAxiom, TemplatePulse:
		return t, nil
	}
	return "", fmt.Errorf("unknown status template %q", s)
}

const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreValkey   = "valkey"
)

// Load reads the optional .env file, the environment and the probes file.
// The result is validated; any error is meant to stop the process.
func Load() (Config, error) {
	envFile := getenv("APP_ENV_FILE", ".env")
	if err := LoadEnvFile(envFile, false); err != nil {
		return Config{}, err
	}
	dataDir := getenv("APP_DATA_DIR", "./data")
	var env envReader
	cfg := Config{
		Addr:           getenv("APP_ADDR", ":8080"),
		BasePath:       strings.TrimRight(getenv("APP_BASE_PATH", "/status"), "/"),
		DataDir:        dataDir,
		DBPath:         getenv("APP_DB_PATH", dataDir+"/status.db"),
		EnvFile:        envFile,
		ProbesFile:     getenv("APP_PROBES_FILE", "./probes.yml"),
		DockerSocket:   getenv("DOCKER_SOCKET", "/var/run/docker.sock"),
		DockerDiscover: env.bool("APP_DOCKER_DISCOVER", false),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		Store:          strings.ToLower(getenv("APP_STORE", StoreSQLite)),
		PostgresDSN:    os.Getenv("APP_POSTGRES_DSN"),
		ValkeyAddr:     getenv("APP_VALKEY_ADDR", "localhost:6379"),
		ValkeyPrefix:   getenv("APP_VALKEY_PREFIX", "statuspage"),
		AMQPURL:        os.Getenv("APP_AMQP_URL"),
		AMQPQueue:      getenv("APP_AMQP_QUEUE", "statuspage.snapshots"),
	}
	if env.err != nil {
		return Config{}, env.err
	}
	sp, err := loadStatusPage()
	if err != nil {
		return Config{}, err
	}
	cfg.Status = sp
	probes, err := LoadProbes(cfg.ProbesFile)
	if err != nil {
		return Config{}, err
	}
	cfg.Probes = probes
	return cfg, cfg.Validate()
}

// ReloadStatusPage re-reads envFile, overriding variables it sets, and
// returns the refreshed runtime options.
func ReloadStatusPage(envFile string) (StatusPage, error) {
	if err := LoadEnvFile(envFile, true); err != nil {
		return StatusPage{}, err
	}
	sp, err := loadStatusPage()
	if err != nil {
		return StatusPage{}, err
	}
	return sp, sp.Validate()
}

// LoadEnvFile loads KEY=VALUE pairs from path. A missing file is not an error.
func LoadEnvFile(path string, override bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	load := godotenv.Load
	if override {
		load = godotenv.Overload
	}
	if err := load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func loadStatusPage() (StatusPage, error) {
	tpl, err := ParseTemplate(getenv("STATUS_TEMPLATE", string(TemplateClassic)))
	if err != nil {
		return StatusPage{}, err
	}
	var env envReader
	sp := StatusPage{
		Title:          getenv("STATUS_TITLE", "System Status"),
		RetentionDays:  env.int("STATUS_RETENTION_DAYS", 90),
		PollInterval:   time.Duration(env.int("STATUS_POLL_SECONDS", 60)) * time.Second,
		ShowLatency:    env.bool("STATUS_SHOW_LATENCY", true),
		Include:        getenvList("STATUS_INCLUDE"),
		Exclude:        getenvList("STATUS_EXCLUDE"),
		Template:       tpl,
		LogoURL:        os.Getenv("STATUS_LOGO_URL"),
		AutoRefresh:    env.bool("STATUS_AUTO_REFRESH", false),
		ShowFooter:     env.bool("STATUS_SHOW_FOOTER", true),
		FooterText:     getenv("STATUS_FOOTER_TEXT", "Powered by statuspage"),
		FooterLinkText: os.Getenv("STATUS_FOOTER_LINK_TEXT"),
		FooterLinkURL:  os.Getenv("STATUS_FOOTER_LINK_URL"),
	}
	if env.err != nil {
		return StatusPage{}, env.err
	}
	return sp, nil
}

func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreSQLite, StoreValkey:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return errors.New("APP_POSTGRES_DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.BasePath != "" && !strings.HasPrefix(c.BasePath, "/") {
		return fmt.Errorf("base path %q must start with /", c.BasePath)
	}
	if err := c.Status.Validate(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Probes))
	for _, p := range c.Probes {
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate probe name %q", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

func (s StatusPage) Validate() error {
	if s.RetentionDays <= 0 {
		return fmt.Errorf("retention days must be > 0, got %d", s.RetentionDays)
	}
	if s.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be > 0, got %s", s.PollInterval)
	}
	if _, err := ParseTemplate(string(s.Template)); err != nil {
		return err
	}
	for _, p := range append(append([]string(nil), s.Include...), s.Exclude...) {
		if _, err := path.Match(p, ""); err != nil {
			return fmt.Errorf("bad probe pattern %q: %w", p, err)
		}
	}
	return nil
}

// Includes reports whether results of the named probe are persisted.
// An empty include list admits every name; excludes win over includes.
func (s StatusPage) Includes(name string) bool {
	if len(s.Include) > 0 && !matchAny(s.Include, name) {
		return false
	}
	return !matchAny(s.Exclude, name)
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
	}
	return false
}

// Holder publishes the current StatusPage options to concurrent readers.
type Holder struct {
	v atomic.Pointer[StatusPage]
}

func NewHolder(sp StatusPage) *Holder {
	h := &Holder{}
	h.Store(sp)
	return h
}

func (h *Holder) Current() StatusPage { return *h.v.Load() }

func (h *Holder) Store(sp StatusPage) { h.v.Store(&sp) }

type JSONAssertion struct {
	Path     string `yaml:"path"`
	Operator string `yaml:"operator"`
	Value    any    `yaml:"value"`
}

// ProbeSpec describes one health check in the probes file. Which fields
// apply depends on Type.
type ProbeSpec struct {
	Name    string        `yaml:"name"`
	Type    string        `yaml:"type"`
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// http
	URL            string            `yaml:"url,omitempty"`
	Method         string            `yaml:"method,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty"`
	ExpectedStatus int               `yaml:"expected_status,omitempty"`
	DegradedAfter  time.Duration     `yaml:"degraded_after,omitempty"`
	JSONAssertions []JSONAssertion   `yaml:"json_assertions,omitempty"`

	// tcp
	Address string `yaml:"address,omitempty"`

	// docker
	Container string `yaml:"container,omitempty"`

	// host
	Path         string  `yaml:"path,omitempty"`
	DiskDegraded float64 `yaml:"disk_degraded,omitempty"`
	DiskDown     float64 `yaml:"disk_down,omitempty"`
	MemDegraded  float64 `yaml:"mem_degraded,omitempty"`
	MemDown      float64 `yaml:"mem_down,omitempty"`

	// static
	Status      string `yaml:"status,omitempty"`
	Description string `yaml:"description,omitempty"`
}

type probeFile struct {
	Probes []ProbeSpec `yaml:"probes"`
}

func (p ProbeSpec) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("probe name is required")
	}
	switch p.Type {
	case "http":
		if p.URL == "" {
			return fmt.Errorf("probe %q: url is required", p.Name)
		}
	case "tcp":
		if p.Address == "" {
			return fmt.Errorf("probe %q: address is required", p.Name)
		}
	case "docker":
		if p.Container == "" {
			return fmt.Errorf("probe %q: container is required", p.Name)
		}
	case "host", "static":
	default:
		return fmt.Errorf("probe %q: unknown type %q", p.Name, p.Type)
	}
	return nil
}

// LoadProbes parses the probes file. A missing file yields no probes.
func LoadProbes(path string) ([]ProbeSpec, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read probes file: %w", err)
	}
	var f probeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse probes file: %w", err)
	}
	for i := range f.Probes {
		p := &f.Probes[i]
		p.URL = ResolveEnv(p.URL)
		for k, v := range p.Headers {
			p.Headers[k] = ResolveEnv(v)
		}
	}
	return f.Probes, nil
}

// ResolveEnv expands ${VAR} placeholders so secrets can stay out of the file.
func ResolveEnv(value string) string {
	return os.ExpandEnv(value)
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// envReader parses typed variables, keeping every malformed value as an
// error instead of falling back to the default.
type envReader struct {
	err error
}

func (r *envReader) fail(k, v, want string) {
	r.err = errors.Join(r.err, fmt.Errorf("%s=%q: expected %s", k, v, want))
}

func (r *envReader) int(k string, d int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(k, v, "an integer")
		return d
	}
	return n
}

func (r *envReader) bool(k string, d bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(k)))
	switch v {
	case "":
		return d
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	r.fail(k, v, "a boolean")
	return d
}

func getenvList(k string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(k), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
