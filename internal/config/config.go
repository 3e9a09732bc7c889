package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the agent process.
// All values must come from env (or an env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	LiveKit LiveKitConfig
	Routing RoutingConfig
	Auth    AuthConfig
	Ops     OpsConfig
	DB      DBConfig
	Redis   RedisConfig
}

type AppConfig struct {
	Env  string
	Port int

	// CompanyName is spoken in the greeting.
	CompanyName string
}

type LiveKitConfig struct {
	URL       string
	APIKey    string
	APISecret string
}

// Department is one keypad option offered to the caller.
type Department struct {
	// Signal is the DTMF digit that selects this department.
	Signal string
	Label  string
	// Number is the E.164 transfer destination, resolved at startup.
	Number string
}

type RoutingConfig struct {
	// GracePeriod is the wait between the pre-transfer notice and the
	// actual transfer, so the notice is not cut off by session teardown.
	GracePeriod time.Duration

	// MaxConcurrentCalls caps live sessions across agent instances.
	// Zero means unlimited. Enforced only when the Redis registry is on.
	MaxConcurrentCalls int

	Departments []Department
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

// OpsConfig holds the credential exchanged for ops API tokens.
type OpsConfig struct {
	Username string
	Password string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

// departmentEnv fixes the keypad menu: digit -> (label, env var holding the number).
// Table order is the order spoken in the greeting.
var departmentEnv = []struct {
	signal, label, key string
}{
	{"1", "Billing", "BILLING_PHONE_NUMBER"},
	{"2", "Tech Support", "TECH_SUPPORT_PHONE_NUMBER"},
	{"3", "Customer Service", "CUSTOMER_SERVICE_PHONE_NUMBER"},
}

const defaultGracePeriod = 6 * time.Second

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.CompanyName = strings.TrimSpace(os.Getenv("COMPANY_NAME"))

	c.LiveKit.URL = strings.TrimSpace(os.Getenv("LIVEKIT_URL"))
	c.LiveKit.APIKey = strings.TrimSpace(os.Getenv("LIVEKIT_API_KEY"))
	c.LiveKit.APISecret = os.Getenv("LIVEKIT_API_SECRET")

	{
		d, err := mustDuration("TRANSFER_GRACE_PERIOD")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Routing.GracePeriod = d
	}
	if v := strings.TrimSpace(os.Getenv("MAX_CONCURRENT_CALLS")); v != "" {
		n, err := mustInt("MAX_CONCURRENT_CALLS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Routing.MaxConcurrentCalls = n
	}
	for _, d := range departmentEnv {
		c.Routing.Departments = append(c.Routing.Departments, Department{
			Signal: d.signal,
			Label:  d.label,
			Number: strings.TrimSpace(os.Getenv(d.key)),
		})
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	{
		d, err := mustDuration("JWT_ACCESS_TTL")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Auth.AccessTokenTTL = d
	}

	c.Ops.Username = strings.TrimSpace(os.Getenv("OPS_USERNAME"))
	c.Ops.Password = os.Getenv("OPS_PASSWORD")

	// Call-log DB and registry Redis are optional; leaving DB_HOST / REDIS_HOST
	// unset selects the in-memory call log and disables the registry.
	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	if c.DB.Host != "" {
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
		c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
		c.DB.Password = os.Getenv("DB_PASSWORD")
		c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
		c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	}

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	if c.Redis.Host != "" {
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.CompanyName == "" {
		c.App.CompanyName = "Vandelay Industries"
	}

	if c.LiveKit.URL == "" {
		errs = append(errs, errors.New("LIVEKIT_URL is required"))
	}
	if c.LiveKit.APIKey == "" {
		errs = append(errs, errors.New("LIVEKIT_API_KEY is required"))
	}
	if c.LiveKit.APISecret == "" {
		errs = append(errs, errors.New("LIVEKIT_API_SECRET is required"))
	}

	if c.Routing.GracePeriod <= 0 {
		c.Routing.GracePeriod = defaultGracePeriod
	}
	if c.Routing.MaxConcurrentCalls < 0 {
		errs = append(errs, errors.New("MAX_CONCURRENT_CALLS must not be negative"))
	}
	// A department with no number must fail here, not mid-call.
	for i, d := range c.Routing.Departments {
		if d.Number == "" {
			errs = append(errs, fmt.Errorf("%s is required (destination for keypad %s)", departmentEnv[i].key, d.Signal))
		}
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}

	if c.Ops.Username == "" {
		errs = append(errs, errors.New("OPS_USERNAME is required"))
	}
	if c.Ops.Password == "" {
		errs = append(errs, errors.New("OPS_PASSWORD is required"))
	}

	if c.CallLogDBEnabled() {
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required when DB_HOST is set"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required when DB_HOST is set"))
		}
		if c.DB.SSLMode == "" {
			if c.IsProduction() {
				errs = append(errs, errors.New("DB_SSLMODE is required in production"))
			} else {
				c.DB.SSLMode = "disable"
			}
		}
		if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	}

	if c.RegistryEnabled() {
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) CallLogDBEnabled() bool { return c.DB.Host != "" }

func (c Config) RegistryEnabled() bool { return c.Redis.Host != "" }

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

// mustDuration parses an optional duration key. Unset selects the default
// downstream; a present but unparseable value is a config error, never a
// silent fallback.
func mustDuration(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration (e.g. 6s), got %q", key, v)
	}
	return d, nil
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
