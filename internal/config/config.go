package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// Paths
	DataDir       string // events/, payroll/ and the db live here
	DBPath        string
	EmployeesPath string

	// Calendar
	UTCOffsetMinutes int // the one fixed local offset, default +09:00

	// Reader daemon
	HTTPAddr             string // status API; empty disables
	SweepIntervalSeconds int
	ReaderIndex          int

	// Delivery
	ChatWebhookURL    string // empty disables live notifications
	PayrollURL        string // empty disables submission
	PayrollToken      string
	HTTPTimeoutSec    int
	HTTPRetries       int
	RetrySleepSeconds int
}

func FromEnv() Config {
	dataDir := getenvDefault("KINTAI_DATA_DIR", "./data")

	return Config{
		DataDir:       dataDir,
		DBPath:        getenvDefault("KINTAI_DB_PATH", dataDir+"/kintai.db"),
		EmployeesPath: getenvDefault("KINTAI_EMPLOYEES_PATH", "./config/employees.yaml"),

		UTCOffsetMinutes: getenvInt("KINTAI_UTC_OFFSET_MINUTES", 540),

		HTTPAddr:             getenvDefault("KINTAI_HTTP_ADDR", ":8090"),
		SweepIntervalSeconds: getenvInt("KINTAI_SWEEP_INTERVAL_SEC", 1),
		ReaderIndex:          getenvInt("KINTAI_READER_INDEX", 0),

		ChatWebhookURL:    strings.TrimSpace(os.Getenv("KINTAI_CHAT_WEBHOOK_URL")),
		PayrollURL:        strings.TrimSpace(os.Getenv("KINTAI_PAYROLL_URL")),
		PayrollToken:      strings.TrimSpace(os.Getenv("KINTAI_PAYROLL_TOKEN")),
		HTTPTimeoutSec:    getenvInt("KINTAI_HTTP_TIMEOUT_SEC", 20),
		HTTPRetries:       getenvInt("KINTAI_HTTP_RETRIES", 3),
		RetrySleepSeconds: getenvInt("KINTAI_RETRY_SLEEP_SEC", 2),
	}
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// getenvInt parses an integer env var, falling back to the default on
// anything unparseable.  Negative values are allowed; the UTC offset
// is negative west of Greenwich.
func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
