package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Options Analytics Engine Configuration

[pricing]
# Annualized risk-free rate assumed when a request supplies none
risk_free_rate = 0.05
# Annualized volatility assumed when a request supplies none
volatility = 0.25
# Smallest quote returned for an unexpired option; must be positive
min_tick = 0.01

[implied_volatility]
# Starting volatility; 0 uses the Brenner-Subrahmanyam approximation
initial_guess = 0.0
min_volatility = 0.000001
max_volatility = 5.0
# Convergence tolerance on |model price - market price|
tolerance = 0.000001
max_iterations = 100

[chain]
# Strike ladder spacing and half-width
strike_increment = 5.0
strikes_each_side = 20
# Synthetic bid/ask half-spread as a fraction of the theoretical price
spread_percent = 0.02
# Weekday of the standard listed expiration
expiry_weekday = "friday"
# Evaluate strikes concurrently
parallel = false
# Seed for synthetic volume/open interest; 0 keeps them fixed
quote_seed = 0

[strategy]
# Settlement price samples between 0 and upper_multiple x spot
grid_points = 401
upper_multiple = 2.0
# Expiry assumed for legs that carry none
default_days_to_expiry = 30

[server]
addr = ":8080"
request_timeout = "10s"

[market_data]
# SQLite database with recorded spot and quote snapshots (empty = none)
snapshot_db = ""
retry_attempts = 3
breaker_failures = 5
breaker_timeout = "30s"

[logging]
level = "info"
console = true
file = false
file_path = ""
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0600); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}
