package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "deployment":
		return deploymentTemplate, nil
	case "runtime":
		return runtimeTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const deploymentTemplate = `shared_decimals = 6

[transport]
base_fee = 1000
per_byte_fee = 10
gas_price = 0
alt_token_fee = 0
redeliver_initial_ms = 250
redeliver_max_ms = 30000
redeliver_multiplier = 2.0
redeliver_jitter = true

[[endpoints]]
id = 101
name = "alpha"
address = "0x1000000000000000000000000000000000000101"
local_decimals = 18
ledger_mode = "lockbox"
fee_bps = 0
custom_adapter_params = false

[[endpoints.remotes]]
endpoint = 102
min_gas_send = 200000
min_gas_send_and_call = 200000
payload_limit = 10000

[[endpoints.balances]]
account = "0x000000000000000000000000000000000000a11c"
amount = "1000000000000000000000"

[[endpoints]]
id = 102
name = "beta"
address = "0x1000000000000000000000000000000000000102"
local_decimals = 18
ledger_mode = "mint_burn"
custom_adapter_params = false

[[endpoints.remotes]]
endpoint = 101
min_gas_send = 200000
min_gas_send_and_call = 200000
`

const runtimeTemplate = `name = "bridgectl"
addr = ":9200"
cors_origins = ["http://localhost:3000"]
admin_token = "change-me"
store_dir = ".bridgectl/state"
deployment = "cmd/bridgectl/deployment.toml"
max_reason_bytes = 150
`
