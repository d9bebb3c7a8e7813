// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package databricksdriver

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dbsql-go/go-sql-databricks/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

const (
	DefaultPort                  = 443
	DefaultMaxBatchSize          = 500
	DefaultAsyncExecPollInterval = 200 * time.Millisecond
)

// dsnRegExp describes the valid values for a dsn (connection name) for a
// Databricks SQL warehouse. The string consists of the following parts:
//  1. (Optional) The prefix `jdbc:`.
//  2. The scheme `databricks://`.
//  3. Host: The host name and optional port number to connect to. The default port is 443.
//  4. (Optional) Schema: The default schema of the connection, preceded by `/`.
//  5. (Optional) Parameters: One or more parameters in the format `name=value`. Multiple entries are separated by `;`.
//     Parameter names are case-insensitive. The supported parameters are:
//     - httpPath: The http path of the SQL warehouse, e.g. /sql/1.0/warehouses/abc123. Required.
//     - PWD (alias PASSWORD): The personal access token to use.
//     - UID (alias USER): The user name. Only `token` is supported when PWD is a personal access token.
//     - ConnCatalog: The default catalog of the session.
//     - ConnSchema: The default schema of the session. Overrides the schema in the path.
//     - MaxBatchSize: The maximum number of commands in a batch. The default is 500.
//     - AsyncExecPollInterval: The number of milliseconds between two status calls. The default is 200.
//     - QueryTimeout: The query timeout in seconds. The default is 0 (no timeout).
//     - usePlainText: Boolean that indicates whether the connection should use plain HTTP. Set this
//     to true to connect to local mock servers.
//     All other parameters are sent as session configuration parameters.
//
// Example: `databricks://adb-123.azuredatabricks.net:443/default;httpPath=/sql/1.0/warehouses/abc123;PWD=dapi123`
var dsnRegExp = regexp.MustCompile(`^(?:jdbc:)?databricks://(?P<HOSTGROUP>[^/;]*)(?:/(?P<SCHEMAGROUP>[^;]*))?(?:;(?P<PARAMSGROUP>.*))?$`)

var httpPathRegExps = []*regexp.Regexp{
	regexp.MustCompile(`.*/warehouses/(.+)`),
	regexp.MustCompile(`.*/endpoints/(.+)`),
}

// ConnectorConfig contains the configuration for a Databricks connector.
type ConnectorConfig struct {
	Host string `validate:"required"`
	// Port is the port number to connect to. The default is 443.
	Port        int `validate:"gte=1,lte=65535"`
	HTTPPath    string
	WarehouseID string `validate:"required"`
	Catalog     string
	Schema      string
	User        string
	Token       string
	// UsePlainText selects http instead of https.
	UsePlainText bool

	// MaxBatchSize is the maximum number of commands that can be added to a
	// batch. The default is 500.
	MaxBatchSize int `validate:"gte=1"`
	// AsyncExecPollInterval is the time between two status calls while
	// waiting for a statement to finish. The default is 200ms.
	AsyncExecPollInterval time.Duration `validate:"gte=1ms"`
	// QueryTimeout is the default timeout for statements. Zero means no timeout.
	QueryTimeout time.Duration `validate:"gte=0"`

	// SessionConfigs are sent as configuration parameters when a session is created.
	SessionConfigs map[string]string

	// Params contains all raw parameters of the dsn, with lower-case keys.
	Params map[string]string

	// Logger is used for log messages from this connector and all its
	// connections. Uses slog.Default() if nil.
	Logger *slog.Logger `validate:"-"`
	// Exporter receives the latency counters of each statement. The counters
	// are logged at debug level if nil.
	Exporter telemetry.Exporter `validate:"-"`
	// HTTPClient is used for all requests to the warehouse.
	HTTPClient *http.Client `validate:"-"`

	name string
}

func (cc *ConnectorConfig) String() string {
	if cc.name != "" {
		return cc.name
	}
	return fmt.Sprintf("databricks://%s:%d%s", cc.Host, cc.Port, cc.HTTPPath)
}

func (cc *ConnectorConfig) baseURL() string {
	scheme := "https"
	if cc.UsePlainText {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(cc.Host, strconv.Itoa(cc.Port)))
}

// dsnParams is the target that the parameters of a dsn are decoded into.
type dsnParams struct {
	HTTPPath              string         `mapstructure:"httppath"`
	PWD                   string         `mapstructure:"pwd"`
	UID                   string         `mapstructure:"uid"`
	WarehouseID           string         `mapstructure:"warehouseid"`
	ConnCatalog           string         `mapstructure:"conncatalog"`
	ConnSchema            string         `mapstructure:"connschema"`
	MaxBatchSize          int            `mapstructure:"maxbatchsize"`
	AsyncExecPollInterval int64          `mapstructure:"asyncexecpollinterval"`
	QueryTimeout          int64          `mapstructure:"querytimeout"`
	UsePlainText          bool           `mapstructure:"useplaintext"`
	Remain                map[string]any `mapstructure:",remain"`
}

var paramAliases = map[string]string{
	"password": "pwd",
	"user":     "uid",
}

// ExtractConnectorConfig parses a dsn into a ConnectorConfig. The returned
// config has not been validated.
func ExtractConnectorConfig(dsn string) (ConnectorConfig, error) {
	match := dsnRegExp.FindStringSubmatch(dsn)
	if match == nil {
		return ConnectorConfig{}, configurationError("invalid connection string: %s", redact(dsn))
	}
	matches := make(map[string]string)
	for i, name := range dsnRegExp.SubexpNames() {
		if i != 0 && name != "" {
			matches[name] = match[i]
		}
	}
	hostPort := matches["HOSTGROUP"]
	if hostPort == "" {
		return ConnectorConfig{}, configurationError("missing host in connection string: %s", redact(dsn))
	}
	host, port, err := splitHostPort(hostPort)
	if err != nil {
		return ConnectorConfig{}, err
	}
	params, err := extractConnectorParams(matches["PARAMSGROUP"])
	if err != nil {
		return ConnectorConfig{}, err
	}

	var decoded dsnParams
	input := make(map[string]any, len(params))
	for k, v := range params {
		if alias, ok := paramAliases[k]; ok {
			if _, exists := params[alias]; exists {
				continue
			}
			k = alias
		}
		input[k] = v
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &decoded,
	})
	if err != nil {
		return ConnectorConfig{}, err
	}
	if err := decoder.Decode(input); err != nil {
		return ConnectorConfig{}, configurationError("invalid connection property: %v", err)
	}

	config := ConnectorConfig{
		Host:                  host,
		Port:                  port,
		HTTPPath:              decoded.HTTPPath,
		WarehouseID:           decoded.WarehouseID,
		Catalog:               decoded.ConnCatalog,
		Schema:                matches["SCHEMAGROUP"],
		User:                  decoded.UID,
		Token:                 decoded.PWD,
		UsePlainText:          decoded.UsePlainText,
		MaxBatchSize:          decoded.MaxBatchSize,
		AsyncExecPollInterval: time.Duration(decoded.AsyncExecPollInterval) * time.Millisecond,
		QueryTimeout:          time.Duration(decoded.QueryTimeout) * time.Second,
		Params:                params,
		name:                  redact(dsn),
	}
	if decoded.ConnSchema != "" {
		config.Schema = decoded.ConnSchema
	}
	if len(decoded.Remain) > 0 {
		config.SessionConfigs = make(map[string]string, len(decoded.Remain))
		for k, v := range decoded.Remain {
			if _, aliased := paramAliases[k]; aliased {
				continue
			}
			config.SessionConfigs[k] = fmt.Sprint(v)
		}
	}
	return config, nil
}

func extractConnectorParams(paramsString string) (map[string]string, error) {
	params := make(map[string]string)
	if paramsString == "" {
		return params, nil
	}
	keyValuePairs := strings.Split(paramsString, ";")
	for _, keyValueString := range keyValuePairs {
		if keyValueString == "" {
			// Ignore empty parameter entries in the string, for example if
			// the connection string contains a trailing ';'.
			continue
		}
		keyValue := strings.SplitN(keyValueString, "=", 2)
		if len(keyValue) != 2 || keyValue[0] == "" {
			return nil, configurationError("invalid connection property: %s", keyValueString)
		}
		params[strings.ToLower(strings.TrimSpace(keyValue[0]))] = keyValue[1]
	}
	return params, nil
}

func splitHostPort(hostPort string) (string, int, error) {
	if !strings.Contains(hostPort, ":") {
		return hostPort, 0, nil
	}
	host, portString, err := net.SplitHostPort(hostPort)
	if err != nil {
		return "", 0, configurationError("invalid host %q: %v", hostPort, err)
	}
	if host == "" {
		return "", 0, configurationError("missing host in %q", hostPort)
	}
	port, err := strconv.Atoi(portString)
	if err != nil {
		return "", 0, configurationError("invalid port %q", portString)
	}
	return host, port, nil
}

// applyDefaults fills in default values and derives the warehouse id from
// the http path.
func (cc *ConnectorConfig) applyDefaults() error {
	if cc.Port == 0 {
		cc.Port = DefaultPort
	}
	if cc.MaxBatchSize == 0 {
		cc.MaxBatchSize = DefaultMaxBatchSize
	}
	if cc.AsyncExecPollInterval == 0 {
		cc.AsyncExecPollInterval = DefaultAsyncExecPollInterval
	}
	if cc.WarehouseID == "" && cc.HTTPPath != "" {
		id, ok := warehouseIDFromHTTPPath(cc.HTTPPath)
		if !ok {
			return configurationError("unsupported httpPath: %s", cc.HTTPPath)
		}
		cc.WarehouseID = id
	}
	return nil
}

func warehouseIDFromHTTPPath(httpPath string) (string, bool) {
	for _, re := range httpPathRegExps {
		if m := re.FindStringSubmatch(httpPath); m != nil {
			return strings.TrimSuffix(m[1], "/"), true
		}
	}
	return "", false
}

var configValidator = validator.New()

// validate checks the config after defaults have been applied.
func (cc *ConnectorConfig) validate() error {
	err := configValidator.Struct(cc)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return configurationError("invalid connector config: %v", err)
	}
	failed := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		switch fe.Field() {
		case "Host":
			failed = append(failed, "missing host")
		case "WarehouseID":
			failed = append(failed, "missing warehouse id, set httpPath")
		default:
			failed = append(failed, fmt.Sprintf("%s failed on '%s=%s'", fe.Field(), fe.Tag(), fe.Param()))
		}
	}
	return configurationError("invalid connector config: %s", strings.Join(failed, "; "))
}

var secretParamRegExp = regexp.MustCompile(`(?i)((?:pwd|password)=)[^;]*`)

// redact removes access tokens from a dsn.
func redact(dsn string) string {
	return secretParamRegExp.ReplaceAllString(dsn, "${1}*****")
}
