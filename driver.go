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
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"log/slog"
	"sync"

	"github.com/dbsql-go/go-sql-databricks/internal/sqlexec"
	"github.com/dbsql-go/go-sql-databricks/telemetry"
	"github.com/google/uuid"
)

const userAgent = "go-sql-databricks/0.1.0"

// LevelNotice is the default logging level that the Databricks database/sql
// driver uses for informational logs. This level is one level lower than
// slog.LevelInfo, so the driver does not add noise to any default logger that
// has been set for the application.
const LevelNotice = slog.LevelInfo - 1

// Logger that discards everything and skips (almost) all logs.
var noopLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))

var _ driver.DriverContext = &Driver{}

func init() {
	sql.Register("databricks", &Driver{connectors: make(map[string]*connector)})
}

// Driver represents a Databricks SQL warehouse database/sql driver.
type Driver struct {
	mu         sync.Mutex
	connectors map[string]*connector
}

// Open opens a connection to a Databricks SQL warehouse.
//
// Example: databricks://adb-123.azuredatabricks.net/default;httpPath=/sql/1.0/warehouses/abc123;PWD=dapi123
func (d *Driver) Open(name string) (driver.Conn, error) {
	c, err := newConnector(d, name)
	if err != nil {
		return nil, err
	}
	return c.Connect(context.Background())
}

func (d *Driver) OpenConnector(name string) (driver.Connector, error) {
	c, err := newConnector(d, name)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CreateConnector creates a new driver.Connector for the given config. The
// connector can be passed to sql.OpenDB.
func CreateConnector(config ConnectorConfig) (driver.Connector, error) {
	c, err := newConnectorWithConfig(&Driver{connectors: make(map[string]*connector)}, "", config)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type connector struct {
	driver          *Driver
	dsn             string
	connectorConfig ConnectorConfig
	logger          *slog.Logger
	collector       *telemetry.Collector

	closerMu sync.RWMutex
	closed   bool

	// newClient creates the transport that is shared by all connections of
	// this connector.
	newClient func(config ConnectorConfig, logger *slog.Logger) (sqlexec.Client, error)

	clientMu  sync.Mutex
	client    sqlexec.Client
	clientErr error
	connCount int32
}

func newConnector(d *Driver, dsn string) (*connector, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.connectors == nil {
		d.connectors = make(map[string]*connector)
	}
	if c, ok := d.connectors[dsn]; ok {
		return c, nil
	}

	connectorConfig, err := ExtractConnectorConfig(dsn)
	if err != nil {
		return nil, err
	}
	c, err := newConnectorWithConfig(d, dsn, connectorConfig)
	if err != nil {
		return nil, err
	}
	d.connectors[dsn] = c
	return c, nil
}

func newConnectorWithConfig(d *Driver, dsn string, connectorConfig ConnectorConfig) (*connector, error) {
	if err := connectorConfig.applyDefaults(); err != nil {
		return nil, err
	}
	if err := connectorConfig.validate(); err != nil {
		return nil, err
	}
	var logger *slog.Logger
	if connectorConfig.Logger == nil {
		d := slog.Default()
		if d == nil {
			logger = noopLogger
		} else {
			logger = d
		}
	} else {
		logger = connectorConfig.Logger
	}
	logger = logger.With("config", &connectorConfig)

	exporter := connectorConfig.Exporter
	if exporter == nil {
		exporter = &telemetry.LogExporter{Logger: logger, Level: slog.LevelDebug}
	}
	return &connector{
		driver:          d,
		dsn:             dsn,
		connectorConfig: connectorConfig,
		logger:          logger,
		collector:       telemetry.NewCollector(exporter),
		newClient:       newHTTPTransport,
	}, nil
}

func newHTTPTransport(config ConnectorConfig, logger *slog.Logger) (sqlexec.Client, error) {
	return sqlexec.NewHTTPClient(sqlexec.Config{
		BaseURL:      config.baseURL(),
		Token:        config.Token,
		UserAgent:    userAgent,
		PollInterval: config.AsyncExecPollInterval,
		HTTPClient:   config.HTTPClient,
		Logger:       logger,
	})
}

func (c *connector) Connect(ctx context.Context) (driver.Conn, error) {
	c.closerMu.RLock()
	defer c.closerMu.RUnlock()
	if c.closed {
		return nil, &Error{Kind: KindClosed, Code: CodeConnectionClosed, Msg: "connector has been closed"}
	}
	conn, err := openDriverConn(ctx, c)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func openDriverConn(ctx context.Context, c *connector) (*conn, error) {
	c.logger.Log(ctx, LevelNotice, "opening connection")

	if err := c.increaseConnCount(ctx); err != nil {
		return nil, err
	}
	connId := uuid.New().String()
	logger := c.logger.With("connId", connId)
	session, err := openSession(ctx, c.client, &c.connectorConfig, logger)
	if err != nil {
		_ = c.decreaseConnCount()
		return nil, err
	}
	return &conn{
		connector: c,
		client:    c.client,
		session:   session,
		connId:    connId,
		logger:    logger,
	}, nil
}

// increaseConnCount initializes the client and increases the number of connections that are active.
func (c *connector) increaseConnCount(ctx context.Context) error {
	c.clientMu.Lock()
	defer c.clientMu.Unlock()

	if c.clientErr != nil {
		return c.clientErr
	}
	if c.client == nil {
		c.logger.Log(ctx, LevelNotice, "creating SQL warehouse client")
		client, err := c.newClient(c.connectorConfig, c.logger)
		if err != nil {
			c.clientErr = &Error{Kind: KindConfiguration, Code: CodeConnectionError, Msg: "failed to create client", Err: err}
			return c.clientErr
		}
		c.client = client
	}

	c.connCount++
	c.logger.DebugContext(ctx, "increased conn count", "connCount", c.connCount)
	return nil
}

// decreaseConnCount decreases the number of connections that are active and closes the underlying client if it was the
// last connection.
func (c *connector) decreaseConnCount() error {
	c.clientMu.Lock()
	defer c.clientMu.Unlock()

	c.connCount--
	c.logger.Debug("decreased conn count", "connCount", c.connCount)
	if c.connCount > 0 {
		return nil
	}

	return c.closeClients()
}

func (c *connector) Driver() driver.Driver {
	return c.driver
}

func (c *connector) Close() error {
	c.logger.Debug("closing connector")
	c.closerMu.Lock()
	c.closed = true
	c.closerMu.Unlock()

	c.driver.mu.Lock()
	if c.dsn != "" {
		delete(c.driver.connectors, c.dsn)
	}
	c.driver.mu.Unlock()

	c.collector.Close(context.Background())
	c.clientMu.Lock()
	defer c.clientMu.Unlock()
	return c.closeClients()
}

// Closes the underlying client.
func (c *connector) closeClients() (err error) {
	c.logger.Debug("closing clients")
	if c.client != nil {
		err = c.client.Close()
		c.client = nil
	}
	return err
}
