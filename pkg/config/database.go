// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import "fmt"

// DatabaseConfig configures the SQL connection shared by the Job Store
// and Chunk Store. Supports PostgreSQL, MySQL, and SQLite.
type DatabaseConfig struct {
	// Driver selects the dialect: "postgres", "mysql", or "sqlite".
	Driver string `yaml:"driver"`

	// Host is the server hostname (not used for sqlite).
	Host string `yaml:"host,omitempty"`

	// Port is the server port (not used for sqlite).
	Port int `yaml:"port,omitempty"`

	// Database is the database name, or file path for sqlite.
	Database string `yaml:"database"`

	// Username for authentication (not used for sqlite).
	Username string `yaml:"username,omitempty"`

	// Password for authentication (not used for sqlite).
	Password string `yaml:"password,omitempty"`

	// SSLMode for PostgreSQL connections.
	SSLMode string `yaml:"ssl_mode,omitempty"`

	// MaxConns is the maximum number of open connections.
	MaxConns int `yaml:"max_conns,omitempty"`

	// MaxIdle is the maximum number of idle connections.
	MaxIdle int `yaml:"max_idle,omitempty"`
}

// SetDefaults fills in unset fields with their defaults.
func (c *DatabaseConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = "sqlite"
	}
	if c.Driver == "sqlite" && c.Database == "" {
		c.Database = "ragcore.db"
	}
	if c.MaxConns == 0 {
		c.MaxConns = 25
	}
	if c.MaxIdle == 0 {
		c.MaxIdle = 5
	}
	if c.Port == 0 {
		switch c.Driver {
		case "postgres":
			c.Port = 5432
		case "mysql":
			c.Port = 3306
		}
	}
	if c.Driver == "postgres" && c.SSLMode == "" {
		c.SSLMode = "disable"
	}
}

// Validate reports a validation error for an unsupported driver or a
// missing required field for that driver.
func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case "postgres", "mysql":
		if c.Host == "" {
			return fmt.Errorf("host is required for %s", c.Driver)
		}
		if c.Database == "" {
			return fmt.Errorf("database is required for %s", c.Driver)
		}
	case "sqlite":
		if c.Database == "" {
			return fmt.Errorf("database (file path) is required for sqlite")
		}
	default:
		return fmt.Errorf("invalid database driver %q (valid: postgres, mysql, sqlite)", c.Driver)
	}
	return nil
}
