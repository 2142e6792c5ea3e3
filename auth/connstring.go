package auth

import (
	"errors"
	"strings"
)

// Scheme is the connection string prefix every client must present.
const Scheme = "tinycache://"

// DatabaseType is the logical database family a connection targets. Only
// key-value databases exist today; unknown type strings normalize to it.
type DatabaseType int

// TypeKeyValue routes to the key-value command set.
const TypeKeyValue DatabaseType = iota

// DatabaseTypeFromString maps the connection-string type token.
func DatabaseTypeFromString(s string) DatabaseType {
	switch strings.ToLower(s) {
	case "kv":
		return TypeKeyValue
	default:
		return TypeKeyValue
	}
}

// ConnInfo is a parsed connection string:
// tinycache://<user>:<pass>@<database>:<dbtype>.
type ConnInfo struct {
	Username string
	Password string
	Database string
	TypeName string
	Type     DatabaseType
}

// ParseConnectionString validates and splits a connection string. Every
// malformed shape is rejected with a message naming the missing piece.
func ParseConnectionString(connStr string) (ConnInfo, error) {
	rest, ok := strings.CutPrefix(connStr, Scheme)
	if !ok {
		return ConnInfo{}, errors.New("Invalid connection string format: missing tinycache:// prefix")
	}

	credentials, target, ok := strings.Cut(rest, "@")
	if !ok || strings.Contains(target, "@") {
		return ConnInfo{}, errors.New("Invalid connection string format: missing '@' separator")
	}

	parts := strings.Split(credentials, ":")
	if len(parts) != 2 {
		return ConnInfo{}, errors.New("Invalid format: credentials must be username:password")
	}
	username, password := parts[0], parts[1]

	dbParts := strings.Split(target, ":")
	if len(dbParts) != 2 {
		return ConnInfo{}, errors.New("Invalid format: must include database:type")
	}
	database, typeName := dbParts[0], dbParts[1]
	if database == "" {
		return ConnInfo{}, errors.New("Database name cannot be empty")
	}
	if typeName == "" {
		return ConnInfo{}, errors.New("Database type cannot be empty")
	}

	return ConnInfo{
		Username: username,
		Password: password,
		Database: database,
		TypeName: typeName,
		Type:     DatabaseTypeFromString(typeName),
	}, nil
}
