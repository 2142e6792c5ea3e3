package server

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/tinycache/tinycache/auth"
	"github.com/tinycache/tinycache/cache"
	"github.com/tinycache/tinycache/query"
)

// Process executes one request line: the connection string resolves the
// database context, then the command routes to the shared set first and the
// type-specific handler second. Every reply is a single CRLF-terminated line.
func (s *Server) Process(request string) string {
	fields := strings.Fields(strings.TrimSpace(request))
	if len(fields) == 0 {
		return "Invalid command\r\n"
	}

	info, err := auth.ParseConnectionString(fields[0])
	if err != nil {
		return "Error: " + err.Error() + "\r\n"
	}
	s.engine.SetCurrentDatabase(info.Database)
	command := fields[1:]

	if resp, ok := s.processShared(info.Database, command); ok {
		return resp
	}
	switch info.Type {
	case auth.TypeKeyValue:
		return s.processKeyValue(info.Database, command)
	default:
		return Error("INVALID_COMMAND").Encode()
	}
}

// processShared handles the commands every database type shares. The second
// return is false when the command belongs to a type-specific handler.
func (s *Server) processShared(database string, parts []string) (string, bool) {
	if len(parts) == 0 {
		return Error("INVALID_COMMAND").Encode(), true
	}
	switch parts[0] {
	case "PING":
		return Success(StringData("PONG")).Encode(), true

	case "DBSTATS":
		stats, ok := s.engine.Stats(database)
		if !ok {
			return Error("DATABASE_NOT_FOUND").Encode(), true
		}
		return Success(JSONData(stats)).Encode(), true

	case "ALL_DBSTATS":
		return Success(JSONData(s.engine.AllStats())).Encode(), true

	case "VIEW_LOGS":
		logs, err := s.log.ApplicationLogs(database)
		if err != nil {
			return Error("failed to retrieve logs: " + err.Error()).Encode(), true
		}
		return Success(JSONData(logs)).Encode(), true

	case "VIEW_SYSTEM_LOGS":
		logs, err := s.log.SystemLogs()
		if err != nil {
			return Error("Failed to retrieve system logs: " + err.Error()).Encode(), true
		}
		return Success(JSONData(logs)).Encode(), true

	case "CLEAR_DB":
		if err := s.engine.DropDatabase(database); err != nil {
			return Error(err.Error()).Encode(), true
		}
		return Success(StringData("OK")).Encode(), true

	case "QUERY":
		return s.processQuery(database, parts), true

	default:
		return "", false
	}
}

func (s *Server) processQuery(database string, parts []string) string {
	// The middleware screens the raw command body before any token is parsed.
	if err := query.ValidateQuery(database, strings.Join(parts, " "), s.log); err != nil {
		return Error(err.Error()).Encode()
	}
	ops, err := query.Parse(parts[1:])
	if err != nil {
		return Error(err.Error()).Encode()
	}
	result := query.Aggregate(database, ops, s.engine)
	return Success(JSONData(result)).Encode()
}

// processKeyValue handles the key-value command set.
func (s *Server) processKeyValue(database string, parts []string) string {
	switch {
	case len(parts) >= 3 && parts[0] == "SET":
		return s.handleSet(database, parts[1], strings.Join(parts[2:], " "))

	case len(parts) >= 4 && parts[0] == "SET_EX":
		ttlSecs, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			return Error("INVALID_TTL").Encode()
		}
		return s.handleSetEx(database, parts[1], time.Duration(ttlSecs)*time.Second, strings.Join(parts[3:], " "))

	case len(parts) == 2 && parts[0] == "GET_KEY":
		return s.handleGet(database, parts[1])

	case len(parts) >= 3 && parts[0] == "UPDATE_KEY":
		return s.handleUpdate(database, parts[1], strings.Join(parts[2:], " "))

	case len(parts) == 2 && parts[0] == "DELETE_KEY":
		deleted, err := s.engine.DeleteKeyValue(database, parts[1])
		if err != nil {
			return Error(err.Error()).Encode()
		}
		if !deleted {
			return Error("NOT_FOUND").Encode()
		}
		return Success(StringData("DELETED")).Encode()

	case len(parts) == 1 && parts[0] == "Get_All_KV":
		return Success(JSONData(s.engine.ViewData(database))).Encode()

	case len(parts) == 3 && (parts[0] == "INCR_KEY" || parts[0] == "DECR_KEY"):
		amount, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return Error("INVALID_AMOUNT").Encode()
		}
		var value float64
		var found bool
		if parts[0] == "INCR_KEY" {
			value, found, err = s.engine.IncrementKeyValue(database, parts[1], amount)
		} else {
			value, found, err = s.engine.DecrementKeyValue(database, parts[1], amount)
		}
		if err != nil {
			return Error(err.Error()).Encode()
		}
		if !found {
			return Error("NOT_FOUND_OR_NOT_NUMERIC").Encode()
		}
		return Success(JSONData(value)).Encode()

	case len(parts) >= 3 && parts[0] == "STORE":
		return s.handleSet(database, parts[1], strings.Join(parts[2:], " "))

	default:
		return Error("INVALID_COMMAND").Encode()
	}
}

func (s *Server) handleSet(database, key, body string) string {
	value, err := parseJSONValue(body)
	if err != nil {
		return Error("INVALID_JSON: " + err.Error()).Encode()
	}
	if err := s.engine.CreateKeyValue(database, key, value); err != nil {
		return Error(err.Error()).Encode()
	}
	return Success(StringData("OK")).Encode()
}

func (s *Server) handleSetEx(database, key string, ttl time.Duration, body string) string {
	value, err := parseJSONValue(body)
	if err != nil {
		// Fall back to storing the body as a plain string.
		value = cache.StringValue(body)
	}
	if err := s.engine.CreateKeyValueWithTTL(database, key, value, ttl); err != nil {
		return Error(err.Error()).Encode()
	}
	return Success(StringData("OK")).Encode()
}

func (s *Server) handleGet(database, key string) string {
	value, ok := s.engine.GetKeyValue(database, key)
	if !ok {
		return Error("NOT_FOUND").Encode()
	}
	switch value.Kind() {
	case cache.KindString:
		str, _ := value.Str()
		return Success(StringData(str)).Encode()
	case cache.KindList:
		list, _ := value.List()
		return Success(ListData(list)).Encode()
	case cache.KindSet:
		members, _ := value.SetMembers()
		return Success(SetData(members)).Encode()
	default:
		raw, _ := value.JSON()
		return Success(JSONData(raw)).Encode()
	}
}

func (s *Server) handleUpdate(database, key, body string) string {
	value, err := parseJSONValue(body)
	if err != nil {
		return Error("INVALID_JSON: " + err.Error()).Encode()
	}
	_, found, err := s.engine.UpdateKeyValue(database, key, value, 0)
	if err != nil {
		return Error(err.Error()).Encode()
	}
	if !found {
		return Error("NOT_FOUND").Encode()
	}
	return Success(StringData("UPDATED")).Encode()
}

// parseJSONValue validates body as JSON and wraps it as a Json DataValue.
func parseJSONValue(body string) (cache.DataValue, error) {
	var probe any
	if err := json.Unmarshal([]byte(body), &probe); err != nil {
		return cache.DataValue{}, err
	}
	return cache.JSONValue(json.RawMessage(body)), nil
}
