package handlers

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tasktracker/apiserver/internal/services"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

const schemaBaseURL = "https://tasktracker.local/schemas/"

const (
	schemaRegister      = "register.json"
	schemaAccountCreate = "account_create.json"
	schemaAccount       = "account.json"
	schemaToken         = "token.json"
	schemaRefresh       = "refresh.json"
	schemaTask          = "task.json"
)

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func loadSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		entries, err := schemaFiles.ReadDir("schemas")
		if err != nil {
			schemasErr = err
			return
		}

		compiler := jsonschema.NewCompiler()
		compiled := make(map[string]*jsonschema.Schema, len(entries))
		for _, entry := range entries {
			data, err := schemaFiles.ReadFile("schemas/" + entry.Name())
			if err != nil {
				schemasErr = err
				return
			}
			if err := compiler.AddResource(schemaBaseURL+entry.Name(), bytes.NewReader(data)); err != nil {
				schemasErr = fmt.Errorf("add schema %s: %w", entry.Name(), err)
				return
			}
		}
		for _, entry := range entries {
			schema, err := compiler.Compile(schemaBaseURL + entry.Name())
			if err != nil {
				schemasErr = fmt.Errorf("compile schema %s: %w", entry.Name(), err)
				return
			}
			compiled[entry.Name()] = schema
		}
		schemas = compiled
	})
	return schemas, schemasErr
}

// errMalformedBody marks a body that is not JSON at all.
var errMalformedBody = errors.New("malformed JSON body")

// decodeBody reads the request body, checks it against the named schema
// and decodes it into dst. Schema failures come back as a
// *services.ValidationError keyed by field.
func decodeBody(r *http.Request, schemaName string, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %w", errMalformedBody, err)
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %w", errMalformedBody, err)
	}

	compiled, err := loadSchemas()
	if err != nil {
		return err
	}
	schema, ok := compiled[schemaName]
	if !ok {
		return fmt.Errorf("unknown schema %q", schemaName)
	}
	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return err
		}
		verr := &services.ValidationError{}
		collectSchemaErrors(verr, ve)
		return verr
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %w", errMalformedBody, err)
	}
	return nil
}

func collectSchemaErrors(result *services.ValidationError, err *jsonschema.ValidationError) {
	if err == nil {
		return
	}
	if len(err.Causes) == 0 {
		result.Add(fieldFromPointer(err.InstanceLocation), err.Message)
		return
	}
	for _, cause := range err.Causes {
		collectSchemaErrors(result, cause)
	}
}

// fieldFromPointer turns "/title" into "title". The document root maps to
// non_field_errors.
func fieldFromPointer(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return services.FieldNonField
	}
	if i := strings.Index(ptr, "/"); i >= 0 {
		ptr = ptr[:i]
	}
	return ptr
}

// readJSON is decodeBody writing the failure response itself. It reports
// whether dst was filled.
func readJSON(w http.ResponseWriter, r *http.Request, logger *log.Logger, schemaName string, dst any) bool {
	err := decodeBody(r, schemaName, dst)
	switch {
	case err == nil:
		return true
	case errors.Is(err, errMalformedBody):
		writeError(w, http.StatusBadRequest, "JSON parse error.")
	default:
		writeServiceError(w, r, logger, err, "failed to read request")
	}
	return false
}
