package selfdescription

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/morezero/catalog-broker/pkg/ids"
)

const logPrefix = "selfdescription:loader"

// EnvFile names the environment variable holding a self-description path.
const EnvFile = "BROKER_SELF_DESCRIPTION_FILE"

var errInvalidJSON = errors.New("invalid JSON")

var defaultPaths = []string{
	"config/self-description.json",
	"config/self-description.yaml",
	"self-description.json",
}

// Load reads the first usable self-description. Paths passed in are tried
// first, then BROKER_SELF_DESCRIPTION_FILE, then the default locations.
// Missing files are skipped; unparseable ones are logged and skipped. When
// no file is usable the description is generated from params.
func Load(params Params, paths ...string) (*Description, error) {
	all := make([]string, 0, len(paths)+len(defaultPaths)+1)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv(EnvFile); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, defaultPaths...)

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		desc, err := decodeFile(p, data)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse self-description %s: %v", logPrefix, p, err))
			continue
		}
		if params.ConnectorID != "" && desc.Connector.ID != params.ConnectorID {
			slog.Warn(fmt.Sprintf("%s - %s describes %s, broker id is %s", logPrefix, p, desc.Connector.ID, params.ConnectorID))
		}

		slog.Info(fmt.Sprintf("%s - Loaded self-description from %s", logPrefix, p))
		return desc, nil
	}

	slog.Info(fmt.Sprintf("%s - Using generated self-description", logPrefix))
	return Default(params)
}

// Default generates a minimal broker self-description.
func Default(params Params) (*Description, error) {
	doc := map[string]any{
		"@context": map[string]any{
			"ids":  "https://w3id.org/idsa/core/",
			"idsc": "https://w3id.org/idsa/code/",
		},
		"@type":                    "ids:Broker",
		"@id":                      params.ConnectorID,
		"ids:securityProfile":      map[string]any{"@id": "idsc:BASE_SECURITY_PROFILE"},
		"ids:outboundModelVersion": params.ModelVersion,
	}
	if params.Title != "" {
		doc["ids:title"] = []any{map[string]any{"@value": params.Title, "@type": "http://www.w3.org/2001/XMLSchema#string"}}
	}
	inbound := params.InboundModelVersions
	if len(inbound) == 0 && params.ModelVersion != "" {
		inbound = []string{params.ModelVersion}
	}
	if len(inbound) > 0 {
		doc["ids:inboundModelVersion"] = inbound
	}
	if params.EndpointURL != "" {
		doc["ids:hasDefaultEndpoint"] = map[string]any{
			"@type":         "ids:ConnectorEndpoint",
			"@id":           params.EndpointURL,
			"ids:accessURL": map[string]any{"@id": params.EndpointURL},
		}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%s - encode default: %w", logPrefix, err)
	}
	connector, err := ids.ParseConnector(data)
	if err != nil {
		return nil, fmt.Errorf("%s - default self-description: %w", logPrefix, err)
	}
	return &Description{Raw: data, Connector: connector, Source: SourceDefault}, nil
}

func decodeFile(path string, data []byte) (*Description, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		converted, err := json.Marshal(jsonCompatible(doc))
		if err != nil {
			return nil, err
		}
		data = converted
	default:
		if !json.Valid(data) {
			return nil, errInvalidJSON
		}
	}

	connector, err := ids.ParseConnector(data)
	if err != nil {
		return nil, err
	}
	return &Description{Raw: json.RawMessage(data), Connector: connector, Source: path}, nil
}

// jsonCompatible rewrites YAML maps with non-string keys so they encode as JSON objects.
func jsonCompatible(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = jsonCompatible(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = jsonCompatible(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = jsonCompatible(val)
		}
		return t
	default:
		return v
	}
}
