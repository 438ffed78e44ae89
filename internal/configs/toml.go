package configs

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// DecodeTOML reads the TOML form of the configuration. Knife options may be
// given at the top level or inside a [knife] table.
func DecodeTOML(data []byte) (*Declarations, error) {
	var doc map[string]any
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, err
	}

	decls := &Declarations{}
	for _, key := range sortedKeys(doc) {
		if table, ok := doc[key].(map[string]any); ok && key == "knife" {
			for _, sub := range sortedKeys(table) {
				decls.Add(tomlDeclaration("knife", sub, table[sub]))
			}
			continue
		}
		decls.Add(tomlDeclaration("", key, doc[key]))
	}
	return decls, nil
}

func tomlDeclaration(namespace, key string, v any) Declaration {
	decl := Declaration{Namespace: namespace, Key: key, Raw: rawTOML(v)}
	switch val := v.(type) {
	case []any:
		decl.IsList = true
		decl.Values = make([]string, 0, len(val))
		for _, item := range val {
			decl.Values = append(decl.Values, fmt.Sprint(item))
		}
	case map[string]any:
		// Tables are only ever extensions; keep the raw form alone.
	default:
		decl.Values = []string{fmt.Sprint(val)}
	}
	return decl
}

// rawTOML renders a value back into TOML so extensions keep their source form.
func rawTOML(v any) string {
	if table, ok := v.(map[string]any); ok {
		out, err := toml.Marshal(table)
		if err != nil {
			return fmt.Sprint(v)
		}
		return strings.TrimSpace(string(out))
	}
	out, err := toml.Marshal(map[string]any{"v": v})
	if err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(string(out)), "v ="))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type tomlKnife struct {
	Editor    string `toml:"editor,omitempty"`
	VaultMode string `toml:"vault_mode"`
}

type tomlDocument struct {
	LogLevel             string            `toml:"log_level"`
	LogLocation          string            `toml:"log_location"`
	NodeName             string            `toml:"node_name"`
	ClientKey            string            `toml:"client_key"`
	ValidationClientName string            `toml:"validation_client_name,omitempty"`
	ValidationKey        string            `toml:"validation_key,omitempty"`
	ServerURL            string            `toml:"chef_server_url,omitempty"`
	ServerRoot           string            `toml:"chef_server_root,omitempty"`
	CachePath            string            `toml:"cache_path"`
	CookbookPath         []string          `toml:"cookbook_path"`
	Knife                tomlKnife         `toml:"knife"`
	Extensions           map[string]string `toml:"extensions,omitempty"`
}

// EncodeTOML writes the resolved configuration as a TOML document that Load
// accepts. Extensions are written under an [extensions] table for reference.
func EncodeTOML(w io.Writer, cfg *ClientConfig) error {
	doc := tomlDocument{
		LogLevel:             cfg.LogLevel.String(),
		LogLocation:          cfg.LogLocation,
		NodeName:             cfg.ClientIdentity,
		ClientKey:            cfg.PrivateKeyPath,
		ValidationClientName: cfg.ValidationIdentity,
		ValidationKey:        cfg.ValidationKeyPath,
		ServerURL:            cfg.ServerURL,
		ServerRoot:           cfg.ServerRoot,
		CachePath:            cfg.CachePath,
		CookbookPath:         cfg.CookbookPaths,
		Knife: tomlKnife{
			Editor:    cfg.EditorPath,
			VaultMode: string(cfg.VaultMode),
		},
	}
	if len(cfg.Extensions) > 0 {
		doc.Extensions = cfg.Extensions
	}
	return toml.NewEncoder(w).Encode(doc)
}
