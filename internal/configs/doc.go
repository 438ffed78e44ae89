// Package configs loads the client configuration for pantry.
//
// Configuration is read from a knife-style declaration file (knife.rb or
// config.rb) or from the equivalent TOML document (knife.toml). Both
// recognize the same closed set of options:
//
//	log_level                 verbosity (:debug, :info, :warn, :error, :fatal)
//	log_location              STDOUT, STDERR or a file path
//	node_name                 client identity used to sign requests
//	client_key                path of the client's private key
//	validation_client_name    bootstrap identity
//	validation_key            bootstrap private key
//	chef_server_url           organization-scoped server endpoint
//	chef_server_root          server endpoint without the organization
//	cache_path                integrity cache directory
//	syntax_check_cache_path   legacy name for cache_path
//	cookbook_path             ordered list of local cookbook directories
//	knife[:editor]            external editor
//	knife[:vault_mode]        client or solo
//
// Any other key is kept verbatim in ClientConfig.Extensions and never
// interpreted.
//
// # Path Resolution
//
// Every path option is resolved exactly once, in Load: a leading ~ expands
// to the home directory and relative paths are anchored at the directory
// holding the configuration file. Downstream packages receive absolute paths
// only.
//
// # Immutability
//
// Load returns a fully populated *ClientConfig which callers share by
// reference and must treat as read-only. There is no package level state.
package configs
