// Package config provides configuration types and loading for signgate.
//
// Configuration is read from YAML or TOML (chosen by file extension) with
// ${VAR:-default} environment substitution, defaulted, then validated with
// detailed error reporting:
//
//	cfg, err := config.LoadConfig("signgate.yaml")
//	if err != nil {
//	    var verrs config.ValidationErrors
//	    if errors.As(err, &verrs) {
//	        // inspect individual errors
//	    }
//	}
//
// Standalone keys files share the same formats and are read with
// LoadKeysFile.
package config
