// Package config defines the settings of the make-manifest tool and provides
// helpers to load, validate and save them in YAML format.
//
// Every field has a production default, so a configuration file is optional;
// command-line flags override whatever the file sets.
package config
