// Package dsl reads workflow definitions written in YAML. JSON documents
// are accepted as well, since they are valid YAML
package dsl
