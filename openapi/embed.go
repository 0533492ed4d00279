// Package openapi carries the service's OpenAPI document, embedded so the
// binary can serve its own contract without a working directory dependency.
package openapi

import _ "embed"

//go:embed openapi.yaml
var Spec []byte
