// Package observability provides metrics and attribute helpers.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod  = "method"
	attrPath    = "path"
	attrStatus  = "status"
	attrState   = "state"
	attrClass   = "class"
	attrSuccess = "success"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	group := fmt.Sprintf("%dxx", code/100)
	return attribute.String(attrStatus, group)
}

func stateAttr(state string) attribute.KeyValue {
	return attribute.String(attrState, state)
}

func classAttr(class string) attribute.KeyValue {
	return attribute.String(attrClass, class)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

// normalizePath replaces dynamic path segments with placeholders so metric
// cardinality stays bounded.
// /v1/virtualclusters/abc/runs/jr-1/wait -> /v1/virtualclusters/{vc}/runs/{id}/wait
func normalizePath(path string) string {
	const prefix = "/v1/virtualclusters/"
	if !strings.HasPrefix(path, prefix) {
		return path
	}
	rest := strings.Split(strings.TrimPrefix(path, prefix), "/")
	if len(rest) >= 3 && rest[1] == "runs" {
		normalized := prefix + "{vc}/runs/{id}"
		if len(rest) == 4 && rest[3] == "wait" {
			return normalized + "/wait"
		}
		return normalized
	}
	return path
}
