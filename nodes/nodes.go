// Package nodes provides the built-in action handlers the worker registers
// at startup. Each handler reads its resolved node configuration, performs
// one side effect or computation, and returns a JSON-shaped result for
// downstream nodes.
package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/weftworks/weft/engine"
	"github.com/weftworks/weft/telemetry"
	"github.com/weftworks/weft/vault"
)

type (
	// Options carries the shared dependencies of the built-in handlers.
	Options struct {
		// HTTPClient serves the http node. Defaults to http.DefaultClient.
		HTTPClient *http.Client
		// Vault decrypts node credentials for the llm node. Optional; when
		// nil the llm node fails on encrypted configs.
		Vault *vault.Vault
		// Logger receives handler logs. Defaults to a no-op logger.
		Logger telemetry.Logger
	}

	builtins struct {
		client *http.Client
		vault  *vault.Vault
		log    telemetry.Logger
	}
)

// RegisterBuiltins installs the built-in handlers on a registry.
func RegisterBuiltins(reg *engine.Registry, opts Options) {
	b := &builtins{client: opts.HTTPClient, vault: opts.Vault, log: opts.Logger}
	if b.client == nil {
		b.client = http.DefaultClient
	}
	if b.log == nil {
		b.log = telemetry.NewNoopLogger()
	}
	reg.Register("http", engine.HandlerFunc(b.runHTTP))
	reg.Register("sendmail", engine.HandlerFunc(b.runSendmail))
	reg.Register("multiply", engine.HandlerFunc(runMultiply))
	reg.Register("decision", engine.HandlerFunc(runDecision))
	reg.Register("webhook", engine.HandlerFunc(runWebhookEcho))
	reg.Register("llm", engine.HandlerFunc(b.runLLM))
}

// runMultiply multiplies the upstream numeric result by the configured
// factor. The upstream value is either a bare number or a map carrying a
// "result" field.
func runMultiply(_ context.Context, config map[string]any, ectx map[string]any) (any, error) {
	factor, ok := asFloat(config["factor_b"])
	if !ok {
		return nil, fmt.Errorf("multiply node requires numeric factor_b, got %T", config["factor_b"])
	}
	upstream := ectx["parent_result"]
	if m, ok := upstream.(map[string]any); ok {
		upstream = m["result"]
	}
	value, ok := asFloat(upstream)
	if !ok {
		return nil, fmt.Errorf("multiply node requires a numeric parent result, got %T", upstream)
	}
	return map[string]any{"result": value * factor}, nil
}

// runDecision reads a context variable and surfaces it as the result status,
// the field edge conditions match against.
func runDecision(_ context.Context, config map[string]any, ectx map[string]any) (any, error) {
	variable, ok := config["variable"].(string)
	if !ok || variable == "" {
		return nil, fmt.Errorf("decision node requires a variable name")
	}
	value, ok := ectx[variable]
	if !ok {
		return nil, fmt.Errorf("decision variable %q not present in context", variable)
	}
	status, ok := value.(string)
	if !ok {
		status = fmt.Sprint(value)
	}
	return map[string]any{"status": status}, nil
}

// runWebhookEcho forwards the trigger payload unchanged, for workflows that
// route raw webhook bodies into later nodes.
func runWebhookEcho(_ context.Context, _ map[string]any, ectx map[string]any) (any, error) {
	return map[string]any{"payload": ectx["payload"]}, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
