package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// ErrUnparseable is returned when a model answer cannot be decoded even
// after repair.
var ErrUnparseable = errors.New("unparseable model output")

var schemaCache sync.Map // reflect.Type -> *jsonschema.Schema

// SchemaFor returns the inline JSON schema of the type out points to.
// Schemas are reflected once per type.
func SchemaFor(out any) *jsonschema.Schema {
	t := reflect.TypeOf(out)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if s, ok := schemaCache.Load(t); ok {
		return s.(*jsonschema.Schema)
	}

	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	s := reflector.ReflectFromType(t)
	actual, _ := schemaCache.LoadOrStore(t, s)
	return actual.(*jsonschema.Schema)
}

// DecodeStructured decodes a structured model answer into out. Besides plain
// JSON it accepts answers wrapped in a markdown code fence, JSON encoded as a
// string, and malformed JSON that jsonrepair can fix.
func DecodeStructured(input string, out any) error {
	input = stripFence(strings.TrimSpace(input))

	if err := json.Unmarshal([]byte(input), out); err == nil {
		return nil
	}

	var inner string
	if err := json.Unmarshal([]byte(input), &inner); err == nil {
		inner = stripFence(strings.TrimSpace(inner))
		if err := json.Unmarshal([]byte(inner), out); err == nil {
			return nil
		}
		input = inner
	}

	repaired, err := jsonrepair.JSONRepair(collapseLeadingBrace(input))
	if err != nil {
		return fmt.Errorf("%w: repair: %v", ErrUnparseable, err)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return nil
}

// stripFence removes a surrounding ``` or ```json fence.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// collapseLeadingBrace turns "{ {" into "{", a stutter some models emit.
func collapseLeadingBrace(s string) string {
	if !strings.HasPrefix(s, "{") {
		return s
	}
	rest := strings.TrimSpace(s[1:])
	if strings.HasPrefix(rest, "{") {
		return rest
	}
	return s
}
