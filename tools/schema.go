package tools

import "github.com/becomeliminal/nim-assistant/core"

// Schema is a JSON Schema document as sent to the model.
type Schema = map[string]interface{}

// ObjectSchema creates an object schema with the given properties.
func ObjectSchema(properties Schema, required ...string) Schema {
	schema := Schema{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func property(typ, description string) Schema {
	return Schema{"type": typ, "description": description}
}

// StringProperty creates a string property.
func StringProperty(description string) Schema {
	return property("string", description)
}

// StringEnumProperty creates a string property with allowed values.
func StringEnumProperty(description string, values ...string) Schema {
	p := property("string", description)
	p["enum"] = values
	return p
}

// NumberProperty creates a number property.
func NumberProperty(description string) Schema {
	return property("number", description)
}

// RangeProperty creates a number property bounded to [min, max].
func RangeProperty(description string, min, max float64) Schema {
	p := property("number", description)
	p["minimum"] = min
	p["maximum"] = max
	return p
}

// IntegerProperty creates an integer property.
func IntegerProperty(description string) Schema {
	return property("integer", description)
}

// BooleanProperty creates a boolean property.
func BooleanProperty(description string) Schema {
	return property("boolean", description)
}

// DateProperty creates a string property holding an RFC 3339 timestamp
// or a YYYY-MM-DD date.
func DateProperty(description string) Schema {
	return property("string", description+" (RFC 3339 timestamp or YYYY-MM-DD)")
}

// TaskStatusProperty enumerates the task statuses.
func TaskStatusProperty(description string) Schema {
	return StringEnumProperty(description,
		string(core.StatusOpen), string(core.StatusInProgress), string(core.StatusBlocked), string(core.StatusDone))
}

// MemoryTypeProperty enumerates the memory types.
func MemoryTypeProperty(description string) Schema {
	values := make([]string, len(core.MemoryTypes))
	for i, t := range core.MemoryTypes {
		values[i] = string(t)
	}
	return StringEnumProperty(description, values...)
}

// WithThought returns a copy of schema with a thought property. When
// requireThought is set, thought is added to the required list.
func WithThought(schema Schema, requireThought bool) Schema {
	result := make(Schema, len(schema)+1)
	for k, v := range schema {
		result[k] = v
	}

	props := make(Schema)
	if existing, ok := schema["properties"].(Schema); ok {
		for k, v := range existing {
			props[k] = v
		}
	}
	props["thought"] = StringProperty(
		"Your reasoning for using this tool and what you expect it to do. " +
			"Required for tools that change tasks or memories.",
	)
	result["properties"] = props

	if requireThought {
		existing, _ := schema["required"].([]string)
		required := make([]string, 0, len(existing)+1)
		required = append(required, existing...)
		result["required"] = append(required, "thought")
	}
	return result
}

// BuildSchemaWithThought creates an ObjectSchema and adds thought support in one call.
func BuildSchemaWithThought(properties Schema, requireThought bool, required ...string) Schema {
	return WithThought(ObjectSchema(properties, required...), requireThought)
}
