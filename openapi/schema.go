package openapi

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

var timeType = reflect.TypeOf(time.Time{})

// schemaFor must be called with d.mu held.
func (d *Document) schemaFor(t reflect.Type, visiting map[reflect.Type]bool) *openapi3.SchemaRef {
	if t.Kind() == reflect.Pointer {
		ref := d.schemaFor(t.Elem(), visiting)
		if ref.Ref != "" {
			return &openapi3.SchemaRef{Value: &openapi3.Schema{AllOf: openapi3.SchemaRefs{ref}, Nullable: true}}
		}
		ref.Value.Nullable = true
		return ref
	}

	switch t.Kind() {
	case reflect.String:
		return &openapi3.SchemaRef{Value: openapi3.NewStringSchema()}
	case reflect.Bool:
		return &openapi3.SchemaRef{Value: openapi3.NewBoolSchema()}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &openapi3.SchemaRef{Value: openapi3.NewIntegerSchema()}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &openapi3.SchemaRef{Value: openapi3.NewIntegerSchema().WithMin(0)}
	case reflect.Float32, reflect.Float64:
		return &openapi3.SchemaRef{Value: openapi3.NewFloat64Schema()}
	case reflect.Slice, reflect.Array:
		return &openapi3.SchemaRef{Value: openapi3.NewArraySchema().WithItems(d.schemaFor(t.Elem(), visiting).Value)}
	case reflect.Map:
		return &openapi3.SchemaRef{Value: openapi3.NewObjectSchema().WithAdditionalProperties(d.schemaFor(t.Elem(), visiting).Value)}
	case reflect.Struct:
		if t == timeType {
			return &openapi3.SchemaRef{Value: openapi3.NewDateTimeSchema()}
		}
		return d.structRef(t, visiting)
	default:
		return &openapi3.SchemaRef{Value: openapi3.NewObjectSchema()}
	}
}

// structRef registers named structs under components and returns a reference.
func (d *Document) structRef(t reflect.Type, visiting map[reflect.Type]bool) *openapi3.SchemaRef {
	if t.Name() == "" {
		return &openapi3.SchemaRef{Value: d.structSchema(t, visiting)}
	}
	if name, ok := d.schemas[t]; ok {
		return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
	}
	if visiting[t] {
		return &openapi3.SchemaRef{Value: openapi3.NewObjectSchema()}
	}

	name := t.Name()
	for suffix := 2; ; suffix++ {
		if existing, taken := d.names[name]; !taken || existing == t {
			break
		}
		name = t.Name() + strconv.Itoa(suffix)
	}
	d.schemas[t] = name
	d.names[name] = t

	visiting[t] = true
	schema := d.structSchema(t, visiting)
	delete(visiting, t)

	d.spec.Components.Schemas[name] = &openapi3.SchemaRef{Value: schema}
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

func (d *Document) structSchema(t reflect.Type, visiting map[reflect.Type]bool) *openapi3.Schema {
	schema := openapi3.NewObjectSchema()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		parts := strings.Split(tag, ",")

		if field.Anonymous && parts[0] == "" {
			embedded := field.Type
			if embedded.Kind() == reflect.Pointer {
				embedded = embedded.Elem()
			}
			if embedded.Kind() == reflect.Struct {
				inner := d.structSchema(embedded, visiting)
				for name, prop := range inner.Properties {
					schema.Properties[name] = prop
				}
				schema.Required = append(schema.Required, inner.Required...)
				continue
			}
		}

		name := field.Name
		if parts[0] != "" {
			name = parts[0]
		}

		prop := d.schemaFor(field.Type, visiting)
		doc, example := field.Tag.Get("doc"), field.Tag.Get("example")
		if doc != "" || example != "" {
			if prop.Ref != "" {
				prop = &openapi3.SchemaRef{Value: &openapi3.Schema{AllOf: openapi3.SchemaRefs{prop}}}
			}
			if doc != "" {
				prop.Value.Description = doc
			}
			if example != "" {
				prop.Value.Example = example
			}
		}
		schema.Properties[name] = prop

		optional := false
		for _, opt := range parts[1:] {
			if opt == "omitempty" {
				optional = true
			}
		}
		if !optional {
			schema.Required = append(schema.Required, name)
		}
	}
	return schema
}
