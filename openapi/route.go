package openapi

import (
	"strconv"

	"github.com/getkin/kin-openapi/openapi3"
)

type Route struct {
	doc       *Document
	method    string
	path      string
	operation *openapi3.Operation
}

func (r *Route) Summary(summary string) *Route {
	r.operation.Summary = summary
	return r
}

func (r *Route) Description(description string) *Route {
	r.operation.Description = description
	return r
}

func (r *Route) Tags(tags ...string) *Route {
	r.operation.Tags = append(r.operation.Tags, tags...)
	return r
}

func (r *Route) Body(example any, description string) *Route {
	return r.BodySchema(r.doc.Schema(example), description)
}

func (r *Route) BodySchema(schema *openapi3.SchemaRef, description string) *Route {
	r.operation.RequestBody = &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().
			WithDescription(description).
			WithRequired(true).
			WithJSONSchemaRef(schema),
	}
	return r
}

func (r *Route) Response(status int, example any, description string) *Route {
	var schema *openapi3.SchemaRef
	if example != nil {
		schema = r.doc.Schema(example)
	}
	return r.ResponseSchema(status, schema, description)
}

func (r *Route) ResponseSchema(status int, schema *openapi3.SchemaRef, description string) *Route {
	response := openapi3.NewResponse().WithDescription(description)
	if schema != nil {
		response.Content = openapi3.NewContentWithJSONSchemaRef(schema)
	}
	r.operation.Responses.Set(strconv.Itoa(status), &openapi3.ResponseRef{Value: response})
	return r
}

func (r *Route) Security(schemes ...string) *Route {
	if r.operation.Security == nil {
		r.operation.Security = openapi3.NewSecurityRequirements()
	}
	for _, scheme := range schemes {
		r.operation.Security.With(openapi3.NewSecurityRequirement().Authenticate(scheme))
	}
	return r
}

func (r *Route) Build() {
	r.doc.addOperation(r.method, r.path, r.operation)
}
