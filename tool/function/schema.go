//
// Tencent is pleased to support the open source community by making trpc-hitl-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-hitl-go is licensed under the Apache License Version 2.0.
//
//

package function

import (
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"

	"trpc.group/trpc-go/trpc-hitl-go/tool"
)

var reflector = &jsonschema.Reflector{
	AllowAdditionalProperties: false,
	DoNotReference:            true,
}

// GenerateSchema reflects t into a tool schema. Interface types have no
// fixed shape and yield nil.
func GenerateSchema(t reflect.Type) *tool.Schema {
	if t == nil || t.Kind() == reflect.Interface {
		return nil
	}
	raw, err := json.Marshal(reflector.ReflectFromType(t))
	if err != nil {
		return nil
	}
	var s tool.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}
