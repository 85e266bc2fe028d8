package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Registry returns all supported commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service:      "language",
			Action:       "list",
			Method:       "GET",
			PathTemplate: "/api/v1/languages",
		},
		{
			Service:      "judge",
			Action:       "run",
			Method:       "POST",
			PathTemplate: "/api/v1/judge/run",
			Fields: []Field{
				{Name: "language_id", Aliases: []string{"lang"}, Prompt: "language_id", Type: FieldString, Required: true},
				{Name: "source_code", Prompt: "source_code", Type: FieldString, Required: true},
				{Name: "test_cases", Prompt: "test_cases (json array)", Type: FieldJSON, Required: true},
				{Name: "source_file", Prompt: "source_file", Type: FieldFile, Required: false},
				{Name: "cases_file", Prompt: "cases_file", Type: FieldFile, Required: false},
			},
		},
		{
			Service:      "submission",
			Action:       "create",
			Method:       "POST",
			PathTemplate: "/api/v1/submissions",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "problem_id", Prompt: "problem_id", Type: FieldInt64, Required: true},
				{Name: "language_id", Aliases: []string{"lang"}, Prompt: "language_id", Type: FieldString, Required: true},
				{Name: "source_code", Prompt: "source_code", Type: FieldString, Required: true},
				{Name: "source_file", Prompt: "source_file", Type: FieldFile, Required: false},
				{Name: "async", Prompt: "async", Type: FieldBool, Required: false},
				{Name: "idempotency_key", Prompt: "idempotency_key", Type: FieldString, Required: false},
			},
		},
		{
			Service:      "submission",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/api/v1/submissions/:id",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "id", Aliases: []string{"submission_id"}, Prompt: "submission_id", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "submission",
			Action:       "list",
			Method:       "GET",
			PathTemplate: "/api/v1/problems/:id/submissions",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "id", Aliases: []string{"problem_id"}, Prompt: "problem_id", Type: FieldInt64, Required: true},
				{Name: "language_id", Aliases: []string{"lang"}, Prompt: "language_id", Type: FieldString, Required: false},
			},
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		key := fmt.Sprintf("%s %s", cmd.Service, cmd.Action)
		result[key] = cmd
	}
	return result
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	path, err := buildPath(cmd.PathTemplate, params)
	if err != nil {
		return RequestSpec{}, err
	}

	headers := map[string]string{}
	if cmd.Service == "submission" && cmd.Action == "create" {
		headers["Idempotency-Key"] = params.Get("idempotency_key")
	}

	var body []byte
	if cmd.Method == "GET" || cmd.Method == "DELETE" {
		path += buildQuery(cmd, params)
	} else {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		if payload != nil {
			body, err = json.Marshal(payload)
			if err != nil {
				return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
			}
		}
	}

	return RequestSpec{
		Method:  cmd.Method,
		Path:    path,
		Headers: headers,
		Body:    body,
	}, nil
}

func buildPath(template string, params Params) (string, error) {
	path := template
	if strings.Contains(path, ":id") {
		value := params.Get("id")
		if value == "" {
			return "", fmt.Errorf("missing path parameter: id")
		}
		path = strings.ReplaceAll(path, ":id", url.PathEscape(value))
	}
	return path, nil
}

// buildQuery encodes optional non-path fields of read commands.
func buildQuery(cmd Command, params Params) string {
	values := url.Values{}
	for _, field := range cmd.Fields {
		if field.Name == "id" || field.Required {
			continue
		}
		if value := params.Get(field.Name); value != "" {
			values.Set(field.Name, value)
		}
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}

func buildPayload(cmd Command, params Params) (interface{}, error) {
	switch cmd.Service {
	case "judge":
		if cmd.Action == "run" {
			return buildJudgeRunPayload(params)
		}
	case "submission":
		if cmd.Action == "create" {
			return buildSubmissionCreatePayload(params)
		}
	}
	return nil, nil
}

func buildJudgeRunPayload(params Params) (interface{}, error) {
	sourceCode, err := valueOrFile(params, "source_code", "source_file")
	if err != nil {
		return nil, err
	}
	cases, err := valueOrFile(params, "test_cases", "cases_file")
	if err != nil {
		return nil, err
	}
	casesJSON, err := ParseJSON(cases)
	if err != nil {
		return nil, fmt.Errorf("invalid test_cases: %w", err)
	}
	return map[string]interface{}{
		"language_id": params.Get("language_id"),
		"source_code": sourceCode,
		"test_cases":  casesJSON,
	}, nil
}

func buildSubmissionCreatePayload(params Params) (interface{}, error) {
	problemID, err := ParseInt64(params.Get("problem_id"))
	if err != nil {
		return nil, fmt.Errorf("invalid problem_id: %w", err)
	}
	sourceCode, err := valueOrFile(params, "source_code", "source_file")
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"problem_id":  problemID,
		"language_id": params.Get("language_id"),
		"source_code": sourceCode,
	}
	if params.Get("async") != "" {
		async, err := ParseBool(params.Get("async"))
		if err != nil {
			return nil, fmt.Errorf("invalid async: %w", err)
		}
		payload["async"] = async
	}
	return payload, nil
}

// valueOrFile reads fileKey when key is empty or holds the file placeholder.
func valueOrFile(params Params, key, fileKey string) (string, error) {
	value := params.Get(key)
	if (value == "" || value == FilePlaceholder) && params.Get(fileKey) != "" {
		data, err := ReadFile(params.Get(fileKey))
		if err != nil {
			return "", err
		}
		value = data
	}
	if value == "" || value == FilePlaceholder {
		return "", fmt.Errorf("%s is required", key)
	}
	return value, nil
}
