package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestCallValidatesArguments(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&Tool{
		Name: "echo",
		Parameters: json.RawMessage(`{
			"type": "object",
			"required": ["text"],
			"properties": {"text": {"type": "string"}},
			"additionalProperties": false
		}`),
		Execute: func(ctx context.Context, args json.RawMessage) (any, error) {
			var p struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, err
			}
			return p.Text, nil
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	tool, _ := r.Get("echo")

	out, err := tool.Call(context.Background(), json.RawMessage(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if string(out) != `"hi"` {
		t.Fatalf("output = %s", out)
	}

	if _, err := tool.Call(context.Background(), json.RawMessage(`{}`)); err == nil {
		t.Fatalf("missing required property accepted")
	}
	if _, err := tool.Call(context.Background(), json.RawMessage(`{"text":42}`)); err == nil {
		t.Fatalf("wrong property type accepted")
	}
	if _, err := tool.Call(context.Background(), json.RawMessage(`{"text":"x","extra":1}`)); err == nil {
		t.Fatalf("additional property accepted")
	}
}

func TestRegisterRejectsBadSchema(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&Tool{
		Name:       "broken",
		Parameters: json.RawMessage(`{"type": 42}`),
		Execute:    func(ctx context.Context, args json.RawMessage) (any, error) { return nil, nil },
	})
	if err == nil {
		t.Fatalf("invalid schema accepted")
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	tool := &Tool{Name: "one", Execute: func(ctx context.Context, args json.RawMessage) (any, error) { return nil, nil }}
	if err := r.Register(tool); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(&Tool{Name: "one"}); err == nil {
		t.Fatalf("duplicate accepted")
	}
	if err := r.Register(&Tool{Name: ""}); err == nil {
		t.Fatalf("empty name accepted")
	}
}

func TestResolve(t *testing.T) {
	r := Builtin()
	list, err := r.Resolve([]string{"get-weather", "send-mail"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(list) != 2 || list[0].Name != "get-weather" {
		t.Fatalf("resolved = %+v", list)
	}
	if _, err := r.Resolve([]string{"get-weather", "no-such-tool"}); err == nil {
		t.Fatalf("unknown tool resolved")
	}
}

func TestBuiltinWeather(t *testing.T) {
	r := Builtin()
	tool, ok := r.Get("get-weather")
	if !ok {
		t.Fatalf("get-weather not registered")
	}
	if tool.NeedsApproval {
		t.Fatalf("get-weather should not need approval")
	}

	out, err := tool.Call(context.Background(), json.RawMessage(`{"location":"Oslo"}`))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	var result struct {
		Location    string `json:"location"`
		Temperature int    `json:"temperature"`
		Condition   string `json:"condition"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Location != "Oslo" || result.Condition != "Sunny" {
		t.Fatalf("result = %+v", result)
	}

	if _, err := tool.Call(context.Background(), json.RawMessage(`{}`)); err == nil {
		t.Fatalf("call without location accepted")
	}
}

func TestBuiltinMail(t *testing.T) {
	r := Builtin()

	inbox, ok := r.Get("get-mails")
	if !ok {
		t.Fatalf("get-mails not registered")
	}
	out, err := inbox.Call(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("get-mails: %v", err)
	}
	var mails struct {
		Emails []struct {
			From    string `json:"from"`
			Subject string `json:"subject"`
		} `json:"emails"`
	}
	if err := json.Unmarshal(out, &mails); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(mails.Emails) != 3 {
		t.Fatalf("got %d emails, want 3", len(mails.Emails))
	}

	send, ok := r.Get("send-mail")
	if !ok {
		t.Fatalf("send-mail not registered")
	}
	if !send.NeedsApproval {
		t.Fatalf("send-mail must require approval")
	}
	out, err = send.Call(context.Background(), json.RawMessage(`{"to":"a@b.c","subject":"hi","body":"hello"}`))
	if err != nil {
		t.Fatalf("send-mail: %v", err)
	}
	if !strings.Contains(string(out), "a@b.c") {
		t.Fatalf("result = %s", out)
	}
}
