package receiver

import "testing"

func compileFilter(t *testing.T, expr string) *celFilter {
	t.Helper()
	f, err := newCELFilter(expr)
	if err != nil {
		t.Fatalf("compile %q: %v", expr, err)
	}
	return f
}

func TestFilterEmptyExpression(t *testing.T) {
	f, err := newCELFilter("   ")
	if err != nil {
		t.Fatalf("compile blank: %v", err)
	}
	if f != nil {
		t.Fatalf("blank expression produced a filter")
	}
}

func TestFilterCompileErrors(t *testing.T) {
	for _, expr := range []string{
		"stream ==",
		"unknown_var > 3",
		"1 + 1", // well-formed but not boolean at the call site, still compiles
	} {
		_, err := newCELFilter(expr)
		if expr == "1 + 1" {
			if err != nil {
				t.Fatalf("compile %q: %v", expr, err)
			}
			continue
		}
		if err == nil {
			t.Fatalf("compile %q succeeded", expr)
		}
	}
}

func TestFilterEval(t *testing.T) {
	m := Message{
		ID:      "42-0",
		Stream:  "orders",
		Payload: []byte(`{"region":"eu","amount":17}`),
		Headers: map[string]string{"tenant": "acme"},
	}

	cases := []struct {
		expr string
		want bool
	}{
		{`stream == "orders"`, true},
		{`id.startsWith("42")`, true},
		{`size > 5`, true},
		{`text.contains("region")`, true},
		{`json.region == "eu"`, true},
		{`json.amount >= 20`, false},
		{`headers["tenant"] == "acme"`, true},
		{`headers["missing"] == "x"`, false},
		{`now_ms > 0`, true},
	}
	for _, c := range cases {
		if got := compileFilter(t, c.expr).Eval(m); got != c.want {
			t.Fatalf("Eval(%q) = %v, want %v", c.expr, got, c.want)
		}
	}
}

func TestFilterNonJSONPayload(t *testing.T) {
	m := Message{ID: "1", Stream: "s", Payload: []byte("plain text")}
	if compileFilter(t, `json != null`).Eval(m) {
		t.Fatalf("non-JSON payload matched json != null")
	}
	if !compileFilter(t, `text == "plain text"`).Eval(m) {
		t.Fatalf("text variable missing for non-JSON payload")
	}
}

func TestFilterNonBooleanResultRejects(t *testing.T) {
	m := Message{ID: "1", Stream: "s", Payload: []byte("x")}
	if compileFilter(t, `1 + 1`).Eval(m) {
		t.Fatalf("non-boolean result admitted message")
	}
}

func TestFilterNilHeaders(t *testing.T) {
	m := Message{ID: "1", Stream: "s"}
	if compileFilter(t, `"k" in headers`).Eval(m) {
		t.Fatalf("nil headers matched membership test")
	}
}
