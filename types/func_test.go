package types

import "testing"

func TestQualifiedName(t *testing.T) {
	tests := []struct {
		in   string
		want QualifiedName
	}{
		{"greet", QualifiedName{Func: "greet"}},
		{"wasi:cli/run@0.2.0#run", QualifiedName{Interface: "wasi:cli/run@0.2.0", Func: "run"}},
		{"greeter#hello", QualifiedName{Interface: "greeter", Func: "hello"}},
	}
	for _, tt := range tests {
		got := ParseQualifiedName(tt.in)
		if got != tt.want {
			t.Errorf("ParseQualifiedName(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
		if got.String() != tt.in {
			t.Errorf("String() = %q, want %q", got.String(), tt.in)
		}
	}
}

func TestMatchesInterface(t *testing.T) {
	tests := []struct {
		id, q string
		want  bool
	}{
		{"wasi:cli/run@0.2.0", "wasi:cli/run@0.2.0", true},
		{"wasi:cli/run@0.2.0", "run", true},
		{"local:demo/greeter", "greeter", true},
		{"greeter", "greeter", true},
		{"local:demo/greeter", "demo", false},
		{"greeter", "", false},
	}
	for _, tt := range tests {
		if got := MatchesInterface(tt.id, tt.q); got != tt.want {
			t.Errorf("MatchesInterface(%q, %q) = %v, want %v", tt.id, tt.q, got, tt.want)
		}
	}
}

func TestSignature(t *testing.T) {
	f := &Function{
		Name:    QualifiedName{Interface: "local:demo/text", Func: "uppercase"},
		Params:  []Param{{Name: "input", Type: String}},
		Results: []Param{{Type: String}},
	}
	if got := f.String(); got != "local:demo/text#uppercase: func(input: string) -> string" {
		t.Errorf("String() = %q", got)
	}

	multi := &Function{
		Name:    QualifiedName{Func: "split"},
		Results: []Param{{Name: "head", Type: String}, {Name: "rest", Type: String}},
	}
	if got := multi.Signature(); got != "func() -> (head: string, rest: string)" {
		t.Errorf("Signature() = %q", got)
	}
}

func TestSignatureEqual(t *testing.T) {
	base := &Function{
		Name:    QualifiedName{Func: "greet"},
		Params:  []Param{{Name: "who", Type: String}},
		Results: []Param{{Type: String}},
	}
	tests := []struct {
		name string
		f    *Function
		want bool
	}{
		{"param names ignored", &Function{Params: []Param{{Name: "name", Type: String}}, Results: []Param{{Type: String}}}, true},
		{"alias resolved", &Function{Params: []Param{{Name: "who", Type: &Named{Name: "name", Def: String}}}, Results: []Param{{Type: String}}}, true},
		{"result differs", &Function{Params: []Param{{Name: "who", Type: String}}, Results: []Param{{Type: U32}}}, false},
		{"missing result", &Function{Params: []Param{{Name: "who", Type: String}}}, false},
		{"extra param", &Function{Params: []Param{{Type: String}, {Type: String}}, Results: []Param{{Type: String}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SignatureEqual(base, tt.f); got != tt.want {
				t.Errorf("SignatureEqual = %v, want %v", got, tt.want)
			}
		})
	}
}
